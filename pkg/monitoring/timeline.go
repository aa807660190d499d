// Package monitoring records when steps ran and how much CPU and memory the
// runner used while they did.
package monitoring

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

const (
	DefaultGanttWidth = 50
	labelWidth        = 12
)

type EventType string

const (
	EventStarted   EventType = "started"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

type TimelineEvent struct {
	StepID    string
	Type      EventType
	Timestamp time.Time
}

// Timeline is an append-only log of step events. It is safe for concurrent use.
type Timeline struct {
	mu     sync.Mutex
	start  time.Time
	events []TimelineEvent
	now    func() time.Time
}

func NewTimeline() *Timeline {
	return newTimelineWithClock(time.Now)
}

func newTimelineWithClock(now func() time.Time) *Timeline {
	return &Timeline{start: now(), now: now}
}

func (t *Timeline) Add(stepID string, eventType EventType) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = append(t.events, TimelineEvent{StepID: stepID, Type: eventType, Timestamp: t.now()})
}

func (t *Timeline) Started(stepID string)   { t.Add(stepID, EventStarted) }
func (t *Timeline) Completed(stepID string) { t.Add(stepID, EventCompleted) }
func (t *Timeline) Failed(stepID string)    { t.Add(stepID, EventFailed) }

func (t *Timeline) Events() []TimelineEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	return slices.Clone(t.events)
}

func (t *Timeline) Elapsed() time.Duration {
	return t.now().Sub(t.start)
}

type span struct {
	stepID string
	start  time.Duration
	end    time.Duration
	failed bool
}

func (t *Timeline) spans() []span {
	t.mu.Lock()
	defer t.mu.Unlock()

	index := map[string]int{}

	var spans []span

	for _, event := range t.events {
		offset := event.Timestamp.Sub(t.start)

		switch event.Type {
		case EventStarted:
			if i, ok := index[event.StepID]; ok {
				spans[i].start = offset
				spans[i].end = 0

				continue
			}

			index[event.StepID] = len(spans)
			spans = append(spans, span{stepID: event.StepID, start: offset})
		case EventCompleted, EventFailed:
			if i, ok := index[event.StepID]; ok {
				spans[i].end = offset
				spans[i].failed = event.Type == EventFailed
			}
		}
	}

	return spans
}

// Durations maps each finished step to its run time. Steps that only started
// are omitted.
func (t *Timeline) Durations() map[string]time.Duration {
	durations := map[string]time.Duration{}

	for _, s := range t.spans() {
		if s.end > 0 {
			durations[s.stepID] = s.end - s.start
		}
	}

	return durations
}

// Gantt renders an ASCII chart of finished steps ordered by start time, scaled
// to width columns, followed by the total elapsed time.
func (t *Timeline) Gantt(width int) string {
	if width <= 0 {
		width = DefaultGanttWidth
	}

	var b strings.Builder

	b.WriteString("\nExecution Timeline:\n\n")

	total := t.Elapsed()
	if total <= 0 {
		return b.String()
	}

	spans := t.spans()
	slices.SortStableFunc(spans, func(a, b span) int {
		return cmp.Compare(a.start, b.start)
	})

	scale := float64(width) / float64(total)
	ok := color.New(color.FgGreen)
	failed := color.New(color.FgRed)

	for _, s := range spans {
		if s.end <= s.start {
			continue
		}

		offset := int(float64(s.start) * scale)
		length := max(int(float64(s.end-s.start)*scale), 1)

		bar := ok
		if s.failed {
			bar = failed
		}

		fmt.Fprintf(&b, "%-*s |%s%s| (%d ms)\n",
			labelWidth, truncate(s.stepID, labelWidth),
			strings.Repeat(" ", offset), bar.Sprint(strings.Repeat("#", length)),
			(s.end - s.start).Milliseconds())
	}

	fmt.Fprintf(&b, "\nTotal: %d ms\n", total.Milliseconds())

	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[:n-3] + "..."
}
