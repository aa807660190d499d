// Package web provides the HTTP API for inspecting run state and pausing runs.
package web

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/stepflow/pkg/engine"
	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type APIHandlers struct {
	store     persistence.StateStore
	pauseFile string
	logger    *slog.Logger
}

func NewAPIHandlers(log *slog.Logger, store persistence.StateStore, pauseFile string) *APIHandlers {
	return &APIHandlers{
		store:     store,
		pauseFile: pauseFile,
		logger:    log.With("module", "web"),
	}
}

// App builds the fiber application with every route registered.
func (h *APIHandlers) App() *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("stepflow API")
	})

	app.Get("/health", h.HealthCheck)

	w := app.Group("/workflows")
	w.Get("/:name/state", h.GetState)
	w.Delete("/:name/state", h.DeleteState)

	app.Get("/pause", h.GetPause)
	app.Put("/pause", h.Pause)
	app.Delete("/pause", h.Resume)

	return app
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "stepflow API is healthy"
	httpStatus := http.StatusOK
	storeCheck := "ok"

	if err := h.store.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "stepflow API is unhealthy"
		httpStatus = http.StatusInternalServerError
		storeCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"state_store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// GetState returns the ledger of a workflow, addressed by its file stem.
func (h *APIHandlers) GetState(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Workflow name is required")
	}

	state, err := h.store.Load(c.Context(), name)
	if err != nil {
		return handleStateError(c, err)
	}

	return c.JSON(TransformStateResponse(persistence.StateKey(name), state))
}

// DeleteState removes the ledger so the next run starts fresh.
func (h *APIHandlers) DeleteState(c fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return badRequest(c, "Workflow name is required")
	}

	if err := h.store.Delete(c.Context(), name); err != nil {
		return handleStateError(c, err)
	}

	h.logger.Info("Workflow state reset", "workflow", name)

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetPause(c fiber.Ctx) error {
	if h.pauseFile == "" {
		return notFound(c, "No pause file configured")
	}

	return c.JSON(PauseResponse{Paused: engine.IsPaused(h.pauseFile), PauseFile: h.pauseFile})
}

// Pause creates the pause sentinel; runs watching it stop dispatching.
func (h *APIHandlers) Pause(c fiber.Ctx) error {
	if h.pauseFile == "" {
		return notFound(c, "No pause file configured")
	}

	if err := engine.Pause(h.pauseFile); err != nil {
		return internalError(c, err)
	}

	h.logger.Info("Pause requested", "pause_file", h.pauseFile)

	return c.JSON(PauseResponse{Paused: true, PauseFile: h.pauseFile})
}

// Resume removes the pause sentinel.
func (h *APIHandlers) Resume(c fiber.Ctx) error {
	if h.pauseFile == "" {
		return notFound(c, "No pause file configured")
	}

	if err := engine.Resume(h.pauseFile); err != nil {
		return internalError(c, err)
	}

	h.logger.Info("Resume requested", "pause_file", h.pauseFile)

	return c.JSON(PauseResponse{Paused: false, PauseFile: h.pauseFile})
}
