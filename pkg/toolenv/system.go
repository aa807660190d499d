package toolenv

// systemTools are run directly with bash, never inside an isolated environment.
var systemTools = map[string]struct{}{
	"bash": {}, "sh": {}, "echo": {}, "cat": {}, "cp": {}, "mv": {}, "rm": {}, "mkdir": {},
	"sleep": {}, "touch": {}, "ls": {}, "grep": {}, "sed": {}, "awk": {}, "head": {}, "tail": {},
	"sort": {}, "uniq": {}, "wc": {}, "cut": {}, "tr": {}, "tee": {}, "curl": {}, "wget": {},
	"gzip": {}, "gunzip": {}, "tar": {}, "zip": {}, "unzip": {}, "bc": {}, "date": {}, "find": {},
	"xargs": {}, "diff": {}, "comm": {}, "paste": {}, "rev": {}, "fold": {}, "printf": {},
	"test": {}, "true": {}, "false": {},
}

func IsSystemTool(tool string) bool {
	_, ok := systemTools[tool]

	return ok
}

// IsolatedTools returns the tools that need an isolated environment, in input order.
func IsolatedTools(tools []string) []string {
	var isolated []string

	for _, tool := range tools {
		if !IsSystemTool(tool) {
			isolated = append(isolated, tool)
		}
	}

	return isolated
}
