package parser

import (
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/tidwall/gjson"
)

// File event types recorded for file-touching tools.
const (
	FileEventRead   = "read"
	FileEventCreate = "create"
	FileEventEdit   = "edit"
)

// fileEventTools maps tool names to the input field naming the file and the
// event type to record.
var fileEventTools = map[string]struct {
	field string
	event string
}{
	"Read":  {"file_path", FileEventRead},
	"Write": {"file_path", FileEventCreate},
	"Edit":  {"file_path", FileEventEdit},
	"Glob":  {"path", FileEventRead},
	"Grep":  {"path", FileEventRead},
}

// SummarizeToolInput renders a one-line human summary of a tool invocation's
// input. Width caps keep the index rows scannable in list views.
func SummarizeToolInput(toolName string, input []byte) string {
	if len(input) == 0 {
		return ""
	}
	get := func(field string) string {
		return gjson.GetBytes(input, field).String()
	}
	switch toolName {
	case "Bash":
		return runewidth.Truncate(get("command"), 80, "...")
	case "Read", "Write", "Edit":
		return runewidth.Truncate(get("file_path"), 80, "...")
	case "Glob", "Grep":
		return runewidth.Truncate(get("pattern"), 80, "...")
	case "Task", "TaskCreate", "TaskUpdate":
		val := get("subject")
		if toolName == "TaskUpdate" {
			val = get("description")
		}
		if val == "" {
			if val = get("subject"); val == "" {
				val = get("description")
			}
		}
		return runewidth.Truncate(val, 60, "...")
	default:
		// Unknown tool: first of the common fields that is present.
		for _, field := range []string{"subject", "description", "file_path", "command", "query"} {
			if v := get(field); v != "" {
				return runewidth.Truncate(v, 80, "...")
			}
		}
		return ""
	}
}

// FileEventFor extracts a file event from a tool invocation, if the tool
// touches files. Bash commands are recorded with the command text in place of
// a path so the timeline still shows what ran.
func FileEventFor(toolName string, input []byte) (path, event string, ok bool) {
	if len(input) == 0 {
		return "", "", false
	}
	if spec, found := fileEventTools[toolName]; found {
		p := gjson.GetBytes(input, spec.field).String()
		if p == "" {
			return "", "", false
		}
		return p, spec.event, true
	}
	if toolName == "Bash" {
		cmd := gjson.GetBytes(input, "command").String()
		if cmd == "" {
			return "", "", false
		}
		if r := []rune(cmd); len(r) > 200 {
			cmd = string(r[:200])
		}
		return cmd, "bash", true
	}
	return "", "", false
}

// StripSearchMarkers removes snippet highlight markers from text.
func StripSearchMarkers(s string) string {
	s = strings.ReplaceAll(s, ">>>>", "")
	return strings.ReplaceAll(s, "<<<<", "")
}
