package worker

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ckirkland/conductor/pkg/models"
)

// record is the wire format of one newline-delimited worker output record.
type record struct {
	Type    string         `json:"type"`
	Subtype string         `json:"subtype,omitempty"`
	Text    string         `json:"text,omitempty"`
	Message string         `json:"message,omitempty"`
	Tool    string         `json:"tool,omitempty"`
	Input   map[string]any `json:"input,omitempty"`
}

// suppressedSubtypes lists system record subtypes that carry no information
// worth surfacing to observers.
var suppressedSubtypes = map[string]bool{
	"init":      true,
	"heartbeat": true,
	"telemetry": true,
}

// parseRecord parses one output line into a classified entry.
// The second return value is false for records that should be dropped:
// suppressed system notices and records of unknown type.
func parseRecord(line []byte) (models.OutputEntry, bool, error) {
	var rec record
	if err := json.Unmarshal(line, &rec); err != nil {
		return models.OutputEntry{}, false, fmt.Errorf("unmarshal record: %w", err)
	}

	entry := models.OutputEntry{Timestamp: time.Now()}

	switch rec.Type {
	case "assistant":
		entry.Kind = models.OutputAssistant
		entry.Text = firstNonEmpty(rec.Text, rec.Message)
	case "tool", "tool_use":
		entry.Kind = models.OutputTool
		entry.Tool = rec.Tool
		entry.Text = renderToolAction(rec.Tool, rec.Input)
	case "result":
		entry.Kind = models.OutputResult
		entry.Text = firstNonEmpty(rec.Text, rec.Message)
	case "system":
		if suppressedSubtypes[rec.Subtype] {
			return models.OutputEntry{}, false, nil
		}
		entry.Kind = models.OutputSystem
		entry.Text = firstNonEmpty(rec.Text, rec.Message)
	default:
		return models.OutputEntry{}, false, nil
	}

	return entry, true, nil
}

// renderToolAction renders a tool invocation to a short human-readable
// description keyed by tool name.
func renderToolAction(tool string, input map[string]any) string {
	switch tool {
	case "read":
		return "Reading " + inputString(input, "path")
	case "write":
		return "Writing " + inputString(input, "path")
	case "edit":
		return "Editing " + inputString(input, "path")
	case "shell":
		return "Running `" + inputString(input, "command") + "`"
	case "search":
		return "Searching for " + inputString(input, "pattern")
	case "subtask":
		return "Delegating subtask: " + inputString(input, "description")
	case "web-fetch":
		return "Fetching " + inputString(input, "url")
	case "web-search":
		return "Searching the web for " + inputString(input, "query")
	default:
		return fmt.Sprintf("Using tool %s", tool)
	}
}

// inputString extracts a string field from a tool input map.
func inputString(input map[string]any, key string) string {
	if input == nil {
		return "?"
	}
	if v, ok := input[key].(string); ok && v != "" {
		return v
	}
	return "?"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
