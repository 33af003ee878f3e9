package steps

import (
	"encoding/json"
	"fmt"
	"strings"
)

// sanitizeJSON strips a surrounding ```json fenced code block (or bare
// ``` fence), if present, and decodes the remainder into a generic
// JSON value. LLM responses for JSON-extraction prompts routinely wrap
// their answer in a markdown fence despite being told not to.
func sanitizeJSON(raw string) (any, error) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var value any
	if err := json.Unmarshal([]byte(text), &value); err != nil {
		return nil, fmt.Errorf("sanitize json: %w", err)
	}
	return value, nil
}

// stringify renders v as a value suitable for direct-match comparison:
// strings pass through unquoted, everything else is re-encoded as JSON
// text so nested objects/arrays survive as a single comparable string.
func stringify(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, true
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return "", false
		}
		return string(raw), true
	}
}
