package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON strips Markdown code-fence wrappers (```json or plain ```),
// locates the first balanced {...} object via brace counting, and unmarshals
// it into dest. Returns an error carrying the raw content when no balanced
// object is found, for diagnostics.
func ExtractJSON(raw string, dest interface{}) error {
	content := strings.TrimSpace(raw)

	if idx := strings.Index(content, "```json"); idx != -1 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end != -1 {
			content = content[:end]
		}
	} else if idx := strings.Index(content, "```"); idx != -1 {
		content = content[idx+3:]
		if end := strings.Index(content, "```"); end != -1 {
			content = content[:end]
		}
	}
	content = strings.TrimSpace(content)

	start := strings.IndexByte(content, '{')
	if start == -1 {
		return fmt.Errorf("no JSON object found in completion: %q", raw)
	}

	depth := 0
	end := -1
	for i := start; i < len(content); i++ {
		switch content[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		return fmt.Errorf("unbalanced JSON object in completion: %q", raw)
	}

	object := content[start:end]
	if err := json.Unmarshal([]byte(object), dest); err != nil {
		return fmt.Errorf("failed to parse extracted JSON %q: %w", object, err)
	}
	return nil
}
