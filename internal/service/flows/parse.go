package flows

import (
	"encoding/json"
	"strings"
)

// decodeJSON extracts the JSON object from a model reply. Replies wrapped in
// markdown fences or surrounded by prose are tolerated.
func decodeJSON(raw string, v any) bool {
	text := strings.TrimSpace(raw)
	if text == "" {
		return false
	}
	if inner, ok := stripFence(text); ok {
		text = inner
	}
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return false
	}
	return json.Unmarshal([]byte(text[start:end+1]), v) == nil
}

func stripFence(text string) (string, bool) {
	if !strings.HasPrefix(text, "```") {
		return "", false
	}
	body := strings.TrimPrefix(text, "```")
	// language tag on the opening fence
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body), true
}
