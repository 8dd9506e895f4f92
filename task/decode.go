package task

import (
	"bytes"
	"encoding/json"
	"strings"
)

// decodeOutput interprets raw bytes produced by a system under test: valid
// JSON decodes to its value, anything else becomes trimmed text.
func decodeOutput(raw []byte) any {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	var v any
	if json.Valid(trimmed) && json.Unmarshal(trimmed, &v) == nil {
		return v
	}
	return strings.TrimSpace(string(raw))
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
