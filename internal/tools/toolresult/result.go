// Package toolresult builds the JSON objects built-in tools return. Every
// result carries "success"; failures add "error" and, for commands, "exitCode".
package toolresult

import "encoding/json"

// OK encodes fields with success=true.
func OK(fields map[string]any) (string, error) {
	out := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["success"] = true
	return encode(out)
}

// Fail encodes a soft failure carrying msg and any extra fields.
func Fail(msg string, fields map[string]any) (string, error) {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	out["success"] = false
	if msg != "" {
		out["error"] = msg
	}
	return encode(out)
}

func encode(v map[string]any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
