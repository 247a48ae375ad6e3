package providers

import (
	"net/http"
	"regexp"
	"strconv"
)

// statusPattern finds an HTTP status code quoted in an SDK error message,
// e.g. "status code: 429" or "HTTP 503".
var statusPattern = regexp.MustCompile(`(?i)(?:status(?: code)?|http)[:= ]*\s*([1-5]\d\d)\b|\b(4(?:00|01|02|03|29)|5(?:00|02|03|04))\b`)

// extractHTTPStatus extracts the HTTP status code from an SDK error. Both
// SDKs only surface it inside the message text, so the message is scanned.
func extractHTTPStatus(err error) int {
	if err == nil {
		return 0
	}
	m := statusPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return 0
	}
	code := m[1]
	if code == "" {
		code = m[2]
	}
	n, convErr := strconv.Atoi(code)
	if convErr != nil || http.StatusText(n) == "" {
		return 0
	}
	return n
}
