package engine

import (
	"strings"

	"github.com/dop251/goja"
)

// exceptionDetails extracts the JS error name and message from a thrown
// value. Non-Error throws (throw "oops") fall back to their string form.
func exceptionDetails(exc *goja.Exception) (name, message string) {
	v := exc.Value()
	if obj, ok := v.(*goja.Object); ok {
		if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
			name = n.String()
		}
		if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
			message = m.String()
		}
	}
	if name == "" {
		name = "Error"
	}
	if message == "" && v != nil {
		message = v.String()
	}
	return name, message
}

// cleanTraceback strips stack frames outside the user's code so internal
// file paths never leak into results.
func cleanTraceback(stack string) string {
	lines := strings.Split(stack, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "at ") && !strings.Contains(trimmed, sourceName) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
