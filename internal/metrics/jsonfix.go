package metrics

import (
	"fmt"
	"regexp"
	"strings"
)

var jsonStringRe = regexp.MustCompile(`"([^"]*(?:\\.[^"]*)*)"`)

// RepairJSONEscapes escapes raw control characters that vision models
// sometimes leave inside JSON string values.
func RepairJSONEscapes(jsonStr string) string {
	return jsonStringRe.ReplaceAllStringFunc(jsonStr, func(match string) string {
		if len(match) < 2 {
			return match
		}
		content := match[1 : len(match)-1]

		// Backslash-space is not a valid escape.
		content = strings.ReplaceAll(content, "\\ ", "\\\\ ")
		content = strings.ReplaceAll(content, "\n", "\\n")
		content = strings.ReplaceAll(content, "\r", "\\r")
		content = strings.ReplaceAll(content, "\t", "\\t")

		var b strings.Builder
		for _, ch := range content {
			if ch < 0x20 {
				b.WriteString(fmt.Sprintf("\\u%04x", ch))
			} else {
				b.WriteRune(ch)
			}
		}
		return `"` + b.String() + `"`
	})
}
