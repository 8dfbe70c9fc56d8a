package openai

import (
	"regexp"
	"strings"
)

var jsonRe = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSON pulls the outermost JSON object out of a model reply that may
// be wrapped in prose or markdown fences.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s
	}
	m := jsonRe.FindString(s)
	if m != "" {
		return m
	}
	return "{}"
}
