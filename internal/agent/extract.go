package agent

import (
	"regexp"
	"strings"
)

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFence  = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")
)

// ExtractJSON pulls the JSON object out of a model answer: reasoning blocks
// (<think>...</think>) are dropped, a fenced block wins, otherwise the span
// from the first '{' to the last '}' is used. Returns "" if there is none.
func ExtractJSON(text string) string {
	text = thinkBlock.ReplaceAllString(text, "")
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return ""
	}
	return text[start : end+1]
}
