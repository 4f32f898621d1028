package prompt

import (
	"regexp"
	"strings"
)

var reasoningTagRe = regexp.MustCompile(`(?is)<think>.*?</think>`)

// StripReasoningTags removes <think>...</think> spans from model output
// and trims the whitespace left around the visible text.
func StripReasoningTags(text string) string {
	if text == "" {
		return ""
	}
	return strings.TrimSpace(reasoningTagRe.ReplaceAllString(text, ""))
}
