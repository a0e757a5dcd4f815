package llm

import (
	"regexp"
	"strings"
)

// Reasoning models (DeepSeek, Qwen) prefix replies with a <think> block.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

var answerFencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n(.*?)\\n?```$")

// StripThinking removes a leading <think>...</think> block from a completion.
func StripThinking(content string) string {
	return thinkTagPattern.ReplaceAllString(content, "")
}

// CleanAnswer trims a natural-language reply: reasoning preamble, a
// wrapping code fence and surrounding whitespace are removed.
func CleanAnswer(content string) string {
	s := strings.TrimSpace(StripThinking(content))
	if m := answerFencePattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	return s
}
