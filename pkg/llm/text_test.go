package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripThinking(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no think block", "SELECT 1", "SELECT 1"},
		{"leading block", "<think>\nthe user wants a count\n</think>\nSELECT COUNT(*) FROM t", "SELECT COUNT(*) FROM t"},
		{"block not at start is kept", "answer <think>x</think>", "answer <think>x</think>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripThinking(tt.input))
		})
	}
}

func TestCleanAnswer(t *testing.T) {
	assert.Equal(t, "There are 42 orders.", CleanAnswer("  There are 42 orders.\n"))
	assert.Equal(t, "There are 42 orders.", CleanAnswer("```\nThere are 42 orders.\n```"))
	assert.Equal(t, "Three customers.", CleanAnswer("<think>count rows</think>\n```text\nThree customers.\n```"))
	assert.Equal(t, "", CleanAnswer("   "))
}
