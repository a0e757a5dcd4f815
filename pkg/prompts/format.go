// Package prompts builds the language-model prompts for SQL generation and
// answer synthesis.
package prompts

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// FormatCell renders a scanned database value as prompt text. Newlines and
// pipes are flattened so a cell never breaks the table layout. maxLen <= 0
// disables truncation.
func FormatCell(v any, maxLen int) string {
	var s string
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		s = val
	case []byte:
		if utf8.Valid(val) {
			s = string(val)
		} else {
			s = "0x" + hex.EncodeToString(val)
		}
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 && val.Nanosecond() == 0 {
			s = val.Format("2006-01-02")
		} else {
			s = val.Format("2006-01-02 15:04:05")
		}
	case float32:
		s = formatFloat(float64(val))
	case float64:
		s = formatFloat(val)
	case bool:
		if val {
			s = "true"
		} else {
			s = "false"
		}
	case fmt.Stringer:
		s = val.String()
	default:
		s = fmt.Sprint(val)
	}

	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ", "|", "\\|").Replace(s)
	return truncateCell(s, maxLen)
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%g", f)
}

func truncateCell(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen]) + "..."
}
