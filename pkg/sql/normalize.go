package sql

import "strings"

// Normalize renders a statement in a canonical form for comparison:
// comments dropped, unquoted words upper-cased, whitespace collapsed and
// the trailing semicolon removed. Literals and quoted identifiers keep
// their exact text.
func Normalize(sqlText string) string {
	tokens := SignificantTokens(stripTrailingSemicolon(strings.TrimSpace(sqlText), StandardReading))

	var b strings.Builder
	for k, tok := range tokens {
		if k > 0 && needsSpace(tokens[k-1], tok) {
			b.WriteByte(' ')
		}
		if tok.Kind == TokenWord {
			b.WriteString(tok.Upper())
		} else {
			b.WriteString(tok.Text)
		}
	}
	return b.String()
}

// Equivalent reports whether two statements normalize to the same text.
func Equivalent(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

func needsSpace(prev, cur Token) bool {
	switch {
	case cur.IsPunct(","), cur.IsPunct(")"), cur.IsPunct("."), prev.IsPunct("."), prev.IsPunct("("):
		return false
	case cur.IsPunct("("):
		// Function call: no space between name and arguments.
		if prev.Kind == TokenQuotedIdent || (prev.Kind == TokenWord && !isKeyword(prev.Upper())) {
			return false
		}
	}
	return true
}
