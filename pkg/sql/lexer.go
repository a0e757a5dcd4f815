package sql

import (
	"strings"
	"unicode"
)

// TokenKind classifies a lexical token.
type TokenKind int

const (
	// TokenWord is an unquoted keyword or identifier.
	TokenWord TokenKind = iota
	// TokenQuotedIdent is a "double", `backtick` or [bracket] quoted identifier.
	TokenQuotedIdent
	// TokenString is a string literal, including dollar-quoted bodies.
	TokenString
	// TokenNumber is a numeric literal.
	TokenNumber
	// TokenPunct is a single punctuation or operator character.
	TokenPunct
	// TokenComment is a -- line or /* block */ comment.
	TokenComment
)

// Token is one lexical unit of a SQL text. Depth is the parenthesis nesting
// level at which the token starts.
type Token struct {
	Kind  TokenKind
	Text  string
	Pos   int
	Depth int
}

// Upper returns the token text upper-cased, for keyword comparison.
func (t Token) Upper() string {
	return strings.ToUpper(t.Text)
}

// IsWord reports whether the token is the unquoted keyword kw (case-insensitive).
func (t Token) IsWord(kw string) bool {
	return t.Kind == TokenWord && strings.EqualFold(t.Text, kw)
}

// IsPunct reports whether the token is the punctuation character p.
func (t Token) IsPunct(p string) bool {
	return t.Kind == TokenPunct && t.Text == p
}

// Reading fixes the lexical rules on which dialects disagree. The same text
// can hold a statement separator or an INTO clause under one reading and
// only literals under another, so the read-only guard lexes every reading
// in GuardReadings and refuses the statement if any of them does.
type Reading struct {
	// BackslashEscapes makes \ an escape inside '...' strings (MySQL default).
	BackslashEscapes bool
	// DoubleQuotedStrings reads "..." as a string with the same escapes
	// (MySQL without ANSI_QUOTES) instead of a quoted identifier.
	DoubleQuotedStrings bool
	// EscapeStrings honors backslash escapes in E'...' (PostgreSQL).
	EscapeStrings bool
	// HashComments starts a line comment at # (MySQL).
	HashComments bool
	// StrictDashComments starts a -- comment only when whitespace or a
	// control character follows (MySQL); 1--1 is then arithmetic.
	StrictDashComments bool
	// DollarQuotes reads $tag$...$tag$ as a string (PostgreSQL).
	DollarQuotes bool
	// BracketIdentifiers reads [name] as a quoted identifier (SQL Server, SQLite).
	BracketIdentifiers bool
}

var (
	// StandardReading covers PostgreSQL, SQL Server and SQLite.
	StandardReading = Reading{EscapeStrings: true, DollarQuotes: true, BracketIdentifiers: true}
	// MySQLReading is MySQL's default sql_mode.
	MySQLReading = Reading{BackslashEscapes: true, DoubleQuotedStrings: true, HashComments: true, StrictDashComments: true}
	// MySQLANSIQuotesReading is MySQL with ANSI_QUOTES.
	MySQLANSIQuotesReading = Reading{BackslashEscapes: true, HashComments: true, StrictDashComments: true}
	// MySQLNoBackslashReading is MySQL with NO_BACKSLASH_ESCAPES.
	MySQLNoBackslashReading = Reading{DoubleQuotedStrings: true, HashComments: true, StrictDashComments: true}

	// GuardReadings must all accept a statement before it may run.
	GuardReadings = []Reading{StandardReading, MySQLReading, MySQLANSIQuotesReading, MySQLNoBackslashReading}
)

// Tokenize splits SQL into tokens under StandardReading.
func Tokenize(sqlText string) []Token {
	return TokenizeAs(sqlText, StandardReading)
}

// TokenizeAs splits SQL into tokens under r. Whitespace is dropped; comments
// are kept as TokenComment so callers can choose to ignore them.
// Unterminated quotes and comments run to the end of the input.
//
// Within a reading the lexer picks the interpretation that exposes more
// code: block comments end at the first */ and MySQL /*! */ bodies are
// lexed as SQL.
func TokenizeAs(sqlText string, r Reading) []Token {
	var tokens []Token
	depth := 0
	s := sqlText
	n := len(s)

	for i := 0; i < n; {
		c := s[i]
		start := i

		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f':
			i++
			continue

		case c == '-' && i+1 < n && s[i+1] == '-' && (!r.StrictDashComments || i+2 >= n || s[i+2] <= ' '),
			c == '#' && r.HashComments:
			end := strings.IndexByte(s[i:], '\n')
			if end < 0 {
				i = n
			} else {
				i += end
			}
			tokens = append(tokens, Token{Kind: TokenComment, Text: s[start:i], Pos: start, Depth: depth})
			continue

		case c == '/' && i+2 < n && s[i+1] == '*' && s[i+2] == '!':
			// MySQL executable comment: the body is code.
			i += 3
			for i < n && s[i] >= '0' && s[i] <= '9' {
				i++
			}
			continue

		case c == '/' && i+1 < n && s[i+1] == '*':
			i = scanBlockComment(s, i)
			tokens = append(tokens, Token{Kind: TokenComment, Text: s[start:i], Pos: start, Depth: depth})
			continue

		case c == '\'':
			i = scanQuoted(s, i, '\'', r.BackslashEscapes)
			tokens = append(tokens, Token{Kind: TokenString, Text: s[start:i], Pos: start, Depth: depth})
			continue

		case (c == 'E' || c == 'e' || c == 'N' || c == 'n' || c == 'X' || c == 'x' || c == 'B' || c == 'b') && i+1 < n && s[i+1] == '\'':
			escapes := r.BackslashEscapes || (r.EscapeStrings && (c == 'E' || c == 'e'))
			i = scanQuoted(s, i+1, '\'', escapes)
			tokens = append(tokens, Token{Kind: TokenString, Text: s[start:i], Pos: start, Depth: depth})
			continue

		case c == '"' && r.DoubleQuotedStrings:
			i = scanQuoted(s, i, '"', r.BackslashEscapes)
			tokens = append(tokens, Token{Kind: TokenString, Text: s[start:i], Pos: start, Depth: depth})
			continue

		case c == '"':
			i = scanQuoted(s, i, '"', false)
			tokens = append(tokens, Token{Kind: TokenQuotedIdent, Text: s[start:i], Pos: start, Depth: depth})
			continue

		case c == '`':
			i = scanQuoted(s, i, '`', false)
			tokens = append(tokens, Token{Kind: TokenQuotedIdent, Text: s[start:i], Pos: start, Depth: depth})
			continue

		case r.BracketIdentifiers && c == '[' && i+1 < n && isIdentStart(rune(s[i+1])) && !followsExpression(tokens):
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				i = n
			} else {
				i += end + 1
			}
			tokens = append(tokens, Token{Kind: TokenQuotedIdent, Text: s[start:i], Pos: start, Depth: depth})
			continue

		case c == '$':
			if r.DollarQuotes {
				if end, ok := scanDollarQuoted(s, i); ok {
					i = end
					tokens = append(tokens, Token{Kind: TokenString, Text: s[start:i], Pos: start, Depth: depth})
					continue
				}
			}
			// Positional parameter ($1) or stray dollar.
			i++
			for i < n && s[i] >= '0' && s[i] <= '9' {
				i++
			}
			tokens = append(tokens, Token{Kind: TokenPunct, Text: s[start:i], Pos: start, Depth: depth})
			continue

		case c >= '0' && c <= '9' || (c == '.' && i+1 < n && s[i+1] >= '0' && s[i+1] <= '9'):
			for i < n && (isDigitOrDot(s[i]) || s[i] == 'e' || s[i] == 'E' || s[i] == 'x' || s[i] == 'X' || isHexLetter(s[i])) {
				i++
			}
			tokens = append(tokens, Token{Kind: TokenNumber, Text: s[start:i], Pos: start, Depth: depth})
			continue

		case isIdentStart(rune(c)) || c >= 0x80:
			for i < n && (isIdentPart(rune(s[i])) || s[i] >= 0x80) {
				i++
			}
			tokens = append(tokens, Token{Kind: TokenWord, Text: s[start:i], Pos: start, Depth: depth})
			continue
		}

		// Punctuation
		switch c {
		case '(':
			tokens = append(tokens, Token{Kind: TokenPunct, Text: "(", Pos: start, Depth: depth})
			depth++
		case ')':
			if depth > 0 {
				depth--
			}
			tokens = append(tokens, Token{Kind: TokenPunct, Text: ")", Pos: start, Depth: depth})
		default:
			tokens = append(tokens, Token{Kind: TokenPunct, Text: string(c), Pos: start, Depth: depth})
		}
		i++
	}

	return tokens
}

// SignificantTokens returns the tokens of sqlText without comments.
func SignificantTokens(sqlText string) []Token {
	return SignificantTokensAs(sqlText, StandardReading)
}

// SignificantTokensAs is SignificantTokens under r.
func SignificantTokensAs(sqlText string, r Reading) []Token {
	all := TokenizeAs(sqlText, r)
	out := all[:0]
	for _, t := range all {
		if t.Kind != TokenComment {
			out = append(out, t)
		}
	}
	return out
}

// scanQuoted returns the index just past a quoted run starting at s[i].
// A doubled quote character is an escape; backslash escapes are honored
// when allowBackslash is set.
func scanQuoted(s string, i int, quote byte, allowBackslash bool) int {
	n := len(s)
	i++ // opening quote
	for i < n {
		switch {
		case allowBackslash && s[i] == '\\' && i+1 < n:
			i += 2
		case s[i] == quote:
			if i+1 < n && s[i+1] == quote {
				i += 2
				continue
			}
			return i + 1
		default:
			i++
		}
	}
	return n
}

func scanBlockComment(s string, i int) int {
	end := strings.Index(s[i+2:], "*/")
	if end < 0 {
		return len(s)
	}
	return i + 2 + end + 2
}

// scanDollarQuoted recognizes PostgreSQL $tag$...$tag$ strings.
func scanDollarQuoted(s string, i int) (int, bool) {
	j := i + 1
	for j < len(s) && (isIdentPart(rune(s[j])) && !(s[j] >= '0' && s[j] <= '9' && j == i+1)) {
		j++
	}
	if j >= len(s) || s[j] != '$' {
		return 0, false
	}
	tag := s[i : j+1]
	end := strings.Index(s[j+1:], tag)
	if end < 0 {
		return len(s), true
	}
	return j + 1 + end + len(tag), true
}

// followsExpression reports whether a '[' at this point is a subscript
// rather than a bracket-quoted identifier.
func followsExpression(tokens []Token) bool {
	if len(tokens) == 0 {
		return false
	}
	last := tokens[len(tokens)-1]
	switch last.Kind {
	case TokenQuotedIdent, TokenString, TokenNumber:
		return true
	case TokenPunct:
		return last.Text == ")" || last.Text == "]"
	case TokenWord:
		return !isKeyword(last.Upper())
	}
	return false
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || r == '$' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func isDigitOrDot(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.'
}

func isHexLetter(c byte) bool {
	return (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// keywords that can precede a bracket-quoted identifier or a subquery.
var clauseKeywords = map[string]bool{
	"SELECT": true, "FROM": true, "JOIN": true, "WHERE": true, "ON": true, "AND": true,
	"OR": true, "NOT": true, "AS": true, "BY": true, "INTO": true, "UPDATE": true,
	"TABLE": true, "WITH": true, "IN": true, "EXISTS": true, "HAVING": true,
	"UNION": true, "ALL": true, "DISTINCT": true, "TOP": true, "SET": true,
	"CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true,
	"INNER": true, "LEFT": true, "RIGHT": true, "FULL": true, "OUTER": true, "CROSS": true,
	"APPLY": true, "LATERAL": true, "USING": true, "VALUES": true, "RETURNING": true,
	"ORDER": true, "GROUP": true, "LIMIT": true, "OFFSET": true, "FETCH": true,
	"INTERSECT": true, "EXCEPT": true, "DELETE": true, "INSERT": true, "MERGE": true,
	"WINDOW": true, "PARTITION": true, "OVER": true, "RECURSIVE": true,
}

func isKeyword(upper string) bool {
	return clauseKeywords[upper]
}
