package sql

import (
	"errors"
	"regexp"
	"strings"
)

// ErrNoStatement is returned when model output contains no SQL statement.
var ErrNoStatement = errors.New("no SQL statement found in model output")

var (
	fencedBlockPattern = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\r?\n?(.*?)```")
	openFencePattern   = regexp.MustCompile("(?s)```[A-Za-z0-9_+-]*[ \t]*\r?\n?(.*)$")
	inlineCodePattern  = regexp.MustCompile("^`([^`]+)`$")

	// SQLQuery: is the prefix used by few-shot text-to-SQL prompts.
	sqlQueryMarkerPattern = regexp.MustCompile(`(?i)SQL\s*Query\s*:`)

	statementKeywords = `SELECT|WITH|VALUES|TABLE|INSERT|UPDATE|DELETE|MERGE|REPLACE|UPSERT|DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE|CALL|EXEC|EXECUTE|COPY|SET`

	lineStatementPattern    = regexp.MustCompile(`(?im)^[ \t]*\(*[ \t]*(` + statementKeywords + `)\b`)
	leadingStatementPattern = regexp.MustCompile(`(?is)^\s*\(*\s*(` + statementKeywords + `)\b`)
	inlineStatementPattern  = regexp.MustCompile(`\b(SELECT|WITH)\b`)

	withClausePattern  = regexp.MustCompile("(?is)^\\(*\\s*WITH\\s+(RECURSIVE\\s+)?(\"[^\"]+\"|`[^`]+`|\\[[^\\]]+\\]|\\w+)\\s*(\\([^)]*\\)\\s*)?AS\\s*(NOT\\s+)?(MATERIALIZED\\s+)?\\(")
	tableClausePattern = regexp.MustCompile("(?i)^TABLE\\s+[\\w.\"`\\[\\]]+\\s*(;|$)")

	markerLinePattern    = regexp.MustCompile(`(?i)^(SQL\s*Result|Answer|Explanation|Notes?|Output|Result|Question)\s*:`)
	proseSentencePattern = regexp.MustCompile(`^[A-Z][a-z]+(\s+[a-z][a-z',]*){2,}`)
	leadingWordPattern   = regexp.MustCompile(`^[A-Za-z]+`)
)

// Words that may start a continuation line of a statement.
var continuationWords = map[string]bool{
	"FROM": true, "WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true,
	"OFFSET": true, "FETCH": true, "JOIN": true, "LEFT": true, "RIGHT": true, "INNER": true,
	"OUTER": true, "FULL": true, "CROSS": true, "NATURAL": true, "UNION": true, "INTERSECT": true,
	"EXCEPT": true, "MINUS": true, "AND": true, "OR": true, "NOT": true, "ON": true, "USING": true,
	"AS": true, "CASE": true, "WHEN": true, "THEN": true, "ELSE": true, "END": true, "SELECT": true,
	"WITH": true, "VALUES": true, "TABLE": true, "WINDOW": true, "QUALIFY": true, "PARTITION": true,
	"OVER": true, "ASC": true, "DESC": true, "NULLS": true, "BY": true, "IN": true, "EXISTS": true,
	"BETWEEN": true, "LIKE": true, "ILIKE": true, "IS": true, "LATERAL": true, "TOP": true,
	"DISTINCT": true, "ALL": true, "ANY": true, "SOME": true, "INTO": true, "RETURNING": true,
	"FOR": true, "LOCK": true, "SET": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "MERGE": true, "TRUNCATE": true, "GRANT": true,
	"REVOKE": true, "CALL": true, "EXEC": true, "APPLY": true,
}

// ExtractStatement pulls the SQL statement out of a model response.
//
// It takes the first fenced code block when there is one, honors a
// "SQLQuery:" prefix, starts at the first statement keyword and stops at
// result or explanation markers, at prose and at a semicolon followed by
// prose. A semicolon followed by another statement is kept, so that the
// read-only guard sees and rejects the multi-statement text.
func ExtractStatement(response string) (string, error) {
	text := strings.TrimSpace(response)
	if text == "" {
		return "", ErrNoStatement
	}

	if m := fencedBlockPattern.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		text = m[1]
	} else if m := openFencePattern.FindStringSubmatch(text); m != nil && strings.TrimSpace(m[1]) != "" {
		text = m[1]
	}
	text = strings.TrimSpace(text)
	if m := inlineCodePattern.FindStringSubmatch(text); m != nil {
		text = m[1]
	}

	if loc := sqlQueryMarkerPattern.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}

	start := findStatementStart(text)
	if start < 0 {
		return "", ErrNoStatement
	}
	sub := text[start:]
	if i := strings.Index(sub, "```"); i >= 0 {
		sub = sub[:i]
	}

	end := findStatementEnd(sub)
	stmt := strings.TrimSpace(sub[:end])
	stmt = strings.TrimSpace(strings.TrimSuffix(stmt, ";"))
	if stmt == "" {
		return "", ErrNoStatement
	}
	return stmt, nil
}

func findStatementStart(text string) int {
	for _, m := range lineStatementPattern.FindAllStringIndex(text, -1) {
		pos := m[0] + len(text[m[0]:]) - len(strings.TrimLeft(text[m[0]:], " \t"))
		if plausibleStatement(text[pos:]) {
			return pos
		}
	}
	for _, m := range inlineStatementPattern.FindAllStringIndex(text, -1) {
		if plausibleStatement(text[m[0]:]) {
			return m[0]
		}
	}
	return -1
}

// plausibleStatement filters out prose that happens to begin with a keyword,
// such as "Select the customers who ordered twice."
func plausibleStatement(s string) bool {
	firstLine := s
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		firstLine = s[:i]
	}
	firstLine = strings.TrimSpace(firstLine)
	if strings.HasSuffix(firstLine, ".") || strings.HasSuffix(firstLine, ":") {
		return false
	}

	kw := strings.ToUpper(leadingWordPattern.FindString(strings.TrimLeft(s, "( \t")))
	switch kw {
	case "WITH":
		return withClausePattern.MatchString(s)
	case "TABLE":
		return tableClausePattern.MatchString(firstLine)
	case "":
		return false
	}
	return true
}

func startsStatement(s string) bool {
	s = stripLeadingComments(s)
	loc := leadingStatementPattern.FindStringIndex(s)
	if loc == nil {
		return false
	}
	return plausibleStatement(strings.TrimSpace(s))
}

func stripLeadingComments(s string) string {
	for {
		s = strings.TrimLeft(s, " \t\r\n")
		switch {
		case strings.HasPrefix(s, "--"):
			if i := strings.IndexByte(s, '\n'); i >= 0 {
				s = s[i+1:]
			} else {
				return ""
			}
		case strings.HasPrefix(s, "/*") && !strings.HasPrefix(s, "/*!"):
			if i := strings.Index(s, "*/"); i >= 0 {
				s = s[i+2:]
			} else {
				return ""
			}
		default:
			return s
		}
	}
}

// findStatementEnd returns the byte offset in sub where the statement stops.
func findStatementEnd(sub string) int {
	tokens := Tokenize(sub)
	prevEnd := 0
	for k, tok := range tokens {
		if k > 0 {
			gap := sub[prevEnd:tok.Pos]
			if strings.Contains(gap, "\n") {
				line := restOfLine(sub, tok.Pos)
				if markerLinePattern.MatchString(line) || looksLikeProse(line, hasBlankLine(gap)) {
					return prevEnd
				}
			}
		}

		if tok.IsPunct(";") && !startsStatement(sub[tok.Pos+1:]) {
			return tok.Pos
		}
		prevEnd = tok.Pos + len(tok.Text)
	}
	return len(sub)
}

func restOfLine(s string, pos int) string {
	line := s[pos:]
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

func hasBlankLine(gap string) bool {
	first := strings.IndexByte(gap, '\n')
	return first >= 0 && strings.Contains(gap[first+1:], "\n")
}

func looksLikeProse(line string, afterBlankLine bool) bool {
	word := leadingWordPattern.FindString(line)
	if word == "" || continuationWords[strings.ToUpper(word)] {
		return false
	}
	if afterBlankLine {
		// A sentence, not a lone identifier continuing the statement.
		rest := line[len(word):]
		return strings.HasPrefix(rest, " ") && len(strings.TrimSpace(rest)) > 0 && !strings.ContainsAny(rest[:2], ",=.()")
	}
	return proseSentencePattern.MatchString(line)
}
