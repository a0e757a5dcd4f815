package sql

import "strings"

// Words that end a FROM item, so they are never read as a table alias.
var aliasStopWords = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true, "OFFSET": true,
	"FETCH": true, "JOIN": true, "LEFT": true, "RIGHT": true, "INNER": true, "OUTER": true,
	"FULL": true, "CROSS": true, "NATURAL": true, "ON": true, "USING": true, "UNION": true,
	"INTERSECT": true, "EXCEPT": true, "MINUS": true, "WINDOW": true, "QUALIFY": true,
	"WITH": true, "FOR": true, "LOCK": true, "INTO": true, "TABLESAMPLE": true, "APPLY": true,
	"OUTPUT": true, "RETURNING": true, "SET": true, "VALUES": true, "SELECT": true, "AS": true,
	"PIVOT": true, "UNPIVOT": true, "STRAIGHT_JOIN": true, "USE": true, "FORCE": true, "IGNORE": true,
}

// ReferencedTables returns the tables named in FROM and JOIN clauses, in
// order of first appearance, as written (quoting preserved). CTE names,
// derived tables and table functions are excluded.
func ReferencedTables(sqlText string) []string {
	tokens := SignificantTokens(sqlText)
	ctes := cteNames(tokens)

	var (
		out  []string
		seen = map[string]bool{}
		// frames[d] is true when parenthesis level d holds a query rather
		// than a function argument list such as EXTRACT(YEAR FROM x).
		frames = []bool{true}
	)

	record := func(parts []string) {
		if len(parts) == 1 && ctes[strings.ToUpper(unquoteIdent(parts[0]))] {
			return
		}
		name := strings.Join(parts, ".")
		key := strings.ToUpper(name)
		if !seen[key] {
			seen[key] = true
			out = append(out, name)
		}
	}

	for i, tok := range tokens {
		switch {
		case tok.IsPunct("("):
			frames = append(frames, i+1 < len(tokens) && startsQuery(tokens[i+1]))
			continue
		case tok.IsPunct(")"):
			if len(frames) > 1 {
				frames = frames[:len(frames)-1]
			}
			continue
		}

		if !frames[len(frames)-1] {
			continue
		}

		switch {
		case tok.IsWord("FROM"):
			if i > 0 && tokens[i-1].IsWord("DISTINCT") {
				continue // IS [NOT] DISTINCT FROM
			}
			readTableList(tokens, i+1, true, record)
		case tok.IsWord("JOIN") || tok.IsWord("STRAIGHT_JOIN"):
			readTableList(tokens, i+1, false, record)
		}
	}

	return out
}

func startsQuery(t Token) bool {
	return t.IsWord("SELECT") || t.IsWord("WITH") || t.IsWord("VALUES") || t.IsWord("TABLE")
}

// readTableList reads FROM items starting at j. Comma-separated lists are
// followed only for FROM.
func readTableList(tokens []Token, j int, allowList bool, record func([]string)) {
	for j < len(tokens) {
		for j < len(tokens) && (tokens[j].IsWord("LATERAL") || tokens[j].IsWord("ONLY")) {
			j++
		}
		if j >= len(tokens) || !isIdentToken(tokens[j]) {
			return // derived table, VALUES list or end of input
		}

		parts := []string{tokens[j].Text}
		j++
		for j+1 < len(tokens) && tokens[j].IsPunct(".") && isIdentToken(tokens[j+1]) {
			parts = append(parts, tokens[j+1].Text)
			j += 2
		}

		if j < len(tokens) && tokens[j].IsPunct("(") {
			// Table function: skip its arguments.
			j = matchingParen(tokens, j) + 1
		} else {
			record(parts)
		}

		// Optional alias.
		if j < len(tokens) && tokens[j].IsWord("AS") {
			j += 2
		} else if j < len(tokens) && isIdentToken(tokens[j]) {
			j++
		}
		// Optional column alias list.
		if j < len(tokens) && tokens[j].IsPunct("(") && j > 0 && !tokens[j-1].IsWord("WITH") {
			j = matchingParen(tokens, j) + 1
		}

		if !allowList || j >= len(tokens) || !tokens[j].IsPunct(",") {
			return
		}
		j++
	}
}

func isIdentToken(t Token) bool {
	switch t.Kind {
	case TokenQuotedIdent:
		return true
	case TokenWord:
		up := t.Upper()
		return !aliasStopWords[up] && !isKeyword(up)
	}
	return false
}

func matchingParen(tokens []Token, open int) int {
	depth := tokens[open].Depth
	for k := open + 1; k < len(tokens); k++ {
		if tokens[k].IsPunct(")") && tokens[k].Depth == depth {
			return k
		}
	}
	return len(tokens) - 1
}

// cteNames collects names defined as "name [(cols)] AS [NOT] [MATERIALIZED] (".
func cteNames(tokens []Token) map[string]bool {
	names := map[string]bool{}
	for i := 1; i < len(tokens); i++ {
		prev := tokens[i-1]
		if !(prev.IsWord("WITH") || prev.IsWord("RECURSIVE") || prev.IsPunct(",")) {
			continue
		}
		if tokens[i].Kind != TokenWord && tokens[i].Kind != TokenQuotedIdent {
			continue
		}

		j := i + 1
		if j < len(tokens) && tokens[j].IsPunct("(") {
			j = matchingParen(tokens, j) + 1
		}
		if j >= len(tokens) || !tokens[j].IsWord("AS") {
			continue
		}
		j++
		for j < len(tokens) && (tokens[j].IsWord("NOT") || tokens[j].IsWord("MATERIALIZED")) {
			j++
		}
		if j < len(tokens) && tokens[j].IsPunct("(") {
			names[strings.ToUpper(unquoteIdent(tokens[i].Text))] = true
		}
	}
	return names
}

func unquoteIdent(s string) string {
	if len(s) >= 2 {
		switch {
		case s[0] == '"' && s[len(s)-1] == '"',
			s[0] == '`' && s[len(s)-1] == '`',
			s[0] == '[' && s[len(s)-1] == ']':
			return s[1 : len(s)-1]
		}
	}
	return s
}
