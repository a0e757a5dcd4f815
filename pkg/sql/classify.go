package sql

import (
	"errors"
	"fmt"
)

// StatementType is the kind of statement inferred from its leading keyword.
type StatementType string

const (
	StatementSelect StatementType = "SELECT"
	StatementWith   StatementType = "WITH"
	StatementValues StatementType = "VALUES"
	StatementTable  StatementType = "TABLE"
	StatementInsert StatementType = "INSERT"
	StatementUpdate StatementType = "UPDATE"
	StatementDelete StatementType = "DELETE"
	StatementMerge  StatementType = "MERGE"
	StatementDDL    StatementType = "DDL"
	StatementDCL    StatementType = "DCL"
	StatementCall   StatementType = "CALL"
	StatementOther  StatementType = "OTHER"
	StatementEmpty  StatementType = "EMPTY"
)

// ErrNotReadOnly is matched by every *ReadOnlyError.
var ErrNotReadOnly = errors.New("statement is not read-only")

// ReadOnlyError explains why a statement was refused.
type ReadOnlyError struct {
	Type   StatementType
	Reason string
}

func (e *ReadOnlyError) Error() string {
	return e.Reason
}

// Is matches ErrNotReadOnly.
func (e *ReadOnlyError) Is(target error) bool {
	return target == ErrNotReadOnly
}

// Classification is the result of ClassifyStatement.
type Classification struct {
	Type     StatementType
	Keyword  string
	ReadOnly bool
	Reason   string
}

var leadingKeywordTypes = map[string]StatementType{
	"SELECT":   StatementSelect,
	"WITH":     StatementWith,
	"VALUES":   StatementValues,
	"TABLE":    StatementTable,
	"INSERT":   StatementInsert,
	"REPLACE":  StatementInsert,
	"UPSERT":   StatementInsert,
	"UPDATE":   StatementUpdate,
	"DELETE":   StatementDelete,
	"MERGE":    StatementMerge,
	"CREATE":   StatementDDL,
	"ALTER":    StatementDDL,
	"DROP":     StatementDDL,
	"TRUNCATE": StatementDDL,
	"RENAME":   StatementDDL,
	"COMMENT":  StatementDDL,
	"GRANT":    StatementDCL,
	"REVOKE":   StatementDCL,
	"CALL":     StatementCall,
	"EXEC":     StatementCall,
	"EXECUTE":  StatementCall,
	"DO":       StatementCall,
}

// Keywords that write data or schema wherever they appear outside literals.
// A following "(" marks a function call of the same name, e.g. REPLACE(s, a, b).
var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true, "UPSERT": true,
	"REPLACE": true, "DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"GRANT": true, "REVOKE": true,
}

// ClassifyStatement determines the statement type from the first keyword
// (skipping comments and opening parentheses) and checks the whole token
// stream for constructs that write or lock. Tokens are read under
// StandardReading.
//
// Allowed: SELECT, WITH without data-modifying CTEs, VALUES, TABLE.
// Refused anywhere in the statement: write keywords, SELECT ... INTO,
// FOR UPDATE / FOR SHARE and LOCK IN SHARE MODE.
func ClassifyStatement(sqlText string) Classification {
	return classifyStatement(sqlText, StandardReading)
}

func classifyStatement(sqlText string, r Reading) Classification {
	tokens := SignificantTokensAs(sqlText, r)

	i := 0
	for i < len(tokens) && tokens[i].IsPunct("(") {
		i++
	}
	if i >= len(tokens) {
		return Classification{Type: StatementEmpty, Reason: "empty statement"}
	}

	first := tokens[i]
	if first.Kind != TokenWord {
		return Classification{Type: StatementOther, Keyword: first.Text, Reason: "statement does not begin with a keyword"}
	}

	kw := first.Upper()
	typ, ok := leadingKeywordTypes[kw]
	if !ok {
		typ = StatementOther
	}

	c := Classification{Type: typ, Keyword: kw}
	switch typ {
	case StatementSelect, StatementWith, StatementValues, StatementTable:
	default:
		c.Reason = fmt.Sprintf("%s statements are not allowed", kw)
		return c
	}

	if reason := findWriteConstruct(tokens[i+1:]); reason != "" {
		c.Reason = reason
		return c
	}

	c.ReadOnly = true
	return c
}

// CheckReadOnly returns a *ReadOnlyError unless sqlText is a read-only
// statement under every reading in GuardReadings.
func CheckReadOnly(sqlText string) error {
	for _, r := range GuardReadings {
		if c := classifyStatement(sqlText, r); !c.ReadOnly {
			return &ReadOnlyError{Type: c.Type, Reason: c.Reason}
		}
	}
	return nil
}

func findWriteConstruct(tokens []Token) string {
	for i, tok := range tokens {
		if tok.Kind != TokenWord {
			continue
		}
		next := func(k int) Token {
			if i+k < len(tokens) {
				return tokens[i+k]
			}
			return Token{Kind: TokenPunct}
		}

		switch up := tok.Upper(); {
		case up == "FOR" && (next(1).IsWord("UPDATE") || next(1).IsWord("SHARE") || next(1).IsWord("NO") || next(1).IsWord("KEY")):
			return "row-locking clauses (FOR UPDATE/SHARE) are not allowed"
		case up == "LOCK" && next(1).IsWord("IN"):
			return "row-locking clauses (LOCK IN SHARE MODE) are not allowed"
		case up == "INTO":
			return "SELECT ... INTO is not allowed"
		case writeKeywords[up] && !next(1).IsPunct("("):
			return fmt.Sprintf("%s is not allowed in a read-only query", up)
		}
	}
	return ""
}
