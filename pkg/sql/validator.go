// Package sql holds the lexical SQL utilities behind the read-only guard:
// statement validation and classification, extraction from model output,
// table-reference discovery and normalization.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")

	// ErrEmptyStatement indicates there is no SQL to run.
	ErrEmptyStatement = errors.New("empty SQL statement")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize checks SQL for multiple statements and strips the
// trailing semicolon, under StandardReading.
//
// The validation order is:
// 1. Strip one trailing semicolon, plus any whitespace or comments after it
// 2. Check for multiple statements (any remaining semicolon outside literals and comments)
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	return validateAndNormalize(sqlQuery, StandardReading)
}

func validateAndNormalize(sqlQuery string, r Reading) ValidationResult {
	sqlQuery = strings.TrimSpace(sqlQuery)

	if sqlQuery == "" {
		return ValidationResult{NormalizedSQL: sqlQuery}
	}

	normalized := stripTrailingSemicolon(sqlQuery, r)

	if hasSemicolonOutsideStrings(normalized, r) {
		return ValidationResult{Error: ErrMultipleStatements}
	}

	return ValidationResult{NormalizedSQL: normalized}
}

// hasSemicolonOutsideStrings returns true if the SQL contains a statement
// separator. Semicolons inside dollar-quoted bodies count, since only
// PostgreSQL reads $tag$ as a string.
func hasSemicolonOutsideStrings(sqlQuery string, r Reading) bool {
	for _, tok := range TokenizeAs(sqlQuery, r) {
		switch {
		case tok.IsPunct(";"):
			return true
		case tok.Kind == TokenString && strings.HasPrefix(tok.Text, "$") && strings.Contains(tok.Text, ";"):
			return true
		}
	}
	return false
}

// stripTrailingSemicolon removes the last semicolon when nothing but
// whitespace or comments follows it.
func stripTrailingSemicolon(sqlQuery string, r Reading) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")

	tokens := TokenizeAs(sqlQuery, r)
	last := len(tokens) - 1
	for last >= 0 && tokens[last].Kind == TokenComment {
		last--
	}
	if last < 0 || !tokens[last].IsPunct(";") {
		return sqlQuery
	}

	return strings.TrimRight(sqlQuery[:tokens[last].Pos], " \t\n\r")
}

// GuardReadOnly validates that sqlText is exactly one read-only statement
// under every reading in GuardReadings and returns it normalized under
// StandardReading. Errors are ErrEmptyStatement, ErrMultipleStatements or
// a *ReadOnlyError.
func GuardReadOnly(sqlText string) (string, error) {
	var normalized string
	for i, r := range GuardReadings {
		n, err := guardAs(sqlText, r)
		if err != nil {
			return "", err
		}
		if i == 0 {
			normalized = n
		}
	}
	return normalized, nil
}

func guardAs(sqlText string, r Reading) (string, error) {
	v := validateAndNormalize(sqlText, r)
	if v.Error != nil {
		return "", v.Error
	}
	if len(SignificantTokensAs(v.NormalizedSQL, r)) == 0 {
		return "", ErrEmptyStatement
	}
	if c := classifyStatement(v.NormalizedSQL, r); !c.ReadOnly {
		return "", &ReadOnlyError{Type: c.Type, Reason: c.Reason}
	}
	return v.NormalizedSQL, nil
}
