package sql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAndNormalize_SingleStatements(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain aggregate", "SELECT COUNT(*) FROM orders", "SELECT COUNT(*) FROM orders"},
		{"trailing semicolon and newline", "SELECT COUNT(*) FROM orders;\n", "SELECT COUNT(*) FROM orders"},
		{"surrounding whitespace", "\n  SELECT name FROM customers  \n", "SELECT name FROM customers"},
		{"semicolon in literal", "SELECT name FROM customers WHERE note = 'a;b';", "SELECT name FROM customers WHERE note = 'a;b'"},
		{"semicolon in backtick identifier", "SELECT `weird;col` FROM t", "SELECT `weird;col` FROM t"},
		{"semicolon in bracket identifier", "SELECT [total;amount] FROM dbo.orders", "SELECT [total;amount] FROM dbo.orders"},
		{"semicolon in block comment", "SELECT 1 /* ; */", "SELECT 1 /* ; */"},
		{"comment after final semicolon", "SELECT 1; -- done", "SELECT 1"},
		{"backslash escape in E string", "SELECT E'it\\'s; fine'", "SELECT E'it\\'s; fine'"},
		{"empty", "", ""},
		{"whitespace only", " \t\n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			require.NoError(t, result.Error)
			assert.Equal(t, tt.want, result.NormalizedSQL)
		})
	}
}

func TestValidateAndNormalize_MultipleStatements(t *testing.T) {
	inputs := map[string]string{
		"two selects":                    "SELECT 1; SELECT 2",
		"piggybacked drop":               "SELECT * FROM orders; DROP TABLE orders",
		"doubled terminator":             "SELECT 1;;",
		"mysql executable comment":       "SELECT 1 /*! ; DROP TABLE t */",
		"dollar quoted body":             "SELECT $$a;b$$",
		"backslash is literal outside E": "SELECT 'it\\'s; x'",
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			result := ValidateAndNormalize(input)
			assert.ErrorIs(t, result.Error, ErrMultipleStatements)
			assert.Empty(t, result.NormalizedSQL)
		})
	}
}

func TestHasSemicolonOutsideStrings(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"SELECT 1", false},
		{"SELECT 1; SELECT 2", true},
		{"SELECT ';' AS sep", false},
		{`SELECT "a;b" FROM t`, false},
		{"SELECT 1 -- ; trailing", false},
		{"SELECT 1 /* outer /* inner */ ; */", true},
	}

	for _, tt := range tests {
		if got := hasSemicolonOutsideStrings(tt.input, StandardReading); got != tt.want {
			t.Errorf("hasSemicolonOutsideStrings(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestStripTrailingSemicolon(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"SELECT 1", "SELECT 1"},
		{"SELECT 1 ;", "SELECT 1"},
		{"SELECT 1;\n\t", "SELECT 1"},
		{"SELECT 1;;", "SELECT 1;"},
		{"SELECT 1; /* note */", "SELECT 1"},
		{"SELECT ';'", "SELECT ';'"},
	}

	for _, tt := range tests {
		if got := stripTrailingSemicolon(tt.input, StandardReading); got != tt.want {
			t.Errorf("stripTrailingSemicolon(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestValidateAndNormalize_MySQLReadings(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		standard bool
		mysql    bool
	}{
		{"backslash-escaped quote", "SELECT '\\', ' ; DROP TABLE orders; -- '", false, true},
		{"hash comment", "SELECT 1 # '\n; DROP TABLE orders; -- '", false, true},
		{"escaped quote inside literal", "SELECT 'it\\'s; fine'", true, false},
		{"separator in double-quoted string", `SELECT "a;b"`, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			standard := validateAndNormalize(tt.input, StandardReading)
			mysql := validateAndNormalize(tt.input, MySQLReading)
			assert.Equal(t, tt.standard, errors.Is(standard.Error, ErrMultipleStatements), "standard reading")
			assert.Equal(t, tt.mysql, errors.Is(mysql.Error, ErrMultipleStatements), "mysql reading")
		})
	}
}
