//go:build integration

package testhelpers

import (
	"context"
	"testing"
)

func TestTestDB_SeededTables(t *testing.T) {
	testDB := GetTestDB(t)
	ctx := context.Background()

	tests := []struct {
		table    string
		expected int
	}{
		{"customers", 3},
		{"products", 3},
		{"orders", 4},
	}

	for _, tt := range tests {
		var count int
		if err := testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+tt.table).Scan(&count); err != nil {
			t.Errorf("failed to count %s: %v", tt.table, err)
			continue
		}
		if count != tt.expected {
			t.Errorf("%s: expected %d rows, got %d", tt.table, tt.expected, count)
		}
	}
}
