package testhelpers

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// The shop fixture: three customers, three products and four orders.
// Customer 3 has no orders and order 4 has no shipping date.

// PostgresSeedSQL creates the shop fixture and a SELECT-only role.
const PostgresSeedSQL = `
CREATE TABLE customers (
	id integer PRIMARY KEY,
	name text NOT NULL,
	email text,
	country text NOT NULL
);
COMMENT ON TABLE customers IS 'People who have placed or may place orders';

CREATE TABLE products (
	id integer PRIMARY KEY,
	name text NOT NULL,
	price numeric(10,2) NOT NULL
);

CREATE TABLE orders (
	id integer PRIMARY KEY,
	customer_id integer NOT NULL REFERENCES customers(id),
	product_id integer NOT NULL REFERENCES products(id),
	quantity integer NOT NULL,
	created_at date NOT NULL,
	shipped_at date
);

INSERT INTO customers VALUES
	(1, 'Ada Lovelace', 'ada@example.com', 'UK'),
	(2, 'Grace Hopper', 'grace@example.com', 'US'),
	(3, 'Alan Turing', NULL, 'UK');

INSERT INTO products VALUES
	(1, 'Widget', 9.99),
	(2, 'Gadget', 24.50),
	(3, 'Gizmo', 100.00);

INSERT INTO orders VALUES
	(1, 1, 1, 3, '2024-01-15', '2024-01-17'),
	(2, 1, 3, 1, '2024-02-02', '2024-02-05'),
	(3, 2, 2, 2, '2024-02-10', '2024-02-11'),
	(4, 2, 1, 10, '2024-03-01', NULL);

CREATE ROLE agent_reader LOGIN PASSWORD 'reader_password';
GRANT SELECT ON ALL TABLES IN SCHEMA public TO agent_reader;
`

// SQLiteSeedSQL creates the shop fixture for SQLite.
var SQLiteSeedSQL = []string{
	`CREATE TABLE customers (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		country TEXT NOT NULL
	)`,
	`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		price REAL NOT NULL
	)`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY,
		customer_id INTEGER NOT NULL REFERENCES customers(id),
		product_id INTEGER NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		shipped_at TEXT
	)`,
	`INSERT INTO customers VALUES
		(1, 'Ada Lovelace', 'ada@example.com', 'UK'),
		(2, 'Grace Hopper', 'grace@example.com', 'US'),
		(3, 'Alan Turing', NULL, 'UK')`,
	`INSERT INTO products VALUES (1, 'Widget', 9.99), (2, 'Gadget', 24.50), (3, 'Gizmo', 100.00)`,
	`INSERT INTO orders VALUES
		(1, 1, 1, 3, '2024-01-15', '2024-01-17'),
		(2, 1, 3, 1, '2024-02-02', '2024-02-05'),
		(3, 2, 2, 2, '2024-02-10', '2024-02-11'),
		(4, 2, 1, 10, '2024-03-01', NULL)`,
}

// NewSQLiteFixture writes the shop fixture to a database file in a
// per-test temporary directory and returns its path.
func NewSQLiteFixture(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "shop.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite fixture: %v", err)
	}
	defer db.Close()

	for _, stmt := range SQLiteSeedSQL {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed sqlite fixture: %v", err)
		}
	}
	return path
}
