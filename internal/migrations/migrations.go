package migrations

import (
	"log"

	"github.com/jmoiron/sqlx"
)

// Run creates the database schema required for the retail backend.
func Run(db *sqlx.DB) {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS suppliers (
            id SERIAL PRIMARY KEY,
            trade_name TEXT NOT NULL,
            email TEXT,
            phone TEXT,
            city TEXT,
            state TEXT,
            address TEXT,
            district TEXT,
            zip_code TEXT,
            freight DOUBLE PRECISION,
            active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS products (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            cost_price DOUBLE PRECISION,
            sale_price DOUBLE PRECISION NOT NULL,
            quantity DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (quantity >= 0),
            unit TEXT NOT NULL DEFAULT '',
            expiry_date DATE,
            barcode BIGINT,
            supplier_id INTEGER REFERENCES suppliers(id),
            created_at TIMESTAMPTZ DEFAULT NOW(),
            updated_at TIMESTAMPTZ DEFAULT NOW()
        );`,
		`CREATE TABLE IF NOT EXISTS sales (
            id SERIAL PRIMARY KEY,
            sold_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            total DOUBLE PRECISION NOT NULL,
            payment_method TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS sale_items (
			id SERIAL PRIMARY KEY,
			sale_id INTEGER NOT NULL REFERENCES sales(id),
			product_id INTEGER NOT NULL REFERENCES products(id),
			quantity DOUBLE PRECISION NOT NULL,
			unit_price DOUBLE PRECISION NOT NULL,
			subtotal DOUBLE PRECISION NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sales_sold_at ON sales (sold_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sale_items_sale_id ON sale_items (sale_id);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
	}
}
