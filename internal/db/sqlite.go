package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// NewSQLite открывает базу SQLite. Одно соединение: запись в SQLite сериализуется,
// а ":memory:" без этого создаёт отдельную базу на каждое соединение.
func NewSQLite(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	conn, err := sqlx.ConnectContext(ctx, DriverSQLite, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: не удалось открыть базу: %w", err)
	}
	conn.SetMaxOpenConns(1)
	return conn, nil
}
