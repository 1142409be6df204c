// Package sqldb implements the repository interfaces on top of database/sql,
// using sqlx for struct scanning.
//
// WHICH DATABASE?
// The dashboard runs against whatever DATABASE_URL points at:
//   - postgres:// or postgresql:// → Postgres through the pgx stdlib driver
//   - anything else                → a modernc.org/sqlite file path (":memory:" in tests)
//
// Both speak the same SQL for our single table; queries are written with "?"
// placeholders and rebound by sqlx for the driver in use.
package sqldb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	driverPostgres = "pgx"
	driverSQLite   = "sqlite"
)

// DB wraps a sqlx connection pool and provides repository methods.
type DB struct {
	conn   *sqlx.DB
	driver string
}

// New opens the database named by dsn, verifies the connection and runs
// migrations.
func New(dsn string) (*DB, error) {
	driver, source := driverFor(dsn)

	conn, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("sqldb: opening %s database: %w", driver, err)
	}

	if driver == driverSQLite {
		// Every new connection to ":memory:" is a fresh, empty database, and
		// SQLite serialises writers anyway. One connection keeps both honest.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: pinging %s database: %w", driver, err)
	}

	if driver == driverSQLite {
		if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqldb: setting WAL mode: %w", err)
		}
	}

	db := &DB{conn: conn, driver: driver}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqldb: running migrations: %w", err)
	}

	return db, nil
}

// driverFor picks the database/sql driver for a connection string.
func driverFor(dsn string) (driver, source string) {
	lower := strings.ToLower(dsn)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return driverPostgres, dsn
	}
	return driverSQLite, strings.TrimPrefix(dsn, "sqlite://")
}

// Driver reports which database/sql driver the pool uses.
func (db *DB) Driver() string {
	return db.driver
}

// Ping checks that the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the user table. CREATE TABLE IF NOT EXISTS makes it safe to
// run on every start.
//
// The table is named user_data, the name the original ORM derived from its
// UserData model. Databases created by that ORM have no joined_at column;
// addJoinedAt brings them up to date, and their rows sort first with
// joined_at = 0.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_data (
			email     VARCHAR(100) PRIMARY KEY,
			name      VARCHAR(80)  NOT NULL,
			image     VARCHAR(120) NOT NULL UNIQUE,
			country   VARCHAR(50)  NOT NULL DEFAULT 'None',
			joined_at BIGINT       NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("creating user_data table: %w", err)
	}
	return db.addJoinedAt()
}

// addJoinedAt adds the joined_at column to a user_data table that predates it.
func (db *DB) addJoinedAt() error {
	if db.driver == driverPostgres {
		if _, err := db.conn.Exec(`ALTER TABLE user_data ADD COLUMN IF NOT EXISTS joined_at BIGINT NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("adding joined_at column: %w", err)
		}
		return nil
	}

	// SQLite has no ADD COLUMN IF NOT EXISTS.
	var columns []string
	if err := db.conn.Select(&columns, `SELECT name FROM pragma_table_info('user_data')`); err != nil {
		return fmt.Errorf("reading user_data columns: %w", err)
	}
	for _, c := range columns {
		if strings.EqualFold(c, "joined_at") {
			return nil
		}
	}
	if _, err := db.conn.Exec(`ALTER TABLE user_data ADD COLUMN joined_at BIGINT NOT NULL DEFAULT 0`); err != nil {
		return fmt.Errorf("adding joined_at column: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE/PRIMARY KEY constraint
// failure from either driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		// primary result code only, when extended codes are off
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}
