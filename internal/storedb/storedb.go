// Package storedb opens the shared SQL database backing the token store
// and the callback-answer store, selecting a driver the same way the
// teacher's store/db package switches between sqlite and postgres.
package storedb

import (
	"database/sql"

	"github.com/pkg/errors"

	// Pure-Go sqlite driver, default for development / single-node deployments.
	_ "modernc.org/sqlite"

	// Postgres driver for multi-process deployments.
	_ "github.com/lib/pq"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open opens a database handle for the given driver/dsn and applies the
// gateway's schema migrations.
func Open(driver, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("dsn required")
	}

	var sqlDriverName string
	switch driver {
	case DriverSQLite, "":
		sqlDriverName = "sqlite"
	case DriverPostgres:
		sqlDriverName = "postgres"
	default:
		return nil, errors.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sql.Open(sqlDriverName, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	if driver == DriverSQLite || driver == "" {
		pragmas := []string{
			"PRAGMA foreign_keys = ON",
			"PRAGMA journal_mode = WAL",
			"PRAGMA busy_timeout = 10000",
		}
		for _, pragma := range pragmas {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, errors.Wrapf(err, "failed to set pragma: %s", pragma)
			}
		}
	}

	if err := migrate(db, driver); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate schema")
	}

	return db, nil
}

func migrate(db *sql.DB, driver string) error {
	autoIncrement := "INTEGER PRIMARY KEY AUTOINCREMENT"
	boolType := "BOOLEAN"
	if driver == DriverPostgres {
		autoIncrement = "BIGSERIAL PRIMARY KEY"
		boolType = "BOOLEAN"
	}

	statements := []string{
		`CREATE TABLE IF NOT EXISTS bot_token (
			id ` + autoIncrement + `,
			token VARCHAR(64) NOT NULL,
			full_token VARCHAR(96) NOT NULL,
			bot_id BIGINT NOT NULL,
			session_name VARCHAR(255) NOT NULL,
			bot_username VARCHAR(255) NOT NULL DEFAULT '',
			bot_name VARCHAR(255) NOT NULL DEFAULT '',
			owner_id BIGINT NOT NULL DEFAULT 0,
			verified ` + boolType + ` NOT NULL DEFAULT false,
			created_at BIGINT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bot_token_token ON bot_token(token)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bot_token_full_token ON bot_token(full_token)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_bot_token_bot_id_token ON bot_token(bot_id, token)`,
		`CREATE TABLE IF NOT EXISTS callback_answer (
			query_id VARCHAR(64) PRIMARY KEY,
			alert ` + boolType + ` NOT NULL DEFAULT false,
			message TEXT,
			url TEXT,
			cache_time INTEGER NOT NULL DEFAULT 0,
			created_at BIGINT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrapf(err, "failed to execute migration: %s", stmt)
		}
	}
	return nil
}
