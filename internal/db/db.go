// Package db owns the one *sql.DB handle the composition root hands to
// internal/store, plus the flat-file migration runner the teacher's own
// main.go calls before starting its HTTP server. Grounded directly on the
// teacher's internal/db/db.go; adapted to take a local Conn value (URL and
// pool sizes) instead of a bare URL string and to log through internal/logging
// instead of stdlib log, per this repo's ambient logging stack.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/cinevault/core/internal/logging"
)

// Conn is the subset of config.DatabaseConfig db.Connect needs, declared
// locally so this package doesn't import internal/config (it would be the
// only leaf package with an upward dependency otherwise).
type Conn struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

func Connect(cfg Conn) (*sql.DB, error) {
	conn, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(maxIdle)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	logging.Logger().Info().Int("max_open_conns", maxOpen).Msg("database connected")
	return conn, nil
}

// Migrate applies every *.up.sql file in dir that hasn't already been
// recorded in schema_migrations, in lexical order.
func Migrate(conn *sql.DB, dir string) error {
	_, err := conn.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version VARCHAR(255) PRIMARY KEY,
		applied_at TIMESTAMPTZ DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(dir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(files)

	for _, f := range files {
		name := filepath.Base(f)
		version := strings.TrimSuffix(name, ".up.sql")

		var exists bool
		if err := conn.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version=$1)", version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if exists {
			continue
		}

		content, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}

		logging.Logger().Info().Str("migration", name).Msg("applying migration")
		if _, err := conn.Exec(string(content)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}

		if _, err := conn.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}
	}

	return nil
}
