// Command migrate applies the SQL files under migrations/ to the
// postgres backend named by DATABASE_URL. Applied files are recorded
// in a schema_migrations table, so rerunning the command only picks
// up new files.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ignite/survey-collector/internal/pkg/logger"
)

const ledgerSchema = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func main() {
	log := logger.Default(os.Getenv("LOG_LEVEL"))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal().Msg("migrate: DATABASE_URL is required")
	}

	dir := "migrations"
	pending := false
	for _, arg := range os.Args[1:] {
		if arg == "--pending" {
			pending = true
			continue
		}
		dir = arg
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("migrate: open connection")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("migrate: ping")
	}

	if _, err := db.Exec(ledgerSchema); err != nil {
		log.Fatal().Err(err).Msg("migrate: create ledger table")
	}

	files, err := pendingMigrations(db, dir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", dir).Msg("migrate: read migrations")
	}

	if pending {
		for _, f := range files {
			fmt.Println(f)
		}
		return
	}

	for _, f := range files {
		if err := apply(db, dir, f); err != nil {
			log.Fatal().Err(err).Str("file", f).Msg("migrate: apply failed")
		}
		log.Info().Str("file", f).Msg("migrate: applied")
	}
	log.Info().Int("applied", len(files)).Msg("migrate: done")
}

// pendingMigrations returns the .sql files in dir that the ledger does
// not record yet, in name order.
func pendingMigrations(db *sql.DB, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	applied := map[string]bool{}
	rows, err := db.Query(`SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") || applied[e.Name()] {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)
	return files, nil
}

// apply runs one migration file and records it, both inside a single
// transaction so a failed statement leaves the ledger untouched.
func apply(db *sql.DB, dir, file string) error {
	content, err := os.ReadFile(filepath.Join(dir, file))
	if err != nil {
		return err
	}
	if strings.TrimSpace(string(content)) == "" {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(string(content)); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (name) VALUES ($1)`, file); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
