package db

import (
	"context"
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/24ep/studio-sub000/internal/logger"
)

//go:embed migrations/mysql/*.sql migrations/sqlite/*.sql
var migrations embed.FS

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version VARCHAR(32) PRIMARY KEY,
	applied_at DATETIME NOT NULL
)`

// Migrate applies every embedded migration for the connection's dialect that
// has not been recorded in schema_migrations yet.
func Migrate(ctx context.Context, d *DB) error {
	log := logger.Component("migrate")

	if _, err := d.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	dir := path.Join("migrations", "mysql")
	if d.Dialect == DialectSQLite {
		dir = path.Join("migrations", "sqlite")
	}

	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, filename := range files {
		version := strings.SplitN(filename, "_", 2)[0]

		var count int
		if err := d.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", version, err)
		}
		if count > 0 {
			log.Debug().Str("migration", filename).Msg("Skipping applied migration")
			continue
		}

		body, err := migrations.ReadFile(path.Join(dir, filename))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", filename, err)
		}

		// DDL auto-commits on MySQL, so statements run one by one.
		for _, stmt := range splitStatements(string(body)) {
			if _, err := d.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", filename, err)
			}
		}

		if _, err := d.ExecContext(ctx,
			`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			version, time.Now().UTC()); err != nil {
			return fmt.Errorf("record migration %s: %w", version, err)
		}

		log.Info().Str("migration", filename).Msg("Applied migration")
	}

	return nil
}

func splitStatements(body string) []string {
	var stmts []string
	for _, part := range strings.Split(body, ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
