package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration directions
const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// Migration is one embedded schema change.
type Migration struct {
	Version string
	SQL     string
}

// Migrate applies (up) or reverts (down) embedded migrations. steps limits
// how many run; 0 means all. It returns the number applied.
func (s *Store) Migrate(ctx context.Context, direction string, steps int) (int, error) {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := s.appliedVersions(ctx)
	if err != nil {
		return 0, err
	}

	all, err := loadMigrations(direction)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range pendingMigrations(all, applied, direction, steps) {
		slog.Info("running migration", "version", m.Version, "direction", direction)

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return count, fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			_ = tx.Rollback(ctx)
			return count, fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
		}

		if direction == MigrateUp {
			_, err = tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.Version)
		} else {
			_, err = tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", m.Version)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
			return count, fmt.Errorf("failed to update migrations table: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return count, fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
		count++
	}
	return count, nil
}

func (s *Store) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// loadMigrations reads the embedded files for direction in version order.
func loadMigrations(direction string) ([]Migration, error) {
	if direction != MigrateUp && direction != MigrateDown {
		return nil, fmt.Errorf("invalid migration direction %q", direction)
	}
	suffix := "." + direction + ".sql"

	files, err := fs.Glob(migrationFS, "migrations/*"+suffix)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(files)

	out := make([]Migration, 0, len(files))
	for _, file := range files {
		content, err := migrationFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", file, err)
		}
		out = append(out, Migration{
			Version: strings.TrimSuffix(path.Base(file), suffix),
			SQL:     string(content),
		})
	}
	return out, nil
}

// pendingMigrations selects what to run: unapplied versions ascending for
// up, applied versions descending for down.
func pendingMigrations(all []Migration, applied map[string]bool, direction string, steps int) []Migration {
	ordered := append([]Migration(nil), all...)
	if direction == MigrateDown {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
	}

	var out []Migration
	for _, m := range ordered {
		if applied[m.Version] != (direction == MigrateDown) {
			continue
		}
		if steps > 0 && len(out) >= steps {
			break
		}
		out = append(out, m)
	}
	return out
}
