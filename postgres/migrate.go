package postgres

import (
	"cmp"
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"slices"
	"strings"
	"time"

	llama "github.com/gamazeps/encode-llama"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const createMigrationsTableSQL = `
CREATE TABLE IF NOT EXISTS llama_migrations (
	id         SERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	checksum   TEXT NOT NULL
);`

type migrationFile struct {
	Name     string
	Up       string
	Down     string
	Checksum string
}

type appliedMigration struct {
	ID        int
	AppliedAt time.Time
	Checksum  string
}

// loadMigrations reads the embedded up/down pairs sorted by name.
func loadMigrations() ([]migrationFile, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byName := make(map[string]*migrationFile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		key, isUp := strings.CutSuffix(name, ".up.sql")
		if !isUp {
			var isDown bool
			if key, isDown = strings.CutSuffix(name, ".down.sql"); !isDown {
				continue
			}
		}
		m, ok := byName[key]
		if !ok {
			m = &migrationFile{Name: key}
			byName[key] = m
		}
		if isUp {
			m.Up = string(data)
			m.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
		} else {
			m.Down = string(data)
		}
	}

	var migrations []migrationFile
	for _, m := range byName {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %s has no up file", m.Name)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b migrationFile) int { return cmp.Compare(a.Name, b.Name) })

	return migrations, nil
}

func (s *PGStore) ensureMigrationsTable(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createMigrationsTableSQL); err != nil {
		return fmt.Errorf("llama: ensure migrations table: %w", err)
	}
	return nil
}

func (s *PGStore) appliedMigrations(ctx context.Context) (map[string]appliedMigration, error) {
	rows, err := s.db.Query(ctx, `SELECT id, name, applied_at, checksum FROM llama_migrations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("llama: get applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]appliedMigration)
	for rows.Next() {
		var name string
		var rec appliedMigration
		if err := rows.Scan(&rec.ID, &name, &rec.AppliedAt, &rec.Checksum); err != nil {
			return nil, fmt.Errorf("llama: scan applied migration: %w", err)
		}
		applied[name] = rec
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations in order, one transaction each. An applied
// migration whose file changed is an error.
func (s *PGStore) Migrate(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return err
	}
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("llama: load migrations: %w", err)
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if rec, ok := applied[m.Name]; ok {
			if rec.Checksum != m.Checksum {
				return fmt.Errorf("llama: migration %s checksum mismatch (expected %s, got %s)", m.Name, rec.Checksum, m.Checksum)
			}
			continue
		}
		if err := s.apply(ctx, m.Name, m.Up, `INSERT INTO llama_migrations (name, checksum) VALUES ($1, $2)`, m.Name, m.Checksum); err != nil {
			return err
		}
		log.Info().Str("migration", m.Name).Msg("postgres: migration applied")
	}
	return nil
}

// Rollback reverts the last applied migration.
func (s *PGStore) Rollback(ctx context.Context) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	var id int
	var name string
	err := s.db.QueryRow(ctx, `SELECT id, name FROM llama_migrations ORDER BY id DESC LIMIT 1`).Scan(&id, &name)
	if err != nil {
		return fmt.Errorf("llama: get last migration: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("llama: load migrations: %w", err)
	}
	i := slices.IndexFunc(migrations, func(m migrationFile) bool { return m.Name == name })
	if i < 0 || migrations[i].Down == "" {
		return fmt.Errorf("llama: no down migration for %s", name)
	}

	return s.apply(ctx, name, migrations[i].Down, `DELETE FROM llama_migrations WHERE id = $1`, id)
}

// apply runs a migration script and its bookkeeping statement in one transaction.
func (s *PGStore) apply(ctx context.Context, name, script, bookkeeping string, args ...any) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("llama: begin migration %s: %w", name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, script); err != nil {
		return fmt.Errorf("llama: run migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, bookkeeping, args...); err != nil {
		return fmt.Errorf("llama: record migration %s: %w", name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("llama: commit migration %s: %w", name, err)
	}
	return nil
}

// MigrationStatus returns all migrations with their applied status.
func (s *PGStore) MigrationStatus(ctx context.Context) ([]llama.MigrationRecord, error) {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("llama: load migrations: %w", err)
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]llama.MigrationRecord, 0, len(migrations))
	for _, m := range migrations {
		rec := llama.MigrationRecord{Name: m.Name}
		if a, ok := applied[m.Name]; ok {
			rec.Applied = true
			t := a.AppliedAt
			rec.AppliedAt = &t
			rec.Checksum = a.Checksum
		}
		records = append(records, rec)
	}
	return records, nil
}
