package importer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	llama "github.com/gamazeps/encode-llama"
	_ "modernc.org/sqlite"
)

// Cache keeps an imported annotation release in a sqlite database.
type Cache struct {
	db   *sql.DB
	path string
}

// CachePath is the cache database for a GENCODE release.
func CachePath(dataDir string, version int) string {
	return filepath.Join(dataDir, fmt.Sprintf("gencode.v%d.annotation.db", version))
}

// OpenCache opens or creates the cache database at path.
func OpenCache(ctx context.Context, path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("importer: create cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("importer: open cache: %w", err)
	}
	c := &Cache{db: db, path: path}
	if err := c.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

func quoted(fields []string) string {
	q := make([]string, len(fields))
	for i, f := range fields {
		q[i] = `"` + f + `"`
	}
	return strings.Join(q, ", ")
}

func (c *Cache) createSchema(ctx context.Context) error {
	cols := make([]string, len(llama.Fields))
	for i, f := range llama.Fields {
		typ := "TEXT NOT NULL DEFAULT ''"
		if f == "start" || f == "end" {
			typ = "INTEGER NOT NULL"
		}
		cols[i] = fmt.Sprintf("%q %s", f, typ)
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS records (ord INTEGER PRIMARY KEY, %s)`, strings.Join(cols, ", ")),
	}
	for _, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("importer: create cache schema: %w", err)
		}
	}
	return nil
}

// Version returns the release stored in the cache, or "" when the cache is empty or an
// import was interrupted.
func (c *Cache) Version(ctx context.Context) (string, error) {
	var v string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'version'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("importer: read cache version: %w", err)
	}
	return v, nil
}

// Records returns the cached records in file order.
func (c *Cache) Records(ctx context.Context) ([]llama.Record, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM records ORDER BY ord`, quoted(llama.Fields)))
	if err != nil {
		return nil, fmt.Errorf("importer: query cache: %w", err)
	}
	defer rows.Close()

	values := make([]string, len(llama.Fields))
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}

	var out []llama.Record
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("importer: scan cached record: %w", err)
		}
		var rec llama.Record
		for i, f := range llama.Fields {
			if err := rec.Set(f, values[i]); err != nil {
				return nil, fmt.Errorf("importer: cached record %d: %w", len(out)+1, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("importer: iterate cache: %w", err)
	}
	return out, nil
}

// Save replaces the cache content with records in one transaction. The version is written
// last so a partial import is never read back.
func (c *Cache) Save(ctx context.Context, version string, records []llama.Record) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("importer: begin cache write: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM meta`, `DELETE FROM records`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("importer: clear cache: %w", err)
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(llama.Fields)+1), ", ")
	insert, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO records (ord, %s) VALUES (%s)`, quoted(llama.Fields), placeholders))
	if err != nil {
		return fmt.Errorf("importer: prepare insert: %w", err)
	}
	defer insert.Close()

	args := make([]any, len(llama.Fields)+1)
	for i, rec := range records {
		args[0] = i
		for j, f := range llama.Fields {
			v, _ := rec.Get(f)
			args[j+1] = v
		}
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("importer: insert record %d: %w", i+1, err)
		}
	}

	meta := map[string]string{
		"count":   strconv.Itoa(len(records)),
		"version": version,
	}
	for _, k := range []string{"count", "version"} {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, meta[k]); err != nil {
			return fmt.Errorf("importer: write cache meta: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("importer: commit cache: %w", err)
	}
	return nil
}
