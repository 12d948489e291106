// Package sqlite stores the document tree in a SQLite file, one row per
// leaf. It targets single-node and edge deployments where the graph lives
// next to the process.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/armstrong-haulage/community-hub/pkg/pathtree"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS tree_nodes (
    path TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
) WITHOUT ROWID;
`

// TreeStore implements document.Store on SQLite.
type TreeStore struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the schema.
// Use ":memory:" only with care: every connection sees its own database,
// which is why the pool is capped at one connection.
func Open(path string) (*TreeStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &TreeStore{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *TreeStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping implements document.Pinger.
func (s *TreeStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get implements document.Store.
func (s *TreeStore) Get(ctx context.Context, path string) (any, error) {
	root, err := pathtree.Clean(path)
	if err != nil {
		return nil, err
	}
	lo, hi := pathtree.SubtreeRange(root)

	rows, err := s.db.QueryContext(ctx,
		`SELECT path, value FROM tree_nodes WHERE path = ? OR (path >= ? AND path < ?)`, root, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get %s: %w", root, err)
	}
	defer rows.Close()

	leaves := make(map[string]any)
	for rows.Next() {
		var p, raw string
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", root, err)
		}
		v, err := pathtree.DecodeLeaf(raw)
		if err != nil {
			return nil, err
		}
		leaves[p] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: get %s: %w", root, err)
	}
	return pathtree.Unflatten(root, leaves), nil
}

// Exists implements document.Store.
func (s *TreeStore) Exists(ctx context.Context, path string) (bool, error) {
	root, err := pathtree.Clean(path)
	if err != nil {
		return false, err
	}
	lo, hi := pathtree.SubtreeRange(root)

	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tree_nodes WHERE path = ? OR (path >= ? AND path < ?))`, root, lo, hi).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("sqlite: exists %s: %w", root, err)
	}
	return exists, nil
}

// Keys implements document.Store.
func (s *TreeStore) Keys(ctx context.Context, path string) ([]string, error) {
	root, err := pathtree.Clean(path)
	if err != nil {
		return nil, err
	}
	lo, hi := pathtree.SubtreeRange(root)

	rows, err := s.db.QueryContext(ctx, `SELECT path FROM tree_nodes WHERE path >= ? AND path < ?`, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("sqlite: keys %s: %w", root, err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("sqlite: scan %s: %w", root, err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: keys %s: %w", root, err)
	}
	return pathtree.ChildKeys(root, paths), nil
}

// Update implements document.Store. All paths are written in one transaction.
func (s *TreeStore) Update(ctx context.Context, values map[string]any) error {
	plan, err := pathtree.PlanWrite(values)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, root := range plan.Clear {
		lo, hi := pathtree.SubtreeRange(root)
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tree_nodes WHERE path = ? OR (path >= ? AND path < ?)`, root, lo, hi); err != nil {
			return fmt.Errorf("sqlite: clear %s: %w", root, err)
		}
	}
	if len(plan.DropLeaves) > 0 {
		query, args := inClause(`DELETE FROM tree_nodes WHERE path IN `, plan.DropLeaves)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("sqlite: drop ancestor leaves: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tree_nodes (path, value) VALUES (?, ?)
		ON CONFLICT (path) DO UPDATE SET value = excluded.value,
		updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, p := range plan.PutPaths() {
		if _, err := stmt.ExecContext(ctx, p, plan.Put[p]); err != nil {
			return fmt.Errorf("sqlite: upsert %s: %w", p, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// inClause appends "(?, ?, ...)" for values to prefix.
func inClause(prefix string, values []string) (string, []any) {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return prefix + "(" + strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ") + ")", args
}
