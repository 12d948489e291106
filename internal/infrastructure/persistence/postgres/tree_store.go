package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/armstrong-haulage/community-hub/pkg/pathtree"
)

// ══════════════════════════════════════════════════════════════════════════════
// TREE STORE
// ══════════════════════════════════════════════════════════════════════════════

const (
	selectSubtreeSQL = `SELECT path, value::text FROM tree_nodes WHERE path = $1 OR path LIKE $2 ESCAPE '\'`
	existsSubtreeSQL = `SELECT EXISTS (SELECT 1 FROM tree_nodes WHERE path = $1 OR path LIKE $2 ESCAPE '\')`
	selectBelowSQL   = `SELECT path FROM tree_nodes WHERE path LIKE $1 ESCAPE '\'`
	clearSubtreeSQL  = `DELETE FROM tree_nodes WHERE path = $1 OR path LIKE $2 ESCAPE '\'`
	dropLeavesSQL    = `DELETE FROM tree_nodes WHERE path = ANY($1)`
	upsertLeafSQL    = `INSERT INTO tree_nodes (path, value, updated_at) VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (path) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
)

// TreeStore implements document.Store over the tree_nodes table.
type TreeStore struct {
	conn *Connection
}

// NewTreeStore creates a TreeStore. Run the Migrator first.
func NewTreeStore(conn *Connection) *TreeStore {
	return &TreeStore{conn: conn}
}

// Get implements document.Store.
func (s *TreeStore) Get(ctx context.Context, path string) (any, error) {
	root, err := pathtree.Clean(path)
	if err != nil {
		return nil, err
	}
	q, err := s.conn.querier()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, selectSubtreeSQL, root, pathtree.SubtreePattern(root))
	if err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", root, err)
	}
	defer rows.Close()

	leaves := make(map[string]any)
	for rows.Next() {
		var p, raw string
		if err := rows.Scan(&p, &raw); err != nil {
			return nil, fmt.Errorf("postgres: scan %s: %w", root, err)
		}
		v, err := pathtree.DecodeLeaf(raw)
		if err != nil {
			return nil, err
		}
		leaves[p] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: get %s: %w", root, err)
	}
	return pathtree.Unflatten(root, leaves), nil
}

// Exists implements document.Store.
func (s *TreeStore) Exists(ctx context.Context, path string) (bool, error) {
	root, err := pathtree.Clean(path)
	if err != nil {
		return false, err
	}
	q, err := s.conn.querier()
	if err != nil {
		return false, err
	}

	var exists bool
	if err := q.QueryRow(ctx, existsSubtreeSQL, root, pathtree.SubtreePattern(root)).Scan(&exists); err != nil {
		return false, fmt.Errorf("postgres: exists %s: %w", root, err)
	}
	return exists, nil
}

// Keys implements document.Store.
func (s *TreeStore) Keys(ctx context.Context, path string) ([]string, error) {
	root, err := pathtree.Clean(path)
	if err != nil {
		return nil, err
	}
	q, err := s.conn.querier()
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, selectBelowSQL, pathtree.SubtreePattern(root))
	if err != nil {
		return nil, fmt.Errorf("postgres: keys %s: %w", root, err)
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: keys %s: %w", root, err)
	}
	return pathtree.ChildKeys(root, paths), nil
}

// Update implements document.Store. All paths are written in one transaction.
func (s *TreeStore) Update(ctx context.Context, values map[string]any) error {
	plan, err := pathtree.PlanWrite(values)
	if err != nil {
		return err
	}

	return s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		batch := BuildWriteBatch(plan)
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return fmt.Errorf("postgres: update: %w", err)
			}
		}
		return results.Close()
	})
}

// Ping implements document.Pinger.
func (s *TreeStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// HealthDetails implements document.HealthReporter with pool statistics.
func (s *TreeStore) HealthDetails(ctx context.Context) (map[string]any, error) {
	status, err := s.conn.Health(ctx)
	if err != nil {
		return nil, err
	}
	return status.Details(), status.Err()
}

// BuildWriteBatch turns a WritePlan into ordered statements:
// subtree clears, ancestor leaf drops, then leaf upserts.
func BuildWriteBatch(plan *pathtree.WritePlan) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, root := range plan.Clear {
		batch.Queue(clearSubtreeSQL, root, pathtree.SubtreePattern(root))
	}
	if len(plan.DropLeaves) > 0 {
		batch.Queue(dropLeavesSQL, plan.DropLeaves)
	}
	for _, p := range plan.PutPaths() {
		batch.Queue(upsertLeafSQL, p, plan.Put[p])
	}
	return batch
}
