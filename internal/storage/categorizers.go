package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/matsen/plib/internal/reference"
)

// IncrementCategorizer changes a categorizer's live-member count by delta,
// creating it on first use. Counts are clamped at zero.
func (t *Tx) IncrementCategorizer(ctx context.Context, kind reference.CategorizerKind, name string, delta int) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("categorizer name is empty")
	}
	initial := max(delta, 0)
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO categorizers (id, name, kind, count) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET count = MAX(0, count + ?)`,
		reference.CategorizerID(kind, name), name, string(kind), initial, delta)
	if err != nil {
		return fmt.Errorf("updating %s %q: %w", kind, name, err)
	}
	return nil
}

// ApplyDeltas applies a batch of categorizer count changes.
func (t *Tx) ApplyDeltas(ctx context.Context, deltas []reference.CategorizerDelta) error {
	for _, delta := range deltas {
		if err := t.IncrementCategorizer(ctx, delta.Kind, delta.Name, delta.Delta); err != nil {
			return err
		}
	}
	return nil
}

// ListCategorizers returns the categorizers of one kind sorted by name.
func (s *Store) ListCategorizers(ctx context.Context, kind reference.CategorizerKind) ([]reference.Categorizer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, count FROM categorizers WHERE kind = ? ORDER BY name`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("listing %ss: %w", kind, err)
	}
	defer rows.Close()

	var out []reference.Categorizer
	for rows.Next() {
		var c reference.Categorizer
		var k string
		if err := rows.Scan(&c.ID, &c.Name, &k, &c.Count); err != nil {
			return nil, err
		}
		c.Kind = reference.CategorizerKind(k)
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCategorizer returns one categorizer, or ErrNotFound.
func (s *Store) GetCategorizer(ctx context.Context, kind reference.CategorizerKind, name string) (reference.Categorizer, error) {
	c := reference.Categorizer{Kind: kind}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, count FROM categorizers WHERE id = ?`, reference.CategorizerID(kind, name),
	).Scan(&c.ID, &c.Name, &c.Count)
	if err != nil {
		return reference.Categorizer{}, fmt.Errorf("%w: %s %q", ErrNotFound, kind, name)
	}
	return c, nil
}

// PruneCategorizers deletes categorizers with no live members and returns
// how many were removed.
func (s *Store) PruneCategorizers(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM categorizers WHERE count <= 0`)
	if err != nil {
		return 0, fmt.Errorf("pruning categorizers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
