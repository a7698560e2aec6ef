package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matsen/plib/internal/reference"
)

// selectPaperFields contains the standard field list for SELECT queries.
const selectPaperFields = `id, title, venue, abstract,
	pub_year, pub_month, pub_day,
	authors_json, ids_json, tags_json, folders_json,
	main_path, supplement_paths_json, flagged, note,
	added_at, updated_at`

// Filter selects papers in Query. Zero-valued fields do not filter.
type Filter struct {
	Preprint bool   // only records whose venue is empty or preprint-like
	Tag      string // only records carrying this tag
	Folder   string // only records in this folder
	Flagged  bool   // only flagged records
	Limit    int    // 0 = no limit
}

// Get retrieves a paper by id. It returns ErrNotFound if there is none.
func (s *Store) Get(ctx context.Context, id string) (reference.Draft, error) {
	return getPaper(ctx, s.db, id)
}

// Get retrieves a paper inside the transaction.
func (t *Tx) Get(ctx context.Context, id string) (reference.Draft, error) {
	return getPaper(ctx, t.tx, id)
}

func getPaper(ctx context.Context, q queryer, id string) (reference.Draft, error) {
	row := q.QueryRowContext(ctx, `SELECT `+selectPaperFields+` FROM papers WHERE id = ?`, id)
	d, err := scanPaper(row)
	if errors.Is(err, sql.ErrNoRows) {
		return reference.Draft{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return reference.Draft{}, fmt.Errorf("getting paper %s: %w", id, err)
	}
	return d, nil
}

// Query returns papers matching all the filter's criteria, oldest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]reference.Draft, error) {
	query := `SELECT ` + selectPaperFields + ` FROM papers WHERE 1=1`
	var args []any

	if f.Preprint {
		clauses := []string{"trim(venue) = ''"}
		for _, p := range reference.PreprintPatterns() {
			clauses = append(clauses, "lower(venue) LIKE ?")
			args = append(args, "%"+p+"%")
		}
		query += " AND (" + strings.Join(clauses, " OR ") + ")"
	}
	if f.Tag != "" {
		query += " AND EXISTS (SELECT 1 FROM json_each(papers.tags_json) WHERE json_each.value = ?)"
		args = append(args, f.Tag)
	}
	if f.Folder != "" {
		query += " AND EXISTS (SELECT 1 FROM json_each(papers.folders_json) WHERE json_each.value = ?)"
		args = append(args, f.Folder)
	}
	if f.Flagged {
		query += " AND flagged = 1"
	}

	query += " ORDER BY added_at, id"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	return scanPapers(rows)
}

// Search performs a full-text search over titles, abstracts, and authors.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]reference.Draft, error) {
	ftsQuery := prepareFTSQuery(query)
	if ftsQuery == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectPaperFields+`
		FROM papers
		WHERE id IN (SELECT id FROM papers_fts WHERE papers_fts MATCH ?)
		ORDER BY added_at, id
		LIMIT ?`, ftsQuery, limit)
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}
	defer rows.Close()

	return scanPapers(rows)
}

// Count returns the total number of papers.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM papers").Scan(&count)
	return count, err
}

// Put inserts or replaces a paper.
func (t *Tx) Put(ctx context.Context, d reference.Draft) error {
	if err := d.Validate(); err != nil {
		return err
	}

	authorsJSON, err := marshalJSON(d.Authors, "[]")
	if err != nil {
		return fmt.Errorf("marshaling authors for %s: %w", d.ID, err)
	}
	idsJSON, err := marshalJSON(d.IDs, "{}")
	if err != nil {
		return fmt.Errorf("marshaling identifiers for %s: %w", d.ID, err)
	}
	tagsJSON, err := marshalJSON(d.Tags, "[]")
	if err != nil {
		return fmt.Errorf("marshaling tags for %s: %w", d.ID, err)
	}
	foldersJSON, err := marshalJSON(d.Folders, "[]")
	if err != nil {
		return fmt.Errorf("marshaling folders for %s: %w", d.ID, err)
	}
	supplementJSON, err := marshalJSON(d.SupplementPaths, "[]")
	if err != nil {
		return fmt.Errorf("marshaling supplement paths for %s: %w", d.ID, err)
	}

	addedAt, updatedAt := d.AddedAt, d.UpdatedAt
	if addedAt.IsZero() {
		addedAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = addedAt
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO papers (
			id, title, venue, abstract,
			pub_year, pub_month, pub_day,
			authors_json, ids_json, tags_json, folders_json,
			main_path, supplement_paths_json, flagged, note,
			doi, arxiv_id, added_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Venue, d.Abstract,
		d.Published.Year, d.Published.Month, d.Published.Day,
		authorsJSON, idsJSON, tagsJSON, foldersJSON,
		d.MainPath, supplementJSON, d.Flagged, d.Note,
		nullableStringValue(d.Identifier(reference.KindDOI)),
		nullableStringValue(d.Identifier(reference.KindArXiv)),
		addedAt.UTC().Format(time.RFC3339Nano), updatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("writing paper %s: %w", d.ID, err)
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM papers_fts WHERE id = ?`, d.ID); err != nil {
		return fmt.Errorf("clearing fts for %s: %w", d.ID, err)
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO papers_fts (id, title, abstract, authors_text) VALUES (?, ?, ?, ?)`,
		d.ID, d.Title, d.Abstract, reference.FormatAuthors(d.Authors))
	if err != nil {
		return fmt.Errorf("indexing %s: %w", d.ID, err)
	}
	return nil
}

// Delete removes a paper. It returns ErrNotFound if there is none.
func (t *Tx) Delete(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM papers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting paper %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM papers_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("removing %s from fts: %w", id, err)
	}
	return nil
}

// Save writes d and adjusts categorizer counts for any tag or folder
// membership it gained or lost, all in one transaction. It returns the
// previously stored version, or nil if d is new.
func (s *Store) Save(ctx context.Context, d reference.Draft) (*reference.Draft, error) {
	var previous *reference.Draft
	err := s.Within(ctx, func(tx *Tx) error {
		old, err := tx.Get(ctx, d.ID)
		switch {
		case err == nil:
			previous = &old
		case errors.Is(err, ErrNotFound):
		default:
			return err
		}

		if err := tx.Put(ctx, d); err != nil {
			return err
		}
		return tx.ApplyDeltas(ctx, reference.CategorizerDeltas(previous, &d))
	})
	if err != nil {
		return nil, wrapCommit(err)
	}
	return previous, nil
}

// Remove deletes a paper and decrements its categorizers in one
// transaction, returning the deleted record.
func (s *Store) Remove(ctx context.Context, id string) (reference.Draft, error) {
	var removed reference.Draft
	err := s.Within(ctx, func(tx *Tx) error {
		old, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Delete(ctx, id); err != nil {
			return err
		}
		removed = old
		return tx.ApplyDeltas(ctx, reference.CategorizerDeltas(&old, nil))
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reference.Draft{}, err
		}
		return reference.Draft{}, wrapCommit(err)
	}
	return removed, nil
}

func wrapCommit(err error) error {
	if errors.Is(err, ErrStoreCommit) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStoreCommit, err)
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanPaper(s scanner) (reference.Draft, error) {
	var d reference.Draft
	var authorsJSON, idsJSON, tagsJSON, foldersJSON, supplementJSON string
	var addedAt, updatedAt string

	err := s.Scan(
		&d.ID, &d.Title, &d.Venue, &d.Abstract,
		&d.Published.Year, &d.Published.Month, &d.Published.Day,
		&authorsJSON, &idsJSON, &tagsJSON, &foldersJSON,
		&d.MainPath, &supplementJSON, &d.Flagged, &d.Note,
		&addedAt, &updatedAt,
	)
	if err != nil {
		return reference.Draft{}, err
	}

	for _, field := range []struct {
		name string
		raw  string
		dest any
	}{
		{"authors", authorsJSON, &d.Authors},
		{"identifiers", idsJSON, &d.IDs},
		{"tags", tagsJSON, &d.Tags},
		{"folders", foldersJSON, &d.Folders},
		{"supplement paths", supplementJSON, &d.SupplementPaths},
	} {
		if err := json.Unmarshal([]byte(field.raw), field.dest); err != nil {
			return reference.Draft{}, fmt.Errorf("parsing %s JSON for %s: %w", field.name, d.ID, err)
		}
	}
	if d.IDs == nil {
		d.IDs = make(map[reference.IDKind]string)
	}
	d.Authors = nilIfEmpty(d.Authors)
	d.Tags = nilIfEmpty(d.Tags)
	d.Folders = nilIfEmpty(d.Folders)
	d.SupplementPaths = nilIfEmpty(d.SupplementPaths)

	if d.AddedAt, err = time.Parse(time.RFC3339Nano, addedAt); err != nil {
		return reference.Draft{}, fmt.Errorf("parsing added_at for %s: %w", d.ID, err)
	}
	if d.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return reference.Draft{}, fmt.Errorf("parsing updated_at for %s: %w", d.ID, err)
	}
	return d, nil
}

func scanPapers(rows *sql.Rows) ([]reference.Draft, error) {
	var papers []reference.Draft
	for rows.Next() {
		d, err := scanPaper(rows)
		if err != nil {
			return nil, err
		}
		papers = append(papers, d)
	}
	return papers, rows.Err()
}

func nilIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}

func marshalJSON(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

// nullableStringValue converts a string to sql.NullString, treating empty as NULL.
func nullableStringValue(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// prepareFTSQuery escapes special characters for FTS5 queries.
func prepareFTSQuery(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return query
	}

	// If query contains special chars, quote it
	if strings.ContainsAny(query, "\"*+-:(){}[]^~") {
		query = strings.ReplaceAll(query, "\"", "\"\"")
		return "\"" + query + "\""
	}

	return query
}
