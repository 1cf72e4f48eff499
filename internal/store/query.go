package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SearchResult pairs a record with its full-text rank. Rank comes straight
// from FTS5 (BM25; lower is more relevant); only the relative order is part
// of the contract.
type SearchResult struct {
	Record
	Rank float64 `json:"rank"`
}

// List returns records in the namespace whose key starts with prefix
// (empty prefix matches all keys), ordered by updated_at descending for
// pagination.
func (db *DB) List(ctx context.Context, ns Namespace, prefix string, limit, offset int) ([]Record, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	nsStr, err := ns.encode()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT id, namespace, key, value, metadata, created_at, updated_at
		 FROM records WHERE namespace = ?`
	args := []any{nsStr}
	if prefix != "" {
		query += ` AND key LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(prefix)+"%")
	}
	query += ` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrStorage, nsStr, err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrStorage, nsStr, err)
	}
	return out, nil
}

// Search performs a ranked full-text match against the indexed text of
// records in the namespace, most relevant first. An empty query returns no
// results rather than all records.
func (db *DB) Search(ctx context.Context, ns Namespace, query string, limit int) ([]SearchResult, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	nsStr, err := ns.encode()
	if err != nil {
		return nil, err
	}
	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := db.QueryContext(ctx,
		`SELECT r.id, r.namespace, r.key, r.value, r.metadata, r.created_at, r.updated_at, f.rank
		 FROM records_fts f
		 JOIN records r ON r.id = f.rowid
		 WHERE records_fts MATCH ? AND r.namespace = ?
		 ORDER BY f.rank
		 LIMIT ?`,
		ftsQuery, nsStr, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", ErrStorage, nsStr, err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var (
			sr                   SearchResult
			nsStored, valStr     string
			metaStr              sql.NullString
			createdUs, updatedUs int64
		)
		if err := rows.Scan(&sr.ID, &nsStored, &sr.Key, &valStr, &metaStr, &createdUs, &updatedUs, &sr.Rank); err != nil {
			return nil, fmt.Errorf("%w: search %s: %v", ErrStorage, nsStr, err)
		}
		if sr.Namespace, err = decodeNamespace(nsStored); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if err := json.Unmarshal([]byte(valStr), &sr.Value); err != nil {
			return nil, fmt.Errorf("%w: stored value for %q: %v", ErrStorage, sr.Key, err)
		}
		if metaStr.Valid {
			if err := json.Unmarshal([]byte(metaStr.String), &sr.Metadata); err != nil {
				return nil, fmt.Errorf("%w: stored metadata for %q: %v", ErrStorage, sr.Key, err)
			}
		}
		sr.CreatedAt = time.UnixMicro(createdUs).UTC()
		sr.UpdatedAt = time.UnixMicro(updatedUs).UTC()
		out = append(out, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search %s: %v", ErrStorage, nsStr, err)
	}
	return out, nil
}

// Namespaces returns every distinct namespace present among stored records.
func (db *DB) Namespaces(ctx context.Context) ([]Namespace, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT namespace FROM records ORDER BY namespace`)
	if err != nil {
		return nil, fmt.Errorf("%w: namespaces: %v", ErrStorage, err)
	}
	defer rows.Close()

	var out []Namespace
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("%w: namespaces: %v", ErrStorage, err)
		}
		ns, err := decodeNamespace(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		out = append(out, ns)
	}
	return out, rows.Err()
}

// Keys returns all keys in the namespace.
func (db *DB) Keys(ctx context.Context, ns Namespace) ([]string, error) {
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	nsStr, err := ns.encode()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `SELECT key FROM records WHERE namespace = ? ORDER BY key`, nsStr)
	if err != nil {
		return nil, fmt.Errorf("%w: keys %s: %v", ErrStorage, nsStr, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("%w: keys %s: %v", ErrStorage, nsStr, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// sanitizeFTS wraps each term in quotes so FTS5 doesn't choke on operator
// characters in user text. "loves python!" -> `"loves" "python!"`.
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.ReplaceAll(w, `"`, `""`)
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
