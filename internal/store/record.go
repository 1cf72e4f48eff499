package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Record is the atomic stored unit: a JSON document at (namespace, key).
type Record struct {
	ID        int64          `json:"id"`
	Namespace Namespace      `json:"namespace"`
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Put inserts or replaces the record at (namespace, key). A put to an
// existing pair replaces the value and refreshes updated_at; it never
// creates a duplicate row. The search index is updated by schema triggers
// inside the same transaction as the write.
func (db *DB) Put(ctx context.Context, ns Namespace, key string, value, metadata map[string]any) error {
	nsStr, valStr, metaStr, err := encodePut(ns, key, value, metadata)
	if err != nil {
		return err
	}
	now := time.Now().UTC().UnixMicro()
	_, err = db.ExecContext(ctx,
		`INSERT INTO records (namespace, key, value, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET
			value = excluded.value,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`,
		nsStr, key, valStr, metaStr, now, now,
	)
	if err != nil {
		return fmt.Errorf("%w: put %s %q: %v", ErrStorage, nsStr, key, err)
	}
	return nil
}

// Get returns the record at (namespace, key), or nil, nil when absent.
func (db *DB) Get(ctx context.Context, ns Namespace, key string) (*Record, error) {
	if err := validateAddr(ns, key); err != nil {
		return nil, err
	}
	nsStr, err := ns.encode()
	if err != nil {
		return nil, err
	}
	row := db.QueryRowContext(ctx,
		`SELECT id, namespace, key, value, metadata, created_at, updated_at
		 FROM records WHERE namespace = ? AND key = ?`,
		nsStr, key,
	)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return rec, err
}

// Delete removes the record and its index entry. Deleting a nonexistent
// key is a no-op.
func (db *DB) Delete(ctx context.Context, ns Namespace, key string) error {
	if err := validateAddr(ns, key); err != nil {
		return err
	}
	nsStr, err := ns.encode()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx,
		`DELETE FROM records WHERE namespace = ? AND key = ?`, nsStr, key,
	); err != nil {
		return fmt.Errorf("%w: delete %s %q: %v", ErrStorage, nsStr, key, err)
	}
	return nil
}

func validateAddr(ns Namespace, key string) error {
	if err := ns.Validate(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	return nil
}

// encodePut validates all inputs before any statement runs, so a bad value
// never touches storage.
func encodePut(ns Namespace, key string, value, metadata map[string]any) (nsStr, valStr string, metaStr sql.NullString, err error) {
	if err = validateAddr(ns, key); err != nil {
		return
	}
	if nsStr, err = ns.encode(); err != nil {
		return
	}
	if value == nil {
		err = fmt.Errorf("%w: nil value", ErrInvalidValue)
		return
	}
	valBytes, jerr := json.Marshal(value)
	if jerr != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidValue, jerr)
		return
	}
	valStr = string(valBytes)
	if metadata != nil {
		metaBytes, jerr := json.Marshal(metadata)
		if jerr != nil {
			err = fmt.Errorf("%w: metadata: %v", ErrInvalidValue, jerr)
			return
		}
		metaStr = sql.NullString{String: string(metaBytes), Valid: true}
	}
	return
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                  Record
		nsStr, valStr        string
		metaStr              sql.NullString
		createdUs, updatedUs int64
	)
	err := row.Scan(&rec.ID, &nsStr, &rec.Key, &valStr, &metaStr, &createdUs, &updatedUs)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if rec.Namespace, err = decodeNamespace(nsStr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := json.Unmarshal([]byte(valStr), &rec.Value); err != nil {
		return nil, fmt.Errorf("%w: stored value for %q: %v", ErrStorage, rec.Key, err)
	}
	if metaStr.Valid {
		if err := json.Unmarshal([]byte(metaStr.String), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("%w: stored metadata for %q: %v", ErrStorage, rec.Key, err)
		}
	}
	rec.CreatedAt = time.UnixMicro(createdUs).UTC()
	rec.UpdatedAt = time.UnixMicro(updatedUs).UTC()
	return &rec, nil
}
