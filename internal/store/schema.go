package store

// Timestamps are stored as INTEGER microseconds since the Unix epoch so
// ordering by updated_at stays correct for writes inside the same second.
// records_fts is an external-content FTS5 table; the triggers keep it in
// lockstep with the primary table inside the same transaction as every
// insert, update, and delete.
const schema = `
CREATE TABLE IF NOT EXISTS records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	embedding BLOB, -- reserved for future vector search; unused
	metadata TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(namespace, key)
);

CREATE INDEX IF NOT EXISTS idx_records_ns_updated ON records(namespace, updated_at DESC);

CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
	namespace,
	key,
	value,
	content='records',
	content_rowid='id'
);

CREATE TRIGGER IF NOT EXISTS records_fts_insert AFTER INSERT ON records BEGIN
	INSERT INTO records_fts(rowid, namespace, key, value)
	VALUES (new.id, new.namespace, new.key, new.value);
END;

CREATE TRIGGER IF NOT EXISTS records_fts_delete AFTER DELETE ON records BEGIN
	INSERT INTO records_fts(records_fts, rowid, namespace, key, value)
	VALUES ('delete', old.id, old.namespace, old.key, old.value);
END;

CREATE TRIGGER IF NOT EXISTS records_fts_update AFTER UPDATE ON records BEGIN
	INSERT INTO records_fts(records_fts, rowid, namespace, key, value)
	VALUES ('delete', old.id, old.namespace, old.key, old.value);
	INSERT INTO records_fts(rowid, namespace, key, value)
	VALUES (new.id, new.namespace, new.key, new.value);
END;
`
