package store

const schemaVersion = 1

// goals and decks are arenas: one row per node, linked by parent_id, with
// the node's own fields (children excluded) as a JSON document.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS goals (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL,
	doc TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS goals_parent_idx ON goals(parent_id, position);

CREATE TABLE IF NOT EXISTS decks (
	id TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL,
	doc TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS decks_parent_idx ON decks(parent_id, position);
`
