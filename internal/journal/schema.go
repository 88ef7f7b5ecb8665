package journal

const (
	tableEntries = "entries"

	createEntries = `CREATE TABLE IF NOT EXISTS entries (
    entry_id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    host_id TEXT NOT NULL,
    class TEXT NOT NULL,
    name TEXT NOT NULL,
    category TEXT NOT NULL,
    old_value TEXT NOT NULL,
    new_value TEXT NOT NULL,
    record TEXT NOT NULL,
    recorded_at TEXT NOT NULL
);`

	createEntriesIndexes = `CREATE INDEX IF NOT EXISTS idx_entries_host ON entries(host_id, seq);
CREATE INDEX IF NOT EXISTS idx_entries_name ON entries(name, seq);`
)

// Column names.
const (
	colEntryID  = "entry_id"
	colRunID    = "run_id"
	colSeq      = "seq"
	colHostID   = "host_id"
	colClass    = "class"
	colName     = "name"
	colCategory = "category"
)
