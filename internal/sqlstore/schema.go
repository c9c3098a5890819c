package sqlstore

// Schema DDL. Statements are portable between SQLite and Postgres: JSON
// columns are TEXT and timestamps are RFC 3339 strings.
const (
	createSlots = `CREATE TABLE IF NOT EXISTS slots (
    slot_id TEXT PRIMARY KEY,
    container_id TEXT NOT NULL,
    order_index INTEGER NOT NULL,
    title TEXT NOT NULL,
    assigned_to TEXT
);`

	createAssociations = `CREATE TABLE IF NOT EXISTS associations (
    container_id TEXT NOT NULL,
    subject_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    status TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (container_id, subject_id)
);`

	createRecords = `CREATE TABLE IF NOT EXISTS records (
    record_id TEXT PRIMARY KEY,
    container_id TEXT NOT NULL,
    fields TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`
)

// Index DDL for container-scoped reads.
const (
	idxSlotsContainer   = `CREATE INDEX IF NOT EXISTS idx_slots_container ON slots(container_id, order_index);`
	idxRecordsContainer = `CREATE INDEX IF NOT EXISTS idx_records_container ON records(container_id);`
	idxAssocStatus      = `CREATE INDEX IF NOT EXISTS idx_associations_status ON associations(container_id, status);`
)

// schemaDDL lists all CREATE statements in execution order.
var schemaDDL = []string{
	createSlots,
	createAssociations,
	createRecords,
	idxSlotsContainer,
	idxRecordsContainer,
	idxAssocStatus,
}

// jsonlTableMapping maps JSONL files to their tables and column lists. JSON
// keys in each line match the column names.
var jsonlTableMapping = []struct {
	file    string
	table   string
	columns []string
}{
	{"slots.jsonl", "slots", []string{"slot_id", "container_id", "order_index", "title", "assigned_to"}},
	{"associations.jsonl", "associations", []string{"container_id", "subject_id", "payload", "status", "created_at"}},
	{"records.jsonl", "records", []string{"record_id", "container_id", "fields", "updated_at"}},
}
