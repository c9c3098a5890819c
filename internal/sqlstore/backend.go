// Package sqlstore implements the curator data-access contract over
// database/sql. The SQLite backend uses SQLite as the query engine and
// JSONL files in DataDir as the source of truth: the files are loaded on
// Attach and rewritten atomically after every committed write. The
// Postgres backend keeps its state in the database only.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/curator/pkg/types"
)

// Compile-time interface check: Backend must implement types.Backend.
var _ types.Backend = (*Backend)(nil)

// dbFileName is the SQLite database created inside DataDir.
const dbFileName = "curator.db"

// Backend implements types.Backend. All methods are safe for concurrent
// use; writes are serialized.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	dataDir  string
	db       *sql.DB
	dialect  dialect
}

// NewBackend creates a new backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{}
}

// Attach opens the database described by config and creates the schema.
// For SQLite it creates DataDir if needed, starts from a fresh database
// file and loads the JSONL files into it.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	ctx := context.Background()
	var err error
	switch config.Backend {
	case types.BackendSQLite:
		err = b.openSQLite(ctx, config)
	case types.BackendPostgres:
		err = b.openPostgres(ctx, config)
	default:
		err = types.ErrBackendUnknown
	}
	if err != nil {
		return err
	}

	b.config = config
	b.attached = true
	return nil
}

func (b *Backend) openSQLite(ctx context.Context, config types.Config) error {
	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	// JSONL is the source of truth; the database is rebuilt on every attach.
	_ = os.Remove(dbPath)

	db, err := sql.Open(sqliteDialect.driver, dbPath)
	if err != nil {
		return err
	}
	// SQLite has a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return err
	}
	if err := initJSONLFiles(dataDir); err != nil {
		db.Close()
		return err
	}
	if err := loadAllJSONL(ctx, db, dataDir); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	b.db = db
	b.dataDir = dataDir
	b.dialect = sqliteDialect
	return nil
}

func (b *Backend) openPostgres(ctx context.Context, config types.Config) error {
	db, err := sql.Open(postgresDialect.driver, config.DSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := createSchema(ctx, db); err != nil {
		db.Close()
		return err
	}
	b.db = db
	b.dialect = postgresDialect
	return nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// Detach closes the database. After Detach, all operations return
// ErrStoreDetached. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}
	b.attached = false
	return nil
}

// DataDir returns the directory holding the JSONL files, or "" for
// backends without them.
func (b *Backend) DataDir() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.dataDir
}

func (b *Backend) conn() *conn {
	return &conn{q: b.db, d: b.dialect}
}

// read runs fn under the read lock.
func (b *Backend) read(fn func(*conn) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return types.ErrStoreDetached
	}
	return fn(b.conn())
}

// write runs fn under the write lock and then persists the JSONL files of
// the touched tables.
func (b *Backend) write(ctx context.Context, tables []string, fn func(*conn) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrStoreDetached
	}
	c := b.conn()
	if err := fn(c); err != nil {
		return err
	}
	if !b.dialect.jsonl {
		return nil
	}
	return c.persistJSONL(ctx, b.dataDir, tables...)
}

// FetchSlots returns the slots of a container ordered by OrderIndex.
func (b *Backend) FetchSlots(ctx context.Context, containerID string) (slots []types.Slot, err error) {
	err = b.read(func(c *conn) error {
		slots, err = c.FetchSlots(ctx, containerID)
		return err
	})
	return slots, err
}

// FetchAssociations returns the associations of a container.
func (b *Backend) FetchAssociations(ctx context.Context, containerID string) (assocs []types.Association, err error) {
	err = b.read(func(c *conn) error {
		assocs, err = c.FetchAssociations(ctx, containerID)
		return err
	})
	return assocs, err
}

// FetchRecord returns a record by ID.
func (b *Backend) FetchRecord(ctx context.Context, recordID string) (r *types.Record, err error) {
	err = b.read(func(c *conn) error {
		r, err = c.FetchRecord(ctx, recordID)
		return err
	})
	return r, err
}

// FetchRecords returns the records of a container.
func (b *Backend) FetchRecords(ctx context.Context, containerID string) (rs []*types.Record, err error) {
	err = b.read(func(c *conn) error {
		rs, err = c.fetchRecords(ctx, containerID)
		return err
	})
	return rs, err
}

// ApplyOperation executes one reconciler operation.
func (b *Backend) ApplyOperation(ctx context.Context, op types.Operation) error {
	return b.write(ctx, tablesFor(op.Kind), func(c *conn) error {
		return c.ApplyOperation(ctx, op)
	})
}

// WriteField commits one field of a record, or the title of a slot.
func (b *Backend) WriteField(ctx context.Context, ownerID, fieldName string, value any) error {
	table := "records"
	if fieldName == types.FieldTitle {
		table = "slots"
	}
	return b.write(ctx, []string{table}, func(c *conn) error {
		return c.WriteField(ctx, ownerID, fieldName, value)
	})
}

// AssignSlot sets or clears the external reference on a slot.
func (b *Backend) AssignSlot(ctx context.Context, slotID string, assignee *string) error {
	if slotID == "" {
		return types.ErrInvalidID
	}
	return b.write(ctx, []string{"slots"}, func(c *conn) error {
		return c.assignSlot(ctx, slotID, assignee)
	})
}

// PutRecord creates or replaces a record and returns its ID.
func (b *Backend) PutRecord(ctx context.Context, r *types.Record) (id string, err error) {
	err = b.write(ctx, []string{"records"}, func(c *conn) error {
		id, err = c.putRecord(ctx, r)
		return err
	})
	return id, err
}

// InTx runs fn in one database transaction. The Store passed to fn is bound
// to the transaction; fn must not call back into b. JSONL files are
// rewritten only after a successful commit.
func (b *Backend) InTx(ctx context.Context, fn func(types.Store) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return types.ErrStoreDetached
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&conn{q: tx, d: b.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	if !b.dialect.jsonl {
		return nil
	}
	return b.conn().persistJSONL(ctx, b.dataDir, "slots", "associations", "records")
}
