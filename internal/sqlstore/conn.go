package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/curator/pkg/types"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Compile-time interface check: conn must implement Store.
var _ types.Store = (*conn)(nil)

// conn runs the table operations against a database handle or an open
// transaction. It does no locking; Backend serializes access.
type conn struct {
	q querier
	d dialect
}

// newUUID generates a UUID v7 string.
func newUUID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.d.rebind(query), args...)
}

// atomically runs fn in a transaction unless c is already bound to one.
func (c *conn) atomically(ctx context.Context, fn func(*conn) error) error {
	db, ok := c.q.(*sql.DB)
	if !ok {
		return fn(c)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(&conn{q: tx, d: c.d}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Slot operations.

const selectSlots = "SELECT slot_id, container_id, order_index, title, assigned_to FROM slots"

func scanSlots(rows *sql.Rows) ([]types.Slot, error) {
	defer rows.Close()
	var out []types.Slot
	for rows.Next() {
		var s types.Slot
		var assigned sql.NullString
		if err := rows.Scan(&s.SlotID, &s.ContainerID, &s.OrderIndex, &s.Title, &assigned); err != nil {
			return nil, fmt.Errorf("scanning slot: %w", err)
		}
		if assigned.Valid {
			who := assigned.String
			s.AssignedTo = &who
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// FetchSlots returns the slots of a container ordered by OrderIndex.
func (c *conn) FetchSlots(ctx context.Context, containerID string) ([]types.Slot, error) {
	rows, err := c.query(ctx, selectSlots+" WHERE container_id = ? ORDER BY order_index, slot_id", containerID)
	if err != nil {
		return nil, fmt.Errorf("querying slots: %w", err)
	}
	return scanSlots(rows)
}

func (c *conn) dumpSlots(ctx context.Context) ([]json.RawMessage, error) {
	rows, err := c.query(ctx, selectSlots+" ORDER BY container_id, order_index, slot_id")
	if err != nil {
		return nil, err
	}
	slots, err := scanSlots(rows)
	if err != nil {
		return nil, err
	}
	return marshalAll(slots)
}

func (c *conn) createSlot(ctx context.Context, s types.Slot) error {
	if s.ContainerID == "" || types.Blank(s.Title) {
		return types.ErrInvalidData
	}
	if s.SlotID == "" {
		s.SlotID = newUUID()
	}
	var assigned sql.NullString
	if s.AssignedTo != nil {
		assigned = sql.NullString{String: *s.AssignedTo, Valid: true}
	}
	_, err := c.exec(ctx,
		"INSERT INTO slots (slot_id, container_id, order_index, title, assigned_to) VALUES (?, ?, ?, ?, ?)",
		s.SlotID, s.ContainerID, s.OrderIndex, strings.TrimSpace(s.Title), assigned)
	if err != nil {
		return fmt.Errorf("inserting slot: %w", err)
	}
	return nil
}

func (c *conn) updateSlot(ctx context.Context, id string, s types.Slot) error {
	if types.Blank(s.Title) {
		return types.ErrInvalidData
	}
	res, err := c.exec(ctx, "UPDATE slots SET title = ?, order_index = ? WHERE slot_id = ?",
		strings.TrimSpace(s.Title), s.OrderIndex, id)
	if err != nil {
		return fmt.Errorf("updating slot %s: %w", id, err)
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return types.ErrNotFound
	}
	return nil
}

// deleteSlot removes a free slot. Assigned slots are refused with
// ErrSlotProtected whatever the caller computed.
func (c *conn) deleteSlot(ctx context.Context, id string) error {
	res, err := c.exec(ctx, "DELETE FROM slots WHERE slot_id = ? AND assigned_to IS NULL", id)
	if err != nil {
		return fmt.Errorf("deleting slot %s: %w", id, err)
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if ok {
		return nil
	}
	var assigned sql.NullString
	err = c.queryRow(ctx, "SELECT assigned_to FROM slots WHERE slot_id = ?", id).Scan(&assigned)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking slot %s: %w", id, err)
	}
	return types.ErrSlotProtected
}

func (c *conn) assignSlot(ctx context.Context, id string, assignee *string) error {
	var assigned sql.NullString
	if assignee != nil {
		assigned = sql.NullString{String: *assignee, Valid: true}
	}
	res, err := c.exec(ctx, "UPDATE slots SET assigned_to = ? WHERE slot_id = ?", assigned, id)
	if err != nil {
		return fmt.Errorf("assigning slot %s: %w", id, err)
	}
	if ok, err := affectedOne(res); err != nil {
		return err
	} else if !ok {
		return types.ErrNotFound
	}
	return nil
}

// Association operations.

const selectAssociations = "SELECT container_id, subject_id, payload, status, created_at FROM associations"

func scanAssociations(rows *sql.Rows) ([]types.Association, error) {
	defer rows.Close()
	var out []types.Association
	for rows.Next() {
		var a types.Association
		var payload, status, createdAt string
		if err := rows.Scan(&a.ContainerID, &a.SubjectID, &payload, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning association: %w", err)
		}
		a.Status = types.Status(status)
		if err := json.Unmarshal([]byte(payload), &a.Payload); err != nil {
			return nil, fmt.Errorf("parsing association payload: %w", err)
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing association created_at: %w", err)
		}
		a.CreatedAt = t
		out = append(out, a)
	}
	return out, rows.Err()
}

// FetchAssociations returns the associations of a container ordered by
// subject ID.
func (c *conn) FetchAssociations(ctx context.Context, containerID string) ([]types.Association, error) {
	rows, err := c.query(ctx, selectAssociations+" WHERE container_id = ? ORDER BY subject_id", containerID)
	if err != nil {
		return nil, fmt.Errorf("querying associations: %w", err)
	}
	return scanAssociations(rows)
}

func (c *conn) dumpAssociations(ctx context.Context) ([]json.RawMessage, error) {
	rows, err := c.query(ctx, selectAssociations+" ORDER BY container_id, subject_id")
	if err != nil {
		return nil, err
	}
	assocs, err := scanAssociations(rows)
	if err != nil {
		return nil, err
	}
	return marshalAll(assocs)
}

func (c *conn) deleteAll(ctx context.Context, containerID string) error {
	if _, err := c.exec(ctx, "DELETE FROM associations WHERE container_id = ?", containerID); err != nil {
		return fmt.Errorf("deleting associations of %s: %w", containerID, err)
	}
	return nil
}

// insertAll inserts every row or none.
func (c *conn) insertAll(ctx context.Context, containerID string, rows []types.Association) error {
	now := time.Now()
	return c.atomically(ctx, func(tc *conn) error {
		for _, a := range rows {
			if a.SubjectID == "" || a.ContainerID != containerID {
				return fmt.Errorf("association %q: %w", a.SubjectID, types.ErrInvalidData)
			}
			if err := a.Status.Validate(); err != nil {
				return fmt.Errorf("association %s: %w", a.SubjectID, err)
			}
			payload := a.Payload
			if payload == nil {
				payload = map[string]any{}
			}
			b, err := json.Marshal(payload)
			if err != nil {
				return fmt.Errorf("encoding payload of %s: %w", a.SubjectID, err)
			}
			created := a.CreatedAt
			if created.IsZero() {
				created = now
			}
			if _, err := tc.exec(ctx,
				"INSERT INTO associations (container_id, subject_id, payload, status, created_at) VALUES (?, ?, ?, ?, ?)",
				containerID, a.SubjectID, string(b), string(a.Status), formatTime(created)); err != nil {
				return fmt.Errorf("inserting association %s: %w", a.SubjectID, err)
			}
		}
		return nil
	})
}

// Record operations.

const selectRecords = "SELECT record_id, container_id, fields, updated_at FROM records"

func scanRecords(rows *sql.Rows) ([]*types.Record, error) {
	defer rows.Close()
	var out []*types.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*types.Record, error) {
	var r types.Record
	var fields, updatedAt string
	if err := row.Scan(&r.RecordID, &r.ContainerID, &fields, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
		return nil, fmt.Errorf("parsing record fields: %w", err)
	}
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	t, err := time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing record updated_at: %w", err)
	}
	r.UpdatedAt = t
	return &r, nil
}

// FetchRecord returns a record by ID.
func (c *conn) FetchRecord(ctx context.Context, recordID string) (*types.Record, error) {
	if recordID == "" {
		return nil, types.ErrInvalidID
	}
	r, err := scanRecord(c.queryRow(ctx, selectRecords+" WHERE record_id = ?", recordID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting record %s: %w", recordID, err)
	}
	return r, nil
}

func (c *conn) fetchRecords(ctx context.Context, containerID string) ([]*types.Record, error) {
	rows, err := c.query(ctx, selectRecords+" WHERE container_id = ? ORDER BY record_id", containerID)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	return scanRecords(rows)
}

func (c *conn) dumpRecords(ctx context.Context) ([]json.RawMessage, error) {
	rows, err := c.query(ctx, selectRecords+" ORDER BY record_id")
	if err != nil {
		return nil, err
	}
	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	return marshalAll(records)
}

func (c *conn) putRecord(ctx context.Context, r *types.Record) (string, error) {
	if r == nil || r.ContainerID == "" {
		return "", types.ErrInvalidData
	}
	for name, v := range r.Fields {
		if _, err := types.ValidateField(name, v); err != nil {
			return "", fmt.Errorf("field %s: %w", name, err)
		}
	}
	if r.RecordID == "" {
		r.RecordID = newUUID()
	}
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	r.UpdatedAt = time.Now().UTC()
	b, err := json.Marshal(r.Fields)
	if err != nil {
		return "", fmt.Errorf("encoding record fields: %w", err)
	}
	_, err = c.exec(ctx,
		`INSERT INTO records (record_id, container_id, fields, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT (record_id) DO UPDATE SET container_id = excluded.container_id, fields = excluded.fields, updated_at = excluded.updated_at`,
		r.RecordID, r.ContainerID, string(b), formatTime(r.UpdatedAt))
	if err != nil {
		return "", fmt.Errorf("persisting record: %w", err)
	}
	return r.RecordID, nil
}

// WriteField commits a single field. The title field addresses a slot;
// every other field addresses a record.
func (c *conn) WriteField(ctx context.Context, ownerID, fieldName string, value any) error {
	if ownerID == "" {
		return types.ErrInvalidID
	}
	v, err := types.ValidateField(fieldName, value)
	if err != nil {
		return fmt.Errorf("field %s: %w", fieldName, err)
	}

	if fieldName == types.FieldTitle {
		res, err := c.exec(ctx, "UPDATE slots SET title = ? WHERE slot_id = ?", v, ownerID)
		if err != nil {
			return fmt.Errorf("writing slot title: %w", err)
		}
		if ok, err := affectedOne(res); err != nil {
			return err
		} else if !ok {
			return types.ErrNotFound
		}
		return nil
	}

	return c.atomically(ctx, func(tc *conn) error {
		r, err := tc.FetchRecord(ctx, ownerID)
		if err != nil {
			return err
		}
		r.Fields[fieldName] = v
		b, err := json.Marshal(r.Fields)
		if err != nil {
			return fmt.Errorf("encoding record fields: %w", err)
		}
		if _, err := tc.exec(ctx, "UPDATE records SET fields = ?, updated_at = ? WHERE record_id = ?",
			string(b), formatTime(time.Now()), ownerID); err != nil {
			return fmt.Errorf("writing record field: %w", err)
		}
		return nil
	})
}

// ApplyOperation executes one reconciler operation.
func (c *conn) ApplyOperation(ctx context.Context, op types.Operation) error {
	switch op.Kind {
	case types.OpCreate:
		if op.Slot == nil {
			return types.ErrInvalidData
		}
		return c.createSlot(ctx, *op.Slot)
	case types.OpUpdate:
		if op.Target == "" {
			return types.ErrInvalidID
		}
		if op.Slot == nil {
			return types.ErrInvalidData
		}
		return c.updateSlot(ctx, op.Target, *op.Slot)
	case types.OpDelete:
		if op.Target == "" {
			return types.ErrInvalidID
		}
		return c.deleteSlot(ctx, op.Target)
	case types.OpDeleteAll:
		if op.Target == "" {
			return types.ErrInvalidID
		}
		return c.deleteAll(ctx, op.Target)
	case types.OpInsertAll:
		if op.Target == "" {
			return types.ErrInvalidID
		}
		return c.insertAll(ctx, op.Target, op.Associations)
	default:
		return fmt.Errorf("%q: %w", op.Kind, types.ErrUnknownOpKind)
	}
}

// tablesFor names the tables an operation writes.
func tablesFor(kind types.OpKind) []string {
	switch kind {
	case types.OpCreate, types.OpUpdate, types.OpDelete:
		return []string{"slots"}
	case types.OpDeleteAll, types.OpInsertAll:
		return []string{"associations"}
	default:
		return nil
	}
}
