package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"planline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when a placement write loses the
	// optimistic-concurrency race.
	ErrVersionConflict = errors.New("version conflict")
)

// --- owners ---

func (r Repo) InsertOwner(ctx context.Context, o domain.Owner) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO owners(id,name,role,created_at) VALUES (?,?,?,?)`,
		o.ID, nullable(o.Name), o.Role, o.CreatedAt)
	return err
}

func (r Repo) GetOwner(ctx context.Context, id string) (domain.Owner, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,COALESCE(name,''),role,created_at FROM owners WHERE id=?`, id)
	var o domain.Owner
	err := row.Scan(&o.ID, &o.Name, &o.Role, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) ListOwners(ctx context.Context) ([]domain.Owner, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,COALESCE(name,''),role,created_at FROM owners ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Owner
	for rows.Next() {
		var o domain.Owner
		if err := rows.Scan(&o.ID, &o.Name, &o.Role, &o.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// EnsureOwner inserts an owner with the default role if it does not exist yet.
func (r Repo) EnsureOwner(ctx context.Context, id, createdAt string) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO owners(id,role,created_at) VALUES (?,'planner',?) ON CONFLICT(id) DO NOTHING`,
		id, createdAt)
	return err
}

// --- work items ---

const workItemCols = `id,owner_id,title,due_date,estimated_hours,logged_hours,pinned,placement_date,placement_start,version,created_at,updated_at`

func scanWorkItem(scan func(dest ...any) error) (domain.WorkItem, error) {
	var w domain.WorkItem
	var due, pDate, pStart sql.NullString
	var pinned int
	err := scan(&w.ID, &w.OwnerID, &w.Title, &due, &w.EstimatedHours, &w.LoggedHours, &pinned, &pDate, &pStart, &w.Version, &w.CreatedAt, &w.UpdatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	if err != nil {
		return w, err
	}
	w.Pinned = pinned != 0
	if due.Valid {
		w.DueDate = &due.String
	}
	if pDate.Valid {
		w.PlacementDate = &pDate.String
	}
	if pStart.Valid {
		w.PlacementStart = &pStart.String
	}
	return w, nil
}

func (r Repo) InsertWorkItem(ctx context.Context, tx *sql.Tx, w domain.WorkItem) error {
	_, err := exec(ctx, r.DB, tx, `INSERT INTO work_items(`+workItemCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		w.ID, w.OwnerID, w.Title, nullablePtr(w.DueDate), w.EstimatedHours, w.LoggedHours, boolInt(w.Pinned),
		nullablePtr(w.PlacementDate), nullablePtr(w.PlacementStart), w.Version, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r Repo) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+workItemCols+` FROM work_items WHERE id=?`, id)
	return scanWorkItem(row.Scan)
}

// ListWorkItems returns items, optionally filtered by owner and/or placement date.
func (r Repo) ListWorkItems(ctx context.Context, ownerID, placementDate string) ([]domain.WorkItem, error) {
	var clauses []string
	var args []any
	if ownerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, ownerID)
	}
	if placementDate != "" {
		clauses = append(clauses, "placement_date=?")
		args = append(args, placementDate)
	}
	query := `SELECT ` + workItemCols + ` FROM work_items`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY created_at, id`
	return r.queryWorkItems(ctx, query, args...)
}

// ListPlacedItems returns the items occupying space on one owner's day,
// ordered by start time for deterministic downstream processing.
func (r Repo) ListPlacedItems(ctx context.Context, ownerID, date string) ([]domain.WorkItem, error) {
	return r.queryWorkItems(ctx,
		`SELECT `+workItemCols+` FROM work_items WHERE owner_id=? AND placement_date=? AND placement_start IS NOT NULL ORDER BY placement_start, id`,
		ownerID, date)
}

func (r Repo) queryWorkItems(ctx context.Context, query string, args ...any) ([]domain.WorkItem, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// UpdatePlacement writes a new placement conditioned on the version observed at
// read time. A stale version yields ErrVersionConflict and no change.
func (r Repo) UpdatePlacement(ctx context.Context, tx *sql.Tx, itemID, date, start string, pin bool, expectedVersion int64, updatedAt string) error {
	res, err := exec(ctx, r.DB, tx,
		`UPDATE work_items SET placement_date=?, placement_start=?, pinned=?, version=version+1, updated_at=? WHERE id=? AND version=?`,
		date, start, boolInt(pin), updatedAt, itemID, expectedVersion)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: item %s version %d", ErrVersionConflict, itemID, expectedVersion)
	}
	return nil
}

// LogEffort adds hours to the cumulative logged effort.
func (r Repo) LogEffort(ctx context.Context, tx *sql.Tx, itemID string, hours float64, updatedAt string) error {
	res, err := exec(ctx, r.DB, tx, `UPDATE work_items SET logged_hours=logged_hours+?, updated_at=? WHERE id=?`,
		hours, updatedAt, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDueDate changes an item's due date.
func (r Repo) SetDueDate(ctx context.Context, tx *sql.Tx, itemID string, dueDate *string, updatedAt string) error {
	res, err := exec(ctx, r.DB, tx, `UPDATE work_items SET due_date=?, updated_at=? WHERE id=?`,
		nullablePtr(dueDate), updatedAt, itemID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- commitments ---

func (r Repo) InsertCommitment(ctx context.Context, tx *sql.Tx, c domain.Commitment) error {
	_, err := exec(ctx, r.DB, tx, `INSERT INTO commitments(id,owner_id,title,date,start,duration_minutes,created_at) VALUES (?,?,?,?,?,?,?)`,
		c.ID, c.OwnerID, nullable(c.Title), c.Date, c.Start, c.DurationMinutes, c.CreatedAt)
	return err
}

func (r Repo) GetCommitment(ctx context.Context, id string) (domain.Commitment, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,owner_id,COALESCE(title,''),date,start,duration_minutes,created_at FROM commitments WHERE id=?`, id)
	var c domain.Commitment
	err := row.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Date, &c.Start, &c.DurationMinutes, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// UpdateCommitment rewrites a commitment's schedule fields.
func (r Repo) UpdateCommitment(ctx context.Context, tx *sql.Tx, c domain.Commitment) error {
	res, err := exec(ctx, r.DB, tx, `UPDATE commitments SET title=?, date=?, start=?, duration_minutes=? WHERE id=?`,
		nullable(c.Title), c.Date, c.Start, c.DurationMinutes, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteCommitment(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := exec(ctx, r.DB, tx, `DELETE FROM commitments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCommitments returns commitments, optionally filtered by owner and/or date.
func (r Repo) ListCommitments(ctx context.Context, ownerID, date string) ([]domain.Commitment, error) {
	var clauses []string
	var args []any
	if ownerID != "" {
		clauses = append(clauses, "owner_id=?")
		args = append(args, ownerID)
	}
	if date != "" {
		clauses = append(clauses, "date=?")
		args = append(args, date)
	}
	query := `SELECT id,owner_id,COALESCE(title,''),date,start,duration_minutes,created_at FROM commitments`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY date, start, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Commitment
	for rows.Next() {
		var c domain.Commitment
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.Date, &c.Start, &c.DurationMinutes, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- events ---

func (r Repo) ListEvents(ctx context.Context, limit int, ownerID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(owner_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events`
	var args []any
	if ownerID != "" {
		query += ` WHERE owner_id=?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns up to limit events with id > cursor, oldest first.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, ownerID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(owner_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE id>?`
	args := []any{cursor}
	if ownerID != "" {
		query += ` AND owner_id=?`
		args = append(args, ownerID)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) LatestEventID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := r.DB.QueryRowContext(ctx, `SELECT MAX(id) FROM events`).Scan(&id); err != nil {
		return 0, err
	}
	return id.Int64, nil
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.OwnerID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// --- helpers ---

func exec(ctx context.Context, db *sql.DB, tx *sql.Tx, query string, args ...any) (sql.Result, error) {
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullablePtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
