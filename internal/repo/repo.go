package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"

	"venuebook/internal/model"
)

var (
	ErrEventNotFound   = errors.New("event not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrVenueNotFound   = errors.New("venue not found")
	ErrServiceNotFound = errors.New("service not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrGroupInUse      = errors.New("group referenced by events")
	ErrVenueInUse      = errors.New("venue referenced by events")
)

// EventPatch carries optional field updates; nil fields are left unchanged.
type EventPatch struct {
	Title              *string
	Description        *string
	GroupID            *string
	VenueID            *string
	StartsAt           *time.Time
	EndsAt             *time.Time
	ExpectedAttendance *int
	Visibility         *model.Visibility
}

// TouchesSchedule reports whether the patch changes the venue or the time
// window, which obligates a conflict recomputation.
func (p EventPatch) TouchesSchedule() bool {
	return p.VenueID != nil || p.StartsAt != nil || p.EndsAt != nil
}

type Repository interface {
	// Events.
	CreateEvent(ctx context.Context, e *model.Event) error
	GetEventByID(ctx context.Context, id string) (*model.Event, error)
	UpdateEventTx(ctx context.Context, id string, patch EventPatch, recomputeConflict bool) (*model.Event, error)
	SubmitEventTx(ctx context.Context, id string) (*model.Event, error)
	DecideEventTx(ctx context.Context, id string, status model.Status, visibility model.Visibility) (*model.Event, error)
	DeleteEventCascadeTx(ctx context.Context, id string) error
	HasVenueConflict(ctx context.Context, venueID string, startsAt, endsAt time.Time, excludeEventID string) (bool, error)
	ListEventsByCreator(ctx context.Context, creatorID string) ([]model.Event, error)
	ListEventsByStatus(ctx context.Context, status model.Status) ([]model.Event, error)

	// Event associations.
	CreateEventService(ctx context.Context, es *model.EventService) error
	ListEventServices(ctx context.Context, eventID string) ([]model.EventService, error)
	MarkEventServiceNotified(ctx context.Context, id string) error
	CreateAttachment(ctx context.Context, a *model.Attachment) error
	ListAttachments(ctx context.Context, eventID string) ([]model.Attachment, error)

	// Reference data.
	ListGroups(ctx context.Context) ([]model.Group, error)
	GetGroupByID(ctx context.Context, id string) (*model.Group, error)
	CreateGroup(ctx context.Context, g *model.Group) error
	UpdateGroup(ctx context.Context, id string, name, convenerEmail *string) (*model.Group, error)
	DeleteGroup(ctx context.Context, id string) error
	ListVenues(ctx context.Context) ([]model.Venue, error)
	GetVenueByID(ctx context.Context, id string) (*model.Venue, error)
	CreateVenue(ctx context.Context, v *model.Venue) error
	UpdateVenue(ctx context.Context, id string, name *string, capacity *int) (*model.Venue, error)
	DeleteVenue(ctx context.Context, id string) error
	ListServices(ctx context.Context) ([]model.Service, error)
	GetServiceByKey(ctx context.Context, key string) (*model.Service, error)

	// Users and sessions.
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	UpsertUserRole(ctx context.Context, email string, role model.Role, name string) (*model.User, error)
	SetMagicToken(ctx context.Context, email, token string, expires time.Time) error
	ConsumeMagicTokenTx(ctx context.Context, token string) (*model.User, error)
	CreateSession(ctx context.Context, s *model.Session) error
	GetSessionUser(ctx context.Context, token string) (*model.User, error)
	DeleteSession(ctx context.Context, token string) error
	PurgeExpiredAuth(ctx context.Context, now time.Time) (int64, error)

	SeedTx(ctx context.Context, seed Seed) error
	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db  *dbpg.DB
	log *zerolog.Logger
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	return &repository{db: db, log: log}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}
		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}
		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

const eventColumns = `
	id, title, description, group_id, venue_id, starts_at, ends_at,
	expected_attendance, status, visibility, conflict, created_by_id,
	created_at, updated_at
`

func scanEvent(row interface{ Scan(...any) error }) (*model.Event, error) {
	var e model.Event
	err := row.Scan(
		&e.ID, &e.Title, &e.Description, &e.GroupID, &e.VenueID,
		&e.StartsAt, &e.EndsAt, &e.ExpectedAttendance, &e.Status,
		&e.Visibility, &e.Conflict, &e.CreatedByID, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *repository) CreateEvent(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	query := `
		INSERT INTO events (id, title, description, group_id, venue_id, starts_at, ends_at,
		                    expected_attendance, status, visibility, conflict, created_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`
	row := r.db.QueryRowContext(ctx, query,
		e.ID, e.Title, e.Description, e.GroupID, e.VenueID, e.StartsAt, e.EndsAt,
		e.ExpectedAttendance, e.Status, e.Visibility, e.Conflict, e.CreatedByID,
	)
	if err := row.Scan(&e.CreatedAt, &e.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *repository) GetEventByID(ctx context.Context, id string) (*model.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	e, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return e, nil
}

// overlapQuery is the half-open interval predicate: another active event in
// the same venue with other.starts_at < end AND other.ends_at > start.
// Touching endpoints do not overlap.
const overlapQuery = `
	SELECT EXISTS (
		SELECT 1 FROM events
		WHERE venue_id = $1
		  AND status IN ('submitted', 'approved')
		  AND starts_at < $3
		  AND ends_at > $2
		  AND id <> $4
	)
`

func (r *repository) HasVenueConflict(ctx context.Context, venueID string, startsAt, endsAt time.Time, excludeEventID string) (bool, error) {
	var conflict bool
	err := r.db.QueryRowContext(ctx, overlapQuery, venueID, startsAt, endsAt, excludeEventID).Scan(&conflict)
	if err != nil {
		return false, fmt.Errorf("failed to check venue conflict: %w", err)
	}
	return conflict, nil
}

// SubmitEventTx flips the event to submitted and recomputes its conflict
// flag against the rows visible inside the same transaction, so status and
// flag are always written as one unit.
func (r *repository) SubmitEventTx(ctx context.Context, id string) (*model.Event, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	var venueID string
	var startsAt, endsAt time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT venue_id, starts_at, ends_at FROM events WHERE id = $1 FOR UPDATE
	`, id).Scan(&venueID, &startsAt, &endsAt)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to lock event for submit: %w", err)
	}

	var conflict bool
	if err := tx.QueryRowContext(ctx, overlapQuery, venueID, startsAt, endsAt, id).Scan(&conflict); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to recompute conflict: %w", err)
	}

	e, err := scanEvent(tx.QueryRowContext(ctx, `
		UPDATE events SET status = 'submitted', conflict = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+eventColumns, id, conflict))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to submit event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return e, nil
}

func (r *repository) UpdateEventTx(ctx context.Context, id string, patch EventPatch, recomputeConflict bool) (*model.Event, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	cur, err := scanEvent(tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to lock event for update: %w", err)
	}

	if patch.Title != nil {
		cur.Title = *patch.Title
	}
	if patch.Description != nil {
		cur.Description = *patch.Description
	}
	if patch.GroupID != nil {
		cur.GroupID = *patch.GroupID
	}
	if patch.VenueID != nil {
		cur.VenueID = *patch.VenueID
	}
	if patch.StartsAt != nil {
		cur.StartsAt = *patch.StartsAt
	}
	if patch.EndsAt != nil {
		cur.EndsAt = *patch.EndsAt
	}
	if patch.ExpectedAttendance != nil {
		cur.ExpectedAttendance = *patch.ExpectedAttendance
	}
	if patch.Visibility != nil {
		cur.Visibility = *patch.Visibility
	}

	if recomputeConflict {
		if err := tx.QueryRowContext(ctx, overlapQuery, cur.VenueID, cur.StartsAt, cur.EndsAt, id).Scan(&cur.Conflict); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to recompute conflict: %w", err)
		}
	}

	e, err := scanEvent(tx.QueryRowContext(ctx, `
		UPDATE events SET
			title = $2, description = $3, group_id = $4, venue_id = $5,
			starts_at = $6, ends_at = $7, expected_attendance = $8,
			visibility = $9, conflict = $10, updated_at = NOW()
		WHERE id = $1
		RETURNING `+eventColumns,
		id, cur.Title, cur.Description, cur.GroupID, cur.VenueID,
		cur.StartsAt, cur.EndsAt, cur.ExpectedAttendance, cur.Visibility, cur.Conflict))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return e, nil
}

func (r *repository) DecideEventTx(ctx context.Context, id string, status model.Status, visibility model.Visibility) (*model.Event, error) {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	e, err := scanEvent(tx.QueryRowContext(ctx, `
		UPDATE events SET status = $2, visibility = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+eventColumns, id, status, visibility))
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to decide event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return e, nil
}

// DeleteEventCascadeTx removes the event together with its service requests
// and attachments as one atomic unit.
func (r *repository) DeleteEventCascadeTx(ctx context.Context, id string) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM attachments WHERE event_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete attachments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM event_services WHERE event_id = $1`, id); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete service requests: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return ErrEventNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cascade delete: %w", err)
	}
	return nil
}

func (r *repository) listEvents(ctx context.Context, query string, args ...any) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, *e)
	}
	return events, rows.Err()
}

func (r *repository) ListEventsByCreator(ctx context.Context, creatorID string) ([]model.Event, error) {
	return r.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE created_by_id = $1 ORDER BY created_at DESC`, creatorID)
}

func (r *repository) ListEventsByStatus(ctx context.Context, status model.Status) ([]model.Event, error) {
	order := "created_at ASC"
	if status == model.StatusApproved {
		order = "starts_at ASC"
	}
	return r.listEvents(ctx,
		`SELECT `+eventColumns+` FROM events WHERE status = $1 ORDER BY `+order, status)
}

func (r *repository) CreateEventService(ctx context.Context, es *model.EventService) error {
	if es.ID == "" {
		es.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO event_services (id, event_id, service_id, notes, notified)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, es.ID, es.EventID, es.ServiceID, es.Notes, es.Notified)
	if err := row.Scan(&es.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert service request: %w", err)
	}
	return nil
}

func (r *repository) ListEventServices(ctx context.Context, eventID string) ([]model.EventService, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, service_id, notes, notified, created_at
		FROM event_services WHERE event_id = $1 ORDER BY created_at ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list service requests: %w", err)
	}
	defer rows.Close()

	var out []model.EventService
	for rows.Next() {
		var es model.EventService
		if err := rows.Scan(&es.ID, &es.EventID, &es.ServiceID, &es.Notes, &es.Notified, &es.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan service request: %w", err)
		}
		out = append(out, es)
	}
	return out, rows.Err()
}

func (r *repository) MarkEventServiceNotified(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE event_services SET notified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark service request notified: %w", err)
	}
	return nil
}

func (r *repository) CreateAttachment(ctx context.Context, a *model.Attachment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attachments (id, event_id, filename, mime, size_bytes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, a.ID, a.EventID, a.Filename, a.Mime, a.SizeBytes)
	if err := row.Scan(&a.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

func (r *repository) ListAttachments(ctx context.Context, eventID string) ([]model.Attachment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, filename, mime, size_bytes, created_at
		FROM attachments WHERE event_id = $1 ORDER BY created_at ASC
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	var out []model.Attachment
	for rows.Next() {
		var a model.Attachment
		if err := rows.Scan(&a.ID, &a.EventID, &a.Filename, &a.Mime, &a.SizeBytes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
