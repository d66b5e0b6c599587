package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"venuebook/internal/model"
)

func (r *repository) ListGroups(ctx context.Context) ([]model.Group, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, convener_email, created_at FROM groups ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()

	var out []model.Group
	for rows.Next() {
		var g model.Group
		if err := rows.Scan(&g.ID, &g.Name, &g.ConvenerEmail, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *repository) GetGroupByID(ctx context.Context, id string) (*model.Group, error) {
	var g model.Group
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, convener_email, created_at FROM groups WHERE id = $1
	`, id).Scan(&g.ID, &g.Name, &g.ConvenerEmail, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

func (r *repository) CreateGroup(ctx context.Context, g *model.Group) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO groups (id, name, convener_email) VALUES ($1, $2, $3)
		RETURNING created_at
	`, g.ID, g.Name, g.ConvenerEmail)
	if err := row.Scan(&g.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}
	return nil
}

func (r *repository) UpdateGroup(ctx context.Context, id string, name, convenerEmail *string) (*model.Group, error) {
	var g model.Group
	err := r.db.QueryRowContext(ctx, `
		UPDATE groups SET
			name = COALESCE($2, name),
			convener_email = COALESCE($3, convener_email)
		WHERE id = $1
		RETURNING id, name, convener_email, created_at
	`, id, name, convenerEmail).Scan(&g.ID, &g.Name, &g.ConvenerEmail, &g.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to update group: %w", err)
	}
	return &g, nil
}

// DeleteGroup refuses while any event still references the group. The count
// and the delete run in one transaction so a concurrent create cannot slip
// between them.
func (r *repository) DeleteGroup(ctx context.Context, id string) error {
	return r.deleteReferenced(ctx, "groups", "group_id", id, ErrGroupNotFound, ErrGroupInUse)
}

func (r *repository) ListVenues(ctx context.Context) ([]model.Venue, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, capacity, created_at FROM venues ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list venues: %w", err)
	}
	defer rows.Close()

	var out []model.Venue
	for rows.Next() {
		var v model.Venue
		if err := rows.Scan(&v.ID, &v.Name, &v.Capacity, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan venue: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *repository) GetVenueByID(ctx context.Context, id string) (*model.Venue, error) {
	var v model.Venue
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, capacity, created_at FROM venues WHERE id = $1
	`, id).Scan(&v.ID, &v.Name, &v.Capacity, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVenueNotFound
		}
		return nil, fmt.Errorf("failed to get venue: %w", err)
	}
	return &v, nil
}

func (r *repository) CreateVenue(ctx context.Context, v *model.Venue) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO venues (id, name, capacity) VALUES ($1, $2, $3)
		RETURNING created_at
	`, v.ID, v.Name, v.Capacity)
	if err := row.Scan(&v.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert venue: %w", err)
	}
	return nil
}

func (r *repository) UpdateVenue(ctx context.Context, id string, name *string, capacity *int) (*model.Venue, error) {
	var v model.Venue
	err := r.db.QueryRowContext(ctx, `
		UPDATE venues SET
			name = COALESCE($2, name),
			capacity = COALESCE($3, capacity)
		WHERE id = $1
		RETURNING id, name, capacity, created_at
	`, id, name, capacity).Scan(&v.ID, &v.Name, &v.Capacity, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVenueNotFound
		}
		return nil, fmt.Errorf("failed to update venue: %w", err)
	}
	return &v, nil
}

func (r *repository) DeleteVenue(ctx context.Context, id string) error {
	return r.deleteReferenced(ctx, "venues", "venue_id", id, ErrVenueNotFound, ErrVenueInUse)
}

func (r *repository) deleteReferenced(ctx context.Context, table, fk, id string, notFound, inUse error) error {
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

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE `+fk+` = $1`, id).Scan(&count); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to count referencing events: %w", err)
	}
	if count > 0 {
		_ = tx.Rollback()
		return inUse
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = $1`, id)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_ = tx.Rollback()
		return notFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

func (r *repository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, key, name, notify_email FROM services ORDER BY key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Key, &s.Name, &s.NotifyEmail); err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) GetServiceByKey(ctx context.Context, key string) (*model.Service, error) {
	var s model.Service
	err := r.db.QueryRowContext(ctx, `
		SELECT id, key, name, notify_email FROM services WHERE key = $1
	`, key).Scan(&s.ID, &s.Key, &s.Name, &s.NotifyEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &s, nil
}
