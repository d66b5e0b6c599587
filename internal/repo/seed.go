package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"venuebook/internal/model"
)

// Seed is the reference data applied once at startup.
type Seed struct {
	Users    []SeedUser
	Groups   []SeedGroup
	Venues   []SeedVenue
	Services []SeedService
}

type SeedUser struct {
	Email string
	Name  string
	Role  model.Role
}

type SeedGroup struct {
	Name          string
	ConvenerEmail string
}

type SeedVenue struct {
	Name     string
	Capacity int
}

type SeedService struct {
	Key         string
	Name        string
	NotifyEmail string
}

// DefaultSeed mirrors the campus bootstrap data: one superadmin, a sample
// student, two groups, the six campus venues, and the two support crews.
func DefaultSeed() Seed {
	return Seed{
		Users: []SeedUser{
			{Email: "njalshe23@earlham.edu", Name: "Nour", Role: model.RoleSuperadmin},
			{Email: "student@example.edu", Name: "Sample Student", Role: model.RoleStudent},
		},
		Groups: []SeedGroup{
			{Name: "Debate Team", ConvenerEmail: "debate-convener@example.edu"},
			{Name: "Film Club", ConvenerEmail: "film-convener@example.edu"},
		},
		Venues: []SeedVenue{
			{Name: "CST", Capacity: 120},
			{Name: "LBC", Capacity: 250},
			{Name: "AWC", Capacity: 300},
			{Name: "Earlham Hall", Capacity: 180},
			{Name: "CVPA", Capacity: 200},
			{Name: "Campus Village", Capacity: 90},
		},
		Services: []SeedService{
			{Key: "av", Name: "AV Crew", NotifyEmail: "av@example.edu"},
			{Key: "facilities", Name: "Facilities", NotifyEmail: "facilities@example.edu"},
		},
	}
}

// SeedTx applies the whole seed as a single transaction: either every row
// lands or none do. Rows are upserts, so reseeding on restart is harmless.
func (r *repository) SeedTx(ctx context.Context, seed Seed) error {
	tx, err := r.db.Master.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start seed transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	for _, u := range seed.Users {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO users (id, email, name, role) VALUES ($1, $2, $3, $4)
			ON CONFLICT (email) DO UPDATE SET role = EXCLUDED.role, name = EXCLUDED.name
		`, uuid.NewString(), u.Email, u.Name, u.Role); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to seed user %s: %w", u.Email, err)
		}
	}

	for _, g := range seed.Groups {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO groups (id, name, convener_email) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET convener_email = EXCLUDED.convener_email
		`, uuid.NewString(), g.Name, g.ConvenerEmail); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to seed group %s: %w", g.Name, err)
		}
	}

	for _, v := range seed.Venues {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO venues (id, name, capacity) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET capacity = EXCLUDED.capacity
		`, uuid.NewString(), v.Name, v.Capacity); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to seed venue %s: %w", v.Name, err)
		}
	}

	for _, s := range seed.Services {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO services (id, key, name, notify_email) VALUES ($1, $2, $3, $4)
			ON CONFLICT (key) DO UPDATE SET name = EXCLUDED.name, notify_email = EXCLUDED.notify_email
		`, uuid.NewString(), s.Key, s.Name, s.NotifyEmail); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to seed service %s: %w", s.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit seed: %w", err)
	}

	r.log.Info().
		Int("users", len(seed.Users)).
		Int("groups", len(seed.Groups)).
		Int("venues", len(seed.Venues)).
		Int("services", len(seed.Services)).
		Msg("Seed data applied")
	return nil
}
