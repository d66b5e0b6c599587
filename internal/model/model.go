package model

import (
	"fmt"
	"time"
)

// Role is the closed set of privilege levels. There is no inheritance:
// every permission is granted explicitly per role in the auth package.
type Role string

const (
	RoleStudent    Role = "student"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleStudent, RoleAdmin, RoleSuperadmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// Status is the event lifecycle state. Only approved is terminal.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusDeclined  Status = "declined"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusDeclined:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Active statuses count toward venue-conflict detection.
func (s Status) Active() bool {
	return s == StatusSubmitted || s == StatusApproved
}

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Actor is the identity performing a request, threaded explicitly into
// every core operation. It is never read from ambient state.
type Actor struct {
	ID   string
	Role Role
}

type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	Name         string     `db:"name,omitempty" json:"name,omitempty"`
	Role         Role       `db:"role" json:"role"`
	MagicToken   string     `db:"magic_token,omitempty" json:"-"`
	TokenExpires *time.Time `db:"token_expires,omitempty" json:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

type Session struct {
	Token     string    `db:"token" json:"token"`
	UserID    string    `db:"user_id" json:"user_id"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

type Group struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	ConvenerEmail string    `db:"convener_email,omitempty" json:"convener_email,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

type Venue struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Service is a support offering (AV, Facilities) keyed by a stable short
// key. Events attach to it through EventService rows.
type Service struct {
	ID          string `db:"id" json:"id"`
	Key         string `db:"key" json:"key"`
	Name        string `db:"name" json:"name"`
	NotifyEmail string `db:"notify_email,omitempty" json:"notify_email,omitempty"`
}

type Event struct {
	ID                 string     `db:"id" json:"id"`
	Title              string     `db:"title" json:"title"`
	Description        string     `db:"description,omitempty" json:"description,omitempty"`
	GroupID            string     `db:"group_id" json:"group_id"`
	VenueID            string     `db:"venue_id" json:"venue_id"`
	StartsAt           time.Time  `db:"starts_at" json:"starts_at"`
	EndsAt             time.Time  `db:"ends_at" json:"ends_at"`
	ExpectedAttendance int        `db:"expected_attendance" json:"expected_attendance"`
	Status             Status     `db:"status" json:"status"`
	Visibility         Visibility `db:"visibility" json:"visibility"`
	Conflict           bool       `db:"conflict" json:"conflict"`
	CreatedByID        string     `db:"created_by_id" json:"created_by_id"`
	CreatedAt          time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updated_at"`
}

type EventService struct {
	ID        string    `db:"id" json:"id"`
	EventID   string    `db:"event_id" json:"event_id"`
	ServiceID string    `db:"service_id" json:"service_id"`
	Notes     string    `db:"notes,omitempty" json:"notes,omitempty"`
	Notified  bool      `db:"notified" json:"notified"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Attachment struct {
	ID        string    `db:"id" json:"id"`
	EventID   string    `db:"event_id" json:"event_id"`
	Filename  string    `db:"filename" json:"filename"`
	Mime      string    `db:"mime" json:"mime"`
	SizeBytes int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
