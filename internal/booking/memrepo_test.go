package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"venuebook/internal/model"
	"venuebook/internal/repo"
)

// memRepo is an in-memory Repository used by the controller tests. Its
// transactional methods apply their writes under one lock, mirroring the
// atomic-unit contract of the Postgres implementation.
type memRepo struct {
	mu sync.Mutex

	seq           int
	events        map[string]*model.Event
	eventServices map[string]*model.EventService
	attachments   map[string]*model.Attachment
	groups        map[string]*model.Group
	venues        map[string]*model.Venue
	services      map[string]*model.Service
	users         map[string]*model.User
	sessions      map[string]*model.Session
}

func newMemRepo() *memRepo {
	return &memRepo{
		events:        make(map[string]*model.Event),
		eventServices: make(map[string]*model.EventService),
		attachments:   make(map[string]*model.Attachment),
		groups:        make(map[string]*model.Group),
		venues:        make(map[string]*model.Venue),
		services:      make(map[string]*model.Service),
		users:         make(map[string]*model.User),
		sessions:      make(map[string]*model.Session),
	}
}

var _ repo.Repository = (*memRepo)(nil)

func (m *memRepo) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memRepo) CreateEvent(_ context.Context, e *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = m.nextID("evt")
	}
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	m.events[e.ID] = &cp
	return nil
}

func (m *memRepo) GetEventByID(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, repo.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memRepo) hasOverlapLocked(venueID string, startsAt, endsAt time.Time, excludeID string) bool {
	for _, o := range m.events {
		if o.ID == excludeID || o.VenueID != venueID || !o.Status.Active() {
			continue
		}
		if Overlaps(o.StartsAt, o.EndsAt, startsAt, endsAt) {
			return true
		}
	}
	return false
}

func (m *memRepo) HasVenueConflict(_ context.Context, venueID string, startsAt, endsAt time.Time, excludeEventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasOverlapLocked(venueID, startsAt, endsAt, excludeEventID), nil
}

func (m *memRepo) SubmitEventTx(_ context.Context, id string) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, repo.ErrEventNotFound
	}
	e.Conflict = m.hasOverlapLocked(e.VenueID, e.StartsAt, e.EndsAt, id)
	e.Status = model.StatusSubmitted
	e.UpdatedAt = time.Now()
	cp := *e
	return &cp, nil
}

func (m *memRepo) UpdateEventTx(_ context.Context, id string, patch repo.EventPatch, recomputeConflict bool) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, repo.ErrEventNotFound
	}
	if patch.Title != nil {
		e.Title = *patch.Title
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.GroupID != nil {
		e.GroupID = *patch.GroupID
	}
	if patch.VenueID != nil {
		e.VenueID = *patch.VenueID
	}
	if patch.StartsAt != nil {
		e.StartsAt = *patch.StartsAt
	}
	if patch.EndsAt != nil {
		e.EndsAt = *patch.EndsAt
	}
	if patch.ExpectedAttendance != nil {
		e.ExpectedAttendance = *patch.ExpectedAttendance
	}
	if patch.Visibility != nil {
		e.Visibility = *patch.Visibility
	}
	if recomputeConflict {
		e.Conflict = m.hasOverlapLocked(e.VenueID, e.StartsAt, e.EndsAt, id)
	}
	e.UpdatedAt = time.Now()
	cp := *e
	return &cp, nil
}

func (m *memRepo) DecideEventTx(_ context.Context, id string, status model.Status, visibility model.Visibility) (*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, repo.ErrEventNotFound
	}
	e.Status = status
	e.Visibility = visibility
	e.UpdatedAt = time.Now()
	cp := *e
	return &cp, nil
}

func (m *memRepo) DeleteEventCascadeTx(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return repo.ErrEventNotFound
	}
	for esID, es := range m.eventServices {
		if es.EventID == id {
			delete(m.eventServices, esID)
		}
	}
	for aID, a := range m.attachments {
		if a.EventID == id {
			delete(m.attachments, aID)
		}
	}
	delete(m.events, id)
	return nil
}

func (m *memRepo) ListEventsByCreator(_ context.Context, creatorID string) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.events {
		if e.CreatedByID == creatorID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memRepo) ListEventsByStatus(_ context.Context, status model.Status) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Event
	for _, e := range m.events {
		if e.Status == status {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memRepo) CreateEventService(_ context.Context, es *model.EventService) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if es.ID == "" {
		es.ID = m.nextID("es")
	}
	es.CreatedAt = time.Now()
	cp := *es
	m.eventServices[es.ID] = &cp
	return nil
}

func (m *memRepo) ListEventServices(_ context.Context, eventID string) ([]model.EventService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EventService
	for _, es := range m.eventServices {
		if es.EventID == eventID {
			out = append(out, *es)
		}
	}
	return out, nil
}

func (m *memRepo) MarkEventServiceNotified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	es, ok := m.eventServices[id]
	if !ok {
		return repo.ErrServiceNotFound
	}
	es.Notified = true
	return nil
}

func (m *memRepo) CreateAttachment(_ context.Context, a *model.Attachment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = m.nextID("att")
	}
	a.CreatedAt = time.Now()
	cp := *a
	m.attachments[a.ID] = &cp
	return nil
}

func (m *memRepo) ListAttachments(_ context.Context, eventID string) ([]model.Attachment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Attachment
	for _, a := range m.attachments {
		if a.EventID == eventID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memRepo) ListGroups(_ context.Context) ([]model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Group
	for _, g := range m.groups {
		out = append(out, *g)
	}
	return out, nil
}

func (m *memRepo) GetGroupByID(_ context.Context, id string) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, repo.ErrGroupNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *memRepo) CreateGroup(_ context.Context, g *model.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == "" {
		g.ID = m.nextID("grp")
	}
	cp := *g
	m.groups[g.ID] = &cp
	return nil
}

func (m *memRepo) UpdateGroup(_ context.Context, id string, name, convenerEmail *string) (*model.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, repo.ErrGroupNotFound
	}
	if name != nil {
		g.Name = *name
	}
	if convenerEmail != nil {
		g.ConvenerEmail = *convenerEmail
	}
	cp := *g
	return &cp, nil
}

func (m *memRepo) DeleteGroup(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.groups[id]; !ok {
		return repo.ErrGroupNotFound
	}
	for _, e := range m.events {
		if e.GroupID == id {
			return repo.ErrGroupInUse
		}
	}
	delete(m.groups, id)
	return nil
}

func (m *memRepo) ListVenues(_ context.Context) ([]model.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Venue
	for _, v := range m.venues {
		out = append(out, *v)
	}
	return out, nil
}

func (m *memRepo) GetVenueByID(_ context.Context, id string) (*model.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.venues[id]
	if !ok {
		return nil, repo.ErrVenueNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memRepo) CreateVenue(_ context.Context, v *model.Venue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID == "" {
		v.ID = m.nextID("ven")
	}
	cp := *v
	m.venues[v.ID] = &cp
	return nil
}

func (m *memRepo) UpdateVenue(_ context.Context, id string, name *string, capacity *int) (*model.Venue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.venues[id]
	if !ok {
		return nil, repo.ErrVenueNotFound
	}
	if name != nil {
		v.Name = *name
	}
	if capacity != nil {
		v.Capacity = *capacity
	}
	cp := *v
	return &cp, nil
}

func (m *memRepo) DeleteVenue(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.venues[id]; !ok {
		return repo.ErrVenueNotFound
	}
	for _, e := range m.events {
		if e.VenueID == id {
			return repo.ErrVenueInUse
		}
	}
	delete(m.venues, id)
	return nil
}

func (m *memRepo) ListServices(_ context.Context) ([]model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Service
	for _, s := range m.services {
		out = append(out, *s)
	}
	return out, nil
}

func (m *memRepo) GetServiceByKey(_ context.Context, key string) (*model.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.services {
		if s.Key == key {
			cp := *s
			return &cp, nil
		}
	}
	return nil, repo.ErrServiceNotFound
}

func (m *memRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) ListUsers(_ context.Context) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, u := range m.users {
		out = append(out, *u)
	}
	return out, nil
}

func (m *memRepo) UpsertUserRole(_ context.Context, email string, role model.Role, name string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u.Role = role
			if name != "" {
				u.Name = name
			}
			cp := *u
			return &cp, nil
		}
	}
	u := &model.User{ID: m.nextID("usr"), Email: email, Name: name, Role: role}
	m.users[u.ID] = u
	cp := *u
	return &cp, nil
}

func (m *memRepo) SetMagicToken(_ context.Context, email, token string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u.MagicToken = token
			u.TokenExpires = &expires
			return nil
		}
	}
	u := &model.User{ID: m.nextID("usr"), Email: email, Role: model.RoleStudent, MagicToken: token, TokenExpires: &expires}
	m.users[u.ID] = u
	return nil
}

func (m *memRepo) ConsumeMagicTokenTx(_ context.Context, token string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.MagicToken == token && u.TokenExpires != nil && u.TokenExpires.After(time.Now()) {
			u.MagicToken = ""
			u.TokenExpires = nil
			cp := *u
			return &cp, nil
		}
	}
	return nil, repo.ErrInvalidToken
}

func (m *memRepo) CreateSession(_ context.Context, s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.Token] = &cp
	return nil
}

func (m *memRepo) GetSessionUser(_ context.Context, token string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, repo.ErrSessionNotFound
	}
	u, ok := m.users[s.UserID]
	if !ok {
		return nil, repo.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) DeleteSession(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *memRepo) PurgeExpiredAuth(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	for token, s := range m.sessions {
		if !s.ExpiresAt.After(now) {
			delete(m.sessions, token)
			purged++
		}
	}
	return purged, nil
}

func (m *memRepo) SeedTx(ctx context.Context, seed repo.Seed) error {
	for _, u := range seed.Users {
		if _, err := m.UpsertUserRole(ctx, u.Email, u.Role, u.Name); err != nil {
			return err
		}
	}
	for _, g := range seed.Groups {
		if err := m.CreateGroup(ctx, &model.Group{Name: g.Name, ConvenerEmail: g.ConvenerEmail}); err != nil {
			return err
		}
	}
	for _, v := range seed.Venues {
		if err := m.CreateVenue(ctx, &model.Venue{Name: v.Name, Capacity: v.Capacity}); err != nil {
			return err
		}
	}
	for _, s := range seed.Services {
		m.mu.Lock()
		svc := &model.Service{ID: m.nextID("svc"), Key: s.Key, Name: s.Name, NotifyEmail: s.NotifyEmail}
		m.services[svc.ID] = svc
		m.mu.Unlock()
	}
	return nil
}

func (m *memRepo) MigrateUp(string) error   { return nil }
func (m *memRepo) MigrateDown(string) error { return nil }
