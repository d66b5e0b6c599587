package booking

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"venuebook/internal/auth"
	"venuebook/internal/model"
	"venuebook/internal/repo"
)

// Attachment policy, matching the upload layer: small images only.
const (
	MaxAttachmentBytes = 10 << 20
	MaxAttachmentsPer  = 4
)

var allowedMimes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/jpg":  true,
}

// Notifier publishes fire-and-forget notification messages. Satisfied by
// the rabbit client; failures are logged and never fail a transition.
type Notifier interface {
	Publish(message []byte, delaySeconds int) error
}

// NotificationMessage rides the queue to the consumer worker, which turns
// it into mail.
type NotificationMessage struct {
	Kind             string `json:"kind"` // submitted | approved | declined | service_request
	EventID          string `json:"event_id"`
	EventTitle       string `json:"event_title"`
	Recipient        string `json:"recipient,omitempty"`
	ServiceRequestID string `json:"service_request_id,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

// Controller owns the event lifecycle state machine. Every operation takes
// the acting identity explicitly and checks the authorization policy before
// touching the store.
type Controller struct {
	repo repo.Repository
	log  *zerolog.Logger
	nt   Notifier

	adminInbox string // recipient for new-submission notifications
}

func NewController(r repo.Repository, log *zerolog.Logger, nt Notifier, adminInbox string) *Controller {
	return &Controller{repo: r, log: log, nt: nt, adminInbox: adminInbox}
}

type ServiceRequestInput struct {
	ServiceKey string
	Notes      string
}

type CreateEventInput struct {
	Title              string
	Description        string
	GroupID            string
	VenueID            string
	StartsAt           time.Time
	EndsAt             time.Time
	ExpectedAttendance int
	Services           []ServiceRequestInput
}

func validWindow(startsAt, endsAt time.Time) error {
	if startsAt.IsZero() || endsAt.IsZero() {
		return fmt.Errorf("%w: starts_at and ends_at are required", ErrValidation)
	}
	if !startsAt.Before(endsAt) {
		return fmt.Errorf("%w: ends_at must be after starts_at", ErrValidation)
	}
	return nil
}

// CreateEvent creates a draft with a freshly computed advisory conflict
// flag. The flag never blocks creation.
func (c *Controller) CreateEvent(ctx context.Context, actor model.Actor, in CreateEventInput) (*model.Event, error) {
	if !auth.Allow(actor, auth.ActionCreateEvent, "", "") {
		return nil, fmt.Errorf("%w: create event", ErrForbidden)
	}
	if in.Title == "" || in.GroupID == "" || in.VenueID == "" {
		return nil, fmt.Errorf("%w: title, group_id and venue_id are required", ErrValidation)
	}
	if err := validWindow(in.StartsAt, in.EndsAt); err != nil {
		return nil, err
	}
	if in.ExpectedAttendance < 0 {
		return nil, fmt.Errorf("%w: expected_attendance must not be negative", ErrValidation)
	}

	if _, err := c.repo.GetGroupByID(ctx, in.GroupID); err != nil {
		return nil, wrapStoreErr(err)
	}
	if _, err := c.repo.GetVenueByID(ctx, in.VenueID); err != nil {
		return nil, wrapStoreErr(err)
	}

	conflict, err := c.repo.HasVenueConflict(ctx, in.VenueID, in.StartsAt, in.EndsAt, "")
	if err != nil {
		return nil, err
	}

	e := &model.Event{
		Title:              in.Title,
		Description:        in.Description,
		GroupID:            in.GroupID,
		VenueID:            in.VenueID,
		StartsAt:           in.StartsAt,
		EndsAt:             in.EndsAt,
		ExpectedAttendance: in.ExpectedAttendance,
		Status:             model.StatusDraft,
		Visibility:         model.VisibilityPrivate,
		Conflict:           conflict,
		CreatedByID:        actor.ID,
	}
	if err := c.repo.CreateEvent(ctx, e); err != nil {
		return nil, err
	}

	for _, sr := range in.Services {
		svc, err := c.repo.GetServiceByKey(ctx, sr.ServiceKey)
		if err != nil {
			return nil, wrapStoreErr(err)
		}
		es := &model.EventService{EventID: e.ID, ServiceID: svc.ID, Notes: sr.Notes}
		if err := c.repo.CreateEventService(ctx, es); err != nil {
			return nil, err
		}
	}

	c.log.Info().Str("event_id", e.ID).Bool("conflict", conflict).Msg("event created")
	return e, nil
}

// SubmitEvent moves a draft (or a declined event being resubmitted) to
// submitted, recomputing the conflict flag atomically with the status write.
func (c *Controller) SubmitEvent(ctx context.Context, actor model.Actor, id string) (*model.Event, error) {
	e, err := c.repo.GetEventByID(ctx, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !auth.Allow(actor, auth.ActionSubmitEvent, e.CreatedByID, e.Status) {
		return nil, fmt.Errorf("%w: submit event", ErrForbidden)
	}
	if e.Status != model.StatusDraft && e.Status != model.StatusDeclined {
		return nil, fmt.Errorf("%w: cannot submit event in status %s", ErrInvalidState, e.Status)
	}

	updated, err := c.repo.SubmitEventTx(ctx, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	c.notify(NotificationMessage{
		Kind:       "submitted",
		EventID:    updated.ID,
		EventTitle: updated.Title,
		Recipient:  c.adminInbox,
	})
	c.notifyServiceCrews(ctx, updated)

	c.log.Info().Str("event_id", id).Bool("conflict", updated.Conflict).Msg("event submitted")
	return updated, nil
}

// DecideEvent applies an administrator decision to a submitted event.
// Approval publishes the event; decline forces it private.
func (c *Controller) DecideEvent(ctx context.Context, actor model.Actor, id string, approve bool) (*model.Event, error) {
	if !auth.Allow(actor, auth.ActionDecideEvent, "", "") {
		return nil, fmt.Errorf("%w: decide event", ErrForbidden)
	}
	e, err := c.repo.GetEventByID(ctx, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if e.Status != model.StatusSubmitted {
		return nil, fmt.Errorf("%w: cannot decide event in status %s", ErrInvalidState, e.Status)
	}

	status, visibility := model.StatusDeclined, model.VisibilityPrivate
	if approve {
		status, visibility = model.StatusApproved, model.VisibilityPublic
	}

	updated, err := c.repo.DecideEventTx(ctx, id, status, visibility)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	if creator, err := c.repo.GetUserByID(ctx, updated.CreatedByID); err == nil {
		c.notify(NotificationMessage{
			Kind:       string(status),
			EventID:    updated.ID,
			EventTitle: updated.Title,
			Recipient:  creator.Email,
		})
	}

	c.log.Info().Str("event_id", id).Str("status", string(status)).Msg("event decided")
	return updated, nil
}

// EditEvent applies a partial update. Unspecified fields are unchanged; a
// patch touching the venue or the window recomputes the conflict flag in the
// same transaction as the field update.
func (c *Controller) EditEvent(ctx context.Context, actor model.Actor, id string, patch repo.EventPatch) (*model.Event, error) {
	e, err := c.repo.GetEventByID(ctx, id)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !auth.Allow(actor, auth.ActionEditEvent, e.CreatedByID, e.Status) {
		return nil, fmt.Errorf("%w: edit event", ErrForbidden)
	}
	if patch.Visibility != nil && !actor.Role.IsAdmin() {
		return nil, fmt.Errorf("%w: only administrators may change visibility", ErrForbidden)
	}

	startsAt, endsAt := e.StartsAt, e.EndsAt
	if patch.StartsAt != nil {
		startsAt = *patch.StartsAt
	}
	if patch.EndsAt != nil {
		endsAt = *patch.EndsAt
	}
	if err := validWindow(startsAt, endsAt); err != nil {
		return nil, err
	}
	if patch.ExpectedAttendance != nil && *patch.ExpectedAttendance < 0 {
		return nil, fmt.Errorf("%w: expected_attendance must not be negative", ErrValidation)
	}
	if patch.GroupID != nil {
		if _, err := c.repo.GetGroupByID(ctx, *patch.GroupID); err != nil {
			return nil, wrapStoreErr(err)
		}
	}
	if patch.VenueID != nil {
		if _, err := c.repo.GetVenueByID(ctx, *patch.VenueID); err != nil {
			return nil, wrapStoreErr(err)
		}
	}

	updated, err := c.repo.UpdateEventTx(ctx, id, patch, patch.TouchesSchedule())
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return updated, nil
}

// DeleteEvent removes the event and all of its service requests and
// attachments as one atomic unit.
func (c *Controller) DeleteEvent(ctx context.Context, actor model.Actor, id string) error {
	e, err := c.repo.GetEventByID(ctx, id)
	if err != nil {
		return wrapStoreErr(err)
	}
	if !auth.Allow(actor, auth.ActionDeleteEvent, e.CreatedByID, e.Status) {
		return fmt.Errorf("%w: delete event", ErrForbidden)
	}
	if err := c.repo.DeleteEventCascadeTx(ctx, id); err != nil {
		return wrapStoreErr(err)
	}
	c.log.Info().Str("event_id", id).Msg("event deleted")
	return nil
}

// AttachService associates a support offering with the event. Pre-approval
// only, by convention.
func (c *Controller) AttachService(ctx context.Context, actor model.Actor, eventID, serviceKey, notes string) (*model.EventService, error) {
	e, err := c.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !auth.Allow(actor, auth.ActionAttachService, e.CreatedByID, e.Status) {
		return nil, fmt.Errorf("%w: attach service", ErrForbidden)
	}
	svc, err := c.repo.GetServiceByKey(ctx, serviceKey)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	es := &model.EventService{EventID: eventID, ServiceID: svc.ID, Notes: notes}
	if err := c.repo.CreateEventService(ctx, es); err != nil {
		return nil, err
	}
	return es, nil
}

// AttachFile records upload metadata after the transport has stored the
// bytes. Only small images pass the allow-list.
func (c *Controller) AttachFile(ctx context.Context, actor model.Actor, eventID, filename, mime string, sizeBytes int64) (*model.Attachment, error) {
	e, err := c.repo.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	if !auth.Allow(actor, auth.ActionAttachFile, e.CreatedByID, e.Status) {
		return nil, fmt.Errorf("%w: attach file", ErrForbidden)
	}
	if !allowedMimes[mime] {
		return nil, fmt.Errorf("%w: only JPG/JPEG/PNG allowed", ErrValidation)
	}
	if sizeBytes <= 0 || sizeBytes > MaxAttachmentBytes {
		return nil, fmt.Errorf("%w: file size out of bounds", ErrValidation)
	}
	a := &model.Attachment{EventID: eventID, Filename: filename, Mime: mime, SizeBytes: sizeBytes}
	if err := c.repo.CreateAttachment(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (c *Controller) ListMine(ctx context.Context, actor model.Actor) ([]model.Event, error) {
	return c.repo.ListEventsByCreator(ctx, actor.ID)
}

func (c *Controller) ListInbox(ctx context.Context, actor model.Actor) ([]model.Event, error) {
	if !auth.Allow(actor, auth.ActionViewInbox, "", "") {
		return nil, fmt.Errorf("%w: view inbox", ErrForbidden)
	}
	return c.repo.ListEventsByStatus(ctx, model.StatusSubmitted)
}

// ListApproved is the public listing: approved events only, regardless of
// caller. Also feeds the calendar export.
func (c *Controller) ListApproved(ctx context.Context) ([]model.Event, error) {
	return c.repo.ListEventsByStatus(ctx, model.StatusApproved)
}

func (c *Controller) notify(msg NotificationMessage) {
	if c.nt == nil || msg.Recipient == "" {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal notification")
		return
	}
	if err := c.nt.Publish(payload, 0); err != nil {
		c.log.Warn().Err(err).Str("kind", msg.Kind).Msg("failed to publish notification")
	}
}

// notifyServiceCrews queues one message per not-yet-notified service request
// so the worker can mail the crew and flip the notified flag.
func (c *Controller) notifyServiceCrews(ctx context.Context, e *model.Event) {
	requests, err := c.repo.ListEventServices(ctx, e.ID)
	if err != nil {
		c.log.Warn().Err(err).Str("event_id", e.ID).Msg("failed to list service requests for notification")
		return
	}
	services, err := c.repo.ListServices(ctx)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to list services for notification")
		return
	}
	byID := make(map[string]model.Service, len(services))
	for _, s := range services {
		byID[s.ID] = s
	}
	for _, req := range requests {
		if req.Notified {
			continue
		}
		svc, ok := byID[req.ServiceID]
		if !ok || svc.NotifyEmail == "" {
			continue
		}
		c.notify(NotificationMessage{
			Kind:             "service_request",
			EventID:          e.ID,
			EventTitle:       e.Title,
			Recipient:        svc.NotifyEmail,
			ServiceRequestID: req.ID,
			Notes:            req.Notes,
		})
	}
}

// wrapStoreErr translates repo sentinels into the controller's error kinds.
func wrapStoreErr(err error) error {
	switch err {
	case repo.ErrEventNotFound, repo.ErrGroupNotFound, repo.ErrVenueNotFound,
		repo.ErrServiceNotFound, repo.ErrUserNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, err)
	case repo.ErrGroupInUse, repo.ErrVenueInUse:
		return fmt.Errorf("%w: %s", ErrInUse, err)
	}
	return err
}
