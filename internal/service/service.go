package service

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"venuebook/internal/booking"
	"venuebook/internal/dto"
	"venuebook/internal/ical"
	"venuebook/internal/model"
	"venuebook/internal/repo"
	"venuebook/internal/session"
	"venuebook/pkg/validator"
)

type Service interface {
	CreateEvent(ctx *ginext.Context)
	SubmitEvent(ctx *ginext.Context)
	DecideEvent(ctx *ginext.Context)
	EditEvent(ctx *ginext.Context)
	DeleteEvent(ctx *ginext.Context)
	AttachService(ctx *ginext.Context)
	AttachFile(ctx *ginext.Context)
	ListMine(ctx *ginext.Context)
	ListInbox(ctx *ginext.Context)
	ListApproved(ctx *ginext.Context)
	Calendar(ctx *ginext.Context)

	ListGroupsRef(ctx *ginext.Context)
	ListVenuesRef(ctx *ginext.Context)
	ListServicesRef(ctx *ginext.Context)

	MagicRequest(ctx *ginext.Context)
	MagicConsume(ctx *ginext.Context)
	Logout(ctx *ginext.Context)
	Me(ctx *ginext.Context)

	ListUsers(ctx *ginext.Context)
	UpsertUserRole(ctx *ginext.Context)
	ListGroups(ctx *ginext.Context)
	CreateGroup(ctx *ginext.Context)
	PatchGroup(ctx *ginext.Context)
	DeleteGroup(ctx *ginext.Context)
	ListVenues(ctx *ginext.Context)
	CreateVenue(ctx *ginext.Context)
	PatchVenue(ctx *ginext.Context)
	DeleteVenue(ctx *ginext.Context)
}

type service struct {
	ctrl     *booking.Controller
	repo     repo.Repository
	sessions *session.Manager
	feed     *ical.Feed
	log      *zerolog.Logger
}

func NewService(ctrl *booking.Controller, r repo.Repository, sessions *session.Manager, feed *ical.Feed, logger *zerolog.Logger) Service {
	return &service{
		ctrl:     ctrl,
		repo:     r,
		sessions: sessions,
		feed:     feed,
		log:      logger,
	}
}

func (s *service) actor(ctx *ginext.Context) (model.Actor, bool) {
	actor, ok := session.ActorFrom(ctx)
	if !ok {
		dto.AuthRequiredError(ctx)
	}
	return actor, ok
}

// respondErr maps controller error kinds onto the stable response codes.
func (s *service) respondErr(ctx *ginext.Context, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
	case errors.Is(err, booking.ErrNotFound):
		dto.NotFoundError(ctx, err.Error())
	case errors.Is(err, booking.ErrForbidden):
		dto.ForbiddenError(ctx, err.Error())
	case errors.Is(err, booking.ErrInvalidState):
		dto.InvalidStateError(ctx, err.Error())
	case errors.Is(err, booking.ErrInUse):
		dto.ResourceInUseError(ctx, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		dto.InternalServerError(ctx)
	}
}

func (s *service) CreateEvent(ctx *ginext.Context) {
	actor, ok := s.actor(ctx)
	if !ok {
		return
	}

	var req dto.CreateEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	in := booking.CreateEventInput{
		Title:              req.Title,
		Description:        req.Description,
		GroupID:            req.GroupID,
		VenueID:            req.VenueID,
		StartsAt:           req.StartsAt,
		EndsAt:             req.EndsAt,
		ExpectedAttendance: req.ExpectedAttendance,
	}
	for _, sr := range req.Services {
		in.Services = append(in.Services, booking.ServiceRequestInput{
			ServiceKey: sr.ServiceKey,
			Notes:      sr.Notes,
		})
	}

	event, err := s.ctrl.CreateEvent(ctx.Request.Context(), actor, in)
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessCreatedResponse(ctx, event)
}

func (s *service) SubmitEvent(ctx *ginext.Context) {
	actor, ok := s.actor(ctx)
	if !ok {
		return
	}
	event, err := s.ctrl.SubmitEvent(ctx.Request.Context(), actor, ctx.Param("id"))
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, event)
}

func (s *service) DecideEvent(ctx *ginext.Context) {
	actor, ok := s.actor(ctx)
	if !ok {
		return
	}

	var req dto.DecisionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if req.Decision != "approved" && req.Decision != "declined" {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Decision must be 'approved' or 'declined'")
		return
	}

	event, err := s.ctrl.DecideEvent(ctx.Request.Context(), actor, ctx.Param("id"), req.Decision == "approved")
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, event)
}

func (s *service) EditEvent(ctx *ginext.Context) {
	actor, ok := s.actor(ctx)
	if !ok {
		return
	}

	var req dto.EditEventRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	patch := repo.EventPatch{
		Title:              req.Title,
		Description:        req.Description,
		GroupID:            req.GroupID,
		VenueID:            req.VenueID,
		StartsAt:           req.StartsAt,
		EndsAt:             req.EndsAt,
		ExpectedAttendance: req.ExpectedAttendance,
	}
	if req.Visibility != nil {
		v := model.Visibility(*req.Visibility)
		if v != model.VisibilityPrivate && v != model.VisibilityPublic {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Visibility must be 'private' or 'public'")
			return
		}
		patch.Visibility = &v
	}

	event, err := s.ctrl.EditEvent(ctx.Request.Context(), actor, ctx.Param("id"), patch)
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, event)
}

func (s *service) DeleteEvent(ctx *ginext.Context) {
	actor, ok := s.actor(ctx)
	if !ok {
		return
	}
	if err := s.ctrl.DeleteEvent(ctx.Request.Context(), actor, ctx.Param("id")); err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, nil)
}

func (s *service) AttachService(ctx *ginext.Context) {
	actor, ok := s.actor(ctx)
	if !ok {
		return
	}

	var req dto.AttachServiceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	es, err := s.ctrl.AttachService(ctx.Request.Context(), actor, ctx.Param("id"), req.ServiceKey, req.Notes)
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessCreatedResponse(ctx, es)
}

// AttachFile accepts multipart image uploads, stores them on disk and
// registers the captured metadata through the controller.
func (s *service) AttachFile(ctx *ginext.Context) {
	actor, ok := s.actor(ctx)
	if !ok {
		return
	}

	form, err := ctx.MultipartForm()
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Multipart form expected")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "No files supplied")
		return
	}
	if len(files) > booking.MaxAttachmentsPer {
		dto.BadResponseError(ctx, dto.FieldIncorrect,
			fmt.Sprintf("At most %d files per request", booking.MaxAttachmentsPer))
		return
	}

	var recs []*model.Attachment
	for _, f := range files {
		a, err := s.ctrl.AttachFile(ctx.Request.Context(), actor, ctx.Param("id"),
			f.Filename, f.Header.Get("Content-Type"), f.Size)
		if err != nil {
			s.respondErr(ctx, err)
			return
		}
		if err := ctx.SaveUploadedFile(f, "uploads/"+a.ID+"_"+f.Filename); err != nil {
			s.log.Error().Err(err).Str("attachment_id", a.ID).Msg("failed to store upload")
			dto.InternalServerError(ctx)
			return
		}
		recs = append(recs, a)
	}
	dto.SuccessCreatedResponse(ctx, recs)
}

func (s *service) ListMine(ctx *ginext.Context) {
	actor, ok := s.actor(ctx)
	if !ok {
		return
	}
	events, err := s.ctrl.ListMine(ctx.Request.Context(), actor)
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, events)
}

func (s *service) ListInbox(ctx *ginext.Context) {
	actor, ok := s.actor(ctx)
	if !ok {
		return
	}
	events, err := s.ctrl.ListInbox(ctx.Request.Context(), actor)
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, events)
}

func (s *service) ListApproved(ctx *ginext.Context) {
	events, err := s.ctrl.ListApproved(ctx.Request.Context())
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, events)
}

// Calendar serves the public ICS feed; no authentication.
func (s *service) Calendar(ctx *ginext.Context) {
	body, err := s.feed.Render(ctx.Request.Context())
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	ctx.Data(200, "text/calendar", []byte(body))
}

func (s *service) ListGroupsRef(ctx *ginext.Context) {
	groups, err := s.repo.ListGroups(ctx.Request.Context())
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, groups)
}

func (s *service) ListVenuesRef(ctx *ginext.Context) {
	venues, err := s.repo.ListVenues(ctx.Request.Context())
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, venues)
}

func (s *service) ListServicesRef(ctx *ginext.Context) {
	services, err := s.repo.ListServices(ctx.Request.Context())
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, services)
}
