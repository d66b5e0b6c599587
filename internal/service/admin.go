package service

import (
	"errors"
	"fmt"

	"github.com/wb-go/wbf/ginext"

	"venuebook/internal/auth"
	"venuebook/internal/dto"
	"venuebook/internal/model"
	"venuebook/internal/repo"
	"venuebook/pkg/validator"
)

// Auth handlers: the magic-link flow from the identity provider.

func (s *service) MagicRequest(ctx *ginext.Context) {
	var req dto.MagicLinkRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	if err := s.sessions.RequestMagicLink(ctx.Request.Context(), req.Email); err != nil {
		s.log.Error().Err(err).Msg("failed to issue magic link")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, nil)
}

func (s *service) MagicConsume(ctx *ginext.Context) {
	var req dto.MagicConsumeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if req.Token == "" {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Token required")
		return
	}

	user, sessionToken, err := s.sessions.Consume(ctx.Request.Context(), req.Token)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidToken) {
			dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid or expired token")
			return
		}
		s.log.Error().Err(err).Msg("failed to consume magic token")
		dto.InternalServerError(ctx)
		return
	}
	dto.SuccessResponse(ctx, map[string]any{"user": user, "token": sessionToken})
}

func (s *service) Logout(ctx *ginext.Context) {
	token := ctx.GetHeader("Authorization")
	if len(token) > 7 {
		token = token[7:] // strip "Bearer "
	}
	if token != "" {
		if err := s.sessions.Logout(ctx.Request.Context(), token); err != nil {
			s.log.Warn().Err(err).Msg("failed to drop session")
		}
	}
	dto.SuccessResponse(ctx, nil)
}

func (s *service) Me(ctx *ginext.Context) {
	user, ok := ctx.Get("user")
	if !ok {
		dto.SuccessResponse(ctx, map[string]any{"user": nil})
		return
	}
	dto.SuccessResponse(ctx, map[string]any{"user": user})
}

// Admin handlers. Role management is superadmin-only; group and venue CRUD
// follow the same policy table the controller consults.

func (s *service) requirePolicy(ctx *ginext.Context, action auth.Action) (model.Actor, bool) {
	actor, ok := s.actor(ctx)
	if !ok {
		return model.Actor{}, false
	}
	if !auth.Allow(actor, action, "", "") {
		dto.ForbiddenError(ctx, "Insufficient role")
		return model.Actor{}, false
	}
	return actor, true
}

func (s *service) ListUsers(ctx *ginext.Context) {
	if _, ok := s.requirePolicy(ctx, auth.ActionManageUsers); !ok {
		return
	}
	users, err := s.repo.ListUsers(ctx.Request.Context())
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, users)
}

func (s *service) UpsertUserRole(ctx *ginext.Context) {
	if _, ok := s.requirePolicy(ctx, auth.ActionManageRoles); !ok {
		return
	}

	var req dto.RoleUpsertRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, err.Error())
		return
	}

	user, err := s.repo.UpsertUserRole(ctx.Request.Context(), req.Email, role, req.Name)
	if err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, user)
}

func (s *service) ListGroups(ctx *ginext.Context) {
	if _, ok := s.requirePolicy(ctx, auth.ActionManageGroups); !ok {
		return
	}
	s.ListGroupsRef(ctx)
}

func (s *service) CreateGroup(ctx *ginext.Context) {
	if _, ok := s.requirePolicy(ctx, auth.ActionManageGroups); !ok {
		return
	}

	var req dto.CreateGroupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	g := &model.Group{Name: req.Name, ConvenerEmail: req.ConvenerEmail}
	if err := s.repo.CreateGroup(ctx.Request.Context(), g); err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessCreatedResponse(ctx, g)
}

func (s *service) PatchGroup(ctx *ginext.Context) {
	if _, ok := s.requirePolicy(ctx, auth.ActionManageGroups); !ok {
		return
	}

	var req dto.PatchGroupRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}

	g, err := s.repo.UpdateGroup(ctx.Request.Context(), ctx.Param("id"), req.Name, req.ConvenerEmail)
	if err != nil {
		s.adminRepoErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, g)
}

func (s *service) DeleteGroup(ctx *ginext.Context) {
	if _, ok := s.requirePolicy(ctx, auth.ActionManageGroups); !ok {
		return
	}
	if err := s.repo.DeleteGroup(ctx.Request.Context(), ctx.Param("id")); err != nil {
		s.adminRepoErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, nil)
}

func (s *service) ListVenues(ctx *ginext.Context) {
	if _, ok := s.requirePolicy(ctx, auth.ActionManageVenues); !ok {
		return
	}
	s.ListVenuesRef(ctx)
}

func (s *service) CreateVenue(ctx *ginext.Context) {
	if _, ok := s.requirePolicy(ctx, auth.ActionManageVenues); !ok {
		return
	}

	var req dto.CreateVenueRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if verr := validator.Validate(ctx, req); verr != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, fmt.Sprintf("%v", verr))
		return
	}

	v := &model.Venue{Name: req.Name, Capacity: req.Capacity}
	if err := s.repo.CreateVenue(ctx.Request.Context(), v); err != nil {
		s.respondErr(ctx, err)
		return
	}
	dto.SuccessCreatedResponse(ctx, v)
}

func (s *service) PatchVenue(ctx *ginext.Context) {
	if _, ok := s.requirePolicy(ctx, auth.ActionManageVenues); !ok {
		return
	}

	var req dto.PatchVenueRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	if req.Capacity != nil && *req.Capacity < 0 {
		dto.BadResponseError(ctx, dto.FieldIncorrect, "Capacity must not be negative")
		return
	}

	v, err := s.repo.UpdateVenue(ctx.Request.Context(), ctx.Param("id"), req.Name, req.Capacity)
	if err != nil {
		s.adminRepoErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, v)
}

func (s *service) DeleteVenue(ctx *ginext.Context) {
	if _, ok := s.requirePolicy(ctx, auth.ActionManageVenues); !ok {
		return
	}
	if err := s.repo.DeleteVenue(ctx.Request.Context(), ctx.Param("id")); err != nil {
		s.adminRepoErr(ctx, err)
		return
	}
	dto.SuccessResponse(ctx, nil)
}

// adminRepoErr maps raw repo sentinels for handlers that bypass the
// controller.
func (s *service) adminRepoErr(ctx *ginext.Context, err error) {
	switch {
	case errors.Is(err, repo.ErrGroupNotFound), errors.Is(err, repo.ErrVenueNotFound):
		dto.NotFoundError(ctx, err.Error())
	case errors.Is(err, repo.ErrGroupInUse), errors.Is(err, repo.ErrVenueInUse):
		dto.ResourceInUseError(ctx, err.Error())
	default:
		s.log.Error().Err(err).Msg("admin request failed")
		dto.InternalServerError(ctx)
	}
}
