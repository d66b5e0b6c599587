package dto

import (
	"time"

	"github.com/wb-go/wbf/ginext"
)

const (
	FieldIncorrect     = "FIELD_INCORRECT"
	AuthRequired       = "AUTH_REQUIRED"
	Forbidden          = "FORBIDDEN"
	NotFound           = "NOT_FOUND"
	InvalidState       = "INVALID_STATE"
	ResourceInUse      = "RESOURCE_IN_USE"
	ServiceUnavailable = "SERVICE_UNAVAILABLE"
	InternalError      = "Service is currently unavailable. Please try again later."
)

type ServiceRequestInput struct {
	ServiceKey string `json:"service_key" validate:"required"`
	Notes      string `json:"notes"`
}

type CreateEventRequest struct {
	Title              string                `json:"title" validate:"required,max=255"`
	Description        string                `json:"description"`
	GroupID            string                `json:"group_id" validate:"required"`
	VenueID            string                `json:"venue_id" validate:"required"`
	StartsAt           time.Time             `json:"starts_at" validate:"required"`
	EndsAt             time.Time             `json:"ends_at" validate:"required"`
	ExpectedAttendance int                   `json:"expected_attendance" validate:"gte=0"`
	Services           []ServiceRequestInput `json:"services"`
}

// EditEventRequest carries optional fields; absent fields stay unchanged.
type EditEventRequest struct {
	Title              *string    `json:"title"`
	Description        *string    `json:"description"`
	GroupID            *string    `json:"group_id"`
	VenueID            *string    `json:"venue_id"`
	StartsAt           *time.Time `json:"starts_at"`
	EndsAt             *time.Time `json:"ends_at"`
	ExpectedAttendance *int       `json:"expected_attendance"`
	Visibility         *string    `json:"visibility"`
}

type DecisionRequest struct {
	Decision string `json:"decision" validate:"required"`
}

type AttachServiceRequest struct {
	ServiceKey string `json:"service_key" validate:"required"`
	Notes      string `json:"notes"`
}

type MagicLinkRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type MagicConsumeRequest struct {
	Token string `json:"token" validate:"required"`
}

type RoleUpsertRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
	Name  string `json:"name"`
}

type CreateGroupRequest struct {
	Name          string `json:"name" validate:"required,max=255"`
	ConvenerEmail string `json:"convener_email"`
}

type PatchGroupRequest struct {
	Name          *string `json:"name"`
	ConvenerEmail *string `json:"convener_email"`
}

type CreateVenueRequest struct {
	Name     string `json:"name" validate:"required,max=255"`
	Capacity int    `json:"capacity" validate:"gte=0"`
}

type PatchVenueRequest struct {
	Name     *string `json:"name"`
	Capacity *int    `json:"capacity"`
}

type Response struct {
	Status string `json:"status"`
	Error  *Error `json:"error,omitempty"`
	Data   any    `json:"data,omitempty"`
}

type Error struct {
	Code string `json:"code"`
	Desc string `json:"desc"`
}

func BadResponseError(c *ginext.Context, code, desc string) {
	c.JSON(400, Response{
		Status: "error",
		Error:  &Error{Code: code, Desc: desc},
	})
}

func AuthRequiredError(c *ginext.Context) {
	c.JSON(401, Response{
		Status: "error",
		Error:  &Error{Code: AuthRequired, Desc: "Authentication required"},
	})
}

func ForbiddenError(c *ginext.Context, desc string) {
	c.JSON(403, Response{
		Status: "error",
		Error:  &Error{Code: Forbidden, Desc: desc},
	})
}

func NotFoundError(c *ginext.Context, desc string) {
	c.JSON(404, Response{
		Status: "error",
		Error:  &Error{Code: NotFound, Desc: desc},
	})
}

func InvalidStateError(c *ginext.Context, desc string) {
	c.JSON(409, Response{
		Status: "error",
		Error:  &Error{Code: InvalidState, Desc: desc},
	})
}

func ResourceInUseError(c *ginext.Context, desc string) {
	c.JSON(409, Response{
		Status: "error",
		Error:  &Error{Code: ResourceInUse, Desc: desc},
	})
}

func InternalServerError(c *ginext.Context) {
	c.JSON(500, Response{
		Status: "error",
		Error:  &Error{Code: ServiceUnavailable, Desc: InternalError},
	})
}

func SuccessResponse(c *ginext.Context, data any) {
	c.JSON(200, Response{Status: "ok", Data: data})
}

func SuccessCreatedResponse(c *ginext.Context, data any) {
	c.JSON(201, Response{Status: "ok", Data: data})
}
