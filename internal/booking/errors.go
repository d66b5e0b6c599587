package booking

import "errors"

// Error kinds returned by the controller. Handlers map these to stable
// response codes; everything else is treated as a storage failure.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state transition")
	ErrInUse        = errors.New("resource in use")
)
