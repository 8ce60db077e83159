package api

import "errors"

// Sentinel error kinds for the identity core. Services and repositories wrap
// these with fmt.Errorf("...: %w", Err...) so handlers can translate them into
// transport responses with errors.Is.
var (
	// ErrNotFound indicates a referenced user (or other record) is absent.
	ErrNotFound = errors.New("requested item not found")
	// ErrConflict indicates a uniqueness violation (e.g. email already registered).
	ErrConflict = errors.New("item already exists or conflict")
	// ErrUnauthenticated indicates no credential was supplied at all.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrAuthTokenInvalid indicates a credential was supplied but is malformed,
	// expired, or carries a bad signature.
	ErrAuthTokenInvalid = errors.New("invalid or expired token")
	// ErrEmailNotVerified indicates the bound identity has not verified its email.
	ErrEmailNotVerified = errors.New("email address not verified")
	// ErrForbidden indicates the bound identity lacks the required role.
	ErrForbidden = errors.New("action forbidden")
	// ErrDataInvalid indicates a malformed or semantically invalid field value.
	ErrDataInvalid = errors.New("invalid data")
	// ErrInternal indicates an unexpected persistence or hashing failure.
	ErrInternal = errors.New("internal system error")
)

// Machine-readable error codes surfaced alongside HTTP statuses. Stable: the
// router translation in ErrorCode is the only place new codes are introduced.
const (
	CodeUnauthorized     = "unauthorized"
	CodeAuthTokenInvalid = "auth_token_invalid"
	CodeEmailNotVerified = "email_not_verified"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeDataInvalid      = "data_invalid"
	CodeSystemError      = "system_error"
)

// ErrorCode maps an error to its machine-readable code and HTTP status.
// Unknown errors are reported as system errors without leaking detail.
func ErrorCode(err error) (code string, status int) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return CodeUnauthorized, 401
	case errors.Is(err, ErrAuthTokenInvalid):
		return CodeAuthTokenInvalid, 401
	case errors.Is(err, ErrEmailNotVerified):
		return CodeEmailNotVerified, 403
	case errors.Is(err, ErrForbidden):
		return CodeForbidden, 403
	case errors.Is(err, ErrNotFound):
		return CodeNotFound, 404
	case errors.Is(err, ErrConflict):
		return CodeConflict, 409
	case errors.Is(err, ErrDataInvalid):
		return CodeDataInvalid, 400
	default:
		return CodeSystemError, 500
	}
}

// Response represents a generic API response for success or error messages.
type Response struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message,omitempty" example:"Operation successful"`
	Error   string `json:"error,omitempty" example:"Resource not found"`
	Code    string `json:"code,omitempty" example:"not_found"`
}
