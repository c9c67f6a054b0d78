// Package apperrors holds the error taxonomy shared by every layer. Transport code
// maps these to status codes; nothing below the handlers knows about HTTP.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means there is no usable principal.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials is the only login failure. Unknown email, inactive
	// account and wrong password all collapse into it.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrRoleMismatch       = errors.New("role mismatch")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
)

// Reason codes attached to denials. They are written to logs only.
const (
	ReasonAdminOnly         = "admin_only"
	ReasonNotAssignedDoctor = "not_assigned_doctor"
	ReasonNotSupervisor     = "not_supervising_senior"
	ReasonNotUploader       = "not_file_uploader"
	ReasonPrivilegedField   = "privileged_field"
	ReasonRoleNotPermitted  = "role_not_permitted"
	ReasonUnknownRole       = "unknown_role"
	ReasonMissingTarget     = "missing_target"
	ReasonUnknownAction     = "unknown_action"
)

// DenyError is a Forbidden outcome with the reason it was produced.
type DenyError struct {
	Action string
	Reason string
}

func (e *DenyError) Error() string {
	return fmt.Sprintf("forbidden: %s denied (%s)", e.Action, e.Reason)
}

func (e *DenyError) Is(target error) bool {
	return target == ErrForbidden
}

func Deny(action, reason string) *DenyError {
	return &DenyError{Action: action, Reason: reason}
}

// DenyReason extracts the reason code from err, if it carries one.
func DenyReason(err error) (string, bool) {
	var de *DenyError
	if errors.As(err, &de) {
		return de.Reason, true
	}
	return "", false
}

func NotFound(what string) error {
	return fmt.Errorf("%s %w", what, ErrNotFound)
}

func RoleMismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrRoleMismatch, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
