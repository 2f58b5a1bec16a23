package apperror

import (
	"errors"
	"net/http"
)

// Kind is the stable, non-localized error identifier exposed to clients.
const (
	KindForbidden              = "forbidden"
	KindNotFound               = "not_found"
	KindUnauthorized           = "unauthorized"
	KindSlotTaken              = "slot_taken"
	KindAlreadyParticipant     = "already_participant"
	KindInvitationNotPending   = "invitation_not_pending"
	KindInvitationExpired      = "invitation_expired"
	KindCharacterSheetNotOwned = "character_sheet_not_owned"
	KindUnsupportedContentType = "unsupported_content_type"
	KindFileTooLarge           = "file_too_large"
	KindBulkAllFailed          = "bulk_all_failed"
	KindValidationError        = "validation_error"
	KindConflict               = "conflict"
	KindRateLimited            = "rate_limited"
	KindInternal               = "internal"
)

var (
	ErrNotFound               = &AppError{Kind: KindNotFound, Message: "resource not found"}
	ErrUnauthorized           = &AppError{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrForbidden              = &AppError{Kind: KindForbidden, Message: "forbidden"}
	ErrSlotTaken              = &AppError{Kind: KindSlotTaken, Message: "player slot is already taken"}
	ErrAlreadyParticipant     = &AppError{Kind: KindAlreadyParticipant, Message: "user already participates in this session"}
	ErrInvitationNotPending   = &AppError{Kind: KindInvitationNotPending, Message: "invitation is no longer pending"}
	ErrInvitationExpired      = &AppError{Kind: KindInvitationExpired, Message: "invitation has expired"}
	ErrCharacterSheetNotOwned = &AppError{Kind: KindCharacterSheetNotOwned, Message: "character sheet belongs to another user"}
	ErrUnsupportedContentType = &AppError{Kind: KindUnsupportedContentType, Message: "unsupported content type"}
	ErrFileTooLarge           = &AppError{Kind: KindFileTooLarge, Message: "file exceeds the size limit for its type"}
	ErrBulkAllFailed          = &AppError{Kind: KindBulkAllFailed, Message: "no item in the bulk request succeeded"}
	ErrConflict               = &AppError{Kind: KindConflict, Message: "state conflict"}
)

// AppError carries a stable kind plus a human-readable message. The kind is
// part of the API contract; the message is not.
type AppError struct {
	Kind    string
	Message string
	Fields  map[string]string
	Err     error
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on kind so sentinel comparisons work across wrapped copies.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an AppError with a custom message for the given kind.
func New(kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Validation builds a validation_error with per-field detail.
func Validation(message string, fields map[string]string) *AppError {
	return &AppError{Kind: KindValidationError, Message: message, Fields: fields}
}

// Wrap attaches an underlying cause to a kinded error.
func Wrap(kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the stable kind from any error; unknown errors are internal.
func KindOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// MapErrorToStatus maps error kinds to HTTP status codes.
func MapErrorToStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindSlotTaken, KindAlreadyParticipant, KindInvitationNotPending, KindConflict:
		return http.StatusConflict
	case KindInvitationExpired, KindCharacterSheetNotOwned, KindValidationError, KindBulkAllFailed:
		return http.StatusBadRequest
	case KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedContentType:
		return http.StatusUnsupportedMediaType
	case KindRateLimited:
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
