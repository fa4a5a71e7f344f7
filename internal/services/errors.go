package services

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// ErrorKind classifies a failure of the invitation and membership workflows.
type ErrorKind string

const (
	KindUnauthorized         ErrorKind = "unauthorized"
	KindNotFound             ErrorKind = "not_found"
	KindProjectNotFound      ErrorKind = "project_not_found"
	KindAlreadyMember        ErrorKind = "already_member"
	KindInvalidTarget        ErrorKind = "invalid_target"
	KindInvitationExpired    ErrorKind = "invitation_expired"
	KindInvitationDeclined   ErrorKind = "invitation_declined"
	KindTransientStore       ErrorKind = "transient_store_failure"
	KindNotificationDelivery ErrorKind = "notification_delivery_failure"
)

// Error is the typed failure returned by services. Two errors are considered
// equal by errors.Is when their kinds match.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthorized         = &Error{Kind: KindUnauthorized, Message: "permission denied"}
	ErrNotFound             = &Error{Kind: KindNotFound, Message: "not found"}
	ErrProjectNotFound      = &Error{Kind: KindProjectNotFound, Message: "project not found"}
	ErrAlreadyMember        = &Error{Kind: KindAlreadyMember, Message: "already a member of this project"}
	ErrInvalidTarget        = &Error{Kind: KindInvalidTarget, Message: "invalid invitation target"}
	ErrInvitationExpired    = &Error{Kind: KindInvitationExpired, Message: "invitation has expired"}
	ErrInvitationDeclined   = &Error{Kind: KindInvitationDeclined, Message: "invitation was declined"}
	ErrTransientStore       = &Error{Kind: KindTransientStore, Message: "temporary storage failure, please retry"}
	ErrNotificationDelivery = &Error{Kind: KindNotificationDelivery, Message: "notification delivery failed"}
)

func newError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// KindOf extracts the kind of err, or "" if err is not a service error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether repeating the same call may succeed.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransientStore
}

// HTTPStatus maps err to the status code an API client should see.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound, KindProjectNotFound:
		return http.StatusNotFound
	case KindAlreadyMember, KindInvitationDeclined:
		return http.StatusConflict
	case KindInvalidTarget:
		return http.StatusBadRequest
	case KindInvitationExpired:
		return http.StatusGone
	case KindTransientStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// storeError classifies a persistence error. Typed errors pass through,
// a missing row becomes notFound and anything else is transient.
func storeError(err error, notFound *Error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return &Error{Kind: KindTransientStore, Message: ErrTransientStore.Message, Err: err}
}
