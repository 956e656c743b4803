// Package shared holds the error kinds and domain events used by every
// DriveHub domain package. It imports only the standard library.
package shared

import (
	"errors"
	"fmt"
)

// Error kinds. Domain errors carry one of these so callers can branch with
// errors.Is without knowing the concrete error.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("empty value")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")

	ErrForbidden = errors.New("forbidden")

	// ErrConcurrentModification means a transaction lost a race and may be re-run.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// DomainError is an error of a known kind raised by a domain operation.
type DomainError struct {
	Domain  string // "student", "lesson", "rating", ...
	Op      string
	Kind    error
	Message string
	Err     error // cause, optional
}

func (e *DomainError) Error() string {
	msg := e.Domain + "." + e.Op + ": " + e.Message
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *DomainError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewDomainError creates a DomainError without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError creates a DomainError around a cause.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: err}
}

// ─────────────────────────────────────────────────────────────────────────────
// Domain errors
// ─────────────────────────────────────────────────────────────────────────────

var (
	ErrStudentNotFound      = NewDomainError("student", "Find", ErrNotFound, "student not found")
	ErrStudentAlreadyExists = NewDomainError("student", "Create", ErrAlreadyExists, "student already exists")
	ErrInvalidUserID        = NewDomainError("student", "Validate", ErrInvalidID, "invalid user ID")

	ErrUnknownMedal = NewDomainError("gamification", "AwardMedal", ErrInvalidInput, "unknown medal")

	ErrLessonNotFound          = NewDomainError("lesson", "Find", ErrNotFound, "lesson not found")
	ErrInvalidLessonTransition = NewDomainError("lesson", "UpdateStatus", ErrStateTransition, "invalid lesson status transition")
	ErrSameParticipant         = NewDomainError("lesson", "Schedule", ErrInvalidInput, "student and instructor must differ")

	ErrInvalidRating      = NewDomainError("rating", "Validate", ErrValueOutOfRange, "rating must be between 1 and 5")
	ErrDuplicateRating    = NewDomainError("rating", "Submit", ErrAlreadyExists, "lesson already rated by this user")
	ErrLessonNotCompleted = NewDomainError("rating", "Submit", ErrInvalidState, "lesson is not completed")
	ErrNotLessonMember    = NewDomainError("rating", "Submit", ErrForbidden, "user did not take part in the lesson")
	ErrSelfRating         = NewDomainError("rating", "Submit", ErrInvalidInput, "cannot rate self")

	ErrReferralCodeNotFound = NewDomainError("referral", "Redeem", ErrNotFound, "referral code not found")
	ErrSelfReferral         = NewDomainError("referral", "Redeem", ErrInvalidInput, "cannot redeem own referral code")
	ErrAlreadyReferred      = NewDomainError("referral", "Redeem", ErrAlreadyExists, "user was already referred")
)

// ─────────────────────────────────────────────────────────────────────────────
// Classification
// ─────────────────────────────────────────────────────────────────────────────

func isAny(err error, kinds ...error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// IsNotFound reports a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsAlreadyExists reports a duplicate entity.
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }

// IsValidation reports bad caller input.
func IsValidation(err error) bool {
	return isAny(err, ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrValueOutOfRange)
}

// IsConflict reports an operation the entity's current state does not allow.
func IsConflict(err error) bool {
	return isAny(err, ErrInvalidState, ErrStateTransition)
}

// IsRetryable reports a failure that may succeed when re-run.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
