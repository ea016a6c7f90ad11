package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/lending/internal/core/domain"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrCartEmpty            = errors.New("cart is empty")
	ErrNotFound             = errors.New("not found")
	ErrAddressNotFound      = errors.New("address not found")
	ErrDuplicateRequest     = errors.New("duplicate request")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrRefundDetailsMissing = errors.New("refund details missing")
	ErrRefundNotOpen        = errors.New("refund is not awaiting details")
	ErrReturnWindowClosed   = errors.New("return window closed")
	ErrConcurrentUpdate     = errors.New("concurrent update")
	ErrUpgradeRequired      = errors.New("upgrade required")
	ErrAlreadyActive        = errors.New("already active")
	ErrQuotaExceeded        = errors.New("quota exceeded")
	ErrAccessDenied         = errors.New("access denied")
	ErrUpstream             = errors.New("upstream failure")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type TransitionError struct {
	From    domain.OrderStatus
	To      domain.OrderStatus
	Allowed []domain.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s (allowed: %v)", e.From, e.To, e.Allowed)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

type StockError struct {
	TitleID   string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.TitleID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// QuotaError carries the numbers a client needs to explain the refusal.
type QuotaError struct {
	Limit      int
	Used       int
	CycleStart time.Time
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("monthly limit of %d reached (%d used since %s)", e.Limit, e.Used, e.CycleStart.Format(time.DateOnly))
}

func (e *QuotaError) Unwrap() error { return ErrQuotaExceeded }

type AlreadyActiveError struct {
	TitleID   string
	ExpiresAt time.Time
}

func (e *AlreadyActiveError) Error() string {
	return fmt.Sprintf("title %s already active until %s", e.TitleID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *AlreadyActiveError) Unwrap() error { return ErrAlreadyActive }

type AccessDeniedError struct {
	Reason AccessReason
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("access denied: %s", e.Reason)
}

func (e *AccessDeniedError) Unwrap() error { return ErrAccessDenied }

// Kind groups errors by how callers should react to them.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindStateConflict Kind = "state_conflict"
	KindNotFound      Kind = "not_found"
	KindUpstream      Kind = "upstream"
	KindFatal         Kind = "fatal"
)

var kindOf = []struct {
	target error
	kind   Kind
}{
	{ErrValidation, KindValidation},
	{ErrCartEmpty, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrAddressNotFound, KindNotFound},
	{ErrDuplicateRequest, KindStateConflict},
	{ErrInsufficientStock, KindStateConflict},
	{ErrInvalidTransition, KindStateConflict},
	{ErrRefundDetailsMissing, KindStateConflict},
	{ErrRefundNotOpen, KindStateConflict},
	{ErrReturnWindowClosed, KindStateConflict},
	{ErrConcurrentUpdate, KindStateConflict},
	{ErrUpgradeRequired, KindStateConflict},
	{ErrAlreadyActive, KindStateConflict},
	{ErrQuotaExceeded, KindStateConflict},
	{ErrAccessDenied, KindStateConflict},
	{ErrUpstream, KindUpstream},
}

// Classify maps err onto the error taxonomy. Unknown errors are fatal;
// nil has no kind.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kindOf {
		if errors.Is(err, k.target) {
			return k.kind
		}
	}
	return KindFatal
}

func IsNotFound(err error) bool { return Classify(err) == KindNotFound }

func IsStateConflict(err error) bool { return Classify(err) == KindStateConflict }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
