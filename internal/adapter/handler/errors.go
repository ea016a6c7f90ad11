package handler

import (
	"errors"
	"net/http"
	"time"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/lending/internal/core/service"
)

type ErrorResponse struct {
	Kind       string     `json:"error"`
	Message    string     `json:"message"`
	Reason     string     `json:"reason,omitempty"`
	Limit      *int       `json:"limit,omitempty"`
	Used       *int       `json:"used,omitempty"`
	CycleStart *time.Time `json:"cycle_start,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Allowed    []string   `json:"allowed,omitempty"`
}

// toErrorResponse never exposes the text of unclassified errors.
func toErrorResponse(err error) ErrorResponse {
	kind := service.Classify(err)
	resp := ErrorResponse{Kind: string(kind), Message: err.Error()}
	if kind == service.KindFatal {
		resp.Message = "internal error"
		return resp
	}

	var (
		quotaErr  *service.QuotaError
		activeErr *service.AlreadyActiveError
		deniedErr *service.AccessDeniedError
		transErr  *service.TransitionError
	)
	switch {
	case errors.As(err, &quotaErr):
		resp.Limit, resp.Used = &quotaErr.Limit, &quotaErr.Used
		resp.CycleStart = &quotaErr.CycleStart
	case errors.As(err, &activeErr):
		resp.ExpiresAt = &activeErr.ExpiresAt
	case errors.As(err, &deniedErr):
		resp.Reason = string(deniedErr.Reason)
	case errors.As(err, &transErr):
		for _, s := range transErr.Allowed {
			resp.Allowed = append(resp.Allowed, string(s))
		}
	}
	return resp
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrInsufficientStock):
		return http.StatusGone
	case errors.Is(err, service.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrAccessDenied), errors.Is(err, service.ErrUpgradeRequired):
		return http.StatusForbidden
	}

	switch service.Classify(err) {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindStateConflict:
		return http.StatusConflict
	case service.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, service.ErrDuplicateRequest):
		return codes.AlreadyExists
	case errors.Is(err, service.ErrInsufficientStock), errors.Is(err, service.ErrQuotaExceeded):
		return codes.ResourceExhausted
	case errors.Is(err, service.ErrAccessDenied), errors.Is(err, service.ErrUpgradeRequired):
		return codes.PermissionDenied
	case errors.Is(err, service.ErrConcurrentUpdate):
		return codes.Aborted
	}

	switch service.Classify(err) {
	case service.KindValidation:
		return codes.InvalidArgument
	case service.KindNotFound:
		return codes.NotFound
	case service.KindStateConflict:
		return codes.FailedPrecondition
	case service.KindUpstream:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}
