// Package http adapts error-returning handlers to net/http and runs the server.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	apperrors "github.com/chainsafe/swap-coordinator/pkg/app/errors"
)

// HandlerFunc is an http.HandlerFunc that reports failures by returning them.
type HandlerFunc func(http.ResponseWriter, *http.Request) error

type errorResponse struct {
	ErrMsg     string `json:"error"`
	ErrMsgCode int    `json:"code"`
}

// LoggedHandler adapts error-returning handlers, writing returned errors as JSON
// and logging internal failures with the request path. logger may be nil.
//
//	handle := http.LoggedHandler(logger)
//	r.Post("/swaps", handle(h.createSwap))
func LoggedHandler(logger *zap.Logger) func(HandlerFunc) http.HandlerFunc {
	return func(h HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			err := h(w, r)
			if err == nil {
				return
			}
			if logger != nil && apperrors.IsInternalError(err) {
				logger.Error("request failed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err))
			}
			DefaultErrorHandler(w, err)
		}
	}
}

// DefaultErrorHandler writes err as {"error", "code"}. Only ServiceError
// messages reach the client; anything else becomes a generic 500, or a 504
// when the request deadline expired.
func DefaultErrorHandler(w http.ResponseWriter, err error) {
	var svcErr *apperrors.ServiceError
	if !errors.As(err, &svcErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			err = apperrors.ConnectionTimeoutError(err, "request timed out")
		} else {
			err = &apperrors.ServiceError{
				Category: apperrors.CategoryGeneralError,
				Message:  "Unexpected Service Error",
				Err:      err,
			}
		}
		errors.As(err, &svcErr)
	}

	code := svcErr.StatusCode()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(&errorResponse{ErrMsg: svcErr.Message, ErrMsgCode: code})
}
