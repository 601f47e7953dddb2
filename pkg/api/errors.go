package api

import (
	"context"
	"errors"

	apperrors "github.com/chainsafe/swap-coordinator/pkg/app/errors"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

// toServiceError maps domain errors to categorised service errors.
func toServiceError(err error) error {
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	var (
		unsupported *swap.UnsupportedAssetError
		unavailable *swap.QuoteUnavailableError
		noRoute     *swap.NoRouteError
		submission  *swap.SubmissionError
	)
	switch {
	case errors.Is(err, swap.ErrInvalidAmount):
		return apperrors.BadRequestError(err, "amount must be positive")
	case errors.As(err, &unsupported):
		return apperrors.BadRequestError(err, unsupported.Error())
	case errors.Is(err, swap.ErrSwapNotFound):
		return apperrors.ResourceNotFoundError(err, "swap not found")
	case errors.Is(err, swap.ErrStatusConflict), errors.Is(err, swap.ErrInvalidTransition):
		return apperrors.ConflictError(err, "swap status changed")
	case errors.As(err, &noRoute):
		return apperrors.ResourceNotFoundError(err, "no route available")
	case errors.As(err, &unavailable):
		return apperrors.DependencyFailureError(err, "quote unavailable")
	case errors.As(err, &submission):
		return apperrors.DependencyFailureError(err, submission.Stage+" submission failed")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.ConnectionTimeoutError(err, "request timed out")
	default:
		return apperrors.GeneralError(err)
	}
}
