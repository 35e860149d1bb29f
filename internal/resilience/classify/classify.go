// Package classify maps failures to a structured classification.
//
// Classification matches on the closed set of failure variants defined in the
// domain package (NetworkError, APIError, ValidationError, CancelledError).
// Priority when a value matches more than one variant:
//
//	cancelled > network > api > validation > other error > unknown
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/vietddude/resilience/internal/core/domain"
)

const unknownMessage = "an unknown error occurred"

// Classify returns the classification of v. It never panics and returns the
// same result for the same value.
func Classify(v any) (c domain.Classification) {
	defer func() {
		if r := recover(); r != nil {
			c = domain.Classification{
				Kind:    domain.KindUnknown,
				Message: unknownMessage,
			}
		}
	}()

	switch t := v.(type) {
	case nil:
		return domain.Classification{Kind: domain.KindUnknown, Message: unknownMessage}
	case error:
		return classifyError(t)
	case string:
		msg := t
		if msg == "" {
			msg = unknownMessage
		}
		return domain.Classification{Kind: domain.KindUnknown, Message: msg}
	default:
		// Arbitrary values may be self-referential, so only the type is used.
		return domain.Classification{
			Kind:    domain.KindUnknown,
			Message: fmt.Sprintf("%s (%T)", unknownMessage, v),
		}
	}
}

// IsRetryable is shorthand for Classify(err).Retryable.
func IsRetryable(err error) bool {
	return Classify(err).Retryable
}

func classifyError(err error) domain.Classification {
	var (
		cancelled  *domain.CancelledError
		network    *domain.NetworkError
		netErr     net.Error
		api        *domain.APIError
		validation *domain.ValidationError
	)

	switch {
	case errors.As(err, &cancelled), errors.Is(err, context.Canceled):
		return domain.Classification{
			Kind:    domain.KindCancelled,
			Message: err.Error(),
		}

	case errors.As(err, &network), errors.As(err, &netErr):
		return domain.Classification{
			Kind:      domain.KindNetwork,
			Message:   err.Error(),
			Retryable: true,
		}

	case errors.As(err, &api):
		status := api.StatusCode
		return domain.Classification{
			Kind:       domain.KindAPI,
			Message:    err.Error(),
			StatusCode: &status,
			Retryable:  api.Retryable(),
		}

	case errors.As(err, &validation):
		return domain.Classification{
			Kind:    domain.KindValidation,
			Message: err.Error(),
		}

	default:
		return domain.Classification{
			Kind:    domain.KindClient,
			Message: err.Error(),
		}
	}
}
