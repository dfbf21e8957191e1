package errors

import (
	"errors"
	"fmt"
)

// Categories. Handlers map these to status codes with errors.Is.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrConflict              = errors.New("conflict")
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
	ErrInternal              = errors.New("internal server error")
)

var (
	ErrPurchaseNotFound     = fmt.Errorf("%w: purchase not found", ErrNotFound)
	ErrEventNotFound        = fmt.Errorf("%w: event not found", ErrNotFound)
	ErrNilPurchase          = fmt.Errorf("%w: purchase is nil", ErrInvalidRequest)
	ErrInvalidEventID       = fmt.Errorf("%w: eventId must be positive", ErrInvalidRequest)
	ErrInvalidQuantity      = fmt.Errorf("%w: quantity must be between 1 and 100", ErrInvalidRequest)
	ErrInsufficientCapacity = fmt.Errorf("%w: insufficient capacity", ErrInvalidRequest)
	ErrInvalidPaymentMethod = fmt.Errorf("%w: paymentMethod must be between 3 and 50 characters", ErrInvalidRequest)
	ErrNotOwner             = fmt.Errorf("%w: purchase belongs to another user", ErrForbidden)
	ErrAlreadyPaid          = fmt.Errorf("%w: purchase already paid", ErrConflict)
	ErrCancelledPurchase    = fmt.Errorf("%w: cannot pay a cancelled purchase", ErrConflict)
	ErrPaidPurchase         = fmt.Errorf("%w: cannot cancel a paid purchase", ErrConflict)
	ErrInvalidToken         = fmt.Errorf("%w: invalid token", ErrUnauthorized)
	ErrTokenExpired         = fmt.Errorf("%w: token expired", ErrUnauthorized)
	ErrMissingClaims        = fmt.Errorf("%w: missing required claims", ErrUnauthorized)
	ErrPublishFailed        = fmt.Errorf("%w: notification publish failed", ErrDownstreamUnavailable)

	// ErrStaleState is returned by conditional updates when the record is no
	// longer in the expected prior status.
	ErrStaleState = fmt.Errorf("%w: purchase status changed concurrently", ErrConflict)
)
