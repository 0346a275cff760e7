package shared

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey indicates a SKU, location code or barcode collision.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrInvariantViolation indicates a mutation that would corrupt ledger
	// state: negative on-hand quantity or a reservation exceeding on-hand.
	ErrInvariantViolation = errors.New("stock invariant violation")
	// ErrInsufficientStock indicates the requested quantity exceeds availability.
	ErrInsufficientStock = errors.New("insufficient stock")
)

// UserSafeMessage returns a message suitable for API consumers. Domain
// sentinels pass through verbatim; anything else is masked.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicateKey),
		errors.Is(err, ErrInvariantViolation),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrIdempotencyConflict):
		return err.Error()
	default:
		return "internal error"
	}
}
