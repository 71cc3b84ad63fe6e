package domain

import "errors"

// Error taxonomy for the billing core. Business outcomes are terminal:
// the saga compensates and the job is acknowledged. Transient failures
// are retried by the queue with backoff up to a bounded attempt count.
var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrOutOfStock      = errors.New("out of stock")
	ErrPaymentDeclined = errors.New("payment declined")
	ErrTransient       = errors.New("transient failure")
)

// IsBusinessError reports whether err is a terminal business outcome
// rather than a retryable infrastructure failure.
func IsBusinessError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrOutOfStock) ||
		errors.Is(err, ErrPaymentDeclined)
}
