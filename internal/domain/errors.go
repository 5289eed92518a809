package domain

import "errors"

var (
	// ErrBelowMinimum means the quantized size came out under the venue
	// minimum. Input error; never retried and never silently clamped up.
	ErrBelowMinimum = errors.New("size below venue minimum")
	// ErrInvalidSymbol means the venue does not know the requested market.
	ErrInvalidSymbol = errors.New("invalid symbol")
	// ErrVenueRejected means the venue accepted the request but refused the
	// order. Handled by the monitor's bounded resubmission policy.
	ErrVenueRejected = errors.New("venue rejected order")
	// ErrVenueUnavailable covers transient transport and 5xx failures.
	ErrVenueUnavailable = errors.New("venue unavailable")
	// ErrMalformedVenueResponse means the venue answered but the client could
	// not extract what it needed (typically the order id). Fatal: resubmitting
	// against a response we cannot parse is unsafe.
	ErrMalformedVenueResponse = errors.New("malformed venue response")
	// ErrSigningFailed means the settlement signer could not authorize the
	// order's economic terms.
	ErrSigningFailed = errors.New("settlement signing failed")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrLimiterClosed is returned by Do after the rate limiter shut down.
	ErrLimiterClosed = errors.New("rate limiter closed")
	// ErrDuplicateSubmission means the same logical order was already
	// submitted within the dedup window.
	ErrDuplicateSubmission = errors.New("duplicate submission")
)

// Retryable reports whether err is a transient venue failure worth another
// attempt at the transport layer. Rejections and protocol errors are
// deliberately excluded; those have their own handling paths.
func Retryable(err error) bool {
	return errors.Is(err, ErrVenueUnavailable)
}
