package survey

import "errors"

// Sentinel errors for the survey engine. The messages double as the
// user-visible detail strings at the HTTP boundary.
var (
	ErrNotFound             = errors.New("survey not found")
	ErrAlreadyExists        = errors.New("survey exists")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidSubmission    = errors.New("invalid submission")
	ErrNotOpenYet           = errors.New("survey is not open yet")
	ErrClosed               = errors.New("survey is closed")
	ErrNotYetClosed         = errors.New("survey is not yet closed")
	ErrWrongMode            = errors.New("survey does not verify email addresses")
	ErrInvalidToken         = errors.New("invalid verification token")
	ErrDeliveryFailure      = errors.New("email delivery failure")
	ErrNotImplemented       = errors.New("not implemented")
	ErrStoreFailure         = errors.New("store failure")
)
