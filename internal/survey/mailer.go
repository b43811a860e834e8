package survey

import "context"

// Verification carries everything needed to build one verification
// email.
type Verification struct {
	To     string
	Owner  string
	Survey string
	Title  string
	Token  string
}

// Mailer delivers verification emails. Implementations return the
// upstream status code; anything outside 2xx counts as a delivery
// failure and the pending submission stays behind for a resend.
type Mailer interface {
	SendVerification(ctx context.Context, v Verification) (int, error)
}
