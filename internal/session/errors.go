package session

import "errors"

var (
	// ErrUnauthorized covers bad credentials, invalid or wrong-context
	// tokens and OTP action mismatches. Unknown-username and
	// wrong-password failures are reported identically to avoid
	// username enumeration through the login path.
	ErrUnauthorized = errors.New("session: incorrect username or password")
	// ErrInvalidInput indicates a field or uniqueness constraint
	// violation on create/update.
	ErrInvalidInput = errors.New("session: invalid input")
	// ErrUnavailable indicates a transient dependency failure: OTP
	// code-space exhaustion or mail delivery.
	ErrUnavailable = errors.New("session: service unavailable")
)
