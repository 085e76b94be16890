// Package sentinel lists the errors stores return. Services map them to
// domain codes at the service boundary and nowhere else.
package sentinel

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrConflict means the aggregate changed after it was read.
	ErrConflict = errors.New("stale registration version")

	// ErrPaymentRecorded means the payment id is already in the global index,
	// under this user or another one.
	ErrPaymentRecorded = errors.New("payment already recorded")

	ErrUnavailable = errors.New("registration store unavailable")
)
