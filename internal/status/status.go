package status

import (
	"errors"
	"fmt"
)

// ErrRejected is wrapped by every expected-failure error below. A nil error from
// a store operation is a success, anything matching ErrRejected is a refusal with
// no state change.
var ErrRejected = errors.New("rejected")

var (
	ErrEmailTaken         = fmt.Errorf("identity: email already registered: %w", ErrRejected)
	ErrInvalidCredentials = fmt.Errorf("identity: invalid email or password: %w", ErrRejected)
	ErrUserNotFound       = fmt.Errorf("identity: user not found: %w", ErrRejected)

	ErrNotAuthenticated    = fmt.Errorf("marketplace: no authenticated user: %w", ErrRejected)
	ErrTicketNotFound      = fmt.Errorf("marketplace: ticket not found: %w", ErrRejected)
	ErrTicketUnavailable   = fmt.Errorf("marketplace: ticket not available: %w", ErrRejected)
	ErrInsufficientBalance = fmt.Errorf("marketplace: insufficient balance: %w", ErrRejected)
	ErrOwnerUnknown        = fmt.Errorf("marketplace: current owner unknown: %w", ErrRejected)
	ErrNotOwner            = fmt.Errorf("marketplace: ticket not owned by user: %w", ErrRejected)
)

// ErrSettlement marks a purchase whose ticket, ownership and transaction update
// committed but whose balance adjustments did not all apply.
var ErrSettlement = errors.New("marketplace: balance settlement incomplete")

// IsRejected reports whether err is an expected refusal.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
