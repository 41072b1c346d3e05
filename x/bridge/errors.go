package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingConfiguration is returned before any network call when a required setting is absent.
	ErrMissingConfiguration = errors.New("missing configuration")
	// ErrRemoteQueryFailed wraps transport, RPC or decoding failures of a remote read.
	ErrRemoteQueryFailed = errors.New("remote query failed")
	// ErrTransactionRejected is matched by *RejectedError.
	ErrTransactionRejected = errors.New("transaction rejected")
	// ErrMalformedAmount is returned when a limb violates the 128-bit width invariant.
	ErrMalformedAmount = errors.New("malformed amount")
)

// RejectedError carries the reason reported by the L2 status endpoint.
type RejectedError struct {
	TxHash string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s rejected", e.TxHash)
	}
	return fmt.Sprintf("transaction %s rejected: %s", e.TxHash, e.Reason)
}

// Is makes errors.Is(err, ErrTransactionRejected) hold.
func (e *RejectedError) Is(target error) bool {
	return target == ErrTransactionRejected
}

// RemoteQueryError tags err as a failed remote read of op.
func RemoteQueryError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrRemoteQueryFailed, op, err)
}
