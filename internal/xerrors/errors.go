package xerrors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// Generic
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalServer = errors.New("internal server error")
	ErrNotFound       = errors.New("not found")
)

// Transactions
var (
	ErrDuplicateIdempotencyKey = errors.New("a transaction has already been created with this idempotency key")
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrAccountNotFound         = errors.New("account not found")
	ErrChainNotSupported       = errors.New("chain not supported")
	ErrInvalidAmount           = errors.New("amount must be a positive decimal string")
	ErrApproverFinalized       = errors.New("approver already in a terminal state")
	ErrChallengeNotFound       = errors.New("approval challenge not found")
	ErrAlreadySubmitted        = errors.New("transaction already signed and submitted")
)

// MfaSetupError aggregates every required approver that is configured for
// push approvals but has no registered device. Request creation reports all
// of them at once instead of failing on the first.
type MfaSetupError struct {
	Approvers []string
}

func (e *MfaSetupError) Error() string {
	return fmt.Sprintf("approvers without a registered approval device: %s", strings.Join(e.Approvers, ", "))
}

// TransientError marks a transport-level failure of an external call that a
// later attempt could succeed at, as opposed to a definitive rejection.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func ParsePGErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code // e.g. 23505 for unique_violation
	}
	return "unknown"
}
