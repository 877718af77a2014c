package services

import (
	"fmt"
	"strconv"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ValidationError reports malformed input: non-positive amounts, missing
// cashier, unknown enum values.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientFundsError reports a withdrawal that exceeds the cash
// currently in hand. Amounts are in paise so callers can display the exact
// shortfall.
type InsufficientFundsError struct {
	Cashier   string
	Requested int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	if e.Available <= 0 {
		return fmt.Sprintf("no cash available to withdraw for cashier %s", e.Cashier)
	}
	return fmt.Sprintf("withdrawal of %d exceeds available cash %d for cashier %s (short %d)",
		e.Requested, e.Available, e.Cashier, e.Requested-e.Available)
}

// ConflictError reports an attempt to re-clear an already cleared
// transaction. Double-clearing is surfaced, never silently ignored.
type ConflictError struct {
	TransactionID int64
	Reason        string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("transaction %d: %s", e.TransactionID, e.Reason)
}

// ReconciliationError reports drift between the aggregate allocation numbers
// and the per-row withdrawal markers. It signals ledger corruption: the
// operation aborts without partial writes and is never retried, since
// replaying the same inconsistent state fails identically.
type ReconciliationError struct {
	WithdrawalID int64
	Consumed     int64
	Flagged      int64
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("withdrawal %d: flagged cash rows sum to %d, expected %d",
		e.WithdrawalID, e.Flagged, e.Consumed)
}

// NotFoundError reports a lookup of a specific entity that does not exist.
// Window queries with no rows return empty results, not this error.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}
