package models

import (
	"time"
)

// WithdrawalKind distinguishes a full cash pull from a caller-specified one.
type WithdrawalKind string

const (
	WithdrawalFull    WithdrawalKind = "FULL"
	WithdrawalPartial WithdrawalKind = "PARTIAL"
)

// Valid reports whether k is a known withdrawal kind.
func (k WithdrawalKind) Valid() bool {
	return k == WithdrawalFull || k == WithdrawalPartial
}

// Withdrawal is one cash-pull event by a cashier. Amount is in paise.
type Withdrawal struct {
	ID         int64          `json:"id" db:"id"`
	Cashier    string         `json:"cashier" db:"cashier"`
	Amount     int64          `json:"amount" db:"amount"` // in paise
	Kind       WithdrawalKind `json:"kind" db:"kind"`
	Status     string         `json:"status" db:"status"`
	RecordedAt time.Time      `json:"recordedAt" db:"recorded_at"`
}

// WithdrawalSummary is a withdrawal event together with its allocation
// breakdown, recomputed from the ledgers rather than read from a cache.
type WithdrawalSummary struct {
	Withdrawal Withdrawal `json:"withdrawal"`
	FromCash   int64      `json:"fromCash"`
	FromOnline int64      `json:"fromOnline"`
	Total      int64      `json:"total"`
}
