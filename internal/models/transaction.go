package models

import (
	"time"
)

// Channel is the payment method a sale was collected through.
type Channel string

const (
	ChannelCash   Channel = "CASH"
	ChannelOnline Channel = "ONLINE"
)

// Valid reports whether c is a known payment channel.
func (c Channel) Valid() bool {
	return c == ChannelCash || c == ChannelOnline
}

// Transaction represents a single billed sale. Amount is in paise.
//
// Amount, Channel, Cashier and RecordedAt are immutable after insertion.
// The only permitted mutation is the one-way clearing transition:
// WithdrawalID nil -> set for cash rows, OnlineCleared false -> true for
// online rows.
type Transaction struct {
	ID            int64     `json:"id" db:"id"`
	Cashier       string    `json:"cashier" db:"cashier"`
	Channel       Channel   `json:"channel" db:"channel"`
	Amount        int64     `json:"amount" db:"amount"` // in paise
	Narration     string    `json:"narration,omitempty" db:"narration"`
	RecordedAt    time.Time `json:"recordedAt" db:"recorded_at"`
	WithdrawalID  *int64    `json:"withdrawalId,omitempty" db:"withdrawal_id"`
	OnlineCleared bool      `json:"onlineCleared" db:"online_cleared"`
}
