package models

// ReconciliationState is the reconciled position of one cashier over one
// window. All figures are in paise. The four collected/withdrawn numbers are
// the source of truth; CashRemaining, Total and TotalWithdrawn are derived.
type ReconciliationState struct {
	CashCollected   int64 `json:"cashCollected"`
	OnlineCollected int64 `json:"onlineCollected"`
	CashWithdrawn   int64 `json:"cashWithdrawn"`
	OnlineWithdrawn int64 `json:"onlineWithdrawn"`
	CashRemaining   int64 `json:"cashRemaining"`
	Total           int64 `json:"total"`
	TotalWithdrawn  int64 `json:"totalWithdrawn"`
}

// WithdrawalAllocation is how much a single withdrawal event consumed from
// each channel when replayed against the window's collections.
type WithdrawalAllocation struct {
	WithdrawalID int64 `json:"withdrawalId"`
	FromCash     int64 `json:"fromCash"`
	FromOnline   int64 `json:"fromOnline"`
}
