package models

// Cashier is a billing counter operator. The row doubles as the per-cashier
// write lock: ledger writes take it FOR UPDATE for the length of the store
// transaction.
type Cashier struct {
	Username    string `json:"username" db:"username"`
	DisplayName string `json:"displayName" db:"display_name"`
	Active      bool   `json:"active" db:"active"`
}
