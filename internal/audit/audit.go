package audit

import (
	"encoding/json"
	"log"
	"time"
)

type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	EventType    string    `json:"event_type"`
	Cashier      string    `json:"cashier"`
	WithdrawalID int64     `json:"withdrawal_id,omitempty"`
	Amount       int64     `json:"amount"`
	Status       string    `json:"status"`
	Details      any       `json:"details,omitempty"`
}

// Logger emits one JSON line per money-moving event for operator
// investigation.
type Logger struct{}

func NewLogger() *Logger {
	return &Logger{}
}

func (a *Logger) LogSale(cashier, channel string, transactionID, amount int64) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: "SALE",
		Cashier:   cashier,
		Amount:    amount,
		Status:    "SUCCESS",
		Details: map[string]any{
			"transaction_id": transactionID,
			"channel":        channel,
		},
	})
}

func (a *Logger) LogWithdrawal(cashier, kind string, withdrawalID, amount, sweptOnline int64) {
	a.log(Event{
		Timestamp:    time.Now(),
		EventType:    "WITHDRAWAL",
		Cashier:      cashier,
		WithdrawalID: withdrawalID,
		Amount:       amount,
		Status:       "SUCCESS",
		Details: map[string]any{
			"kind":              kind,
			"online_rows_swept": sweptOnline,
		},
	})
}

func (a *Logger) LogError(cashier, operation string, err error) {
	a.log(Event{
		Timestamp: time.Now(),
		EventType: operation,
		Cashier:   cashier,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *Logger) log(event Event) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
