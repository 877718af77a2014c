package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/templebooks/backend/internal/models"
)

// Withdrawal row statuses. A withdrawal is POSTED in the same store
// transaction that sweeps and marks the billing rows, so a committed row is
// always fully reconciled.
const WithdrawalPosted = "POSTED"

// WithdrawalLedger is the append-only store of cash-pull events.
type WithdrawalLedger struct {
	db *sql.DB
}

func NewWithdrawalLedger(db *sql.DB) *WithdrawalLedger {
	return &WithdrawalLedger{db: db}
}

// Record appends a withdrawal event to the ledger.
func (l *WithdrawalLedger) Record(ctx context.Context, cashier string, amount int64, kind models.WithdrawalKind, at time.Time) (*models.Withdrawal, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	w, err := l.RecordTx(tx, cashier, amount, kind, at)
	if err != nil {
		return nil, err
	}
	return w, tx.Commit()
}

// RecordTx appends a withdrawal event inside an existing store transaction.
// The id is store-generated; process-local counters break under multiple
// instances.
func (l *WithdrawalLedger) RecordTx(tx *sql.Tx, cashier string, amount int64, kind models.WithdrawalKind, at time.Time) (*models.Withdrawal, error) {
	if cashier == "" {
		return nil, &ValidationError{Field: "cashier", Reason: "must not be empty"}
	}
	if !kind.Valid() {
		return nil, &ValidationError{Field: "kind", Reason: "must be FULL or PARTIAL"}
	}
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	w := &models.Withdrawal{
		Cashier:    cashier,
		Amount:     amount,
		Kind:       kind,
		Status:     WithdrawalPosted,
		RecordedAt: at,
	}
	err := tx.QueryRow(`
		INSERT INTO withdrawals (cashier, amount, kind, status, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		cashier, amount, string(kind), w.Status, at).Scan(&w.ID)
	if err != nil {
		log.Printf("[WITHDRAWAL] Failed to record withdrawal for %s: %v", cashier, err)
		return nil, err
	}
	return w, nil
}

// Query returns all of a cashier's withdrawals inside the window, ordered by
// timestamp ascending.
func (l *WithdrawalLedger) Query(ctx context.Context, cashier string, w models.Window) ([]models.Withdrawal, error) {
	rows, err := l.db.QueryContext(ctx, withdrawalWindowQuery, cashier, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	return scanWithdrawals(rows)
}

// QueryTx is Query inside an existing store transaction.
func (l *WithdrawalLedger) QueryTx(tx *sql.Tx, cashier string, w models.Window) ([]models.Withdrawal, error) {
	rows, err := tx.Query(withdrawalWindowQuery, cashier, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	return scanWithdrawals(rows)
}

const withdrawalWindowQuery = `
	SELECT id, cashier, amount, kind, status, recorded_at
	FROM withdrawals
	WHERE cashier = $1 AND recorded_at >= $2 AND recorded_at < $3
	ORDER BY recorded_at ASC, id ASC`

func scanWithdrawals(rows *sql.Rows) ([]models.Withdrawal, error) {
	defer rows.Close()

	wds := []models.Withdrawal{}
	for rows.Next() {
		var w models.Withdrawal
		err := rows.Scan(&w.ID, &w.Cashier, &w.Amount, &w.Kind, &w.Status, &w.RecordedAt)
		if err != nil {
			return nil, err
		}
		wds = append(wds, w)
	}
	return wds, rows.Err()
}

// Last returns the cashier's most recent withdrawal event.
func (l *WithdrawalLedger) Last(ctx context.Context, cashier string) (*models.Withdrawal, error) {
	var w models.Withdrawal
	err := l.db.QueryRowContext(ctx, `
		SELECT id, cashier, amount, kind, status, recorded_at
		FROM withdrawals
		WHERE cashier = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1`, cashier).Scan(&w.ID, &w.Cashier, &w.Amount, &w.Kind, &w.Status, &w.RecordedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "withdrawal", ID: "latest for " + cashier}
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}
