package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/templebooks/backend/internal/models"
)

// TransactionLedger is the append-only store of billed sales. Rows are never
// deleted; the only update ever issued is the one-way clearing transition.
type TransactionLedger struct {
	db *sql.DB
}

func NewTransactionLedger(db *sql.DB) *TransactionLedger {
	return &TransactionLedger{db: db}
}

// Record appends a sale to the ledger.
func (l *TransactionLedger) Record(ctx context.Context, cashier string, channel models.Channel, amount int64, narration string, at time.Time) (*models.Transaction, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rec, err := l.RecordTx(tx, cashier, channel, amount, narration, at)
	if err != nil {
		return nil, err
	}
	return rec, tx.Commit()
}

// RecordTx appends a sale inside an existing store transaction.
func (l *TransactionLedger) RecordTx(tx *sql.Tx, cashier string, channel models.Channel, amount int64, narration string, at time.Time) (*models.Transaction, error) {
	if cashier == "" {
		return nil, &ValidationError{Field: "cashier", Reason: "must not be empty"}
	}
	if !channel.Valid() {
		return nil, &ValidationError{Field: "channel", Reason: "must be CASH or ONLINE"}
	}
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	rec := &models.Transaction{
		Cashier:    cashier,
		Channel:    channel,
		Amount:     amount,
		Narration:  narration,
		RecordedAt: at,
	}
	err := tx.QueryRow(`
		INSERT INTO transactions (cashier, channel, amount, narration, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		cashier, string(channel), amount, narration, at).Scan(&rec.ID)
	if err != nil {
		log.Printf("[LEDGER] Failed to record sale for %s: %v", cashier, err)
		return nil, err
	}
	return rec, nil
}

// Query returns all of a cashier's transactions inside the window, ordered
// by timestamp ascending.
func (l *TransactionLedger) Query(ctx context.Context, cashier string, w models.Window) ([]models.Transaction, error) {
	rows, err := l.db.QueryContext(ctx, transactionWindowQuery, cashier, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

// QueryTx is Query inside an existing store transaction, so a withdrawal's
// read-allocate-write runs against a consistent snapshot.
func (l *TransactionLedger) QueryTx(tx *sql.Tx, cashier string, w models.Window) ([]models.Transaction, error) {
	rows, err := tx.Query(transactionWindowQuery, cashier, w.Start, w.End)
	if err != nil {
		return nil, err
	}
	return scanTransactions(rows)
}

const transactionWindowQuery = `
	SELECT id, cashier, channel, amount, COALESCE(narration, ''), recorded_at, withdrawal_id, online_cleared
	FROM transactions
	WHERE cashier = $1 AND recorded_at >= $2 AND recorded_at < $3
	ORDER BY recorded_at ASC, id ASC`

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	defer rows.Close()

	txns := []models.Transaction{}
	for rows.Next() {
		var t models.Transaction
		var withdrawalID sql.NullInt64
		err := rows.Scan(&t.ID, &t.Cashier, &t.Channel, &t.Amount, &t.Narration,
			&t.RecordedAt, &withdrawalID, &t.OnlineCleared)
		if err != nil {
			return nil, err
		}
		if withdrawalID.Valid {
			id := withdrawalID.Int64
			t.WithdrawalID = &id
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// MarkCleared performs the single allowed state transition on one row:
// withdrawal_id for cash rows, online_cleared for online rows. Re-marking an
// already cleared row is a ConflictError, not a no-op.
func (l *TransactionLedger) MarkCleared(ctx context.Context, transactionID, withdrawalID int64) error {
	var channel models.Channel
	var existing sql.NullInt64
	var cleared bool
	err := l.db.QueryRowContext(ctx, `
		SELECT channel, withdrawal_id, online_cleared
		FROM transactions
		WHERE id = $1`, transactionID).Scan(&channel, &existing, &cleared)
	if err == sql.ErrNoRows {
		return &NotFoundError{Resource: "transaction", ID: formatID(transactionID)}
	}
	if err != nil {
		return err
	}

	if channel == models.ChannelOnline {
		if cleared {
			return &ConflictError{TransactionID: transactionID, Reason: "online amount already cleared"}
		}
		res, err := l.db.ExecContext(ctx, `
			UPDATE transactions SET online_cleared = TRUE
			WHERE id = $1 AND online_cleared = FALSE`, transactionID)
		if err != nil {
			return err
		}
		return checkMarked(res, transactionID)
	}

	if existing.Valid {
		return &ConflictError{TransactionID: transactionID, Reason: "already claimed by a withdrawal"}
	}
	res, err := l.db.ExecContext(ctx, `
		UPDATE transactions SET withdrawal_id = $2
		WHERE id = $1 AND withdrawal_id IS NULL`, transactionID, withdrawalID)
	if err != nil {
		return err
	}
	return checkMarked(res, transactionID)
}

func checkMarked(res sql.Result, transactionID int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Lost the race against a concurrent clearing.
		return &ConflictError{TransactionID: transactionID, Reason: "already cleared"}
	}
	return nil
}

// SweepOnlineTx clears every unmarked online transaction recorded up to and
// including upTo, and returns how many rows were swept. No money moves for
// online funds; the flag only stops cleared amounts showing as pending.
func (l *TransactionLedger) SweepOnlineTx(tx *sql.Tx, cashier string, w models.Window, upTo time.Time) (int64, error) {
	res, err := tx.Exec(`
		UPDATE transactions SET online_cleared = TRUE
		WHERE cashier = $1 AND channel = 'ONLINE' AND online_cleared = FALSE
		  AND recorded_at >= $2 AND recorded_at <= $3`,
		cashier, w.Start, upTo)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MarkWithdrawnTx claims every unclaimed cash transaction recorded up to and
// including upTo for the given withdrawal, returning the sum of the newly
// flagged amounts so the caller can verify it against its own snapshot of
// the unclaimed rows.
func (l *TransactionLedger) MarkWithdrawnTx(tx *sql.Tx, cashier string, w models.Window, upTo time.Time, withdrawalID int64) (int64, error) {
	rows, err := tx.Query(`
		UPDATE transactions SET withdrawal_id = $1
		WHERE cashier = $2 AND channel = 'CASH' AND withdrawal_id IS NULL
		  AND recorded_at >= $3 AND recorded_at <= $4
		RETURNING amount`,
		withdrawalID, cashier, w.Start, upTo)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var flagged int64
	for rows.Next() {
		var amount int64
		if err := rows.Scan(&amount); err != nil {
			return 0, err
		}
		flagged += amount
	}
	return flagged, rows.Err()
}
