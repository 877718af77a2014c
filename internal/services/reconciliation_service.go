package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/templebooks/backend/internal/audit"
	"github.com/templebooks/backend/internal/config"
	"github.com/templebooks/backend/internal/models"
	"github.com/templebooks/backend/internal/retry"
)

// ReconciliationService owns both ledgers. All writes go through it, and
// reads fan out through the allocation engine so the numbers served for
// "today" and for a historical date can never disagree.
type ReconciliationService struct {
	db       *sql.DB
	redis    *redis.Client
	txLedger *TransactionLedger
	wdLedger *WithdrawalLedger
	audit    *audit.Logger
	cfg      *config.ReconciliationConfig
}

func NewReconciliationService(db *sql.DB, redisClient *redis.Client, cfg *config.ReconciliationConfig) *ReconciliationService {
	return &ReconciliationService{
		db:       db,
		redis:    redisClient,
		txLedger: NewTransactionLedger(db),
		wdLedger: NewWithdrawalLedger(db),
		audit:    audit.NewLogger(),
		cfg:      cfg,
	}
}

// TransactionLedger exposes the sale ledger for read-only collaborators.
func (s *ReconciliationService) TransactionLedger() *TransactionLedger {
	return s.txLedger
}

// lockCashier serializes writes for one cashier by locking their row for
// the duration of the store transaction. Operations for different cashiers
// never contend; no invariant spans cashiers.
func (s *ReconciliationService) lockCashier(tx *sql.Tx, cashier string) error {
	if cashier == "" {
		return &ValidationError{Field: "cashier", Reason: "must not be empty"}
	}
	var active bool
	err := tx.QueryRow(`SELECT active FROM cashiers WHERE username = $1 FOR UPDATE`, cashier).Scan(&active)
	if err == sql.ErrNoRows {
		return &NotFoundError{Resource: "cashier", ID: cashier}
	}
	if err != nil {
		return err
	}
	if !active {
		return &ValidationError{Field: "cashier", Reason: "not active"}
	}
	return nil
}

// GetCashier returns the counter operator's profile.
func (s *ReconciliationService) GetCashier(ctx context.Context, username string) (*models.Cashier, error) {
	if username == "" {
		return nil, &ValidationError{Field: "cashier", Reason: "must not be empty"}
	}
	var c models.Cashier
	err := s.db.QueryRowContext(ctx, `
		SELECT username, COALESCE(display_name, ''), active
		FROM cashiers
		WHERE username = $1`, username).Scan(&c.Username, &c.DisplayName, &c.Active)
	if err == sql.ErrNoRows {
		return nil, &NotFoundError{Resource: "cashier", ID: username}
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// RecordSale appends a billed sale. The sale timestamp is taken after the
// cashier lock is acquired, so a sale delayed by an in-flight withdrawal is
// stamped after that withdrawal and stays out of its sweep.
func (s *ReconciliationService) RecordSale(ctx context.Context, cashier string, channel models.Channel, amount int64, narration string) (*models.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.lockCashier(tx, cashier); err != nil {
		return nil, err
	}

	rec, err := s.txLedger.RecordTx(tx, cashier, channel, amount, narration, time.Now())
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit.LogSale(cashier, string(channel), rec.ID, rec.Amount)
	return rec, nil
}

// RequestWithdrawal validates, records and reconciles one cash pull. The
// whole sequence runs in a single store transaction: insert the withdrawal,
// sweep unclear online rows, claim cash rows for FULL kind, and verify the
// claimed sum against the snapshot's unclaimed cash total. Any failure rolls the entire
// event back. Transient serialization failures retry the whole operation a
// bounded number of times; reconciliation failures never retry.
func (s *ReconciliationService) RequestWithdrawal(ctx context.Context, cashier string, kind models.WithdrawalKind, amount int64) (*models.Withdrawal, error) {
	var result *models.Withdrawal
	err := retry.Do(ctx, retry.Config{
		MaxRetries: s.cfg.MaxRetries,
		BaseDelay:  s.cfg.RetryBaseDelay,
		MaxDelay:   2 * time.Second,
		Retryable:  isTransientStoreError,
	}, func(ctx context.Context) error {
		w, err := s.requestWithdrawalOnce(ctx, cashier, kind, amount)
		if err != nil {
			return err
		}
		result = w
		return nil
	})
	if err != nil {
		s.audit.LogError(cashier, "WITHDRAWAL", err)
		return nil, err
	}
	return result, nil
}

func (s *ReconciliationService) requestWithdrawalOnce(ctx context.Context, cashier string, kind models.WithdrawalKind, amount int64) (*models.Withdrawal, error) {
	if !kind.Valid() {
		return nil, &ValidationError{Field: "kind", Reason: "must be FULL or PARTIAL"}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.lockCashier(tx, cashier); err != nil {
		return nil, err
	}

	now := time.Now()
	window := models.DayWindow(now, s.cfg.Location)

	txns, err := s.txLedger.QueryTx(tx, cashier, window)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.wdLedger.QueryTx(tx, cashier, window)
	if err != nil {
		return nil, err
	}
	state := Allocate(txns, withdrawals).State

	switch kind {
	case models.WithdrawalFull:
		amount = state.CashRemaining
		if amount <= 0 {
			return nil, &InsufficientFundsError{Cashier: cashier, Requested: amount, Available: 0}
		}
	case models.WithdrawalPartial:
		if amount <= 0 {
			return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
		}
		if amount > state.CashRemaining {
			return nil, &InsufficientFundsError{Cashier: cashier, Requested: amount, Available: state.CashRemaining}
		}
	}

	w, err := s.wdLedger.RecordTx(tx, cashier, amount, kind, now)
	if err != nil {
		return nil, err
	}

	// Online settlement is acknowledged whenever cash is physically
	// handled, regardless of withdrawal kind.
	swept, err := s.txLedger.SweepOnlineTx(tx, cashier, window, now)
	if err != nil {
		return nil, err
	}

	if kind == models.WithdrawalFull {
		// Partial withdrawals consume cash without tagging rows, so the
		// rows claimed here cover this pull plus every untagged partial
		// since the last full one: all cash rows not already carrying a
		// withdrawal_id.
		var expected int64
		for _, t := range txns {
			if t.Channel == models.ChannelCash && t.WithdrawalID == nil {
				expected += t.Amount
			}
		}
		flagged, err := s.txLedger.MarkWithdrawnTx(tx, cashier, window, now, w.ID)
		if err != nil {
			return nil, err
		}
		if flagged != expected {
			log.Printf("[RECON] Row marking drift for withdrawal %d: flagged %d, expected %d", w.ID, flagged, expected)
			return nil, &ReconciliationError{WithdrawalID: w.ID, Consumed: expected, Flagged: flagged}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.audit.LogWithdrawal(cashier, string(kind), w.ID, w.Amount, swept)
	s.publishWithdrawal(ctx, w)
	return w, nil
}

// publishWithdrawal queues the committed event for downstream consumers
// (receipt printing, end-of-day reports). Best effort: the ledgers are the
// source of truth.
func (s *ReconciliationService) publishWithdrawal(ctx context.Context, w *models.Withdrawal) {
	if s.redis == nil {
		return
	}
	data, err := json.Marshal(w)
	if err != nil {
		return
	}
	if err := s.redis.RPush(ctx, s.cfg.WithdrawalQueue, data).Err(); err != nil {
		log.Printf("[RECON] Failed to queue withdrawal event %d: %v", w.ID, err)
	}
}

// GetState reconciles the window read-only and returns the live position.
func (s *ReconciliationService) GetState(ctx context.Context, cashier string, window models.Window) (*models.ReconciliationState, error) {
	if cashier == "" {
		return nil, &ValidationError{Field: "cashier", Reason: "must not be empty"}
	}
	txns, err := s.txLedger.Query(ctx, cashier, window)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.wdLedger.Query(ctx, cashier, window)
	if err != nil {
		return nil, err
	}
	state := Allocate(txns, withdrawals).State
	return &state, nil
}

// TodayWindow is the cashier's open window under the configured timezone.
func (s *ReconciliationService) TodayWindow() models.Window {
	return models.DayWindow(time.Now(), s.cfg.Location)
}

// ListTransactions returns the window's transactions for report rendering.
// Read-only, no allocation side effects.
func (s *ReconciliationService) ListTransactions(ctx context.Context, cashier string, window models.Window) ([]models.Transaction, error) {
	if cashier == "" {
		return nil, &ValidationError{Field: "cashier", Reason: "must not be empty"}
	}
	return s.txLedger.Query(ctx, cashier, window)
}

// GetLastWithdrawal returns the most recent withdrawal with its allocation
// breakdown recomputed through the engine, never read from a cache.
func (s *ReconciliationService) GetLastWithdrawal(ctx context.Context, cashier string) (*models.WithdrawalSummary, error) {
	last, err := s.wdLedger.Last(ctx, cashier)
	if err != nil {
		return nil, err
	}

	window := models.DayWindow(last.RecordedAt, s.cfg.Location)
	txns, err := s.txLedger.Query(ctx, cashier, window)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.wdLedger.Query(ctx, cashier, window)
	if err != nil {
		return nil, err
	}

	summary := &models.WithdrawalSummary{Withdrawal: *last}
	if alloc, ok := Allocate(txns, withdrawals).AllocationFor(last.ID); ok {
		summary.FromCash = alloc.FromCash
		summary.FromOnline = alloc.FromOnline
	} else {
		// Event outside its own day window can only mean clock skew in
		// legacy rows; present it as a plain cash pull.
		summary.FromCash = last.Amount
	}
	summary.Total = summary.FromCash + summary.FromOnline
	return summary, nil
}

// isTransientStoreError reports failures that abort the transaction before
// commit and are safe to replay: serialization failures and deadlocks. An
// ambiguous commit failure is not retried, since the event may have been
// persisted.
func isTransientStoreError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}
