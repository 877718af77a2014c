package services

import (
	"sort"

	"github.com/templebooks/backend/internal/models"
)

// AllocationResult is the outcome of replaying a window's withdrawals
// against its collections.
type AllocationResult struct {
	State       models.ReconciliationState
	Allocations []models.WithdrawalAllocation
}

// Allocate reconciles one cashier's window. It is a pure function: the same
// ledger rows always produce the same result, so live "today" bookkeeping
// and historical date queries can never drift apart.
//
// Withdrawal events are processed in timestamp order. All arithmetic is in
// paise. Cash is allocated FIFO at the aggregate level, not per transaction,
// because a partial withdrawal amount will in general not equal the sum of
// any subset of transaction amounts: each event consumes
// min(amount, cashAvailable) from a running pool seeded with the window's
// cash collections.
//
// A withdrawal amount exceeding the remaining cash pool cannot happen for
// newly validated withdrawals, but historical rows predate that validation.
// For those the excess is treated as drawn from online funds, clamped so
// onlineWithdrawn never exceeds onlineCollected.
func Allocate(txns []models.Transaction, withdrawals []models.Withdrawal) AllocationResult {
	var res AllocationResult

	for _, t := range txns {
		switch t.Channel {
		case models.ChannelOnline:
			res.State.OnlineCollected += t.Amount
		default:
			res.State.CashCollected += t.Amount
		}
	}

	ordered := make([]models.Withdrawal, len(withdrawals))
	copy(ordered, withdrawals)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].RecordedAt.Equal(ordered[j].RecordedAt) {
			return ordered[i].RecordedAt.Before(ordered[j].RecordedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	cashAvailable := res.State.CashCollected
	res.Allocations = make([]models.WithdrawalAllocation, 0, len(ordered))
	for _, w := range ordered {
		consumed := w.Amount
		if consumed > cashAvailable {
			consumed = cashAvailable
		}
		cashAvailable -= consumed
		res.State.CashWithdrawn += consumed

		var fromOnline int64
		if excess := w.Amount - consumed; excess > 0 {
			fromOnline = excess
			if headroom := res.State.OnlineCollected - res.State.OnlineWithdrawn; fromOnline > headroom {
				fromOnline = headroom
			}
			res.State.OnlineWithdrawn += fromOnline
		}

		res.Allocations = append(res.Allocations, models.WithdrawalAllocation{
			WithdrawalID: w.ID,
			FromCash:     consumed,
			FromOnline:   fromOnline,
		})
	}

	res.State.CashRemaining = res.State.CashCollected - res.State.CashWithdrawn
	if res.State.CashRemaining < 0 {
		res.State.CashRemaining = 0
	}
	res.State.Total = res.State.CashCollected + res.State.OnlineCollected
	res.State.TotalWithdrawn = res.State.CashWithdrawn + res.State.OnlineWithdrawn
	return res
}

// AllocationFor returns the allocation computed for one withdrawal event, or
// false if the event was not part of the replay.
func (r AllocationResult) AllocationFor(withdrawalID int64) (models.WithdrawalAllocation, bool) {
	for _, a := range r.Allocations {
		if a.WithdrawalID == withdrawalID {
			return a, true
		}
	}
	return models.WithdrawalAllocation{}, false
}
