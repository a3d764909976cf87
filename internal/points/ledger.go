package points

import (
	"context"
	"log/slog"

	"github.com/dukerupert/civicpoints/internal/metrics"
	"github.com/dukerupert/civicpoints/internal/model"
)

// Ledger reads and mutates member balances. Every mutation is delegated to a
// single guarded backend statement.
type Ledger struct {
	backend Backend
	metrics *metrics.Ledger
	logger  *slog.Logger
}

func NewLedger(backend Backend, m *metrics.Ledger, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{backend: backend, metrics: m, logger: logger}
}

func (l *Ledger) GetBalance(ctx context.Context, memberID int64) (int, error) {
	m, err := l.backend.GetMember(ctx, memberID)
	if err != nil {
		return 0, unavailable(err)
	}
	if m == nil {
		return 0, ErrMemberNotFound
	}
	return m.Points, nil
}

// CanAfford reports whether the member could redeem the reward right now:
// the balance covers the cost and the reward has inventory left.
func (l *Ledger) CanAfford(ctx context.Context, memberID, rewardID int64) (bool, error) {
	balance, err := l.GetBalance(ctx, memberID)
	if err != nil {
		return false, err
	}
	r, err := l.backend.GetReward(ctx, rewardID)
	if err != nil {
		return false, unavailable(err)
	}
	if r == nil {
		return false, ErrRewardNotFound
	}
	return affords(balance, r), nil
}

// affords is the single affordability rule shared by CanAfford and Redeem.
func affords(balance int, r *model.Reward) bool {
	return !r.SoldOut() && balance >= r.PointsCost
}

// Debit removes amount from the member's balance and returns the new balance.
// ErrInsufficientFunds leaves the balance untouched.
func (l *Ledger) Debit(ctx context.Context, memberID int64, amount int) (int, error) {
	if amount <= 0 {
		l.metrics.RecordMutation("debit", CodeInvalidAmount)
		return 0, ErrInvalidAmount
	}
	balance, err := l.backend.DebitPoints(ctx, memberID, amount)
	err = unavailable(err)
	l.metrics.RecordMutation("debit", Code(err))
	if err != nil {
		return 0, err
	}
	l.logger.Debug("points debited", "member_id", memberID, "amount", amount, "balance", balance)
	return balance, nil
}

func (l *Ledger) Credit(ctx context.Context, memberID int64, amount int) (int, error) {
	if amount <= 0 {
		l.metrics.RecordMutation("credit", CodeInvalidAmount)
		return 0, ErrInvalidAmount
	}
	balance, err := l.backend.CreditPoints(ctx, memberID, amount)
	err = unavailable(err)
	l.metrics.RecordMutation("credit", Code(err))
	if err != nil {
		return 0, err
	}
	l.logger.Debug("points credited", "member_id", memberID, "amount", amount, "balance", balance)
	return balance, nil
}
