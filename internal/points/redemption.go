package points

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukerupert/civicpoints/internal/metrics"
	"github.com/dukerupert/civicpoints/internal/model"
)

// Event names published after a conversion changes state.
const (
	EventConversionCreated  = "conversion_created"
	EventConversionApproved = "conversion_approved"
	EventConversionRejected = "conversion_rejected"
)

// Observer is told about every committed conversion change.
type Observer func(event string, c *model.Conversion)

// Workflow drives conversions through pending → approved | rejected.
type Workflow struct {
	backend  Backend
	ledger   *Ledger
	now      func() time.Time
	metrics  *metrics.Ledger
	logger   *slog.Logger
	observer Observer
}

type WorkflowOption func(*Workflow)

// WithClock overrides the time source used for created_at and processed_at.
func WithClock(now func() time.Time) WorkflowOption {
	return func(w *Workflow) {
		if now != nil {
			w.now = now
		}
	}
}

func WithMetrics(m *metrics.Ledger) WorkflowOption {
	return func(w *Workflow) { w.metrics = m }
}

func WithLogger(l *slog.Logger) WorkflowOption {
	return func(w *Workflow) {
		if l != nil {
			w.logger = l
		}
	}
}

func WithObserver(o Observer) WorkflowOption {
	return func(w *Workflow) { w.observer = o }
}

func NewWorkflow(backend Backend, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		backend: backend,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.ledger = NewLedger(backend, w.metrics, w.logger)
	return w
}

// Ledger returns the balance ledger sharing this workflow's backend.
func (w *Workflow) Ledger() *Ledger {
	return w.ledger
}

// Redeem spends the reward's current cost from the member's balance and
// records a pending conversion. The checks here fail fast; the backend
// repeats them atomically so concurrent redemptions cannot overdraw or
// oversell.
func (w *Workflow) Redeem(ctx context.Context, memberID, rewardID int64) (*model.Conversion, error) {
	conv, err := w.redeem(ctx, memberID, rewardID)
	w.metrics.RecordRedemption(Code(err))
	if err != nil {
		if errors.Is(err, ErrBackendUnavailable) {
			w.logger.Error("redeem failed", "member_id", memberID, "reward_id", rewardID, "error", err)
		} else {
			w.logger.Info("redeem refused", "member_id", memberID, "reward_id", rewardID, "code", Code(err))
		}
		return nil, err
	}

	w.logger.Info("reward redeemed",
		"conversion_id", conv.ID, "member_id", memberID, "reward_id", rewardID, "points_spent", conv.PointsSpent)
	w.notify(EventConversionCreated, conv)
	return conv, nil
}

func (w *Workflow) redeem(ctx context.Context, memberID, rewardID int64) (*model.Conversion, error) {
	balance, err := w.ledger.GetBalance(ctx, memberID)
	if err != nil {
		return nil, err
	}

	reward, err := w.backend.GetReward(ctx, rewardID)
	if err != nil {
		return nil, unavailable(err)
	}
	switch {
	case reward == nil:
		return nil, ErrRewardNotFound
	case !reward.IsActive:
		return nil, ErrRewardInactive
	case reward.SoldOut():
		return nil, ErrSoldOut
	case !affords(balance, reward):
		return nil, ErrInsufficientFunds
	}

	conv, err := w.backend.CreateConversion(ctx, memberID, rewardID, w.now())
	if err != nil {
		return nil, unavailable(err)
	}
	return conv, nil
}

// Approve finalizes a pending conversion. Balances are not touched.
func (w *Workflow) Approve(ctx context.Context, conversionID, adminID int64) (*model.Conversion, error) {
	conv, err := w.transition(ctx, "approve", conversionID, adminID, func(at time.Time) (*model.Conversion, error) {
		return w.backend.ApproveConversion(ctx, conversionID, adminID, at)
	})
	if err != nil {
		return nil, err
	}
	w.notify(EventConversionApproved, conv)
	return conv, nil
}

// Reject cancels a pending conversion and refunds points_spent to the member
// exactly once. The reward's redemption count is not restored.
func (w *Workflow) Reject(ctx context.Context, conversionID, adminID int64, notes string) (*model.Conversion, error) {
	conv, err := w.transition(ctx, "reject", conversionID, adminID, func(at time.Time) (*model.Conversion, error) {
		return w.backend.RejectConversion(ctx, conversionID, adminID, notes, at)
	})
	if err != nil {
		return nil, err
	}
	w.notify(EventConversionRejected, conv)
	return conv, nil
}

func (w *Workflow) transition(ctx context.Context, action string, conversionID, adminID int64, apply func(time.Time) (*model.Conversion, error)) (*model.Conversion, error) {
	conv, err := w.settle(ctx, conversionID, adminID, apply)
	w.metrics.RecordTransition(action, Code(err))

	switch {
	case err == nil:
		w.logger.Info("conversion "+string(conv.Status),
			"conversion_id", conv.ID, "member_id", conv.MemberID, "admin_id", adminID, "points_spent", conv.PointsSpent)
		return conv, nil
	case errors.Is(err, ErrInvalidTransition):
		w.logger.Warn("conversion already settled", "action", action, "conversion_id", conversionID, "admin_id", adminID)
	case errors.Is(err, ErrBackendUnavailable):
		w.logger.Error(action+" failed", "conversion_id", conversionID, "error", err)
	}
	return nil, err
}

func (w *Workflow) settle(ctx context.Context, conversionID, adminID int64, apply func(time.Time) (*model.Conversion, error)) (*model.Conversion, error) {
	admin, err := w.backend.GetMember(ctx, adminID)
	if err != nil {
		return nil, unavailable(err)
	}
	if admin == nil {
		return nil, ErrMemberNotFound
	}
	if !admin.IsAdmin() {
		return nil, ErrNotAdmin
	}

	conv, err := apply(w.now())
	if err != nil {
		return nil, unavailable(err)
	}
	return conv, nil
}

func (w *Workflow) notify(event string, c *model.Conversion) {
	if w.observer != nil {
		w.observer(event, c)
	}
}
