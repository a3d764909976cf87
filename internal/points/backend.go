package points

import (
	"context"
	"time"

	"github.com/dukerupert/civicpoints/internal/model"
)

// RewardSource lists the rewards currently offered.
type RewardSource interface {
	ListActiveRewards(ctx context.Context) ([]model.Reward, error)
}

// Backend is the authoritative store behind the ledger. Getters return
// (nil, nil) when the row does not exist. Mutations must be atomic: a failed
// call leaves no partial state.
type Backend interface {
	RewardSource

	GetMember(ctx context.Context, id int64) (*model.Member, error)
	GetReward(ctx context.Context, id int64) (*model.Reward, error)
	GetConversion(ctx context.Context, id int64) (*model.Conversion, error)

	DebitPoints(ctx context.Context, memberID int64, amount int) (int, error)
	CreditPoints(ctx context.Context, memberID int64, amount int) (int, error)

	CreateConversion(ctx context.Context, memberID, rewardID int64, at time.Time) (*model.Conversion, error)
	ApproveConversion(ctx context.Context, id, adminID int64, at time.Time) (*model.Conversion, error)
	RejectConversion(ctx context.Context, id, adminID int64, notes string, at time.Time) (*model.Conversion, error)
}
