package model

import "time"

type Reward struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	PointsCost     int       `json:"points_cost"`
	MaxRedemptions *int      `json:"max_redemptions"`
	TotalRedeemed  int       `json:"total_redeemed"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// SoldOut reports whether the reward has reached its redemption cap.
// A reward without a cap never sells out.
func (r Reward) SoldOut() bool {
	return r.MaxRedemptions != nil && r.TotalRedeemed >= *r.MaxRedemptions
}

type ConversionStatus string

const (
	ConversionPending  ConversionStatus = "pending"
	ConversionApproved ConversionStatus = "approved"
	ConversionRejected ConversionStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s ConversionStatus) Terminal() bool {
	return s == ConversionApproved || s == ConversionRejected
}

func (s ConversionStatus) Valid() bool {
	switch s {
	case ConversionPending, ConversionApproved, ConversionRejected:
		return true
	}
	return false
}

// Conversion is a redemption record. PointsSpent is the reward cost captured
// at redemption time and never changes afterwards.
type Conversion struct {
	ID          int64            `json:"id"`
	MemberID    int64            `json:"member_id"`
	RewardID    int64            `json:"reward_id"`
	PointsSpent int              `json:"points_spent"`
	Status      ConversionStatus `json:"status"`
	ProcessedAt *time.Time       `json:"processed_at"`
	ProcessedBy *int64           `json:"processed_by"`
	Notes       string           `json:"notes"`
	CreatedAt   time.Time        `json:"created_at"`
}

type PointBalance struct {
	MemberID   int64  `json:"member_id"`
	MemberName string `json:"member_name,omitempty"`
	Balance    int    `json:"balance"`
}
