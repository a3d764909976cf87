package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukerupert/civicpoints/internal/model"
)

// ErrCapBelowRedeemed is returned by Update when the new max_redemptions is
// lower than the number of redemptions already made.
var ErrCapBelowRedeemed = errors.New("max_redemptions cannot be below total_redeemed")

type RewardStore struct {
	db *sql.DB
}

func NewRewardStore(db *sql.DB) *RewardStore {
	return &RewardStore{db: db}
}

func scanReward(scanner interface{ Scan(...any) error }) (*model.Reward, error) {
	var r model.Reward
	var maxRedemptions sql.NullInt64
	var active int

	err := scanner.Scan(&r.ID, &r.Title, &r.Description, &r.PointsCost, &maxRedemptions, &r.TotalRedeemed, &active, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	if maxRedemptions.Valid {
		m := int(maxRedemptions.Int64)
		r.MaxRedemptions = &m
	}
	r.IsActive = active != 0
	return &r, nil
}

const rewardCols = `id, title, description, points_cost, max_redemptions, total_redeemed, is_active, created_at`

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func getReward(ctx context.Context, q querier, id int64) (*model.Reward, error) {
	row := q.QueryRowContext(ctx, `SELECT `+rewardCols+` FROM points_rewards WHERE id = ?`, id)
	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get reward: %w", err)
	}
	return r, nil
}

func listRewards(ctx context.Context, q querier, query string, args ...any) ([]model.Reward, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func (s *RewardStore) Create(ctx context.Context, title, description string, pointsCost int, maxRedemptions *int, active bool) (*model.Reward, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO points_rewards (title, description, points_cost, max_redemptions, is_active) VALUES (?, ?, ?, ?, ?)`,
		title, description, pointsCost, nullInt(maxRedemptions), boolInt(active),
	)
	if err != nil {
		return nil, fmt.Errorf("insert reward: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *RewardStore) GetByID(ctx context.Context, id int64) (*model.Reward, error) {
	return getReward(ctx, s.db, id)
}

// List returns all rewards, active first, then by cost.
func (s *RewardStore) List(ctx context.Context) ([]model.Reward, error) {
	return listRewards(ctx, s.db,
		`SELECT `+rewardCols+` FROM points_rewards ORDER BY is_active DESC, points_cost ASC, id ASC`)
}

// ListActive returns only active rewards, cheapest first.
func (s *RewardStore) ListActive(ctx context.Context) ([]model.Reward, error) {
	return listRewards(ctx, s.db,
		`SELECT `+rewardCols+` FROM points_rewards WHERE is_active = 1 ORDER BY points_cost ASC, id ASC`)
}

// Update changes display metadata, cost, cap and activation. Cost changes do
// not affect existing conversions, which keep their own points_spent.
// total_redeemed is never written here.
// Update rewrites the reward. The new cap must still cover total_redeemed;
// the guard is part of the UPDATE so a concurrent redemption cannot slip
// between the check and the write.
func (s *RewardStore) Update(ctx context.Context, id int64, title, description string, pointsCost int, maxRedemptions *int, active bool) (*model.Reward, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE points_rewards SET title = ?, description = ?, points_cost = ?, max_redemptions = ?, is_active = ?
		 WHERE id = ? AND (? IS NULL OR ? >= total_redeemed)`,
		title, description, pointsCost, nullInt(maxRedemptions), boolInt(active), id,
		nullInt(maxRedemptions), nullInt(maxRedemptions),
	)
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update reward: %w", err)
	}
	if n == 0 {
		existing, err := s.GetByID(ctx, id)
		if err != nil || existing == nil {
			return existing, err
		}
		return nil, ErrCapBelowRedeemed
	}
	return s.GetByID(ctx, id)
}
