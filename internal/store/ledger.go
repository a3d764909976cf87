package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/civicpoints/internal/model"
	"github.com/dukerupert/civicpoints/internal/points"
)

// LedgerStore owns every write to members.points, points_rewards.total_redeemed
// and points_conversions. Each mutation is a guarded statement or a single
// transaction; nothing reads a balance and writes it back.
type LedgerStore struct {
	db *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// --- Balance helpers ---

// debit subtracts amount from the member's balance only if the balance covers
// it, returning the new balance.
func debit(ctx context.Context, q querier, memberID int64, amount int) (int, error) {
	var balance int
	err := q.QueryRowContext(ctx,
		`UPDATE members SET points = points - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND points >= ? RETURNING points`,
		amount, memberID, amount,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		m, err := getMember(ctx, q, memberID)
		if err != nil {
			return 0, err
		}
		if m == nil {
			return 0, points.ErrMemberNotFound
		}
		return 0, points.ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("debit points: %w", err)
	}
	return balance, nil
}

func credit(ctx context.Context, q querier, memberID int64, amount int) (int, error) {
	var balance int
	err := q.QueryRowContext(ctx,
		`UPDATE members SET points = points + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? RETURNING points`,
		amount, memberID,
	).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, points.ErrMemberNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("credit points: %w", err)
	}
	return balance, nil
}

func (s *LedgerStore) GetMember(ctx context.Context, id int64) (*model.Member, error) {
	return getMember(ctx, s.db, id)
}

func (s *LedgerStore) GetReward(ctx context.Context, id int64) (*model.Reward, error) {
	return getReward(ctx, s.db, id)
}

func (s *LedgerStore) ListActiveRewards(ctx context.Context) ([]model.Reward, error) {
	return listRewards(ctx, s.db,
		`SELECT `+rewardCols+` FROM points_rewards WHERE is_active = 1 ORDER BY points_cost ASC, id ASC`)
}

func (s *LedgerStore) DebitPoints(ctx context.Context, memberID int64, amount int) (int, error) {
	return debit(ctx, s.db, memberID, amount)
}

func (s *LedgerStore) CreditPoints(ctx context.Context, memberID int64, amount int) (int, error) {
	return credit(ctx, s.db, memberID, amount)
}

// --- Conversion methods ---

const conversionCols = `id, member_id, reward_id, points_spent, status, processed_at, processed_by, notes, created_at`

func scanConversion(scanner interface{ Scan(...any) error }) (*model.Conversion, error) {
	var c model.Conversion
	var status string
	var processedAt sql.NullTime
	var processedBy sql.NullInt64

	err := scanner.Scan(&c.ID, &c.MemberID, &c.RewardID, &c.PointsSpent, &status, &processedAt, &processedBy, &c.Notes, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Status = model.ConversionStatus(status)
	if processedAt.Valid {
		t := processedAt.Time
		c.ProcessedAt = &t
	}
	if processedBy.Valid {
		c.ProcessedBy = &processedBy.Int64
	}
	return &c, nil
}

func getConversion(ctx context.Context, q querier, id int64) (*model.Conversion, error) {
	row := q.QueryRowContext(ctx, `SELECT `+conversionCols+` FROM points_conversions WHERE id = ?`, id)
	c, err := scanConversion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversion: %w", err)
	}
	return c, nil
}

func (s *LedgerStore) GetConversion(ctx context.Context, id int64) (*model.Conversion, error) {
	return getConversion(ctx, s.db, id)
}

func (s *LedgerStore) listConversions(ctx context.Context, query string, args ...any) ([]model.Conversion, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	var conversions []model.Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		conversions = append(conversions, *c)
	}
	return conversions, rows.Err()
}

// ListConversionsByMember returns the member's conversions, newest first.
func (s *LedgerStore) ListConversionsByMember(ctx context.Context, memberID int64) ([]model.Conversion, error) {
	return s.listConversions(ctx,
		`SELECT `+conversionCols+` FROM points_conversions WHERE member_id = ? ORDER BY created_at DESC, id DESC`,
		memberID,
	)
}

// ListConversionsByStatus returns conversions in the given state, oldest first
// so the review queue is processed in arrival order.
func (s *LedgerStore) ListConversionsByStatus(ctx context.Context, status model.ConversionStatus) ([]model.Conversion, error) {
	return s.listConversions(ctx,
		`SELECT `+conversionCols+` FROM points_conversions WHERE status = ? ORDER BY created_at ASC, id ASC`,
		string(status),
	)
}

// CreateConversion reserves an inventory slot, debits the reward's current
// cost and records a pending conversion in one transaction.
func (s *LedgerStore) CreateConversion(ctx context.Context, memberID, rewardID int64, at time.Time) (*model.Conversion, error) {
	var conv *model.Conversion
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		reward, err := getReward(ctx, tx, rewardID)
		if err != nil {
			return err
		}
		if reward == nil {
			return points.ErrRewardNotFound
		}
		if !reward.IsActive {
			return points.ErrRewardInactive
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE points_rewards SET total_redeemed = total_redeemed + 1
			 WHERE id = ? AND is_active = 1 AND (max_redemptions IS NULL OR total_redeemed < max_redemptions)`,
			rewardID,
		)
		if err != nil {
			return fmt.Errorf("reserve inventory: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return points.ErrSoldOut
		}

		if _, err := debit(ctx, tx, memberID, reward.PointsCost); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			`INSERT INTO points_conversions (member_id, reward_id, points_spent, status, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			memberID, rewardID, reward.PointsCost, string(model.ConversionPending), at.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert conversion: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		conv, err = getConversion(ctx, tx, id)
		if err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// settle moves a pending conversion to a terminal status. It returns
// ErrConversionNotFound or ErrInvalidTransition when the guard matches nothing.
func settle(ctx context.Context, tx *sql.Tx, id int64, status model.ConversionStatus, adminID int64, notes *string, at time.Time) (*model.Conversion, error) {
	query := `UPDATE points_conversions SET status = ?, processed_at = ?, processed_by = ?`
	args := []any{string(status), at.UTC(), adminID}
	if notes != nil {
		query += `, notes = ?`
		args = append(args, *notes)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(model.ConversionPending))

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("settle conversion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}

	conv, err := getConversion(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, points.ErrConversionNotFound
	}
	if n == 0 {
		return nil, points.ErrInvalidTransition
	}
	return conv, nil
}

func (s *LedgerStore) ApproveConversion(ctx context.Context, id, adminID int64, at time.Time) (*model.Conversion, error) {
	var conv *model.Conversion
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		conv, err = settle(ctx, tx, id, model.ConversionApproved, adminID, nil, at)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// RejectConversion marks the conversion rejected, records the refund and
// credits points_spent back in one transaction. The reward's total_redeemed
// is left as is.
func (s *LedgerStore) RejectConversion(ctx context.Context, id, adminID int64, notes string, at time.Time) (*model.Conversion, error) {
	var conv *model.Conversion
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var err error
		conv, err = settle(ctx, tx, id, model.ConversionRejected, adminID, &notes, at)
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO points_refunds (conversion_id, member_id, points, refunded_at) VALUES (?, ?, ?, ?)`,
			conv.ID, conv.MemberID, conv.PointsSpent, at.UTC(),
		); err != nil {
			return fmt.Errorf("record refund: %w", err)
		}

		_, err = credit(ctx, tx, conv.MemberID, conv.PointsSpent)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// RefundedPoints returns the total refunded to a member through rejections.
func (s *LedgerStore) RefundedPoints(ctx context.Context, memberID int64) (int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM points_refunds WHERE member_id = ?`,
		memberID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum refunds: %w", err)
	}
	return total, nil
}

// CountRefunds returns how many refund rows exist for a conversion (0 or 1).
func (s *LedgerStore) CountRefunds(ctx context.Context, conversionID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM points_refunds WHERE conversion_id = ?`,
		conversionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count refunds: %w", err)
	}
	return n, nil
}
