package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/civicpoints/internal/database"
	"github.com/dukerupert/civicpoints/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createMember(t *testing.T, db *sql.DB, name, role string, points int) *model.Member {
	t.Helper()
	m, err := NewMemberStore(db).Create(context.Background(), name, role, points)
	if err != nil {
		t.Fatalf("create member %s: %v", name, err)
	}
	return m
}

func createReward(t *testing.T, db *sql.DB, title string, cost int, max *int) *model.Reward {
	t.Helper()
	r, err := NewRewardStore(db).Create(context.Background(), title, "", cost, max, true)
	if err != nil {
		t.Fatalf("create reward %s: %v", title, err)
	}
	return r
}

func intPtr(v int) *int { return &v }
