package store

import (
	"context"
	"testing"
	"time"

	"github.com/dukerupert/civicpoints/internal/model"
)

func TestSessionLifecycle(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db)
	ctx := context.Background()
	m := createMember(t, db, "Ana", model.RoleMember, 0)

	sess, err := ss.Create(ctx, m.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if len(sess.Token) != 64 {
		t.Errorf("token length = %d, want 64", len(sess.Token))
	}
	if sess.MemberID != m.ID {
		t.Errorf("member_id = %d, want %d", sess.MemberID, m.ID)
	}
	if !sess.ExpiresAt.After(time.Now().Add(29 * 24 * time.Hour)) {
		t.Errorf("expires_at = %v, want about 30 days out", sess.ExpiresAt)
	}

	got, err := ss.GetByToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("get by token: %v", err)
	}
	if got == nil || got.ID != sess.ID {
		t.Fatalf("got %+v, want session %d", got, sess.ID)
	}

	if err := ss.Delete(ctx, sess.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = ss.GetByToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("expected nil after delete")
	}
}

func TestSessionExpiry(t *testing.T) {
	db := setupTestDB(t)
	ss := NewSessionStore(db)
	ctx := context.Background()
	m := createMember(t, db, "Ana", model.RoleMember, 0)

	live, err := ss.Create(ctx, m.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	expired, err := ss.Create(ctx, m.ID)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE sessions SET expires_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Hour), expired.ID); err != nil {
		t.Fatalf("expire session: %v", err)
	}

	got, err := ss.GetByToken(ctx, expired.Token)
	if err != nil {
		t.Fatalf("get expired: %v", err)
	}
	if got != nil {
		t.Error("expired session should not be returned")
	}

	n, err := ss.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}
	if got, _ := ss.GetByToken(ctx, live.Token); got == nil {
		t.Error("live session should survive cleanup")
	}
}
