package auth

import (
	"context"
	"testing"
)

func TestWithAuthAndFromContext(t *testing.T) {
	ac := AuthContext{
		MemberID:  1,
		Role:      "admin",
		SessionID: 3,
	}

	ctx := WithAuth(context.Background(), ac)
	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("expected AuthContext in context")
	}
	if got.MemberID != 1 {
		t.Errorf("MemberID = %d, want 1", got.MemberID)
	}
	if got.Role != "admin" {
		t.Errorf("Role = %q, want %q", got.Role, "admin")
	}
	if got.SessionID != 3 {
		t.Errorf("SessionID = %d, want 3", got.SessionID)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("expected false for missing AuthContext")
	}
	if MemberID(context.Background()) != 0 {
		t.Error("expected 0 MemberID for missing context")
	}
	if IsAdmin(context.Background()) {
		t.Error("expected IsAdmin false for missing context")
	}
}

func TestIsAdmin(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{Role: "admin"})
	if !IsAdmin(ctx) {
		t.Error("expected IsAdmin true for admin role")
	}

	ctx = WithAuth(context.Background(), AuthContext{Role: "member"})
	if IsAdmin(ctx) {
		t.Error("expected IsAdmin false for member role")
	}
}

func TestCanAccessMember(t *testing.T) {
	member := AuthContext{MemberID: 5, Role: "member"}
	if !member.CanAccessMember(5) {
		t.Error("member should access own data")
	}
	if member.CanAccessMember(6) {
		t.Error("member should not access another member's data")
	}

	admin := AuthContext{MemberID: 1, Role: "admin"}
	if !admin.CanAccessMember(6) {
		t.Error("admin should access any member's data")
	}
}
