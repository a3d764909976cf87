package model

import "testing"

func TestRewardSoldOut(t *testing.T) {
	capped := func(limit, total int) Reward {
		return Reward{MaxRedemptions: &limit, TotalRedeemed: total}
	}
	tests := []struct {
		name   string
		reward Reward
		want   bool
	}{
		{"unlimited", Reward{TotalRedeemed: 1000}, false},
		{"below cap", capped(3, 2), false},
		{"at cap", capped(3, 3), true},
		{"over cap", capped(1, 2), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.reward.SoldOut(); got != tt.want {
				t.Errorf("SoldOut() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConversionStatus(t *testing.T) {
	if ConversionPending.Terminal() {
		t.Error("pending should not be terminal")
	}
	if !ConversionApproved.Terminal() || !ConversionRejected.Terminal() {
		t.Error("approved and rejected should be terminal")
	}
	if ConversionStatus("lost").Valid() {
		t.Error("unknown status should be invalid")
	}
	for _, s := range []ConversionStatus{ConversionPending, ConversionApproved, ConversionRejected} {
		if !s.Valid() {
			t.Errorf("%q should be valid", s)
		}
	}
}

func TestMemberIsAdmin(t *testing.T) {
	if (Member{Role: RoleMember}).IsAdmin() {
		t.Error("member should not be admin")
	}
	if !(Member{Role: RoleAdmin}).IsAdmin() {
		t.Error("admin should be admin")
	}
}

func TestDecodeSettings(t *testing.T) {
	s, err := DecodeSettings(nil)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if s != DefaultSettings() {
		t.Errorf("empty = %+v, want defaults", s)
	}

	s, err = DecodeSettings([]byte(`{"theme":"dark","notifications":{"email":false}}`))
	if err != nil {
		t.Fatalf("decode partial: %v", err)
	}
	if s.Theme != "dark" {
		t.Errorf("theme = %q, want dark", s.Theme)
	}
	if s.Notifications.Email {
		t.Error("email should be off")
	}
	if !s.Notifications.Push || s.Language != "en" {
		t.Errorf("missing fields should keep defaults: %+v", s)
	}

	s, err = DecodeSettings([]byte(`{`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if s != DefaultSettings() {
		t.Errorf("invalid = %+v, want defaults", s)
	}
}
