package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/civicpoints/internal/database"
	"github.com/dukerupert/civicpoints/internal/metrics"
	"github.com/dukerupert/civicpoints/internal/model"
	"github.com/dukerupert/civicpoints/internal/store"
)

type testServer struct {
	srv         *Server
	handler     http.Handler
	memberID    int64
	adminID     int64
	memberToken string
	adminToken  string
	rewards     *store.RewardStore
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.NewLedger()
	if err := m.Register(reg); err != nil {
		t.Fatalf("register metrics: %v", err)
	}
	srv := New(db, Config{Metrics: m, Gatherer: reg}, slog.New(slog.DiscardHandler))

	members := store.NewMemberStore(db)
	member, err := members.Create(ctx, "Resident", model.RoleMember, 100)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	admin, err := members.Create(ctx, "Clerk", model.RoleAdmin, 0)
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash PIN: %v", err)
	}
	if err := members.SetPIN(ctx, member.ID, string(hash)); err != nil {
		t.Fatalf("set PIN: %v", err)
	}

	ms, err := srv.SessionStore().Create(ctx, member.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	as, err := srv.SessionStore().Create(ctx, admin.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	return &testServer{
		srv:         srv,
		handler:     srv.Router(),
		memberID:    member.ID,
		adminID:     admin.ID,
		memberToken: ms.Token,
		adminToken:  as.Token,
		rewards:     store.NewRewardStore(db),
	}
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["code"]
}

func id(v int64) string {
	return strconv.FormatInt(v, 10)
}

func TestHealth(t *testing.T) {
	ts := setupServer(t)
	rec := ts.do(t, "GET", "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode[map[string]string](t, rec)["status"]; got != "ok" {
		t.Errorf("status = %q, want ok", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupServer(t)
	reward, err := ts.rewards.Create(context.Background(), "Mug", "", 60, nil, true)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	if rec := ts.do(t, "POST", "/api/rewards/"+id(reward.ID)+"/redeem", ts.memberToken, ""); rec.Code != http.StatusCreated {
		t.Fatalf("redeem status = %d, want 201", rec.Code)
	}

	rec := ts.do(t, "GET", "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `civic_points_redemptions_total{outcome="ok"} 1`) {
		t.Errorf("metrics missing redemption counter:\n%s", rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	ts := setupServer(t)

	for _, path := range []string{"/api/rewards", "/api/settings", "/api/conversions"} {
		rec := ts.do(t, "GET", path, "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", path, rec.Code)
		}
	}

	rec := ts.do(t, "GET", "/api/rewards", "not-a-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}
}

func TestAdminRoutesRejectMembers(t *testing.T) {
	ts := setupServer(t)

	tests := []struct {
		method, path, body string
	}{
		{"GET", "/api/conversions", ""},
		{"POST", "/api/rewards", `{"title":"Mug","points_cost":5}`},
		{"PUT", "/api/rewards/1", `{"title":"Mug","points_cost":5}`},
		{"POST", "/api/conversions/1/approve", ""},
		{"POST", "/api/conversions/1/reject", ""},
	}
	for _, tt := range tests {
		rec := ts.do(t, tt.method, tt.path, ts.memberToken, tt.body)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", tt.method, tt.path, rec.Code)
			continue
		}
		if code := errorCode(t, rec); code != "not_admin" {
			t.Errorf("%s %s: code = %q, want not_admin", tt.method, tt.path, code)
		}
	}
}

func TestMemberCannotReadOthers(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, "GET", "/api/members/"+id(ts.adminID)+"/points", ts.memberToken, "")
	if rec.Code != http.StatusForbidden {
		t.Errorf("other balance: status = %d, want 403", rec.Code)
	}

	rec = ts.do(t, "GET", "/api/members/"+id(ts.memberID)+"/points", ts.memberToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("own balance: status = %d, want 200", rec.Code)
	}
	if bal := decode[model.PointBalance](t, rec); bal.Balance != 100 {
		t.Errorf("balance = %d, want 100", bal.Balance)
	}

	// Admins may read any member.
	rec = ts.do(t, "GET", "/api/members/"+id(ts.memberID)+"/conversions", ts.adminToken, "")
	if rec.Code != http.StatusOK {
		t.Errorf("admin read: status = %d, want 200", rec.Code)
	}
}

func TestRewardLifecycle(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, "POST", "/api/rewards", ts.adminToken, `{"title":"  ","points_cost":5}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank title: status = %d, want 400", rec.Code)
	}
	rec = ts.do(t, "POST", "/api/rewards", ts.adminToken, `{"title":"Mug","points_cost":60,"max_redemptions":1}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, want 201", rec.Code)
	}
	mug := decode[model.Reward](t, rec)

	rec = ts.do(t, "POST", "/api/rewards", ts.adminToken, `{"title":"Hidden","points_cost":5,"is_active":false}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create hidden: status = %d, want 201", rec.Code)
	}

	rec = ts.do(t, "GET", "/api/rewards", ts.memberToken, "")
	if got := decode[[]model.Reward](t, rec); len(got) != 1 {
		t.Errorf("active catalog = %d rewards, want 1", len(got))
	}
	rec = ts.do(t, "GET", "/api/rewards?all=true", ts.memberToken, "")
	if got := decode[[]model.Reward](t, rec); len(got) != 1 {
		t.Errorf("member ?all = %d rewards, want 1", len(got))
	}
	rec = ts.do(t, "GET", "/api/rewards?all=true", ts.adminToken, "")
	if got := decode[[]model.Reward](t, rec); len(got) != 2 {
		t.Errorf("admin ?all = %d rewards, want 2", len(got))
	}

	rec = ts.do(t, "POST", "/api/rewards/"+id(mug.ID)+"/redeem", ts.memberToken, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("redeem: status = %d, want 201", rec.Code)
	}
	conv := decode[model.Conversion](t, rec)

	rec = ts.do(t, "POST", "/api/rewards/"+id(mug.ID)+"/redeem", ts.memberToken, "")
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "sold_out" {
		t.Errorf("second redeem: status = %d, want 409 sold_out", rec.Code)
	}

	rec = ts.do(t, "PUT", "/api/rewards/"+id(mug.ID), ts.adminToken, `{"title":"Mug","points_cost":60,"max_redemptions":1}`)
	if rec.Code != http.StatusOK {
		t.Errorf("update at cap: status = %d, want 200", rec.Code)
	}
	rec = ts.do(t, "PUT", "/api/rewards/9999", ts.adminToken, `{"title":"Mug","points_cost":60}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("update missing: status = %d, want 404", rec.Code)
	}

	rec = ts.do(t, "GET", "/api/conversions", ts.adminToken, "")
	if got := decode[[]model.Conversion](t, rec); len(got) != 1 || got[0].ID != conv.ID {
		t.Errorf("queue = %+v, want conversion %d", got, conv.ID)
	}
	rec = ts.do(t, "GET", "/api/conversions?status=lost", ts.adminToken, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad status filter: status = %d, want 400", rec.Code)
	}

	rec = ts.do(t, "POST", "/api/conversions/"+id(conv.ID)+"/reject", ts.adminToken, `{"notes":"out of stock"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reject: status = %d, want 200", rec.Code)
	}
	if got := decode[model.Conversion](t, rec); got.Status != model.ConversionRejected || got.Notes != "out of stock" {
		t.Errorf("rejected = %+v", got)
	}

	rec = ts.do(t, "POST", "/api/conversions/"+id(conv.ID)+"/approve", ts.adminToken, "")
	if rec.Code != http.StatusConflict || errorCode(t, rec) != "invalid_transition" {
		t.Errorf("approve rejected: status = %d, want 409 invalid_transition", rec.Code)
	}

	rec = ts.do(t, "GET", "/api/members/"+id(ts.memberID)+"/points", ts.memberToken, "")
	if bal := decode[model.PointBalance](t, rec); bal.Balance != 100 {
		t.Errorf("balance after reject = %d, want 100", bal.Balance)
	}

	rec = ts.do(t, "PUT", "/api/rewards/"+id(mug.ID), ts.adminToken, `{"title":"Mug","points_cost":60,"max_redemptions":1}`)
	if rec.Code != http.StatusOK {
		t.Errorf("update after reject: status = %d, want 200 (slot stays consumed)", rec.Code)
	}
}

func TestSettingsRoutes(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, "GET", "/api/settings", ts.memberToken, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d, want 200", rec.Code)
	}
	if got := decode[model.Settings](t, rec); got != model.DefaultSettings() {
		t.Errorf("settings = %+v, want defaults", got)
	}

	rec = ts.do(t, "PUT", "/api/settings", ts.memberToken, `{"theme":"neon"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad theme: status = %d, want 400", rec.Code)
	}

	rec = ts.do(t, "PUT", "/api/settings", ts.memberToken, `{"theme":"dark","language":"es"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d, want 200", rec.Code)
	}

	rec = ts.do(t, "GET", "/api/settings", ts.memberToken, "")
	got := decode[model.Settings](t, rec)
	if got.Theme != "dark" || got.Language != "es" || !got.Notifications.Push {
		t.Errorf("settings = %+v", got)
	}

	// Settings belong to the caller.
	rec = ts.do(t, "GET", "/api/settings", ts.adminToken, "")
	if got := decode[model.Settings](t, rec); got.Theme != "system" {
		t.Errorf("admin theme = %q, want system", got.Theme)
	}
}

func TestSessionRoutes(t *testing.T) {
	ts := setupServer(t)

	rec := ts.do(t, "POST", "/api/sessions", "", `{"member_id":`+id(ts.memberID)+`,"pin":"12"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short PIN: status = %d, want 400", rec.Code)
	}
	rec = ts.do(t, "POST", "/api/sessions", "", `{"member_id":`+id(ts.memberID)+`,"pin":"9999"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong PIN: status = %d, want 401", rec.Code)
	}
	// Admin has no PIN set.
	rec = ts.do(t, "POST", "/api/sessions", "", `{"member_id":`+id(ts.adminID)+`,"pin":"1234"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no PIN: status = %d, want 401", rec.Code)
	}

	rec = ts.do(t, "POST", "/api/sessions", "", `{"member_id":`+id(ts.memberID)+`,"pin":"1234"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("login: status = %d, want 201", rec.Code)
	}
	sess := decode[map[string]any](t, rec)
	token, _ := sess["token"].(string)
	if token == "" || sess["role"] != model.RoleMember {
		t.Fatalf("session = %v", sess)
	}

	if rec := ts.do(t, "GET", "/api/rewards", token, ""); rec.Code != http.StatusOK {
		t.Errorf("with new token: status = %d, want 200", rec.Code)
	}
	if rec := ts.do(t, "DELETE", "/api/sessions", token, ""); rec.Code != http.StatusNoContent {
		t.Errorf("logout: status = %d, want 204", rec.Code)
	}
	if rec := ts.do(t, "GET", "/api/rewards", token, ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("after logout: status = %d, want 401", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	ts := setupServer(t)

	var last int
	for i := 0; i < 11; i++ {
		rec := ts.do(t, "POST", "/api/sessions", "", `{"member_id":1,"pin":"0000"}`)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("11th attempt: status = %d, want 429", last)
	}
}

func TestRewardUpdateCapBelowRedeemed(t *testing.T) {
	ts := setupServer(t)
	limit := 3
	pass, err := ts.rewards.Create(context.Background(), "Bus Pass", "", 10, &limit, true)
	if err != nil {
		t.Fatalf("create reward: %v", err)
	}
	for i := 0; i < 2; i++ {
		rec := ts.do(t, "POST", "/api/rewards/"+id(pass.ID)+"/redeem", ts.memberToken, "")
		if rec.Code != http.StatusCreated {
			t.Fatalf("redeem %d: status = %d, want 201", i, rec.Code)
		}
	}

	rec := ts.do(t, "PUT", "/api/rewards/"+id(pass.ID), ts.adminToken, `{"title":"Bus Pass","points_cost":10,"max_redemptions":1}`)
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != "bad_request" {
		t.Errorf("cap below redeemed: status = %d, want 400 bad_request", rec.Code)
	}

	got, err := ts.rewards.GetByID(context.Background(), pass.ID)
	if err != nil {
		t.Fatalf("get reward: %v", err)
	}
	if got.MaxRedemptions == nil || *got.MaxRedemptions != 3 {
		t.Errorf("max_redemptions = %v, want 3", got.MaxRedemptions)
	}
}
