package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/civicpoints/internal/auth"
	"github.com/dukerupert/civicpoints/internal/model"
	"github.com/dukerupert/civicpoints/internal/points"
	"github.com/dukerupert/civicpoints/internal/store"
	"github.com/dukerupert/civicpoints/internal/websocket"
)

type RewardHandler struct {
	rewardStore *store.RewardStore
	catalog     *points.Catalog
	workflow    *points.Workflow
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewRewardHandler(rs *store.RewardStore, catalog *points.Catalog, workflow *points.Workflow, hub *websocket.Hub, logger *slog.Logger) *RewardHandler {
	return &RewardHandler{rewardStore: rs, catalog: catalog, workflow: workflow, hub: hub, logger: logger}
}

func (h *RewardHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type rewardRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	PointsCost     int    `json:"points_cost"`
	MaxRedemptions *int   `json:"max_redemptions"`
	IsActive       *bool  `json:"is_active"`
}

func (req *rewardRequest) validate() string {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return "title is required"
	}
	if req.PointsCost <= 0 {
		return "points_cost must be > 0"
	}
	if req.MaxRedemptions != nil && *req.MaxRedemptions <= 0 {
		return "max_redemptions must be > 0 when set"
	}
	return ""
}

func (req *rewardRequest) active() bool {
	return req.IsActive == nil || *req.IsActive
}

// List returns the active catalog. Admins may pass ?all=true to include
// inactive rewards.
func (h *RewardHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" && auth.IsAdmin(r.Context()) {
		rewards, err := h.rewardStore.List(r.Context())
		if err != nil {
			writeError(w, h.logger, "list rewards", err)
			return
		}
		if rewards == nil {
			rewards = []model.Reward{}
		}
		writeJSON(w, http.StatusOK, rewards)
		return
	}

	rewards, err := h.catalog.ListActive(r.Context())
	if err != nil {
		writeError(w, h.logger, "list rewards", err)
		return
	}
	writeJSON(w, http.StatusOK, rewards)
}

func (h *RewardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeBadRequest(w, msg)
		return
	}

	reward, err := h.rewardStore.Create(r.Context(), req.Title, req.Description, req.PointsCost, req.MaxRedemptions, req.active())
	if err != nil {
		writeError(w, h.logger, "create reward", err)
		return
	}

	h.logger.Info("reward created", "reward_id", reward.ID, "points_cost", reward.PointsCost)
	h.broadcast(websocket.NewMessage("reward", "created", reward.ID, nil))

	writeJSON(w, http.StatusCreated, reward)
}

func (h *RewardHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid id")
		return
	}

	var req rewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeBadRequest(w, msg)
		return
	}

	reward, err := h.rewardStore.Update(r.Context(), id, req.Title, req.Description, req.PointsCost, req.MaxRedemptions, req.active())
	if errors.Is(err, store.ErrCapBelowRedeemed) {
		writeBadRequest(w, err.Error())
		return
	}
	if err != nil {
		writeError(w, h.logger, "update reward", err)
		return
	}
	if reward == nil {
		writeError(w, h.logger, "update reward", points.ErrRewardNotFound)
		return
	}

	h.broadcast(websocket.NewMessage("reward", "updated", id, nil))

	writeJSON(w, http.StatusOK, reward)
}

// Redeem spends the caller's points on the reward.
func (h *RewardHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid id")
		return
	}

	conv, err := h.workflow.Redeem(r.Context(), auth.MemberID(r.Context()), id)
	if err != nil {
		writeError(w, h.logger, "redeem", err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}
