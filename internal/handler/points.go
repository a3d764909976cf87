package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/civicpoints/internal/auth"
	"github.com/dukerupert/civicpoints/internal/model"
	"github.com/dukerupert/civicpoints/internal/points"
	"github.com/dukerupert/civicpoints/internal/store"
)

// PointsHandler serves balances, conversion history and the review queue.
type PointsHandler struct {
	workflow    *points.Workflow
	ledgerStore *store.LedgerStore
	logger      *slog.Logger
}

func NewPointsHandler(workflow *points.Workflow, ls *store.LedgerStore, logger *slog.Logger) *PointsHandler {
	return &PointsHandler{workflow: workflow, ledgerStore: ls, logger: logger}
}

// memberParam parses {id} and checks the caller may see that member.
func (h *PointsHandler) memberParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid id")
		return 0, false
	}
	ac, _ := auth.FromContext(r.Context())
	if !ac.CanAccessMember(id) {
		writeMessage(w, http.StatusForbidden, "cannot view another member", points.CodeNotAdmin)
		return 0, false
	}
	return id, true
}

func (h *PointsHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.memberParam(w, r)
	if !ok {
		return
	}

	balance, err := h.workflow.Ledger().GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, model.PointBalance{MemberID: id, Balance: balance})
}

func (h *PointsHandler) MemberConversions(w http.ResponseWriter, r *http.Request) {
	id, ok := h.memberParam(w, r)
	if !ok {
		return
	}

	conversions, err := h.ledgerStore.ListConversionsByMember(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, "list conversions", err)
		return
	}
	if conversions == nil {
		conversions = []model.Conversion{}
	}
	writeJSON(w, http.StatusOK, conversions)
}

// Queue lists conversions by status for admins; pending by default.
func (h *PointsHandler) Queue(w http.ResponseWriter, r *http.Request) {
	status := model.ConversionStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = model.ConversionPending
	}
	if !status.Valid() {
		writeBadRequest(w, "status must be pending, approved or rejected")
		return
	}

	conversions, err := h.ledgerStore.ListConversionsByStatus(r.Context(), status)
	if err != nil {
		writeError(w, h.logger, "list conversions", err)
		return
	}
	if conversions == nil {
		conversions = []model.Conversion{}
	}
	writeJSON(w, http.StatusOK, conversions)
}

func (h *PointsHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid id")
		return
	}

	conv, err := h.workflow.Approve(r.Context(), id, auth.MemberID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type rejectRequest struct {
	Notes string `json:"notes"`
}

func (h *PointsHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeBadRequest(w, "invalid id")
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON")
		return
	}

	conv, err := h.workflow.Reject(r.Context(), id, auth.MemberID(r.Context()), req.Notes)
	if err != nil {
		writeError(w, h.logger, "reject", err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}
