package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/civicpoints/internal/auth"
	"github.com/dukerupert/civicpoints/internal/points"
	"github.com/dukerupert/civicpoints/internal/store"
)

// SessionHandler exchanges a member PIN for a bearer token.
type SessionHandler struct {
	members  *store.MemberStore
	sessions *store.SessionStore
	logger   *slog.Logger
}

func NewSessionHandler(ms *store.MemberStore, ss *store.SessionStore, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{members: ms, sessions: ss, logger: logger}
}

type loginRequest struct {
	MemberID int64  `json:"member_id"`
	PIN      string `json:"pin"`
}

type loginResponse struct {
	Token     string `json:"token"`
	MemberID  int64  `json:"member_id"`
	Role      string `json:"role"`
	ExpiresAt string `json:"expires_at"`
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON")
		return
	}
	if len(req.PIN) != 4 || !isDigits(req.PIN) {
		writeBadRequest(w, "PIN must be exactly 4 digits")
		return
	}

	member, err := h.members.GetByID(r.Context(), req.MemberID)
	if err != nil {
		writeError(w, h.logger, "get member", err)
		return
	}
	hash := ""
	if member != nil {
		hash, err = h.members.GetPINHash(r.Context(), member.ID)
		if err != nil {
			writeError(w, h.logger, "get PIN", err)
			return
		}
	}
	// Unknown members and wrong PINs look the same to the caller.
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.PIN)) != nil {
		h.logger.Warn("login failed", "member_id", req.MemberID)
		writeMessage(w, http.StatusUnauthorized, "incorrect member or PIN", "unauthorized")
		return
	}

	sess, err := h.sessions.Create(r.Context(), member.ID)
	if err != nil {
		writeError(w, h.logger, "create session", err)
		return
	}

	h.logger.Info("session created", "member_id", member.ID)
	writeJSON(w, http.StatusCreated, loginResponse{
		Token:     sess.Token,
		MemberID:  member.ID,
		Role:      member.Role,
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ac, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, h.logger, "logout", points.ErrMemberNotFound)
		return
	}
	if err := h.sessions.Delete(r.Context(), ac.SessionID); err != nil {
		writeError(w, h.logger, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
