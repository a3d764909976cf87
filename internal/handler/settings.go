package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/civicpoints/internal/auth"
	"github.com/dukerupert/civicpoints/internal/model"
	"github.com/dukerupert/civicpoints/internal/store"
)

// SettingsHandler serves the durable copy of a member's preferences.
type SettingsHandler struct {
	store  *store.SettingsStore
	logger *slog.Logger
}

func NewSettingsHandler(s *store.SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{store: s, logger: logger}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.GetSettings(r.Context(), auth.MemberID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Update replaces the caller's settings. Fields missing from the body take
// their defaults.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		writeBadRequest(w, "failed to read body")
		return
	}
	settings, err := model.DecodeSettings(body)
	if err != nil {
		writeBadRequest(w, "invalid JSON")
		return
	}
	if settings.Theme != "light" && settings.Theme != "dark" && settings.Theme != "system" {
		writeBadRequest(w, "theme must be light, dark or system")
		return
	}

	if err := h.store.SaveSettings(r.Context(), auth.MemberID(r.Context()), settings); err != nil {
		writeError(w, h.logger, "save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}
