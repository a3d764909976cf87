package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/civicpoints/internal/points"
)

func parseIDParam(r *http.Request) (int64, error) {
	idStr := r.PathValue("id")
	return strconv.ParseInt(idStr, 10, 64)
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, map[string]string{"error": msg, "code": code})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeMessage(w, http.StatusBadRequest, msg, "bad_request")
}

// statusFor maps a wire code to its HTTP status.
func statusFor(code string) int {
	switch code {
	case points.CodeMemberNotFound, points.CodeRewardNotFound, points.CodeConversionNotFound:
		return http.StatusNotFound
	case points.CodeInsufficientFunds, points.CodeSoldOut, points.CodeInvalidTransition, points.CodeRewardInactive:
		return http.StatusConflict
	case points.CodeInvalidAmount:
		return http.StatusBadRequest
	case points.CodeNotAdmin:
		return http.StatusForbidden
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError translates a ledger error into the JSON error body. Backend
// failures are logged and reported without their cause.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	code := points.Code(err)
	msg := err.Error()
	if code == points.CodeBackendUnavailable {
		logger.Error(op+" failed", "error", err)
		msg = "backend unavailable, try again"
		if !errors.Is(err, points.ErrBackendUnavailable) {
			msg = "internal error"
		}
	}
	writeJSON(w, statusFor(code), map[string]string{"error": msg, "code": code})
}
