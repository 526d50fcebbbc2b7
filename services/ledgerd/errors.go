package ledgerd

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	ledgererrors "creatorpay/core/errors"
)

var statusByError = []struct {
	err    error
	status int
}{
	{ledgererrors.ErrUnauthorized, http.StatusForbidden},
	{ledgererrors.ErrNotFound, http.StatusNotFound},
	{ledgererrors.ErrInvalidAddress, http.StatusBadRequest},
	{ledgererrors.ErrInvalidAmount, http.StatusBadRequest},
	{ledgererrors.ErrInvalidInterval, http.StatusBadRequest},
	{ledgererrors.ErrInvalidFeeRate, http.StatusBadRequest},
	{ledgererrors.ErrInvalidContentID, http.StatusBadRequest},
	{ledgererrors.ErrAlreadyExists, http.StatusConflict},
	{ledgererrors.ErrAlreadyReleased, http.StatusConflict},
	{ledgererrors.ErrNotActive, http.StatusConflict},
	{ledgererrors.ErrNotDue, http.StatusConflict},
	{ledgererrors.ErrNoBalance, http.StatusConflict},
	{ledgererrors.ErrInsufficientFunds, http.StatusConflict},
	{ledgererrors.ErrTransferFailed, http.StatusPaymentRequired},
	{ledgererrors.ErrReentrant, http.StatusLocked},
	{ledgererrors.ErrPaused, http.StatusLocked},
}

// StatusFor maps a ledger error onto the HTTP status returned to callers.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, entry := range statusByError {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeLedgerError hides internal failures behind a generic message; domain
// errors are returned verbatim.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("ledger call failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", requestID(r)),
			slog.Any("error", err))
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
