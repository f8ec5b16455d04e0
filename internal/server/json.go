package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/playperu/pairchain/internal/gameboard"
	"github.com/playperu/pairchain/internal/memory"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// readOptionalJSON is readJSON that accepts an empty body.
func readOptionalJSON(r *http.Request, v any) error {
	err := readJSON(r, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// classify maps game errors to an HTTP status and a player-facing message.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, memory.ErrInvalidPairs):
		return http.StatusBadRequest, "invalid number of pairs"
	case errors.Is(err, gameboard.ErrNotFound):
		return http.StatusNotFound, "game not found"
	case errors.Is(err, memory.ErrUnknownCard):
		return http.StatusNotFound, "card not found"
	case errors.Is(err, memory.ErrCardMatched):
		return http.StatusConflict, "card already matched"
	case errors.Is(err, memory.ErrLocked):
		return http.StatusConflict, "game is over"
	case errors.Is(err, gameboard.ErrWalletUnavailable):
		return http.StatusServiceUnavailable, "wallet unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeGameError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, msg := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	writeError(w, status, msg)
}
