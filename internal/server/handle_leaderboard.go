package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/playperu/pairchain/internal/leaderboard"
)

const (
	defaultLeaderboardPairs = 4
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

// Ranking reads the best finished games for a deck size.
type Ranking interface {
	Top(ctx context.Context, pairs, n int) ([]leaderboard.Entry, error)
}

func handleLeaderboard(logger *slog.Logger, ranking Ranking, maxPairs int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pairs, ok := intParam(r, "pairs", defaultLeaderboardPairs)
		if !ok || pairs < 1 || pairs > maxPairs {
			writeError(w, http.StatusBadRequest, "invalid number of pairs")
			return
		}
		limit, ok := intParam(r, "limit", defaultLeaderboardLimit)
		if !ok || limit < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(limit, maxLeaderboardLimit)

		entries := []leaderboard.Entry{}
		if ranking != nil {
			top, err := ranking.Top(r.Context(), pairs, limit)
			if err != nil {
				logger.Error("reading leaderboard", "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			entries = append(entries, top...)
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func intParam(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	return n, err == nil
}
