package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/pairchain/internal/gameboard"
)

// tickInterval drives the board's elapsed-time display.
const tickInterval = time.Second

func handleEvents(logger *slog.Logger, games *gameboard.Service, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")

		st, err := games.State(r.Context(), gameID)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		ch := broker.Subscribe(gameID)
		defer broker.Unsubscribe(gameID, ch)

		writeState(w, st)
		flusher.Flush()

		tick := time.NewTicker(tickInterval)
		defer tick.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data := <-ch:
				fmt.Fprintf(w, "event: game\ndata: %s\n\n", data)
				flusher.Flush()
			case <-tick.C:
				st, err := games.State(r.Context(), gameID)
				if err != nil {
					logger.Debug("event stream state read failed", "game", gameID, "error", err)
					return
				}
				writeState(w, st)
				flusher.Flush()
			}
		}
	}
}

func writeState(w http.ResponseWriter, st gameboard.State) {
	data, _ := json.Marshal(st)
	fmt.Fprintf(w, "event: state\ndata: %s\n\n", data)
}
