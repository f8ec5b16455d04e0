package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/playperu/pairchain/internal/gameboard"
)

// PlayMessage is a card click sent over the play socket.
type PlayMessage struct {
	CardID *int `json:"cardId"`
}

// handlePlay accepts clicks over a WebSocket and answers each one with the
// click result or an error message. The connection outlives any single
// failed click. Pages from other hosts are refused unless they match one of
// origins.
func handlePlay(logger *slog.Logger, games *gameboard.Service, origins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		if _, err := games.State(r.Context(), gameID); err != nil {
			writeGameError(w, logger, err)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: origins,
		})
		if err != nil {
			logger.Warn("websocket accept failed", "game", gameID, "origin", r.Header.Get("Origin"), "error", err)
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
		defer cancel()

		for {
			var msg PlayMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				var ce websocket.CloseError
				if !errors.As(err, &ce) {
					logger.Debug("play socket read ended", "game", gameID, "error", err)
				}
				return
			}

			var reply any
			if msg.CardID == nil {
				reply = ErrorResponse{Error: "cardId required"}
			} else if res, err := games.Click(ctx, gameID, *msg.CardID); err != nil {
				status, text := classify(err)
				if status == http.StatusInternalServerError {
					logger.Error("play click failed", "game", gameID, "error", err)
				}
				reply = ErrorResponse{Error: text}
			} else {
				reply = res
			}

			if err := wsjson.Write(ctx, conn, reply); err != nil {
				logger.Debug("play socket write failed", "game", gameID, "error", err)
				return
			}
		}
	}
}
