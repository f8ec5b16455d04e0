package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/pairchain/internal/gameboard"
)

type NewGameRequest struct {
	Pairs int `json:"pairs"`
}

func handleNewGame(logger *slog.Logger, games *gameboard.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NewGameRequest
		if err := readOptionalJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		st, err := games.NewGame(r.Context(), req.Pairs)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	}
}

func handleRestartGame(logger *slog.Logger, games *gameboard.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req NewGameRequest
		if err := readOptionalJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		st, err := games.Restart(r.Context(), chi.URLParam(r, "gameID"), req.Pairs)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleGameState(logger *slog.Logger, games *gameboard.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := games.State(r.Context(), chi.URLParam(r, "gameID"))
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

func handleClick(logger *slog.Logger, games *gameboard.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cardID, err := strconv.Atoi(chi.URLParam(r, "cardID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "card id must be a number")
			return
		}

		res, err := games.Click(r.Context(), chi.URLParam(r, "gameID"), cardID)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func handleTransactions(logger *slog.Logger, games *gameboard.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txs, err := games.Transactions(r.Context(), chi.URLParam(r, "gameID"))
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		if txs == nil {
			txs = []gameboard.Tx{}
		}
		writeJSON(w, http.StatusOK, txs)
	}
}
