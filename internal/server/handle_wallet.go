package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/pairchain/internal/gameboard"
)

type WalletResponse struct {
	Address string `json:"address"`
}

func handleWalletConnect(logger *slog.Logger, games *gameboard.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, err := games.Connect(r.Context())
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, WalletResponse{Address: addr})
	}
}
