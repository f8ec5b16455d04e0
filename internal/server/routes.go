package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/pairchain/internal/handler/health"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	games := deps.Games
	broker := deps.Broker
	if broker == nil {
		broker = NewBroker()
	}

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("PairChain API", "/openapi.json", "/docs"))
	r.Mount("/healthz", health.NewHandler(logger, deps.Checks).Routes())

	r.Route("/api", func(r chi.Router) {
		r.Use(noStore)

		r.Post("/wallet/connect", handleWalletConnect(logger, games))
		r.Get("/leaderboard", handleLeaderboard(logger, deps.Ranking, games.MaxPairs()))

		r.Post("/games", handleNewGame(logger, games))
		r.Route("/games/{gameID}", func(r chi.Router) {
			r.Get("/", handleGameState(logger, games))
			r.Post("/new", handleRestartGame(logger, games))
			r.Post("/cards/{cardID}", handleClick(logger, games))
			r.Get("/transactions", handleTransactions(logger, games))
			r.Get("/events", handleEvents(logger, games, broker))
			r.Get("/play", handlePlay(logger, games, deps.AllowedOrigins))
		})
	})

	if deps.SPADir != "" {
		if info, err := os.Stat(deps.SPADir); err == nil && info.IsDir() {
			logger.Info("serving SPA", "dir", deps.SPADir)
			r.NotFound(handleSPA(deps.SPADir))
		}
	}
}
