package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/pairchain/internal/gameboard"
	"github.com/playperu/pairchain/internal/handler/health"
	"github.com/playperu/pairchain/internal/leaderboard"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type gamePath struct {
	GameID string `path:"gameID"`
}

type cardPath struct {
	GameID string `path:"gameID"`
	CardID int    `path:"cardID"`
}

type leaderboardQuery struct {
	Pairs int `query:"pairs" description:"Deck size in pairs, default 4."`
	Limit int `query:"limit" description:"Entries to return, default 10, at most 100."`
}

type restartRequest struct {
	GameID string `path:"gameID"`
	NewGameRequest
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "PairChain API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Memory pair game whose moves are mirrored to a game contract.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Reports storage, leaderboard and chain reachability.")
	getHealthz.AddRespStructure(health.Report{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(health.Report{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/wallet/connect
	connect, _ := r.NewOperationContext(http.MethodPost, "/api/wallet/connect")
	connect.SetSummary("Connect wallet")
	connect.SetDescription("Asks the configured wallet for its account.")
	connect.AddRespStructure(WalletResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	connect.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(connect)

	// POST /api/games
	newGame, _ := r.NewOperationContext(http.MethodPost, "/api/games")
	newGame.SetSummary("New game")
	newGame.SetDescription("Deals a shuffled board and calls initializeGame on the contract. An empty body uses the default deck size.")
	newGame.AddReqStructure(NewGameRequest{})
	newGame.AddRespStructure(gameboard.State{}, openapi.WithHTTPStatus(http.StatusCreated))
	newGame.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	newGame.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(newGame)

	// GET /api/games/{gameID}
	getGame, _ := r.NewOperationContext(http.MethodGet, "/api/games/{gameID}")
	getGame.SetSummary("Get board")
	getGame.SetDescription("Returns the board with unrevealed card faces hidden.")
	getGame.AddReqStructure(gamePath{})
	getGame.AddRespStructure(gameboard.State{}, openapi.WithHTTPStatus(http.StatusOK))
	getGame.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getGame)

	// POST /api/games/{gameID}/new
	restart, _ := r.NewOperationContext(http.MethodPost, "/api/games/{gameID}/new")
	restart.SetSummary("Restart game")
	restart.SetDescription("Redeals the board under the same game id.")
	restart.AddReqStructure(restartRequest{})
	restart.AddRespStructure(gameboard.State{}, openapi.WithHTTPStatus(http.StatusOK))
	restart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	restart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	restart.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(restart)

	// POST /api/games/{gameID}/cards/{cardID}
	click, _ := r.NewOperationContext(http.MethodPost, "/api/games/{gameID}/cards/{cardID}")
	click.SetSummary("Click card")
	click.SetDescription("Flips a card, resolving a pair when two are selected. Each card turned face up is sent as revealCard.")
	click.AddReqStructure(cardPath{})
	click.AddRespStructure(gameboard.ClickResult{}, openapi.WithHTTPStatus(http.StatusOK))
	click.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	click.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	click.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(click)

	// GET /api/games/{gameID}/transactions
	listTxs, _ := r.NewOperationContext(http.MethodGet, "/api/games/{gameID}/transactions")
	listTxs.SetSummary("List transactions")
	listTxs.SetDescription("Contract calls made for the game, oldest first.")
	listTxs.AddReqStructure(gamePath{})
	listTxs.AddRespStructure([]gameboard.Tx{}, openapi.WithHTTPStatus(http.StatusOK))
	listTxs.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(listTxs)

	// GET /api/games/{gameID}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/games/{gameID}/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Streams board state every second plus game and transaction events.")
	getEvents.AddReqStructure(gamePath{})
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	getEvents.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getEvents)

	// GET /api/games/{gameID}/play
	play, _ := r.NewOperationContext(http.MethodGet, "/api/games/{gameID}/play")
	play.SetSummary("Play over WebSocket")
	play.SetDescription(`Upgrades to a WebSocket. Send {"cardId": n} per click; each reply is a click result or {"error": "..."}. Cross-origin pages must match ALLOWED_ORIGINS.`)
	play.AddReqStructure(gamePath{})
	play.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("application/json"))
	_ = r.AddOperation(play)

	// GET /api/leaderboard
	board, _ := r.NewOperationContext(http.MethodGet, "/api/leaderboard")
	board.SetSummary("Leaderboard")
	board.SetDescription("Best finished games for a deck size, fewest moves first.")
	board.AddReqStructure(leaderboardQuery{})
	board.AddRespStructure([]leaderboard.Entry{}, openapi.WithHTTPStatus(http.StatusOK))
	board.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(board)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}
