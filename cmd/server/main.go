package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/pairchain/internal/chain"
	"github.com/playperu/pairchain/internal/config"
	"github.com/playperu/pairchain/internal/database"
	"github.com/playperu/pairchain/internal/gameboard"
	"github.com/playperu/pairchain/internal/handler/health"
	"github.com/playperu/pairchain/internal/leaderboard"
	"github.com/playperu/pairchain/internal/memory"
	"github.com/playperu/pairchain/internal/migrations"
	"github.com/playperu/pairchain/internal/server"
	"github.com/playperu/pairchain/internal/wallet"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// --- SQLite ---
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	checks := map[string]health.Checker{
		"sqlite": database.Checker{DB: db},
	}

	// --- Redis (optional leaderboard) ---
	var (
		ranking  server.Ranking
		recorder gameboard.Recorder
	)
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()

		board := leaderboard.New(rdb)
		ranking, recorder = board, board
		checks["redis"] = board
		logger.Info("connected to redis")
	} else {
		logger.Info("REDIS_URL not set, leaderboard disabled")
	}

	// --- Chain ---
	var (
		ledger  gameboard.Ledger = chain.Disabled{}
		chainID                  = big.NewInt(cfg.ChainID)
	)
	if cfg.RPCURL != "" {
		bridge, err := chain.Dial(ctx, cfg.RPCURL, cfg.ContractAddress, cfg.ChainID, logger)
		if err != nil {
			return fmt.Errorf("connecting to chain: %w", err)
		}
		defer bridge.Close()

		ledger, chainID = bridge, bridge.ChainID()
		checks["chain"] = bridge
		logger.Info("connected to chain", "rpc", cfg.RPCURL, "contract", cfg.ContractAddress, "chain_id", chainID)
	} else {
		logger.Info("RPC_URL not set, chain sync disabled")
	}

	// --- Wallet ---
	w, err := openWallet(cfg, chainID)
	if err != nil {
		return fmt.Errorf("opening wallet: %w", err)
	}

	// --- Game board ---
	images := cfg.Images()
	if images == nil {
		images = memory.DefaultImages(cfg.MaxPairs)
	}

	broker := server.NewBroker()
	games := gameboard.New(logger, w, ledger, server.NewSQLiteStore(db), gameboard.Options{
		Images:         images,
		DefaultPairs:   cfg.DefaultPairs,
		ConfirmTimeout: cfg.ConfirmTimeout,
		ConfirmWorkers: cfg.ConfirmWorkers,
		IdleTimeout:    cfg.IdleTimeout,
		Events:         broker,
		Leaderboard:    recorder,
	})

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Games:   games,
		Broker:  broker,
		Ranking: ranking,
		Checks:  checks,
		SPADir:  cfg.SPADir,

		AllowedOrigins: cfg.AllowedOrigins,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	g.Go(func() error {
		return games.Run(gctx)
	})

	return g.Wait()
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// openWallet picks the signer. Without one every player action fails with
// "wallet unavailable", like a browser with no wallet extension.
func openWallet(cfg *config.Config, chainID *big.Int) (wallet.Connector, error) {
	switch {
	case cfg.WalletPrivateKey != "":
		return wallet.NewKeyWallet(cfg.WalletPrivateKey, chainID)
	case cfg.WalletKeystoreDir != "":
		return wallet.NewKeystoreWallet(cfg.WalletKeystoreDir, cfg.WalletKeystorePassword, chainID), nil
	default:
		return wallet.Unavailable{}, nil
	}
}
