package gameboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/playperu/pairchain/internal/chain"
)

type pendingTx struct {
	gameID  string
	receipt chain.Receipt
}

func (s *Service) enqueue(p pendingTx) {
	select {
	case s.pending <- p:
	default:
		s.logger.Warn("confirmation queue full, not tracking", "game", p.gameID, "tx", p.receipt.TxHash.Hex())
	}
}

// Run waits for submitted transactions to be mined and records their
// outcome, with at most ConfirmWorkers waits in flight. It also drops idle
// games from memory. It returns when ctx is done; transactions still
// waiting stay pending.
func (s *Service) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(s.opts.ConfirmWorkers)

	every := min(s.opts.IdleTimeout/2, time.Minute)
	if every <= 0 {
		every = s.opts.IdleTimeout
	}
	sweep := time.NewTicker(every)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return g.Wait()
		case <-sweep.C:
			if n := s.evictIdle(); n > 0 {
				s.logger.Debug("evicted idle games", "count", n, "live", s.LiveGames())
			}
		case p := <-s.pending:
			g.Go(func() error {
				s.confirm(ctx, p)
				return nil
			})
		}
	}
}

func (s *Service) confirm(ctx context.Context, p pendingTx) {
	hash := p.receipt.TxHash.Hex()

	wctx, cancel := context.WithTimeout(ctx, s.opts.ConfirmTimeout)
	defer cancel()

	var (
		status TxStatus
		block  uint64
	)
	c, err := s.ledger.WaitMined(wctx, p.receipt)
	switch {
	case ctx.Err() != nil:
		return
	case err != nil:
		s.logger.Warn("transaction not confirmed", "game", p.gameID, "tx", hash, "error", err)
		status = TxDropped
	case c.Succeeded():
		status, block = TxConfirmed, c.BlockNumber
	default:
		s.logger.Warn("transaction reverted", "game", p.gameID, "tx", hash, "block", c.BlockNumber)
		status, block = TxReverted, c.BlockNumber
	}

	if err := s.store.UpdateTxStatus(ctx, hash, status, block); err != nil {
		s.logger.Error("updating transaction status", "game", p.gameID, "tx", hash, "error", err)
		return
	}
	s.logger.Info("transaction settled", "game", p.gameID, "tx", hash, "status", status, "block", block)
	s.publish(p.gameID, Event{Type: EventTxConfirmed, TxHash: hash, Status: status})
}
