package server

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/playperu/pairchain/internal/database"
	"github.com/playperu/pairchain/internal/gameboard"
	"github.com/playperu/pairchain/internal/memory"
	"github.com/playperu/pairchain/internal/migrations"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := database.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return NewSQLiteStore(db)
}

func newTestSession(t *testing.T, id string) *memory.Session {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess, err := memory.NewSession(id, testPlayer.Hex(), 3, memory.DefaultImages(12), rand.New(rand.NewPCG(7, 7)), now)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	return sess
}

func TestSQLiteStoreSessions(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.LoadSession(ctx, "nope"); !errors.Is(err, gameboard.ErrNotFound) {
		t.Fatalf("load missing = %v, want ErrNotFound", err)
	}

	sess := newTestSession(t, "g1")
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := sess.Click(0, sess.StartedAt.Add(time.Second)); err != nil {
		t.Fatalf("click: %v", err)
	}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("save update: %v", err)
	}

	got, err := store.LoadSession(ctx, "g1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Player != sess.Player || got.Pairs != 3 || len(got.Cards) != 6 {
		t.Errorf("loaded = %+v", got)
	}
	if !got.Cards[0].Flipped || !got.Selection.Has(0) {
		t.Errorf("click not persisted: card0=%+v selection=%+v", got.Cards[0], got.Selection)
	}
	for i, c := range got.Cards {
		if c.Image != sess.Cards[i].Image {
			t.Errorf("card %d image = %q, want %q", i, c.Image, sess.Cards[i].Image)
		}
	}
	if !got.StartedAt.Equal(sess.StartedAt) {
		t.Errorf("started at = %v, want %v", got.StartedAt, sess.StartedAt)
	}
}

func TestSQLiteStoreTxs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.SaveSession(ctx, newTestSession(t, "g1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	pairs, card := 3, 4
	txs := []gameboard.Tx{
		{Hash: "0x01", GameID: "g1", Method: "initializeGame", Pairs: &pairs, Sender: testPlayer.Hex(), CreatedAt: created},
		{Hash: "0x02", GameID: "g1", Method: "revealCard", CardID: &card, Sender: testPlayer.Hex(), CreatedAt: created},
	}
	for _, tx := range txs {
		if err := store.RecordTx(ctx, tx); err != nil {
			t.Fatalf("record %s: %v", tx.Hash, err)
		}
	}

	// Unknown games are rejected by the foreign key.
	if err := store.RecordTx(ctx, gameboard.Tx{Hash: "0x03", GameID: "nope", Method: "revealCard", Sender: "x", CreatedAt: created}); err == nil {
		t.Error("recorded a tx for a missing game")
	}

	if err := store.UpdateTxStatus(ctx, "0x02", gameboard.TxConfirmed, 17); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := store.UpdateTxStatus(ctx, "0xff", gameboard.TxDropped, 0); !errors.Is(err, gameboard.ErrNotFound) {
		t.Errorf("update missing = %v, want ErrNotFound", err)
	}

	got, err := store.ListTxs(ctx, "g1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d txs, want 2", len(got))
	}

	first, second := got[0], got[1]
	if first.Hash != "0x01" || first.Status != gameboard.TxPending || first.BlockNumber != nil {
		t.Errorf("first = %+v", first)
	}
	if first.Pairs == nil || *first.Pairs != 3 || first.CardID != nil {
		t.Errorf("first args pairs=%v card=%v", first.Pairs, first.CardID)
	}
	if !first.CreatedAt.Equal(created) {
		t.Errorf("created at = %v, want %v", first.CreatedAt, created)
	}
	if second.Status != gameboard.TxConfirmed || second.BlockNumber == nil || *second.BlockNumber != 17 {
		t.Errorf("second = %+v", second)
	}
	if second.CardID == nil || *second.CardID != 4 {
		t.Errorf("second card = %v", second.CardID)
	}

	empty, err := store.ListTxs(ctx, "other")
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("other game has %d txs", len(empty))
	}
}

func TestSQLiteStoreFailedTxs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.SaveSession(ctx, newTestSession(t, "g1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	card := 2
	// Two refused calls both lack a hash; neither may collide with the other.
	for i := range 2 {
		tx := gameboard.Tx{
			GameID:    "g1",
			Method:    "revealCard",
			CardID:    &card,
			Sender:    testPlayer.Hex(),
			Status:    gameboard.TxFailed,
			Error:     "insufficient funds for gas",
			CreatedAt: created.Add(time.Duration(i) * time.Second),
		}
		if err := store.RecordTx(ctx, tx); err != nil {
			t.Fatalf("record failed tx %d: %v", i, err)
		}
	}
	if err := store.RecordTx(ctx, gameboard.Tx{Hash: "0x01", GameID: "g1", Method: "revealCard", Sender: testPlayer.Hex(), CreatedAt: created.Add(time.Minute)}); err != nil {
		t.Fatalf("record sent tx: %v", err)
	}
	if err := store.RecordTx(ctx, gameboard.Tx{Hash: "0x01", GameID: "g1", Method: "revealCard", Sender: testPlayer.Hex(), CreatedAt: created}); err == nil {
		t.Error("recorded the same hash twice")
	}

	got, err := store.ListTxs(ctx, "g1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d txs, want 3", len(got))
	}
	for _, tx := range got[:2] {
		if tx.Hash != "" || tx.Status != gameboard.TxFailed || tx.Error != "insufficient funds for gas" {
			t.Errorf("failed tx = %+v", tx)
		}
	}
	if got[2].Hash != "0x01" || got[2].Error != "" || got[2].Status != gameboard.TxPending {
		t.Errorf("sent tx = %+v", got[2])
	}
}
