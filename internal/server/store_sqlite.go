package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/playperu/pairchain/internal/gameboard"
	"github.com/playperu/pairchain/internal/memory"
)

const timeLayout = "2006-01-02T15:04:05.000Z"

// SQLiteStore keeps game sessions as JSONB documents and contract calls
// as plain rows.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) SaveSession(ctx context.Context, sess *memory.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encoding game: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO games (id, player, pairs, won, data)
		VALUES (?, ?, ?, ?, jsonb(?))
		ON CONFLICT (id) DO UPDATE SET
			player = excluded.player,
			pairs = excluded.pairs,
			won = excluded.won,
			data = excluded.data,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, sess.ID, sess.Player, sess.Pairs, boolInt(sess.Won), string(data))
	return err
}

func (s *SQLiteStore) LoadSession(ctx context.Context, id string) (*memory.Session, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT json(data) FROM games WHERE id = ?`, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, gameboard.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess memory.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decoding game %s: %w", id, err)
	}
	return &sess, nil
}

func (s *SQLiteStore) RecordTx(ctx context.Context, tx gameboard.Tx) error {
	status := tx.Status
	if status == "" {
		status = gameboard.TxPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_txs (hash, game_id, method, card_id, pairs, sender, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, nullString(tx.Hash), tx.GameID, tx.Method, nullInt(tx.CardID), nullInt(tx.Pairs), tx.Sender,
		string(status), nullString(tx.Error), tx.CreatedAt.UTC().Format(timeLayout))
	return err
}

func (s *SQLiteStore) UpdateTxStatus(ctx context.Context, hash string, status gameboard.TxStatus, block uint64) error {
	var bn sql.NullInt64
	if block > 0 {
		bn = sql.NullInt64{Int64: int64(block), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE chain_txs SET status = ?, block_number = ? WHERE hash = ?`,
		string(status), bn, hash,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return gameboard.ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListTxs(ctx context.Context, gameID string) ([]gameboard.Tx, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT hash, game_id, method, card_id, pairs, sender, status, block_number, error, created_at
		FROM chain_txs
		WHERE game_id = ?
		ORDER BY created_at, id
	`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []gameboard.Tx
	for rows.Next() {
		var (
			tx           gameboard.Tx
			hash         sql.NullString
			txErr        sql.NullString
			cardID       sql.NullInt64
			pairs        sql.NullInt64
			block        sql.NullInt64
			status       string
			createdAtRaw string
		)
		if err := rows.Scan(&hash, &tx.GameID, &tx.Method, &cardID, &pairs,
			&tx.Sender, &status, &block, &txErr, &createdAtRaw); err != nil {
			return nil, err
		}
		tx.Hash = hash.String
		tx.Error = txErr.String
		tx.Status = gameboard.TxStatus(status)
		tx.CardID = intPtr(cardID)
		tx.Pairs = intPtr(pairs)
		if block.Valid {
			b := uint64(block.Int64)
			tx.BlockNumber = &b
		}
		if t, err := time.Parse(timeLayout, createdAtRaw); err == nil {
			tx.CreatedAt = t
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}
