package ledger

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
)

// OutboxEntry is one signed Dogecoin transaction awaiting (or past) gossip
// delivery.
type OutboxEntry struct {
	ID           string
	Nonce        uint32
	Sighash      merkle.Hash
	Payload      []byte
	CreatedAt    int64
	PublishedAt  *int64
	PublishCount int
}

// EnqueueTx records a signed transaction in the outbox and returns its id.
func (s *Store) EnqueueTx(nonce uint32, sighash merkle.Hash, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.Exec(`
		INSERT INTO tx_outbox (id, nonce, sighash, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, nonce, sighash.String(), payload, time.Now().Unix())

	if err != nil {
		return "", fmt.Errorf("failed to enqueue tx: %w", err)
	}
	return id, nil
}

// PendingTxs returns unpublished outbox entries, oldest first.
func (s *Store) PendingTxs(limit int) ([]*OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, nonce, sighash, payload, created_at, published_at, publish_count
		FROM tx_outbox
		WHERE published_at IS NULL
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending txs: %w", err)
	}
	defer rows.Close()

	return scanOutboxEntries(rows)
}

// MarkPublished records a successful gossip publish.
func (s *Store) MarkPublished(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE tx_outbox
		SET published_at = ?, publish_count = publish_count + 1
		WHERE id = ?
	`, time.Now().Unix(), id)
	return err
}

// TxBySighash looks up the most recent outbox entry for a sighash. A missing
// entry returns (nil, nil).
func (s *Store) TxBySighash(sighash merkle.Hash) (*OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, nonce, sighash, payload, created_at, published_at, publish_count
		FROM tx_outbox
		WHERE sighash = ?
		ORDER BY created_at DESC
		LIMIT 1
	`, sighash.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := scanOutboxEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

// CleanupPublished removes published entries older than the cutoff.
func (s *Store) CleanupPublished(olderThan int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		DELETE FROM tx_outbox
		WHERE published_at IS NOT NULL AND created_at < ?
	`, olderThan)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanOutboxEntries(rows *sql.Rows) ([]*OutboxEntry, error) {
	var entries []*OutboxEntry

	for rows.Next() {
		var e OutboxEntry
		var sighashHex string
		var publishedAt sql.NullInt64

		err := rows.Scan(&e.ID, &e.Nonce, &sighashHex, &e.Payload, &e.CreatedAt,
			&publishedAt, &e.PublishCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox entry: %w", err)
		}

		raw, err := hex.DecodeString(sighashHex)
		if err != nil || len(raw) != 32 {
			return nil, fmt.Errorf("corrupt sighash %q", sighashHex)
		}
		copy(e.Sighash[:], raw)

		if publishedAt.Valid {
			e.PublishedAt = &publishedAt.Int64
		}
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}
