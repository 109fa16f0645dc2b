package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/psy-protocol/doge-bridge/internal/runtime"
)

// ErrInsufficientBalance is returned when a burn exceeds the holder's
// wrapped-DOGE balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// TokenBook is the persistent wrapped-DOGE balance book. It satisfies the
// bridge's TokenMinter and TokenBurner capabilities.
type TokenBook struct {
	store *Store
}

// TokenBook returns the balance book backed by this store.
func (s *Store) TokenBook() *TokenBook {
	return &TokenBook{store: s}
}

// MintTo credits the recipient.
func (b *TokenBook) MintTo(recipient runtime.Pubkey, amount uint64) error {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO balances (holder, amount, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(holder) DO UPDATE SET
			amount = amount + excluded.amount,
			updated_at = excluded.updated_at
	`, recipient.String(), int64(amount), time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to mint to %s: %w", recipient, err)
	}
	return nil
}

// Burn debits the holder, refusing to go negative.
func (b *TokenBook) Burn(holder runtime.Pubkey, amount uint64) error {
	s := b.store
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE balances
		SET amount = amount - ?, updated_at = ?
		WHERE holder = ? AND amount >= ?
	`, int64(amount), time.Now().Unix(), holder.String(), int64(amount))
	if err != nil {
		return fmt.Errorf("failed to burn from %s: %w", holder, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// Balance reads the holder's current balance; unknown holders are zero.
func (b *TokenBook) Balance(holder runtime.Pubkey) (uint64, error) {
	s := b.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var amount int64
	err := s.db.QueryRow(`
		SELECT amount FROM balances WHERE holder = ?
	`, holder.String()).Scan(&amount)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(amount), nil
}

// TotalSupply sums all balances.
func (b *TokenBook) TotalSupply() (uint64, error) {
	s := b.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total sql.NullInt64
	if err := s.db.QueryRow(`SELECT SUM(amount) FROM balances`).Scan(&total); err != nil {
		return 0, err
	}
	return uint64(total.Int64), nil
}
