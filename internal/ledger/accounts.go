package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/psy-protocol/doge-bridge/internal/runtime"
	"github.com/psy-protocol/doge-bridge/pkg/helpers"
)

// SaveAccount upserts a program account's bytes.
func (s *Store) SaveAccount(acct *runtime.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO accounts (key, owner, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			owner = excluded.owner,
			data = excluded.data,
			updated_at = excluded.updated_at
	`, acct.Key.String(), acct.Owner.String(), acct.Data, time.Now().Unix())

	if err != nil {
		return fmt.Errorf("failed to save account %s: %w", acct.Key, err)
	}
	return nil
}

// LoadAccount reads a program account by key. A missing account returns
// (nil, nil).
func (s *Store) LoadAccount(key runtime.Pubkey) (*runtime.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ownerHex string
	var data []byte
	err := s.db.QueryRow(`
		SELECT owner, data FROM accounts WHERE key = ?
	`, key.String()).Scan(&ownerHex, &data)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account %s: %w", key, err)
	}

	ownerBytes, err := helpers.HexToHash32(ownerHex)
	if err != nil {
		return nil, fmt.Errorf("corrupt owner for account %s: %w", key, err)
	}

	return &runtime.Account{Key: key, Owner: runtime.Pubkey(ownerBytes), Data: data}, nil
}

// AccountsOwnedBy lists the keys of all accounts owned by a program.
func (s *Store) AccountsOwnedBy(owner runtime.Pubkey) ([]runtime.Pubkey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT key FROM accounts WHERE owner = ? ORDER BY key
	`, owner.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var keys []runtime.Pubkey
	for rows.Next() {
		var keyHex string
		if err := rows.Scan(&keyHex); err != nil {
			return nil, err
		}
		kb, err := helpers.HexToHash32(keyHex)
		if err != nil {
			return nil, fmt.Errorf("corrupt account key %q: %w", keyHex, err)
		}
		keys = append(keys, runtime.Pubkey(kb))
	}
	return keys, rows.Err()
}

// DeleteAccount removes a program account.
func (s *Store) DeleteAccount(key runtime.Pubkey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM accounts WHERE key = ?`, key.String())
	return err
}
