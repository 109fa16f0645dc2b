// Package runtime models the host-chain execution environment the bridge
// programs run in: accounts addressed by 32-byte ed25519 public keys,
// program-derived addresses, and the fixed instruction prefix encoding.
// Every instruction runs to completion against an exclusive borrow of its
// accounts; the host serializes writes per account.
package runtime

import (
	"encoding/hex"
	"errors"
)

// Pubkey is a 32-byte account address.
type Pubkey [32]byte

// String returns the key as a hex string.
func (p Pubkey) String() string {
	return hex.EncodeToString(p[:])
}

// IsZero returns true if every byte of the key is zero.
func (p Pubkey) IsZero() bool {
	return p == Pubkey{}
}

// PubkeyFromBytes copies a 32-byte slice into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	var p Pubkey
	if len(b) != 32 {
		return p, errors.New("pubkey must be 32 bytes")
	}
	copy(p[:], b)
	return p, nil
}

// Account errors.
var (
	ErrInvalidAccountKey = errors.New("invalid account key")
	ErrIllegalOwner      = errors.New("account owned by the wrong program")
	ErrMissingSignature  = errors.New("missing required signature")
	ErrAccountTooSmall   = errors.New("account data too small")
)

// Account is a host-chain account: an address, the program that owns its
// data, and the raw data bytes.
type Account struct {
	Key   Pubkey
	Owner Pubkey
	Data  []byte
}

// Resize grows or shrinks the account data, preserving the prefix.
func (a *Account) Resize(size int) {
	if size == len(a.Data) {
		return
	}
	next := make([]byte, size)
	copy(next, a.Data)
	a.Data = next
}

// AssertOwner fails with ErrIllegalOwner unless the account is owned by
// the given program.
func (a *Account) AssertOwner(program Pubkey) error {
	if a.Owner != program {
		return ErrIllegalOwner
	}
	return nil
}

// Signers is the set of keys that signed the current transaction.
type Signers map[Pubkey]bool

// NewSigners builds a signer set.
func NewSigners(keys ...Pubkey) Signers {
	s := make(Signers, len(keys))
	for _, k := range keys {
		s[k] = true
	}
	return s
}

// Signed returns true if the key signed the transaction.
func (s Signers) Signed(key Pubkey) bool {
	return s[key]
}

// Require fails with ErrMissingSignature unless the key signed.
func (s Signers) Require(key Pubkey) error {
	if !s[key] {
		return ErrMissingSignature
	}
	return nil
}
