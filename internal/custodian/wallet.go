// Package custodian describes the Dogecoin multisig custodian wallet the
// bridge deposits into. The bridge core never signs or spends; it only
// commits to the wallet configuration through its hash and renders
// addresses for operators.
package custodian

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
)

// Wallet limits. Dogecoin standardness caps bare multisig at 15 keys; the
// custodian fleet stays well inside that.
const (
	MinKeys = 1
	MaxKeys = 15
)

// Wallet config errors.
var (
	ErrNoKeys            = errors.New("custodian wallet has no public keys")
	ErrTooManyKeys       = errors.New("custodian wallet has too many public keys")
	ErrBadThreshold      = errors.New("custodian threshold out of range")
	ErrInvalidPublicKey  = errors.New("invalid custodian public key")
	ErrDuplicatePublicKey = errors.New("duplicate custodian public key")
)

// DogeMainNetParams carries the Dogecoin mainnet address prefixes. Only the
// fields used for address encoding are populated.
var DogeMainNetParams = chaincfg.Params{
	Name:             "doge",
	PubKeyHashAddrID: 0x1e, // D...
	ScriptHashAddrID: 0x16, // 9... / A...
	PrivateKeyID:     0x9e,
}

// DogeTestNetParams carries the Dogecoin testnet address prefixes.
var DogeTestNetParams = chaincfg.Params{
	Name:             "doge-testnet",
	PubKeyHashAddrID: 0x71, // n...
	ScriptHashAddrID: 0xc4,
	PrivateKeyID:     0xf1,
}

// WalletConfig is an M-of-N custodian multisig description. Keys are
// 33-byte compressed secp256k1 points in signing-fleet order.
type WalletConfig struct {
	RequiredSignatures uint8
	PublicKeys         [][33]byte
}

// Validate checks the threshold and parses every key onto the curve.
func (w *WalletConfig) Validate() error {
	n := len(w.PublicKeys)
	if n < MinKeys {
		return ErrNoKeys
	}
	if n > MaxKeys {
		return ErrTooManyKeys
	}
	if w.RequiredSignatures < 1 || int(w.RequiredSignatures) > n {
		return ErrBadThreshold
	}

	seen := make(map[[33]byte]bool, n)
	for i, key := range w.PublicKeys {
		if seen[key] {
			return fmt.Errorf("%w: key %d", ErrDuplicatePublicKey, i)
		}
		seen[key] = true
		if _, err := btcec.ParsePubKey(key[:]); err != nil {
			return fmt.Errorf("%w: key %d: %v", ErrInvalidPublicKey, i, err)
		}
	}
	return nil
}

// Serialize writes the canonical byte form committed to by the bridge:
// threshold (1 B), key count (1 B), then the compressed keys in order.
func (w *WalletConfig) Serialize() []byte {
	buf := make([]byte, 0, 2+33*len(w.PublicKeys))
	buf = append(buf, w.RequiredSignatures, uint8(len(w.PublicKeys)))
	for _, key := range w.PublicKeys {
		buf = append(buf, key[:]...)
	}
	return buf
}

// Hash returns the SHA-256 of the canonical serialization. This is the
// custodian_wallet_config_hash the bridge binds into every block-update
// proof.
func (w *WalletConfig) Hash() merkle.Hash {
	return merkle.Hash(sha256.Sum256(w.Serialize()))
}

// RedeemScript builds the bare M-of-N CHECKMULTISIG redeem script.
func (w *WalletConfig) RedeemScript() ([]byte, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(w.RequiredSignatures))
	for _, key := range w.PublicKeys {
		builder.AddData(key[:])
	}
	builder.AddInt64(int64(len(w.PublicKeys)))
	builder.AddOp(txscript.OP_CHECKMULTISIG)
	return builder.Script()
}

// ScriptHash returns the hash160 of the redeem script.
func (w *WalletConfig) ScriptHash() (merkle.Hash160, error) {
	script, err := w.RedeemScript()
	if err != nil {
		return merkle.Hash160{}, err
	}
	return merkle.Sum160(script), nil
}

// Address renders the custodian deposit address (P2SH) for a network.
func (w *WalletConfig) Address(params *chaincfg.Params) (string, error) {
	scriptHash, err := w.ScriptHash()
	if err != nil {
		return "", err
	}
	addr, err := btcutil.NewAddressScriptHashFromHash(scriptHash[:], params)
	if err != nil {
		return "", fmt.Errorf("failed to create P2SH address: %w", err)
	}
	return addr.EncodeAddress(), nil
}

// P2PKHAddress renders a plain key-hash address, used to display the
// bridge's return-output key hash.
func P2PKHAddress(keyHash merkle.Hash160, params *chaincfg.Params) (string, error) {
	addr, err := btcutil.NewAddressPubKeyHash(keyHash[:], params)
	if err != nil {
		return "", fmt.Errorf("failed to create P2PKH address: %w", err)
	}
	return addr.EncodeAddress(), nil
}
