// Package merkle implements the SHA-256 hash primitives and the fixed-height
// append-only Merkle tree that anchor every commitment in the bridge: spent
// TXOs, manual deposits, requested withdrawals, and sent transactions.
package merkle

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"golang.org/x/crypto/ripemd160"
)

// Hash is a 32-byte SHA-256 output.
type Hash [32]byte

// Hash160 is a 20-byte RIPEMD-160(SHA-256(x)) output, as used for
// Dogecoin public key hashes.
type Hash160 [20]byte

// String returns the hash as a hex string.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero returns true if every byte of the hash is zero.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Sum256 hashes arbitrary bytes with SHA-256.
func Sum256(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// HashTwo computes the two-to-one SHA-256 hash over the 64-byte
// concatenation of left and right.
func HashTwo(left, right Hash) Hash {
	var buf [64]byte
	copy(buf[:32], left[:])
	copy(buf[32:], right[:])
	return Hash(sha256.Sum256(buf[:]))
}

// DoubleSum256 computes the Dogecoin double SHA-256 of data, the sighash
// of a serialized transaction.
func DoubleSum256(data []byte) Hash {
	return Hash(chainhash.DoubleHashB(data))
}

// Sum160 computes RIPEMD-160(SHA-256(data)), the Dogecoin hash160.
func Sum160(data []byte) Hash160 {
	first := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(first[:])
	var out Hash160
	copy(out[:], r.Sum(nil))
	return out
}

// zeroHashes[i] is the root of a fully-zero subtree of height i.
var zeroHashes [TreeHeight + 1]Hash

func init() {
	for i := 0; i < TreeHeight; i++ {
		zeroHashes[i+1] = HashTwo(zeroHashes[i], zeroHashes[i])
	}
}

// ZeroHash returns the root of a fully-zero subtree of the given height.
// Height 0 is the all-zero leaf; height TreeHeight is the empty tree root.
func ZeroHash(height int) Hash {
	return zeroHashes[height]
}
