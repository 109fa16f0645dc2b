// Package zk verifies the zero-knowledge proofs that gate bridge state
// transitions. The core hands the verifier an opaque 260-byte proof blob, a
// 32-byte verifier key id, and a single 32-byte public-input digest; three
// key ids are fixed at build time, one per proved transition.
package zk

import "errors"

const (
	// ProofSize is the exact size of a proof blob: a 4-byte version tag
	// followed by the Groth16 points A (64 B), B (128 B), C (64 B).
	ProofSize = 260

	// KeyIDSize is the size of a verifier key id, the SHA-256 of the
	// serialized verifying key.
	KeyIDSize = 32
)

// Verification errors.
var (
	ErrProofSize       = errors.New("zk proof must be exactly 260 bytes")
	ErrKeyIDSize       = errors.New("zk verifier key id must be exactly 32 bytes")
	ErrUnknownKey      = errors.New("no verifying key registered for key id")
	ErrProofVersion    = errors.New("unsupported zk proof version")
	ErrMalformedProof  = errors.New("zk proof points are malformed")
	ErrProofInvalid    = errors.New("zk proof does not verify")
	ErrMalformedVK     = errors.New("verifying key bytes are malformed")
)

// KeyID identifies a verifying key.
type KeyID [KeyIDSize]byte

// Build-time verifier key ids, one per proved transition.
var (
	// BlockUpdateKeyID gates single-block updates.
	BlockUpdateKeyID = KeyID{
		0x5b, 0x1d, 0x8f, 0x2a, 0xc4, 0x09, 0x77, 0xe3,
		0x31, 0xa6, 0xd2, 0x48, 0x90, 0x1c, 0xbe, 0x55,
		0x0f, 0x6a, 0x83, 0xf1, 0x2d, 0xc7, 0x19, 0x64,
		0xae, 0x02, 0x5c, 0xd8, 0x4b, 0x97, 0xe0, 0x23,
	}

	// ReorgUpdateKeyID gates reorg fast-forward updates.
	ReorgUpdateKeyID = KeyID{
		0x9c, 0x44, 0x01, 0xee, 0x72, 0x3b, 0xd5, 0x18,
		0x86, 0xf0, 0x2b, 0x9d, 0x63, 0xc8, 0x07, 0x41,
		0xba, 0x5e, 0x12, 0xf9, 0x30, 0x84, 0xcd, 0x26,
		0x78, 0xab, 0x40, 0x15, 0xe9, 0x52, 0x0d, 0xc6,
	}

	// WithdrawalKeyID gates withdrawal processing.
	WithdrawalKeyID = KeyID{
		0x27, 0xb8, 0x6e, 0x13, 0xf5, 0xa0, 0x4c, 0xd9,
		0x61, 0x0a, 0x95, 0x3e, 0xc2, 0x7f, 0x58, 0xb4,
		0x08, 0xd3, 0x47, 0x9a, 0x25, 0xec, 0x71, 0x1f,
		0xc0, 0x36, 0x8b, 0x54, 0xdf, 0x69, 0x92, 0x0e,
	}
)

// Verifier checks a proof against a registered verifying key and a single
// public-input digest.
type Verifier interface {
	Verify(keyID KeyID, proof []byte, publicInput [32]byte) error
}
