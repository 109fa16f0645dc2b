package zk

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// proofVersion is the only proof blob version this verifier accepts.
const proofVersion = 1

// vkSerializedSize is Alpha (64) + Beta/Gamma/Delta (3*128) + K0/K1 (2*64).
const vkSerializedSize = 64 + 3*128 + 2*64

// VerifyingKey is a Groth16-BN254 verifying key specialized to circuits
// with a single public input.
type VerifyingKey struct {
	Alpha bn254.G1Affine
	Beta  bn254.G2Affine
	Gamma bn254.G2Affine
	Delta bn254.G2Affine
	K     [2]bn254.G1Affine
}

// Marshal serializes the key in raw uncompressed point encoding.
func (vk *VerifyingKey) Marshal() []byte {
	buf := make([]byte, 0, vkSerializedSize)
	a := vk.Alpha.RawBytes()
	buf = append(buf, a[:]...)
	for _, p := range []bn254.G2Affine{vk.Beta, vk.Gamma, vk.Delta} {
		b := p.RawBytes()
		buf = append(buf, b[:]...)
	}
	for _, p := range vk.K {
		b := p.RawBytes()
		buf = append(buf, b[:]...)
	}
	return buf
}

// UnmarshalVerifyingKey parses a key serialized by Marshal.
func UnmarshalVerifyingKey(data []byte) (*VerifyingKey, error) {
	if len(data) != vkSerializedSize {
		return nil, fmt.Errorf("%w: want %d bytes, got %d", ErrMalformedVK, vkSerializedSize, len(data))
	}
	vk := &VerifyingKey{}
	off := 0
	if _, err := vk.Alpha.SetBytes(data[off : off+64]); err != nil {
		return nil, fmt.Errorf("%w: alpha: %v", ErrMalformedVK, err)
	}
	off += 64
	for _, p := range []*bn254.G2Affine{&vk.Beta, &vk.Gamma, &vk.Delta} {
		if _, err := p.SetBytes(data[off : off+128]); err != nil {
			return nil, fmt.Errorf("%w: g2 point: %v", ErrMalformedVK, err)
		}
		off += 128
	}
	for i := range vk.K {
		if _, err := vk.K[i].SetBytes(data[off : off+64]); err != nil {
			return nil, fmt.Errorf("%w: k[%d]: %v", ErrMalformedVK, i, err)
		}
		off += 64
	}
	return vk, nil
}

// ID returns the SHA-256 of the serialized key.
func (vk *VerifyingKey) ID() KeyID {
	return KeyID(sha256.Sum256(vk.Marshal()))
}

// Groth16Verifier verifies Groth16-BN254 proofs against keys registered by
// id. It is safe for concurrent use.
type Groth16Verifier struct {
	mu   sync.RWMutex
	keys map[KeyID]*VerifyingKey
}

// NewGroth16Verifier returns a verifier with an empty key registry.
func NewGroth16Verifier() *Groth16Verifier {
	return &Groth16Verifier{keys: make(map[KeyID]*VerifyingKey)}
}

// Register adds a verifying key under its own id.
func (v *Groth16Verifier) Register(vk *VerifyingKey) KeyID {
	id := vk.ID()
	v.mu.Lock()
	v.keys[id] = vk
	v.mu.Unlock()
	return id
}

// Verify checks the pairing equation
//
//	e(A, B) = e(alpha, beta) * e(K0 + u*K1, gamma) * e(C, delta)
//
// where u is the public-input digest reduced into the scalar field.
func (v *Groth16Verifier) Verify(keyID KeyID, proof []byte, publicInput [32]byte) error {
	if len(proof) != ProofSize {
		return ErrProofSize
	}

	v.mu.RLock()
	vk, ok := v.keys[keyID]
	v.mu.RUnlock()
	if !ok {
		return ErrUnknownKey
	}

	if binary.LittleEndian.Uint32(proof[0:4]) != proofVersion {
		return ErrProofVersion
	}

	var a, c bn254.G1Affine
	var b bn254.G2Affine
	if _, err := a.SetBytes(proof[4:68]); err != nil {
		return fmt.Errorf("%w: a: %v", ErrMalformedProof, err)
	}
	if _, err := b.SetBytes(proof[68:196]); err != nil {
		return fmt.Errorf("%w: b: %v", ErrMalformedProof, err)
	}
	if _, err := c.SetBytes(proof[196:260]); err != nil {
		return fmt.Errorf("%w: c: %v", ErrMalformedProof, err)
	}

	var u fr.Element
	u.SetBytes(publicInput[:])
	uBig := u.BigInt(new(big.Int))

	var kx, kTerm bn254.G1Affine
	kTerm.ScalarMultiplication(&vk.K[1], uBig)
	kx.Add(&vk.K[0], &kTerm)

	var negA bn254.G1Affine
	negA.Neg(&a)

	ok, err := bn254.PairingCheck(
		[]bn254.G1Affine{negA, vk.Alpha, kx, c},
		[]bn254.G2Affine{b, vk.Beta, vk.Gamma, vk.Delta},
	)
	if err != nil {
		return fmt.Errorf("%w: pairing: %v", ErrMalformedProof, err)
	}
	if !ok {
		return ErrProofInvalid
	}
	return nil
}
