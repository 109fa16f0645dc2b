package zk

import (
	"encoding/binary"
	"errors"
	"math/big"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// testVerifyingKey builds a degenerate but pairing-consistent key: with
// alpha = a*G1, beta = b*G2 and everything else constructed from known
// scalars, we can forge a valid proof for any public input and exercise the
// full verification path without a circuit compiler.
func testVerifyingKey(t *testing.T) (*VerifyingKey, func(publicInput [32]byte) []byte) {
	t.Helper()

	_, _, g1, g2 := bn254.Generators()

	scalar := func(n int64) *big.Int { return big.NewInt(n) }

	var vk VerifyingKey
	vk.Alpha.ScalarMultiplication(&g1, scalar(3))
	vk.Beta.ScalarMultiplication(&g2, scalar(5))
	vk.Gamma.ScalarMultiplication(&g2, scalar(7))
	vk.Delta.ScalarMultiplication(&g2, scalar(11))
	vk.K[0].ScalarMultiplication(&g1, scalar(13))
	vk.K[1].ScalarMultiplication(&g1, scalar(17))

	// A valid proof satisfies e(A,B) = e(alpha,beta) e(Kx,gamma) e(C,delta).
	// Choose B = G2 and C = G1; then A = (15 + 7*(13+17u) + 11) * G1.
	forge := func(publicInput [32]byte) []byte {
		var u fr.Element
		u.SetBytes(publicInput[:])
		uBig := u.BigInt(new(big.Int))

		exp := new(big.Int).Mul(big.NewInt(17), uBig)
		exp.Add(exp, big.NewInt(13))
		exp.Mul(exp, big.NewInt(7))
		exp.Add(exp, big.NewInt(15+11))

		exp.Mod(exp, fr.Modulus())

		var a bn254.G1Affine
		a.ScalarMultiplication(&g1, exp)

		proof := make([]byte, ProofSize)
		binary.LittleEndian.PutUint32(proof[0:4], proofVersion)
		aRaw := a.RawBytes()
		copy(proof[4:68], aRaw[:])
		bRaw := g2.RawBytes()
		copy(proof[68:196], bRaw[:])
		cRaw := g1.RawBytes()
		copy(proof[196:260], cRaw[:])
		return proof
	}

	return &vk, forge
}

func TestVerifyingKeyRoundTrip(t *testing.T) {
	vk, _ := testVerifyingKey(t)

	data := vk.Marshal()
	if len(data) != vkSerializedSize {
		t.Fatalf("serialized key size = %d, want %d", len(data), vkSerializedSize)
	}

	got, err := UnmarshalVerifyingKey(data)
	if err != nil {
		t.Fatalf("UnmarshalVerifyingKey() error = %v", err)
	}
	if got.ID() != vk.ID() {
		t.Error("key id changed across serialization")
	}

	if _, err := UnmarshalVerifyingKey(data[:100]); !errors.Is(err, ErrMalformedVK) {
		t.Errorf("truncated key error = %v, want ErrMalformedVK", err)
	}
}

func TestGroth16VerifyAcceptsForgedProof(t *testing.T) {
	vk, forge := testVerifyingKey(t)
	verifier := NewGroth16Verifier()
	id := verifier.Register(vk)

	var input [32]byte
	input[0] = 0x42
	proof := forge(input)

	if err := verifier.Verify(id, proof, input); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
}

func TestGroth16VerifyRejects(t *testing.T) {
	vk, forge := testVerifyingKey(t)
	verifier := NewGroth16Verifier()
	id := verifier.Register(vk)

	var input [32]byte
	input[5] = 9
	proof := forge(input)

	t.Run("wrong public input", func(t *testing.T) {
		var other [32]byte
		other[5] = 10
		if err := verifier.Verify(id, proof, other); !errors.Is(err, ErrProofInvalid) {
			t.Errorf("error = %v, want ErrProofInvalid", err)
		}
	})

	t.Run("wrong size", func(t *testing.T) {
		if err := verifier.Verify(id, proof[:ProofSize-1], input); !errors.Is(err, ErrProofSize) {
			t.Errorf("error = %v, want ErrProofSize", err)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		var bogus KeyID
		bogus[0] = 0xff
		if err := verifier.Verify(bogus, proof, input); !errors.Is(err, ErrUnknownKey) {
			t.Errorf("error = %v, want ErrUnknownKey", err)
		}
	})

	t.Run("wrong version", func(t *testing.T) {
		bad := append([]byte(nil), proof...)
		binary.LittleEndian.PutUint32(bad[0:4], 9)
		if err := verifier.Verify(id, bad, input); !errors.Is(err, ErrProofVersion) {
			t.Errorf("error = %v, want ErrProofVersion", err)
		}
	})

	t.Run("garbage points", func(t *testing.T) {
		bad := append([]byte(nil), proof...)
		for i := 4; i < 68; i++ {
			bad[i] = 0xff
		}
		if err := verifier.Verify(id, bad, input); !errors.Is(err, ErrMalformedProof) {
			t.Errorf("error = %v, want ErrMalformedProof", err)
		}
	})
}

func TestStubVerifier(t *testing.T) {
	stub := &StubVerifier{}
	var input [32]byte
	proof := make([]byte, ProofSize)

	if err := stub.Verify(BlockUpdateKeyID, proof, input); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if len(stub.Calls) != 1 || stub.Calls[0].KeyID != BlockUpdateKeyID {
		t.Error("stub did not record the call")
	}
	if err := stub.Verify(BlockUpdateKeyID, proof[:10], input); !errors.Is(err, ErrProofSize) {
		t.Errorf("short proof error = %v, want ErrProofSize", err)
	}
}

func TestBuildTimeKeyIDsDistinct(t *testing.T) {
	ids := []KeyID{BlockUpdateKeyID, ReorgUpdateKeyID, WithdrawalKeyID}
	for i := range ids {
		for j := i + 1; j < len(ids); j++ {
			if ids[i] == ids[j] {
				t.Errorf("key ids %d and %d are equal", i, j)
			}
		}
	}
}
