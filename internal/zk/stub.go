package zk

// StubVerifier is a test verifier that records calls and returns a fixed
// result. It still enforces the blob sizes so size bugs surface in tests.
type StubVerifier struct {
	Err   error
	Calls []StubCall
}

// StubCall records one Verify invocation.
type StubCall struct {
	KeyID       KeyID
	Proof       []byte
	PublicInput [32]byte
}

// Verify implements Verifier.
func (s *StubVerifier) Verify(keyID KeyID, proof []byte, publicInput [32]byte) error {
	if len(proof) != ProofSize {
		return ErrProofSize
	}
	s.Calls = append(s.Calls, StubCall{KeyID: keyID, Proof: append([]byte(nil), proof...), PublicInput: publicInput})
	return s.Err
}
