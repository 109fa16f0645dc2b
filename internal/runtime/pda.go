package runtime

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"
)

// pdaMarker domain-separates program-derived addresses from real keys.
var pdaMarker = []byte("ProgramDerivedAddress")

// PDA derivation errors.
var (
	ErrInvalidSeeds = errors.New("seeds produce an on-curve address")
	ErrNoViableBump = errors.New("no viable bump seed found")
)

// CreateProgramAddress derives the address for the given seeds and bump
// under a program. It fails with ErrInvalidSeeds if the candidate lies on
// the ed25519 curve: a derived address must have no private key.
func CreateProgramAddress(seeds [][]byte, bump uint8, program Pubkey) (Pubkey, error) {
	h := sha256.New()
	for _, seed := range seeds {
		h.Write(seed)
	}
	h.Write([]byte{bump})
	h.Write(program[:])
	h.Write(pdaMarker)

	var candidate Pubkey
	copy(candidate[:], h.Sum(nil))

	if isOnCurve(candidate) {
		return Pubkey{}, ErrInvalidSeeds
	}
	return candidate, nil
}

// FindProgramAddress searches bump seeds from 255 downward for the first
// off-curve derived address.
func FindProgramAddress(seeds [][]byte, program Pubkey) (Pubkey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := CreateProgramAddress(seeds, uint8(bump), program)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return Pubkey{}, 0, ErrNoViableBump
}

// isOnCurve reports whether the 32 bytes decode to a point on the ed25519
// curve. Roughly half of all byte strings do.
func isOnCurve(key Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(key[:])
	return err == nil
}
