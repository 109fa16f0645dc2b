package runtime

import (
	"testing"
)

func testKey(n byte) Pubkey {
	var p Pubkey
	p[0] = n
	p[31] = ^n
	return p
}

func TestFindProgramAddressDeterministic(t *testing.T) {
	program := testKey(1)
	seeds := [][]byte{[]byte("bridge_state")}

	addr1, bump1, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatalf("FindProgramAddress() error = %v", err)
	}
	addr2, bump2, err := FindProgramAddress(seeds, program)
	if err != nil {
		t.Fatalf("FindProgramAddress() error = %v", err)
	}
	if addr1 != addr2 || bump1 != bump2 {
		t.Error("FindProgramAddress() is not deterministic")
	}

	// The found bump must reproduce the address through CreateProgramAddress.
	addr3, err := CreateProgramAddress(seeds, bump1, program)
	if err != nil {
		t.Fatalf("CreateProgramAddress() error = %v", err)
	}
	if addr3 != addr1 {
		t.Error("CreateProgramAddress() with found bump differs")
	}

	// Off-curve by construction.
	if isOnCurve(addr1) {
		t.Error("derived address lies on the ed25519 curve")
	}
}

func TestFindProgramAddressSeedsMatter(t *testing.T) {
	program := testKey(1)
	key9 := testKey(9)
	a, _, err := FindProgramAddress([][]byte{[]byte("mint_buffer"), key9[:]}, program)
	if err != nil {
		t.Fatalf("FindProgramAddress() error = %v", err)
	}
	b, _, err := FindProgramAddress([][]byte{[]byte("txo_buffer"), key9[:]}, program)
	if err != nil {
		t.Fatalf("FindProgramAddress() error = %v", err)
	}
	if a == b {
		t.Error("different seed tags derived the same address")
	}

	c, _, err := FindProgramAddress([][]byte{[]byte("mint_buffer"), key9[:]}, testKey(2))
	if err != nil {
		t.Fatalf("FindProgramAddress() error = %v", err)
	}
	if a == c {
		t.Error("different programs derived the same address")
	}
}

func TestIsOnCurve(t *testing.T) {
	// The ed25519 base point y-coordinate encoding is on the curve.
	base := Pubkey{0x58, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66,
		0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66}
	if !isOnCurve(base) {
		t.Error("ed25519 base point reported off curve")
	}
}

func TestPrefixCodec(t *testing.T) {
	tests := []struct {
		name  string
		disc  uint8
		bumps []uint8
	}{
		{"no bumps", 3, nil},
		{"one bump", 1, []uint8{254}},
		{"two bumps", 1, []uint8{254, 251}},
		{"three bumps", 9, []uint8{255, 254, 253}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix := EncodePrefix(tt.disc, tt.bumps...)

			// Bytes 0..3 mirror the discriminator.
			for i := 0; i < 4; i++ {
				if prefix[i] != tt.disc {
					t.Errorf("prefix[%d] = %d, want discriminator %d", i, prefix[i], tt.disc)
				}
			}

			body := []byte{0xaa, 0xbb}
			decoded, rest, err := DecodePrefix(append(prefix[:], body...))
			if err != nil {
				t.Fatalf("DecodePrefix() error = %v", err)
			}
			if decoded.Discriminator != tt.disc {
				t.Errorf("discriminator = %d, want %d", decoded.Discriminator, tt.disc)
			}
			for i, bump := range tt.bumps {
				if decoded.BumpSlots[i] != bump {
					t.Errorf("bump %d = %d, want %d", i, decoded.BumpSlots[i], bump)
				}
			}
			// Unused slots mirror the discriminator.
			for i := len(tt.bumps); i < MaxPrefixBumps; i++ {
				if decoded.BumpSlots[i] != tt.disc {
					t.Errorf("unused bump slot %d = %d, want %d", i, decoded.BumpSlots[i], tt.disc)
				}
			}
			if len(rest) != 2 || rest[0] != 0xaa {
				t.Errorf("body = %x", rest)
			}
		})
	}

	if _, _, err := DecodePrefix([]byte{1, 2, 3}); err != ErrShortInstruction {
		t.Errorf("short data error = %v, want ErrShortInstruction", err)
	}
}

func TestAccountHelpers(t *testing.T) {
	acct := &Account{Key: testKey(1), Owner: testKey(2), Data: []byte{1, 2, 3}}

	if err := acct.AssertOwner(testKey(2)); err != nil {
		t.Errorf("AssertOwner() error = %v", err)
	}
	if err := acct.AssertOwner(testKey(3)); err != ErrIllegalOwner {
		t.Errorf("AssertOwner() wrong owner error = %v, want ErrIllegalOwner", err)
	}

	acct.Resize(6)
	if len(acct.Data) != 6 || acct.Data[0] != 1 {
		t.Errorf("Resize() data = %x", acct.Data)
	}
	acct.Resize(2)
	if len(acct.Data) != 2 || acct.Data[1] != 2 {
		t.Errorf("Resize() shrink data = %x", acct.Data)
	}

	signers := NewSigners(testKey(5))
	if !signers.Signed(testKey(5)) {
		t.Error("Signed() = false for signer")
	}
	if err := signers.Require(testKey(6)); err != ErrMissingSignature {
		t.Errorf("Require() error = %v, want ErrMissingSignature", err)
	}
}
