package runtime

import "errors"

// PrefixSize is the fixed size of the instruction prefix. Byte 4 carries
// the discriminator; bytes 5..7 carry bump seeds for up to three optional
// buffer PDAs. Bytes 0..3 and any unused bump byte mirror the
// discriminator so the prefix is never sparse.
const PrefixSize = 8

// MaxPrefixBumps is the number of bump slots in the prefix.
const MaxPrefixBumps = 3

// ErrShortInstruction is returned when instruction data cannot hold the prefix.
var ErrShortInstruction = errors.New("instruction data shorter than prefix")

// EncodePrefix builds the 8-byte instruction prefix.
func EncodePrefix(discriminator uint8, bumps ...uint8) [PrefixSize]byte {
	var prefix [PrefixSize]byte
	for i := range prefix {
		prefix[i] = discriminator
	}
	for i, bump := range bumps {
		if i >= MaxPrefixBumps {
			break
		}
		prefix[5+i] = bump
	}
	return prefix
}

// Prefix is a decoded instruction prefix. The decoder cannot tell how many
// bump slots are live; each handler reads the slots it expects.
type Prefix struct {
	Discriminator uint8
	BumpSlots     [MaxPrefixBumps]uint8
}

// DecodePrefix splits instruction data into its prefix and body.
func DecodePrefix(data []byte) (Prefix, []byte, error) {
	if len(data) < PrefixSize {
		return Prefix{}, nil, ErrShortInstruction
	}
	var p Prefix
	p.Discriminator = data[4]
	copy(p.BumpSlots[:], data[5:8])
	return p, data[PrefixSize:], nil
}
