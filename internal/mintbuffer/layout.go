// Package mintbuffer implements the companion program that stages a batch
// of auto-claimed deposits for the bridge. The operator fills the buffer
// group by group, the bridge locks it during a block update, and the last
// drained group releases it for reuse.
package mintbuffer

import (
	"encoding/binary"
	"errors"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
)

const (
	// HeaderSize is the fixed buffer header size.
	HeaderSize = 72

	// GroupSize is the maximum number of pending mints per group.
	GroupSize = 24

	// RecordSize is the serialized size of one PendingMint.
	RecordSize = 40

	// GroupHashSize is the size of one per-group digest slot.
	GroupHashSize = 32

	// MaxResizeChunk caps how much a single call may grow the account.
	MaxResizeChunk = 10 * 1024

	// SeedTag is the PDA seed tag for mint buffer accounts.
	SeedTag = "mint_buffer"
)

// ErrShortBuffer is returned when the account cannot hold the header or the
// addressed body range.
var ErrShortBuffer = errors.New("mint buffer account too small")

// PendingMint is one staged deposit credit: a recipient token account and
// an amount in satoshis.
type PendingMint struct {
	Recipient runtime.Pubkey
	Amount    uint64
}

// MarshalBinary serializes the 40-byte record.
func (m *PendingMint) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	copy(buf[0:32], m.Recipient[:])
	binary.LittleEndian.PutUint64(buf[32:40], m.Amount)
	return buf, nil
}

// UnmarshalBinary parses a 40-byte record.
func (m *PendingMint) UnmarshalBinary(data []byte) error {
	if len(data) != RecordSize {
		return errors.New("pending mint record must be 40 bytes")
	}
	copy(m.Recipient[:], data[0:32])
	m.Amount = binary.LittleEndian.Uint64(data[32:40])
	return nil
}

// Header is the decoded buffer header.
type Header struct {
	AuthorizedLocker runtime.Pubkey
	AuthorizedWriter runtime.Pubkey
	IsLocked         uint8
	Mode             uint8
	GroupsCount      uint16
	MintsInitialized uint16
	MintsCount       uint16
}

// ParseHeader reads the header from account data.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, ErrShortBuffer
	}
	copy(h.AuthorizedLocker[:], data[0:32])
	copy(h.AuthorizedWriter[:], data[32:64])
	h.IsLocked = data[64]
	h.Mode = data[65]
	h.GroupsCount = binary.LittleEndian.Uint16(data[66:68])
	h.MintsInitialized = binary.LittleEndian.Uint16(data[68:70])
	h.MintsCount = binary.LittleEndian.Uint16(data[70:72])
	return h, nil
}

// Store writes the header into account data.
func (h *Header) Store(data []byte) {
	copy(data[0:32], h.AuthorizedLocker[:])
	copy(data[32:64], h.AuthorizedWriter[:])
	data[64] = h.IsLocked
	data[65] = h.Mode
	binary.LittleEndian.PutUint16(data[66:68], h.GroupsCount)
	binary.LittleEndian.PutUint16(data[68:70], h.MintsInitialized)
	binary.LittleEndian.PutUint16(data[70:72], h.MintsCount)
}

// GroupCount returns ceil(totalMints / GroupSize). Zero mints means zero
// groups; callers must not conflate that with an empty default hash.
func GroupCount(totalMints uint32) uint32 {
	return (totalMints + GroupSize - 1) / GroupSize
}

// MintsInGroup returns the number of records in a group: GroupSize for all
// but a partial last group.
func MintsInGroup(totalMints, groupIndex uint32) uint32 {
	groups := GroupCount(totalMints)
	if groupIndex+1 < groups || totalMints%GroupSize == 0 {
		return GroupSize
	}
	return totalMints % GroupSize
}

// BufferSize returns the full account size for a batch.
func BufferSize(totalMints uint32) int {
	groups := int(GroupCount(totalMints))
	return HeaderSize + groups*GroupHashSize + int(totalMints)*RecordSize
}

// groupHashOffset returns the offset of a group's digest slot.
func groupHashOffset(groupIndex uint32) int {
	return HeaderSize + int(groupIndex)*GroupHashSize
}

// GroupRecordsOffset returns the offset of a group's first record.
func GroupRecordsOffset(groupsCount, groupIndex uint32) int {
	return HeaderSize + int(groupsCount)*GroupHashSize + int(groupIndex)*GroupSize*RecordSize
}

// GroupHash reads a group's digest slot.
func GroupHash(data []byte, groupIndex uint32) (merkle.Hash, error) {
	off := groupHashOffset(groupIndex)
	if len(data) < off+GroupHashSize {
		return merkle.Hash{}, ErrShortBuffer
	}
	var h merkle.Hash
	copy(h[:], data[off:off+GroupHashSize])
	return h, nil
}

// GroupRecords parses the records of one group.
func GroupRecords(data []byte, groupsCount, groupIndex, mintsInGroup uint32) ([]PendingMint, error) {
	off := GroupRecordsOffset(groupsCount, groupIndex)
	end := off + int(mintsInGroup)*RecordSize
	if len(data) < end {
		return nil, ErrShortBuffer
	}
	mints := make([]PendingMint, mintsInGroup)
	for i := range mints {
		if err := mints[i].UnmarshalBinary(data[off+i*RecordSize : off+(i+1)*RecordSize]); err != nil {
			return nil, err
		}
	}
	return mints, nil
}

// ComputeBatchHash digests the staged batch: the little-endian u16 total
// mint count followed by the packed per-group hashes. A zero-mint batch
// digests only the length prefix, which yields the empty-batch sentinel.
func ComputeBatchHash(data []byte, groupsCount uint32, totalMints uint16) (merkle.Hash, error) {
	end := HeaderSize + int(groupsCount)*GroupHashSize
	if len(data) < end {
		return merkle.Hash{}, ErrShortBuffer
	}
	buf := make([]byte, 2, 2+int(groupsCount)*GroupHashSize)
	binary.LittleEndian.PutUint16(buf, totalMints)
	buf = append(buf, data[HeaderSize:end]...)
	return merkle.Sum256(buf), nil
}

// EmptyBatchHash is the sentinel digest of a zero-mint batch: SHA-256 over
// the two-byte zero length. Distinct from the all-zero hash.
var EmptyBatchHash = merkle.Sum256([]byte{0, 0})
