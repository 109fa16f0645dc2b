package mintbuffer

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/psy-protocol/doge-bridge/pkg/helpers"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
)

// Instruction tags.
const (
	TagSetup  = 0
	TagReinit = 1
	TagResize = 2
	TagInsert = 3
	TagLock   = 4
	TagUnlock = 5
)

// Program errors.
var (
	ErrAccountAlreadyInitialized = errors.New("mint buffer already initialized")
	ErrBufferLocked              = errors.New("mint buffer is locked")
	ErrBufferNotLocked           = errors.New("mint buffer is not locked")
	ErrNotLocker                 = errors.New("signer is not the authorized locker")
	ErrGroupIndexOutOfBounds     = errors.New("group index out of bounds")
	ErrGroupAlreadyInserted      = errors.New("group hash slot already written")
	ErrBadMintBytes              = errors.New("mint bytes must be 1..24 records of 40 bytes")
	ErrNotAllGroupsInserted      = errors.New("not every pending mint has been inserted")
	ErrUnknownTag                = errors.New("unknown mint buffer instruction tag")
	ErrShortInstructionData      = errors.New("mint buffer instruction data too short")
)

// Program is the pending-mint buffer companion program.
type Program struct {
	ID runtime.Pubkey
}

// DeriveBufferAddress returns the PDA for an operator's mint buffer.
func (p *Program) DeriveBufferAddress(operator runtime.Pubkey) (runtime.Pubkey, uint8, error) {
	return runtime.FindProgramAddress([][]byte{[]byte(SeedTag), operator[:]}, p.ID)
}

// verifyPDA checks the account key against the seeds and bump.
func (p *Program) verifyPDA(acct *runtime.Account, operator runtime.Pubkey, bump uint8) error {
	expected, err := runtime.CreateProgramAddress([][]byte{[]byte(SeedTag), operator[:]}, bump, p.ID)
	if err != nil || expected != acct.Key {
		return runtime.ErrInvalidAccountKey
	}
	return nil
}

// Execute dispatches a tag-byte instruction against the buffer account.
func (p *Program) Execute(acct *runtime.Account, signers runtime.Signers, data []byte) error {
	if len(data) < 1 {
		return ErrShortInstructionData
	}
	tag, body := data[0], data[1:]
	switch tag {
	case TagSetup:
		return p.setup(acct, body)
	case TagReinit:
		return p.reinit(acct, signers, body)
	case TagResize:
		return p.resize(acct, signers)
	case TagInsert:
		return p.insert(acct, signers, body)
	case TagLock:
		return p.lock(acct, signers, body)
	case TagUnlock:
		return p.unlock(acct, signers, body)
	default:
		return ErrUnknownTag
	}
}

// setup body: operator(32) | bump(1) | locker(32) | writer(32).
func (p *Program) setup(acct *runtime.Account, body []byte) error {
	if len(body) != 97 {
		return ErrShortInstructionData
	}
	operator, _ := runtime.PubkeyFromBytes(body[0:32])
	bump := body[32]
	locker, _ := runtime.PubkeyFromBytes(body[33:65])
	writer, _ := runtime.PubkeyFromBytes(body[65:97])

	if err := p.verifyPDA(acct, operator, bump); err != nil {
		return err
	}
	if !helpers.IsZeroBytes(acct.Data) {
		return ErrAccountAlreadyInitialized
	}

	acct.Owner = p.ID
	if len(acct.Data) < HeaderSize {
		acct.Resize(HeaderSize)
	}
	header := Header{AuthorizedLocker: locker, AuthorizedWriter: writer}
	header.Store(acct.Data)
	return nil
}

// reinit body: total_mints(u16). Each call grows the account by at most
// MaxResizeChunk toward the batch size and resets the header counts; the
// writer repeats the call until the account fits the batch.
func (p *Program) reinit(acct *runtime.Account, signers runtime.Signers, body []byte) error {
	if len(body) != 2 {
		return ErrShortInstructionData
	}
	totalMints := binary.LittleEndian.Uint16(body)

	header, err := ParseHeader(acct.Data)
	if err != nil {
		return err
	}
	if header.IsLocked != 0 {
		return ErrBufferLocked
	}
	if err := signers.Require(header.AuthorizedWriter); err != nil {
		return err
	}

	growToward(acct, BufferSize(uint32(totalMints)))

	header.MintsCount = totalMints
	header.GroupsCount = uint16(GroupCount(uint32(totalMints)))
	header.MintsInitialized = 0
	header.Store(acct.Data)

	// Zero whatever portion of the group-hash area already exists.
	end := HeaderSize + int(header.GroupsCount)*GroupHashSize
	if end > len(acct.Data) {
		end = len(acct.Data)
	}
	for i := HeaderSize; i < end; i++ {
		acct.Data[i] = 0
	}
	return nil
}

// resize grows the account toward the size declared by the header counts.
func (p *Program) resize(acct *runtime.Account, signers runtime.Signers) error {
	header, err := ParseHeader(acct.Data)
	if err != nil {
		return err
	}
	if header.IsLocked != 0 {
		return ErrBufferLocked
	}
	if err := signers.Require(header.AuthorizedWriter); err != nil {
		return err
	}
	growToward(acct, BufferSize(uint32(header.MintsCount)))
	return nil
}

// insert body: group_index(u16) | mint records (n*40, n in 1..24).
func (p *Program) insert(acct *runtime.Account, signers runtime.Signers, body []byte) error {
	if len(body) < 2 {
		return ErrShortInstructionData
	}
	groupIndex := uint32(binary.LittleEndian.Uint16(body[0:2]))
	mintBytes := body[2:]

	header, err := ParseHeader(acct.Data)
	if err != nil {
		return err
	}
	if header.IsLocked != 0 {
		return ErrBufferLocked
	}
	if err := signers.Require(header.AuthorizedWriter); err != nil {
		return err
	}
	if groupIndex >= uint32(header.GroupsCount) {
		return ErrGroupIndexOutOfBounds
	}
	if len(mintBytes) == 0 || len(mintBytes)%RecordSize != 0 || len(mintBytes)/RecordSize > GroupSize {
		return ErrBadMintBytes
	}

	hashSlot, err := GroupHash(acct.Data, groupIndex)
	if err != nil {
		return err
	}
	if !hashSlot.IsZero() {
		return ErrGroupAlreadyInserted
	}

	recordsOff := GroupRecordsOffset(uint32(header.GroupsCount), groupIndex)
	if len(acct.Data) < recordsOff+len(mintBytes) {
		return ErrShortBuffer
	}
	copy(acct.Data[recordsOff:], mintBytes)

	digest := merkle.Sum256(mintBytes)
	copy(acct.Data[groupHashOffset(groupIndex):], digest[:])

	header.MintsInitialized += uint16(len(mintBytes) / RecordSize)
	header.Store(acct.Data)
	return nil
}

// lock body: locker(32).
func (p *Program) lock(acct *runtime.Account, signers runtime.Signers, body []byte) error {
	if len(body) != 32 {
		return ErrShortInstructionData
	}
	locker, _ := runtime.PubkeyFromBytes(body)

	header, err := ParseHeader(acct.Data)
	if err != nil {
		return err
	}
	if locker != header.AuthorizedLocker {
		return ErrNotLocker
	}
	if err := signers.Require(header.AuthorizedLocker); err != nil {
		return err
	}
	if header.IsLocked != 0 {
		return ErrBufferLocked
	}
	if header.MintsInitialized != header.MintsCount {
		return ErrNotAllGroupsInserted
	}

	header.IsLocked = 1
	header.Store(acct.Data)
	return nil
}

// unlock body: locker(32). Clears the counts so the buffer can be reused.
func (p *Program) unlock(acct *runtime.Account, signers runtime.Signers, body []byte) error {
	if len(body) != 32 {
		return ErrShortInstructionData
	}
	locker, _ := runtime.PubkeyFromBytes(body)

	header, err := ParseHeader(acct.Data)
	if err != nil {
		return err
	}
	if locker != header.AuthorizedLocker {
		return ErrNotLocker
	}
	if err := signers.Require(header.AuthorizedLocker); err != nil {
		return err
	}
	if header.IsLocked != 1 {
		return ErrBufferNotLocked
	}

	header.IsLocked = 0
	header.MintsCount = 0
	header.GroupsCount = 0
	header.MintsInitialized = 0
	header.Store(acct.Data)
	return nil
}

// growToward grows the account by at most MaxResizeChunk toward target.
func growToward(acct *runtime.Account, target int) {
	if len(acct.Data) >= target {
		return
	}
	next := len(acct.Data) + MaxResizeChunk
	if next > target {
		next = target
	}
	acct.Resize(next)
}

// EncodeSetup builds a setup instruction.
func EncodeSetup(operator runtime.Pubkey, bump uint8, locker, writer runtime.Pubkey) []byte {
	data := make([]byte, 0, 98)
	data = append(data, TagSetup)
	data = append(data, operator[:]...)
	data = append(data, bump)
	data = append(data, locker[:]...)
	data = append(data, writer[:]...)
	return data
}

// EncodeReinit builds a reinit instruction.
func EncodeReinit(totalMints uint16) []byte {
	data := make([]byte, 3)
	data[0] = TagReinit
	binary.LittleEndian.PutUint16(data[1:], totalMints)
	return data
}

// EncodeInsert builds an insert instruction for a group of mints.
func EncodeInsert(groupIndex uint16, mints []PendingMint) ([]byte, error) {
	if len(mints) == 0 || len(mints) > GroupSize {
		return nil, ErrBadMintBytes
	}
	data := make([]byte, 3, 3+len(mints)*RecordSize)
	data[0] = TagInsert
	binary.LittleEndian.PutUint16(data[1:3], groupIndex)
	for i := range mints {
		rec, err := mints[i].MarshalBinary()
		if err != nil {
			return nil, err
		}
		data = append(data, rec...)
	}
	return data, nil
}

// EncodeLock builds a lock instruction.
func EncodeLock(locker runtime.Pubkey) []byte {
	return append([]byte{TagLock}, locker[:]...)
}

// EncodeUnlock builds an unlock instruction.
func EncodeUnlock(locker runtime.Pubkey) []byte {
	return append([]byte{TagUnlock}, locker[:]...)
}

// TagName names a tag for logs.
func TagName(tag byte) string {
	switch tag {
	case TagSetup:
		return "setup"
	case TagReinit:
		return "reinit"
	case TagResize:
		return "resize"
	case TagInsert:
		return "insert"
	case TagLock:
		return "lock"
	case TagUnlock:
		return "unlock"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}
