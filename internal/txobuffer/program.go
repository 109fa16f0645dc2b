// Package txobuffer implements the companion program that stages the
// packed TXO-index list for a finalized Dogecoin block. The watcher writes
// the list in offset-addressed chunks under a strictly advancing batch id
// and finalizes the batch before the bridge consumes it.
package txobuffer

import (
	"encoding/binary"
	"errors"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
)

const (
	// HeaderSize is the fixed buffer header size.
	HeaderSize = 48

	// SeedTag is the PDA seed tag for TXO buffer accounts.
	SeedTag = "txo_buffer"
)

// Instruction tags.
const (
	TagInit   = 0
	TagSetLen = 1
	TagWrite  = 2
)

// Program errors.
var (
	ErrAlreadyInitialized   = errors.New("txo buffer already initialized")
	ErrNotInitialized       = errors.New("txo buffer not initialized")
	ErrBatchFinalized       = errors.New("txo batch already finalized")
	ErrStaleBatchID         = errors.New("txo batch id does not match or advance the current batch")
	ErrHeightMismatch       = errors.New("txo batch height does not match the stored height")
	ErrWriteOutOfRange      = errors.New("txo write exceeds the declared data size")
	ErrUnknownTag           = errors.New("unknown txo buffer instruction tag")
	ErrShortInstructionData = errors.New("txo buffer instruction data too short")
	ErrShortBuffer          = errors.New("txo buffer account too small")
)

// Header is the decoded buffer header.
type Header struct {
	AuthorizedWriter runtime.Pubkey
	InitStatus       uint16
	FinalizedStatus  uint16
	DogeBlockHeight  uint32
	BatchID          uint32
	DataSize         uint32
}

// ParseHeader reads the header from account data.
func ParseHeader(data []byte) (Header, error) {
	var h Header
	if len(data) < HeaderSize {
		return h, ErrShortBuffer
	}
	copy(h.AuthorizedWriter[:], data[0:32])
	h.InitStatus = binary.LittleEndian.Uint16(data[32:34])
	h.FinalizedStatus = binary.LittleEndian.Uint16(data[34:36])
	h.DogeBlockHeight = binary.LittleEndian.Uint32(data[36:40])
	h.BatchID = binary.LittleEndian.Uint32(data[40:44])
	h.DataSize = binary.LittleEndian.Uint32(data[44:48])
	return h, nil
}

// Store writes the header into account data.
func (h *Header) Store(data []byte) {
	copy(data[0:32], h.AuthorizedWriter[:])
	binary.LittleEndian.PutUint16(data[32:34], h.InitStatus)
	binary.LittleEndian.PutUint16(data[34:36], h.FinalizedStatus)
	binary.LittleEndian.PutUint32(data[36:40], h.DogeBlockHeight)
	binary.LittleEndian.PutUint32(data[40:44], h.BatchID)
	binary.LittleEndian.PutUint32(data[44:48], h.DataSize)
}

// Body returns the first DataSize body bytes.
func Body(data []byte) ([]byte, error) {
	header, err := ParseHeader(data)
	if err != nil {
		return nil, err
	}
	end := HeaderSize + int(header.DataSize)
	if len(data) < end {
		return nil, ErrShortBuffer
	}
	return data[HeaderSize:end], nil
}

// BodyHash digests the first DataSize body bytes.
func BodyHash(data []byte) (merkle.Hash, error) {
	body, err := Body(data)
	if err != nil {
		return merkle.Hash{}, err
	}
	return merkle.Sum256(body), nil
}

// Indices decodes the body as a packed little-endian u32 list.
func Indices(data []byte) ([]uint32, error) {
	body, err := Body(data)
	if err != nil {
		return nil, err
	}
	if len(body)%4 != 0 {
		return nil, ErrShortBuffer
	}
	out := make([]uint32, len(body)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(body[i*4:])
	}
	return out, nil
}

// Program is the TXO buffer companion program.
type Program struct {
	ID runtime.Pubkey
}

// DeriveBufferAddress returns the PDA for an operator's TXO buffer.
func (p *Program) DeriveBufferAddress(operator runtime.Pubkey) (runtime.Pubkey, uint8, error) {
	return runtime.FindProgramAddress([][]byte{[]byte(SeedTag), operator[:]}, p.ID)
}

// Execute dispatches a tag-byte instruction against the buffer account.
func (p *Program) Execute(acct *runtime.Account, signers runtime.Signers, data []byte) error {
	if len(data) < 1 {
		return ErrShortInstructionData
	}
	tag, body := data[0], data[1:]
	switch tag {
	case TagInit:
		return p.init(acct, body)
	case TagSetLen:
		return p.setLen(acct, signers, body)
	case TagWrite:
		return p.write(acct, signers, body)
	default:
		return ErrUnknownTag
	}
}

// init body: operator(32) | bump(1) | writer(32).
func (p *Program) init(acct *runtime.Account, body []byte) error {
	if len(body) != 65 {
		return ErrShortInstructionData
	}
	operator, _ := runtime.PubkeyFromBytes(body[0:32])
	bump := body[32]
	writer, _ := runtime.PubkeyFromBytes(body[33:65])

	expected, err := runtime.CreateProgramAddress([][]byte{[]byte(SeedTag), operator[:]}, bump, p.ID)
	if err != nil || expected != acct.Key {
		return runtime.ErrInvalidAccountKey
	}

	if len(acct.Data) >= HeaderSize {
		header, err := ParseHeader(acct.Data)
		if err == nil && header.InitStatus != 0 {
			return ErrAlreadyInitialized
		}
	}

	acct.Owner = p.ID
	if len(acct.Data) < HeaderSize {
		acct.Resize(HeaderSize)
	}
	header := Header{AuthorizedWriter: writer, InitStatus: 1}
	header.Store(acct.Data)
	return nil
}

// transition applies the strict batch-id rule shared by setLen and write:
// the id either matches the open batch or advances it by exactly one,
// which reopens the finalized flag.
func transition(header *Header, inputBatchID uint32) error {
	switch inputBatchID {
	case header.BatchID:
		if header.FinalizedStatus != 0 {
			return ErrBatchFinalized
		}
	case header.BatchID + 1:
		header.BatchID = inputBatchID
		header.FinalizedStatus = 0
	default:
		return ErrStaleBatchID
	}
	return nil
}

// setLen body: new_len(u32) | resize(u8) | batch_id(u32) | height(u32) | finalize(u8).
func (p *Program) setLen(acct *runtime.Account, signers runtime.Signers, body []byte) error {
	if len(body) != 14 {
		return ErrShortInstructionData
	}
	newLen := binary.LittleEndian.Uint32(body[0:4])
	resize := body[4] != 0
	inputBatchID := binary.LittleEndian.Uint32(body[5:9])
	inputHeight := binary.LittleEndian.Uint32(body[9:13])
	finalize := body[13] != 0

	header, err := ParseHeader(acct.Data)
	if err != nil {
		return err
	}
	if header.InitStatus == 0 {
		return ErrNotInitialized
	}
	if err := signers.Require(header.AuthorizedWriter); err != nil {
		return err
	}

	newBatch := inputBatchID == header.BatchID+1
	if err := transition(&header, inputBatchID); err != nil {
		return err
	}
	if newBatch {
		header.DogeBlockHeight = inputHeight
	} else if inputHeight != header.DogeBlockHeight {
		return ErrHeightMismatch
	}

	header.DataSize = newLen
	if finalize {
		header.FinalizedStatus = 1
	}
	if resize {
		acct.Resize(HeaderSize + int(newLen))
	}
	header.Store(acct.Data)
	return nil
}

// write body: batch_id(u32) | offset(u32) | bytes.
func (p *Program) write(acct *runtime.Account, signers runtime.Signers, body []byte) error {
	if len(body) < 8 {
		return ErrShortInstructionData
	}
	inputBatchID := binary.LittleEndian.Uint32(body[0:4])
	offset := binary.LittleEndian.Uint32(body[4:8])
	chunk := body[8:]

	header, err := ParseHeader(acct.Data)
	if err != nil {
		return err
	}
	if header.InitStatus == 0 {
		return ErrNotInitialized
	}
	if err := signers.Require(header.AuthorizedWriter); err != nil {
		return err
	}
	if err := transition(&header, inputBatchID); err != nil {
		return err
	}

	end := int(offset) + len(chunk)
	if uint64(offset)+uint64(len(chunk)) > uint64(header.DataSize) || len(acct.Data) < HeaderSize+end {
		return ErrWriteOutOfRange
	}

	copy(acct.Data[HeaderSize+int(offset):], chunk)
	header.Store(acct.Data)
	return nil
}

// EncodeInit builds an init instruction.
func EncodeInit(operator runtime.Pubkey, bump uint8, writer runtime.Pubkey) []byte {
	data := make([]byte, 0, 66)
	data = append(data, TagInit)
	data = append(data, operator[:]...)
	data = append(data, bump)
	data = append(data, writer[:]...)
	return data
}

// EncodeSetLen builds a set_len instruction.
func EncodeSetLen(newLen uint32, resize bool, batchID, height uint32, finalize bool) []byte {
	data := make([]byte, 15)
	data[0] = TagSetLen
	binary.LittleEndian.PutUint32(data[1:5], newLen)
	if resize {
		data[5] = 1
	}
	binary.LittleEndian.PutUint32(data[6:10], batchID)
	binary.LittleEndian.PutUint32(data[10:14], height)
	if finalize {
		data[14] = 1
	}
	return data
}

// EncodeWrite builds a write instruction.
func EncodeWrite(batchID, offset uint32, chunk []byte) []byte {
	data := make([]byte, 9, 9+len(chunk))
	data[0] = TagWrite
	binary.LittleEndian.PutUint32(data[1:5], batchID)
	binary.LittleEndian.PutUint32(data[5:9], offset)
	return append(data, chunk...)
}
