package bridge

import (
	"encoding/binary"
	"errors"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
)

// ErrShortData is returned when a serialized structure is truncated.
var ErrShortData = errors.New("serialized bridge data too short")

// reader walks a little-endian POD layout. The first failure sticks; the
// caller checks err once at the end.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if r.off+n > len(r.buf) {
		r.err = ErrShortData
		return make([]byte, n)
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u8() uint8   { return r.take(1)[0] }
func (r *reader) u16() uint16 { return binary.LittleEndian.Uint16(r.take(2)) }
func (r *reader) u32() uint32 { return binary.LittleEndian.Uint32(r.take(4)) }
func (r *reader) u64() uint64 { return binary.LittleEndian.Uint64(r.take(8)) }
func (r *reader) i64() int64  { return int64(r.u64()) }
func (r *reader) pad(n int)   { r.take(n) }

func (r *reader) hash() merkle.Hash {
	var h merkle.Hash
	copy(h[:], r.take(32))
	return h
}

func (r *reader) hash160() merkle.Hash160 {
	var h merkle.Hash160
	copy(h[:], r.take(20))
	return h
}

func (r *reader) pubkey() runtime.Pubkey {
	var k runtime.Pubkey
	copy(k[:], r.take(32))
	return k
}

// writer appends a little-endian POD layout.
type writer struct {
	buf []byte
}

func (w *writer) raw(b []byte)          { w.buf = append(w.buf, b...) }
func (w *writer) u8(v uint8)            { w.buf = append(w.buf, v) }
func (w *writer) u16(v uint16)          { w.buf = binary.LittleEndian.AppendUint16(w.buf, v) }
func (w *writer) u32(v uint32)          { w.buf = binary.LittleEndian.AppendUint32(w.buf, v) }
func (w *writer) u64(v uint64)          { w.buf = binary.LittleEndian.AppendUint64(w.buf, v) }
func (w *writer) i64(v int64)           { w.u64(uint64(v)) }
func (w *writer) hash(h merkle.Hash)    { w.raw(h[:]) }
func (w *writer) hash160(h merkle.Hash160) { w.raw(h[:]) }
func (w *writer) pubkey(k runtime.Pubkey)  { w.raw(k[:]) }

func (w *writer) pad(n int) {
	w.buf = append(w.buf, make([]byte, n)...)
}
