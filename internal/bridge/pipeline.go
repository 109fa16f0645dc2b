package bridge

import (
	"math/bits"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/mintbuffer"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
)

// Serialized sizes of the pipeline types.
const (
	InfoSize    = 64
	TrackerSize = 72
	ManagerSize = 8 + PipelineDepth*InfoSize + 8 + TrackerSize + 8
)

// PipelineDepth is the maximum number of finalized blocks the pipeline can
// hold between reorg fast-forwards.
const PipelineDepth = 16

// MaxGroupBits is the width of the claimed-groups bitset.
const MaxGroupBits = 256

// FinalizedBlockMintTxoInfo pairs the two payload digests of one finalized
// block awaiting its mint drain.
type FinalizedBlockMintTxoInfo struct {
	PendingMintsFinalizedHash  merkle.Hash
	TxoOutputListFinalizedHash merkle.Hash
}

func (i *FinalizedBlockMintTxoInfo) marshal(w *writer) {
	w.hash(i.PendingMintsFinalizedHash)
	w.hash(i.TxoOutputListFinalizedHash)
}

func (i *FinalizedBlockMintTxoInfo) unmarshal(r *reader) {
	i.PendingMintsFinalizedHash = r.hash()
	i.TxoOutputListFinalizedHash = r.hash()
}

// GroupBitset tracks which mint groups of the active batch have been
// claimed.
type GroupBitset [32]byte

// Bit reports whether bit i is set.
func (b *GroupBitset) Bit(i uint32) bool {
	return b[i/8]&(1<<(i%8)) != 0
}

// Set sets bit i.
func (b *GroupBitset) Set(i uint32) {
	b[i/8] |= 1 << (i % 8)
}

// PopCount counts the set bits.
func (b *GroupBitset) PopCount() uint32 {
	var n int
	for _, v := range b {
		n += bits.OnesCount8(v)
	}
	return uint32(n)
}

// PendingMintsTracker describes the in-flight batch of auto-claimed
// deposits for one finalized block.
type PendingMintsTracker struct {
	StorageAccount             runtime.Pubkey
	GroupsClaimed              GroupBitset
	TotalPendingMints          uint32
	PendingMintsGroupsRemaining uint32
}

func (t *PendingMintsTracker) marshal(w *writer) {
	w.pubkey(t.StorageAccount)
	w.raw(t.GroupsClaimed[:])
	w.u32(t.TotalPendingMints)
	w.u32(t.PendingMintsGroupsRemaining)
}

func (t *PendingMintsTracker) unmarshal(r *reader) {
	t.StorageAccount = r.pubkey()
	copy(t.GroupsClaimed[:], r.take(32))
	t.TotalPendingMints = r.u32()
	t.PendingMintsGroupsRemaining = r.u32()
}

// IsEmpty reports whether no batch is active.
func (t *PendingMintsTracker) IsEmpty() bool {
	return t.TotalPendingMints == 0
}

// GroupCount returns the group count of the active batch.
func (t *PendingMintsTracker) GroupCount() uint32 {
	return mintbuffer.GroupCount(t.TotalPendingMints)
}

// FinalizedBlockMintTxoManager is the staged auto-mint pipeline: a queue of
// finalized-block payload digests plus the tracker of the active batch.
type FinalizedBlockMintTxoManager struct {
	StartBlockHeight          uint32
	PendingFinalizedInfo      [PipelineDepth]FinalizedBlockMintTxoInfo
	CurrentIndex              uint32
	CurrentPendingMintsTracker PendingMintsTracker
	Count                     uint32
}

func (m *FinalizedBlockMintTxoManager) marshal(w *writer) {
	w.u32(m.StartBlockHeight)
	w.pad(4)
	for i := range m.PendingFinalizedInfo {
		m.PendingFinalizedInfo[i].marshal(w)
	}
	w.u32(m.CurrentIndex)
	w.pad(4)
	m.CurrentPendingMintsTracker.marshal(w)
	w.u32(m.Count)
	w.pad(4)
}

func (m *FinalizedBlockMintTxoManager) unmarshal(r *reader) {
	m.StartBlockHeight = r.u32()
	r.pad(4)
	for i := range m.PendingFinalizedInfo {
		m.PendingFinalizedInfo[i].unmarshal(r)
	}
	m.CurrentIndex = r.u32()
	r.pad(4)
	m.CurrentPendingMintsTracker.unmarshal(r)
	m.Count = r.u32()
	r.pad(4)
}

// IsEmpty reports whether no blocks are enqueued.
func (m *FinalizedBlockMintTxoManager) IsEmpty() bool {
	return m.Count == 0
}

// CurrentBlockHeight returns the Dogecoin height of the entry the cursor
// points at.
func (m *FinalizedBlockMintTxoManager) CurrentBlockHeight() uint32 {
	return m.StartBlockHeight + m.CurrentIndex
}

// HasMoreBlocks reports whether entries remain past the cursor.
func (m *FinalizedBlockMintTxoManager) HasMoreBlocks() bool {
	return m.CurrentIndex < m.Count
}

// Reset clears the pipeline entirely.
func (m *FinalizedBlockMintTxoManager) Reset() {
	*m = FinalizedBlockMintTxoManager{}
}

// SkipEmptyEntries advances the cursor past entries carrying the
// empty-batch sentinel hash and returns whether a non-empty entry remains.
func (m *FinalizedBlockMintTxoManager) SkipEmptyEntries() bool {
	for m.CurrentIndex < m.Count {
		if m.PendingFinalizedInfo[m.CurrentIndex].PendingMintsFinalizedHash != mintbuffer.EmptyBatchHash {
			return true
		}
		m.CurrentIndex++
	}
	return false
}
