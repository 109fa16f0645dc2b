// Package bridge implements the on-chain state machine of the Psy Doge
// bridge: the bridge header, the ring of recent finalized commitments, the
// staged auto-mint pipeline, the withdrawal flow, and the instruction
// handlers that drive them. Companion buffer programs live in the
// mintbuffer and txobuffer packages.
package bridge

import (
	"github.com/psy-protocol/doge-bridge/internal/merkle"
)

// Serialized sizes of the header types.
const (
	TipStateSize       = 80
	FinalizedStateSize = 208
	HeaderSize         = TipStateSize + FinalizedStateSize + 56
	CommitmentSize     = 104
	ReturnOutputSize   = 48
	SnapshotSize       = 120
)

// TipState commits to the most recent Dogecoin block the watcher has seen,
// possibly not yet finalized.
type TipState struct {
	BlockHash       merkle.Hash
	BlockMerkleRoot merkle.Hash
	Timestamp       uint64
	BlockHeight     uint32
}

func (s *TipState) marshal(w *writer) {
	w.hash(s.BlockHash)
	w.hash(s.BlockMerkleRoot)
	w.u64(s.Timestamp)
	w.u32(s.BlockHeight)
	w.pad(4)
}

func (s *TipState) unmarshal(r *reader) {
	s.BlockHash = r.hash()
	s.BlockMerkleRoot = r.hash()
	s.Timestamp = r.u64()
	s.BlockHeight = r.u32()
	r.pad(4)
}

// FinalizedState commits to the last Dogecoin block whose inclusion proof
// has been accepted, together with the deposit and TXO material produced
// by that block.
type FinalizedState struct {
	BlockHash                    merkle.Hash
	BlockMerkleRoot              merkle.Hash
	PendingMintsFinalizedHash    merkle.Hash
	TxoOutputListFinalizedHash   merkle.Hash
	AutoClaimedDepositsTreeRoot  merkle.Hash
	AutoClaimedTxoTreeRoot       merkle.Hash
	AutoClaimedDepositsNextIndex uint64
	BlockHeight                  uint32
}

func (s *FinalizedState) marshal(w *writer) {
	w.hash(s.BlockHash)
	w.hash(s.BlockMerkleRoot)
	w.hash(s.PendingMintsFinalizedHash)
	w.hash(s.TxoOutputListFinalizedHash)
	w.hash(s.AutoClaimedDepositsTreeRoot)
	w.hash(s.AutoClaimedTxoTreeRoot)
	w.u64(s.AutoClaimedDepositsNextIndex)
	w.u32(s.BlockHeight)
	w.pad(4)
}

func (s *FinalizedState) unmarshal(r *reader) {
	s.BlockHash = r.hash()
	s.BlockMerkleRoot = r.hash()
	s.PendingMintsFinalizedHash = r.hash()
	s.TxoOutputListFinalizedHash = r.hash()
	s.AutoClaimedDepositsTreeRoot = r.hash()
	s.AutoClaimedTxoTreeRoot = r.hash()
	s.AutoClaimedDepositsNextIndex = r.u64()
	s.BlockHeight = r.u32()
	r.pad(4)
}

// Header is the compact bridge commitment carried through every block
// update. Invariant: Finalized.BlockHeight <= Tip.BlockHeight.
type Header struct {
	Tip                   TipState
	Finalized             FinalizedState
	BridgeStateHash       merkle.Hash
	LastRollbackTime      uint64
	PauseUntilTime        uint64
	LifetimeFinalizedFees uint64
}

func (h *Header) marshal(w *writer) {
	h.Tip.marshal(w)
	h.Finalized.marshal(w)
	w.hash(h.BridgeStateHash)
	w.u64(h.LastRollbackTime)
	w.u64(h.PauseUntilTime)
	w.u64(h.LifetimeFinalizedFees)
}

func (h *Header) unmarshal(r *reader) {
	h.Tip.unmarshal(r)
	h.Finalized.unmarshal(r)
	h.BridgeStateHash = r.hash()
	h.LastRollbackTime = r.u64()
	h.PauseUntilTime = r.u64()
	h.LifetimeFinalizedFees = r.u64()
}

// MarshalBinary serializes the header to its fixed layout.
func (h *Header) MarshalBinary() ([]byte, error) {
	w := &writer{buf: make([]byte, 0, HeaderSize)}
	h.marshal(w)
	return w.buf, nil
}

// UnmarshalBinary parses the fixed header layout.
func (h *Header) UnmarshalBinary(data []byte) error {
	r := &reader{buf: data}
	h.unmarshal(r)
	return r.err
}

// Hash digests the serialized header.
func (h *Header) Hash() merkle.Hash {
	buf, _ := h.MarshalBinary()
	return merkle.Sum256(buf)
}

// Commitment is one slot of the recent-finalized ring. Manual deposit
// claims resolve their roots against this window.
type Commitment struct {
	AutoClaimedDepositsTreeRoot merkle.Hash
	AutoClaimedTxoTreeRoot      merkle.Hash
	BlockMerkleRoot             merkle.Hash
	BlockHeight                 uint32
}

func (c *Commitment) marshal(w *writer) {
	w.hash(c.AutoClaimedDepositsTreeRoot)
	w.hash(c.AutoClaimedTxoTreeRoot)
	w.hash(c.BlockMerkleRoot)
	w.u32(c.BlockHeight)
	w.pad(4)
}

func (c *Commitment) unmarshal(r *reader) {
	c.AutoClaimedDepositsTreeRoot = r.hash()
	c.AutoClaimedTxoTreeRoot = r.hash()
	c.BlockMerkleRoot = r.hash()
	c.BlockHeight = r.u32()
	r.pad(4)
}

// commitmentOf extracts the ring commitment from a finalized state.
func commitmentOf(f *FinalizedState) Commitment {
	return Commitment{
		AutoClaimedDepositsTreeRoot: f.AutoClaimedDepositsTreeRoot,
		AutoClaimedTxoTreeRoot:      f.AutoClaimedTxoTreeRoot,
		BlockMerkleRoot:             f.BlockMerkleRoot,
		BlockHeight:                 f.BlockHeight,
	}
}

// ReturnOutput marks the custodian change output of the last processed
// withdrawal transaction.
type ReturnOutput struct {
	Sighash     merkle.Hash
	OutputIndex uint32
	Amount      uint64
}

func (o *ReturnOutput) marshal(w *writer) {
	w.hash(o.Sighash)
	w.u32(o.OutputIndex)
	w.pad(4)
	w.u64(o.Amount)
}

func (o *ReturnOutput) unmarshal(r *reader) {
	o.Sighash = r.hash()
	o.OutputIndex = r.u32()
	r.pad(4)
	o.Amount = r.u64()
}

// Snapshot freezes the commitments a withdrawal batch proof is built
// against.
type Snapshot struct {
	AutoClaimedDepositsTreeRoot       merkle.Hash
	RequestedWithdrawalsTreeRoot      merkle.Hash
	BlockMerkleRoot                   merkle.Hash
	BlockHeight                       uint32
	LastSnapshottedSeconds            uint64
	NextRequestedWithdrawalsTreeIndex uint64
}

func (s *Snapshot) marshal(w *writer) {
	w.hash(s.AutoClaimedDepositsTreeRoot)
	w.hash(s.RequestedWithdrawalsTreeRoot)
	w.hash(s.BlockMerkleRoot)
	w.u32(s.BlockHeight)
	w.pad(4)
	w.u64(s.LastSnapshottedSeconds)
	w.u64(s.NextRequestedWithdrawalsTreeIndex)
}

func (s *Snapshot) unmarshal(r *reader) {
	s.AutoClaimedDepositsTreeRoot = r.hash()
	s.RequestedWithdrawalsTreeRoot = r.hash()
	s.BlockMerkleRoot = r.hash()
	s.BlockHeight = r.u32()
	r.pad(4)
	s.LastSnapshottedSeconds = r.u64()
	s.NextRequestedWithdrawalsTreeIndex = r.u64()
}

// Hash digests the serialized snapshot.
func (s *Snapshot) Hash() merkle.Hash {
	w := &writer{buf: make([]byte, 0, SnapshotSize)}
	s.marshal(w)
	return merkle.Sum256(w.buf)
}
