package bridge

import (
	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
)

// RecentFinalizedBlocks is the size of the recent-finalized ring.
const RecentFinalizedBlocks = 8

// StateSize is the serialized size of the bridge state account: the DOGE
// mint public key followed by the POD program state.
const StateSize = 32 +
	HeaderSize +
	RecentFinalizedBlocks*CommitmentSize +
	ReturnOutputSize +
	ManagerSize +
	32 + // spent TXO tree root
	SnapshotSize +
	8 + // next processed withdrawals index
	3*merkle.TreeStateSize +
	24 + // doge public key hash, padded
	8 + // control mode, padded
	8 + // next recent finalized block index
	8 + // last processed withdrawals at ms
	32 + // fee counters
	ConfigSize +
	64 + // access control
	32 // custodian wallet config hash

// StateSeedTag is the PDA seed of the bridge state account.
const StateSeedTag = "bridge_state"

// AccessControl names the two privileged signers.
type AccessControl struct {
	Operator   runtime.Pubkey
	FeeSpender runtime.Pubkey
}

// State is the top-level bridge program state. It round-trips bit-exact
// through MarshalBinary/UnmarshalBinary; zero padding is preserved.
type State struct {
	DogeMint runtime.Pubkey

	Header                Header
	RecentFinalized       [RecentFinalizedBlocks]Commitment
	LastReturnOutput      ReturnOutput
	PendingMintTxos       FinalizedBlockMintTxoManager
	SpentTxoTreeRoot      merkle.Hash
	WithdrawalSnapshot    Snapshot
	NextProcessedWithdrawalsIndex uint64

	SentTransactionsTree     merkle.Tree
	ManualDepositsTree       merkle.Tree
	RequestedWithdrawalsTree merkle.Tree

	BridgeDogePublicKeyHash       merkle.Hash160
	BridgeControlMode             uint32
	NextRecentFinalizedBlockIndex uint64
	LastProcessedWithdrawalsAtMs  uint64

	TotalRequestedWithdrawalsSats uint64
	TotalWithdrawalFeesSats       uint64
	TotalManualDepositFeesSats    uint64
	TotalFeesWithdrawnSats        uint64

	Config        Config
	AccessControl AccessControl

	CustodianWalletConfigHash merkle.Hash
}

// MarshalBinary serializes the state to its fixed account layout.
func (s *State) MarshalBinary() ([]byte, error) {
	w := &writer{buf: make([]byte, 0, StateSize)}
	w.pubkey(s.DogeMint)
	s.Header.marshal(w)
	for i := range s.RecentFinalized {
		s.RecentFinalized[i].marshal(w)
	}
	s.LastReturnOutput.marshal(w)
	s.PendingMintTxos.marshal(w)
	w.hash(s.SpentTxoTreeRoot)
	s.WithdrawalSnapshot.marshal(w)
	w.u64(s.NextProcessedWithdrawalsIndex)

	for _, tree := range []*merkle.Tree{&s.SentTransactionsTree, &s.ManualDepositsTree, &s.RequestedWithdrawalsTree} {
		buf, err := tree.MarshalBinary()
		if err != nil {
			return nil, err
		}
		w.raw(buf)
	}

	w.hash160(s.BridgeDogePublicKeyHash)
	w.pad(4)
	w.u32(s.BridgeControlMode)
	w.pad(4)
	w.u64(s.NextRecentFinalizedBlockIndex)
	w.u64(s.LastProcessedWithdrawalsAtMs)

	w.u64(s.TotalRequestedWithdrawalsSats)
	w.u64(s.TotalWithdrawalFeesSats)
	w.u64(s.TotalManualDepositFeesSats)
	w.u64(s.TotalFeesWithdrawnSats)

	s.Config.marshal(w)
	w.pubkey(s.AccessControl.Operator)
	w.pubkey(s.AccessControl.FeeSpender)
	w.hash(s.CustodianWalletConfigHash)
	return w.buf, nil
}

// UnmarshalBinary parses the fixed account layout.
func (s *State) UnmarshalBinary(data []byte) error {
	r := &reader{buf: data}
	s.DogeMint = r.pubkey()
	s.Header.unmarshal(r)
	for i := range s.RecentFinalized {
		s.RecentFinalized[i].unmarshal(r)
	}
	s.LastReturnOutput.unmarshal(r)
	s.PendingMintTxos.unmarshal(r)
	s.SpentTxoTreeRoot = r.hash()
	s.WithdrawalSnapshot.unmarshal(r)
	s.NextProcessedWithdrawalsIndex = r.u64()

	for _, tree := range []*merkle.Tree{&s.SentTransactionsTree, &s.ManualDepositsTree, &s.RequestedWithdrawalsTree} {
		chunk := r.take(merkle.TreeStateSize)
		if r.err != nil {
			return r.err
		}
		if err := tree.UnmarshalBinary(chunk); err != nil {
			return err
		}
	}

	s.BridgeDogePublicKeyHash = r.hash160()
	r.pad(4)
	s.BridgeControlMode = r.u32()
	r.pad(4)
	s.NextRecentFinalizedBlockIndex = r.u64()
	s.LastProcessedWithdrawalsAtMs = r.u64()

	s.TotalRequestedWithdrawalsSats = r.u64()
	s.TotalWithdrawalFeesSats = r.u64()
	s.TotalManualDepositFeesSats = r.u64()
	s.TotalFeesWithdrawnSats = r.u64()

	s.Config.unmarshal(r)
	s.AccessControl.Operator = r.pubkey()
	s.AccessControl.FeeSpender = r.pubkey()
	s.CustodianWalletConfigHash = r.hash()
	return r.err
}

// pushRecentFinalized writes the commitment into the ring slot at the
// cursor and advances the cursor modulo the ring size.
func (s *State) pushRecentFinalized(c Commitment) {
	s.RecentFinalized[s.NextRecentFinalizedBlockIndex%RecentFinalizedBlocks] = c
	s.NextRecentFinalizedBlockIndex = (s.NextRecentFinalizedBlockIndex + 1) % RecentFinalizedBlocks
}

// recentWindow returns the 9-element recent-finalized window: the current
// header's commitment followed by the ring.
func (s *State) recentWindow() [RecentFinalizedBlocks + 1]Commitment {
	var window [RecentFinalizedBlocks + 1]Commitment
	window[0] = commitmentOf(&s.Header.Finalized)
	copy(window[1:], s.RecentFinalized[:])
	return window
}

// WithdrawableFees returns the fee balance the operator may still mint to
// itself.
func (s *State) WithdrawableFees() uint64 {
	earned := s.TotalManualDepositFeesSats + s.TotalWithdrawalFeesSats + s.Header.LifetimeFinalizedFees
	if s.TotalFeesWithdrawnSats >= earned {
		return 0
	}
	return earned - s.TotalFeesWithdrawnSats
}
