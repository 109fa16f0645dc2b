package bridge

import (
	"fmt"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
	"github.com/psy-protocol/doge-bridge/internal/zk"
)

// Dogecoin recipient address kinds.
const (
	AddressTypeP2PKH = 0
	AddressTypeP2SH  = 1
)

// WithdrawalRequest is a user's burn-and-withdraw order. The recipient is
// a 20-byte Dogecoin address payload.
type WithdrawalRequest struct {
	Requester   runtime.Pubkey
	AmountSats  uint64
	Recipient   merkle.Hash160
	AddressType uint8
}

func (wr *WithdrawalRequest) marshal(w *writer) {
	w.pubkey(wr.Requester)
	w.u64(wr.AmountSats)
	w.hash160(wr.Recipient)
	w.u8(wr.AddressType)
}

func (wr *WithdrawalRequest) unmarshal(r *reader) {
	wr.Requester = r.pubkey()
	wr.AmountSats = r.u64()
	wr.Recipient = r.hash160()
	wr.AddressType = r.u8()
}

// Leaf digests the request for the requested-withdrawals tree.
func (wr *WithdrawalRequest) Leaf() merkle.Hash {
	w := &writer{buf: make([]byte, 0, 61)}
	wr.marshal(w)
	return merkle.Sum256(w.buf)
}

// RequestWithdrawal burns the requested amount from the user and appends
// the request leaf to the requested-withdrawals tree. The requester signs.
// Accounts: bridge state.
func (p *Program) RequestWithdrawal(accounts []*runtime.Account, signers runtime.Signers, req *WithdrawalRequest) error {
	if len(accounts) < 1 {
		return runtime.ErrInvalidAccountKey
	}
	stateAcct := accounts[0]

	st, err := p.loadState(stateAcct)
	if err != nil {
		return err
	}
	if err := signers.Require(req.Requester); err != nil {
		return err
	}

	net, fee := st.Config.SplitWithdrawal(req.AmountSats)
	if net == 0 {
		return ErrInvalidWithdrawalAmount
	}
	if err := p.Burner.Burn(req.Requester, req.AmountSats); err != nil {
		return fmt.Errorf("%w: %v", ErrCpiTokenBurnCall, err)
	}

	if err := st.RequestedWithdrawalsTree.Append(req.Leaf()); err != nil {
		return err
	}
	st.TotalRequestedWithdrawalsSats += net
	st.TotalWithdrawalFeesSats += fee

	p.logger().Info("withdrawal requested",
		"amount_sats", req.AmountSats,
		"fee_sats", fee,
		"tree_index", st.RequestedWithdrawalsTree.NextIndex)
	return p.storeState(st, stateAcct)
}

// SnapshotWithdrawals freezes the tree commitments a withdrawal proof will
// be built against. Operator only. Accounts: bridge state.
func (p *Program) SnapshotWithdrawals(accounts []*runtime.Account, signers runtime.Signers) error {
	if len(accounts) < 1 {
		return runtime.ErrInvalidAccountKey
	}
	stateAcct := accounts[0]

	st, err := p.loadState(stateAcct)
	if err != nil {
		return err
	}
	if err := signers.Require(st.AccessControl.Operator); err != nil {
		return err
	}

	st.WithdrawalSnapshot = Snapshot{
		AutoClaimedDepositsTreeRoot:       st.Header.Finalized.AutoClaimedDepositsTreeRoot,
		RequestedWithdrawalsTreeRoot:      st.RequestedWithdrawalsTree.Root,
		BlockMerkleRoot:                   st.Header.Finalized.BlockMerkleRoot,
		BlockHeight:                       st.Header.Finalized.BlockHeight,
		LastSnapshottedSeconds:            uint64(p.Clock.NowMillis() / 1000),
		NextRequestedWithdrawalsTreeIndex: st.RequestedWithdrawalsTree.NextIndex,
	}

	p.logger().Info("withdrawals snapshotted",
		"next_index", st.WithdrawalSnapshot.NextRequestedWithdrawalsTreeIndex,
		"height", st.WithdrawalSnapshot.BlockHeight)
	return p.storeState(st, stateAcct)
}

// ProcessWithdrawalParams carries a proved withdrawal batch settlement.
type ProcessWithdrawalParams struct {
	Proof                            []byte
	NewReturnOutput                  ReturnOutput
	NewSpentTxoTreeRoot              merkle.Hash
	NewNextProcessedWithdrawalsIndex uint64
	TxBytes                          []byte
}

// withdrawalPublicInput builds the opaque input of the withdrawal proof.
func withdrawalPublicInput(sighash merkle.Hash, snap *Snapshot, oldRet, newRet *ReturnOutput, oldRoot, newRoot merkle.Hash, newNextIndex uint64) [32]byte {
	retW := &writer{buf: make([]byte, 0, 2*ReturnOutputSize)}
	oldRet.marshal(retW)
	newRet.marshal(retW)
	retDigest := merkle.Sum256(retW.buf)
	rootDigest := merkle.HashTwo(oldRoot, newRoot)
	snapHash := snap.Hash()

	w := &writer{buf: make([]byte, 0, 136)}
	w.hash(sighash)
	w.hash(snapHash)
	w.hash(retDigest)
	w.hash(rootDigest)
	w.u64(newNextIndex)
	return merkle.Sum256(w.buf)
}

// ProcessWithdrawal verifies a withdrawal settlement proof, advances the
// spent-TXO root and the processed cursor, records the sighash in the
// sent-transactions tree, and emits the signed Dogecoin transaction
// through the messenger. Accounts: bridge state.
func (p *Program) ProcessWithdrawal(accounts []*runtime.Account, signers runtime.Signers, params *ProcessWithdrawalParams) error {
	if len(accounts) < 1 {
		return runtime.ErrInvalidAccountKey
	}
	stateAcct := accounts[0]

	st, err := p.loadState(stateAcct)
	if err != nil {
		return err
	}
	if len(params.Proof) != zk.ProofSize {
		return ErrInvalidZKProofSize
	}
	if params.NewNextProcessedWithdrawalsIndex <= st.NextProcessedWithdrawalsIndex {
		return ErrInvalidProcessedWithdrawalsIndex
	}

	sighash := merkle.DoubleSum256(params.TxBytes)
	input := withdrawalPublicInput(sighash, &st.WithdrawalSnapshot,
		&st.LastReturnOutput, &params.NewReturnOutput,
		st.SpentTxoTreeRoot, params.NewSpentTxoTreeRoot,
		params.NewNextProcessedWithdrawalsIndex)
	if err := p.Verifier.Verify(zk.WithdrawalKeyID, params.Proof, input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBridgeInputZKP, err)
	}

	st.LastReturnOutput = params.NewReturnOutput
	st.SpentTxoTreeRoot = params.NewSpentTxoTreeRoot
	st.NextProcessedWithdrawalsIndex = params.NewNextProcessedWithdrawalsIndex
	if err := st.SentTransactionsTree.Append(sighash); err != nil {
		return err
	}

	nonce := uint32(params.NewNextProcessedWithdrawalsIndex)
	if err := p.Messenger.PostMessage(nonce, sighash, params.TxBytes); err != nil {
		return fmt.Errorf("%w: %v", ErrCpiMessengerCall, err)
	}
	st.LastProcessedWithdrawalsAtMs = uint64(p.Clock.NowMillis())

	p.logger().Info("withdrawal batch processed",
		"next_index", params.NewNextProcessedWithdrawalsIndex,
		"sighash", sighash)
	return p.storeState(st, stateAcct)
}

// ReplayWithdrawalParams re-emits a previously sent transaction.
type ReplayWithdrawalParams struct {
	TxBytes []byte
	Proof   merkle.Proof
}

// ReplayWithdrawal re-emits a sent transaction through the messenger. The
// caller proves the sighash is a leaf of the sent-transactions tree;
// replays are throttled to one per minute. Accounts: bridge state.
func (p *Program) ReplayWithdrawal(accounts []*runtime.Account, signers runtime.Signers, params *ReplayWithdrawalParams) error {
	if len(accounts) < 1 {
		return runtime.ErrInvalidAccountKey
	}
	stateAcct := accounts[0]

	st, err := p.loadState(stateAcct)
	if err != nil {
		return err
	}

	now := uint64(p.Clock.NowMillis())
	if st.LastProcessedWithdrawalsAtMs != 0 && now < st.LastProcessedWithdrawalsAtMs+ReplayIntervalMs {
		return ErrWithdrawalReplayRateLimited
	}

	sighash := merkle.DoubleSum256(params.TxBytes)
	if params.Proof.Value != sighash || !params.Proof.Verify(st.SentTransactionsTree.Root) {
		return ErrInvalidSentTransactionProof
	}

	nonce := uint32(st.NextProcessedWithdrawalsIndex)
	if err := p.Messenger.PostMessage(nonce, sighash, params.TxBytes); err != nil {
		return fmt.Errorf("%w: %v", ErrCpiMessengerCall, err)
	}
	st.LastProcessedWithdrawalsAtMs = now

	p.logger().Info("withdrawal replayed", "sighash", sighash)
	return p.storeState(st, stateAcct)
}

// OperatorWithdrawFees mints the accumulated fee balance to the operator.
// Accounts: bridge state. The operator signs.
func (p *Program) OperatorWithdrawFees(accounts []*runtime.Account, signers runtime.Signers) error {
	if len(accounts) < 1 {
		return runtime.ErrInvalidAccountKey
	}
	stateAcct := accounts[0]

	st, err := p.loadState(stateAcct)
	if err != nil {
		return err
	}
	if err := signers.Require(st.AccessControl.Operator); err != nil {
		return err
	}

	amount := st.WithdrawableFees()
	if amount == 0 {
		return ErrNoOperatorFeesToWithdraw
	}
	if err := p.Minter.MintTo(st.AccessControl.FeeSpender, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrCpiTokenMintToCall, err)
	}
	st.TotalFeesWithdrawnSats += amount

	p.logger().Info("operator fees withdrawn", "amount_sats", amount)
	return p.storeState(st, stateAcct)
}
