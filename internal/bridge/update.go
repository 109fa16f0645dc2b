package bridge

import (
	"fmt"
	"math"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/mintbuffer"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
	"github.com/psy-protocol/doge-bridge/internal/txobuffer"
	"github.com/psy-protocol/doge-bridge/internal/zk"
)

// BlockUpdateParams carries a single-block transition.
type BlockUpdateParams struct {
	Proof     []byte
	NewHeader Header
}

// ReorgParams carries a reorg fast-forward transition. ExtraFinalized holds
// one entry per skipped block; the last entry pairs with the new header's
// finalized hashes.
type ReorgParams struct {
	Proof          []byte
	NewHeader      Header
	ExtraFinalized []FinalizedBlockMintTxoInfo
}

// blockUpdatePublicInput builds the single opaque input of the block-update
// proof: H(prev_header) then H(new_header) then H(config) then the
// custodian wallet config hash, digested together.
func blockUpdatePublicInput(prev, next *Header, cfg *Config, custodian merkle.Hash) [32]byte {
	buf := make([]byte, 0, 128)
	prevHash := prev.Hash()
	nextHash := next.Hash()
	cfgHash := cfg.Hash()
	buf = append(buf, prevHash[:]...)
	buf = append(buf, nextHash[:]...)
	buf = append(buf, cfgHash[:]...)
	buf = append(buf, custodian[:]...)
	return merkle.Sum256(buf)
}

// reorgPublicInput extends the block-update input with the digest of the
// concatenated extra finalized entries.
func reorgPublicInput(prev, next *Header, cfg *Config, custodian merkle.Hash, extras []FinalizedBlockMintTxoInfo) [32]byte {
	w := &writer{buf: make([]byte, 0, len(extras)*InfoSize)}
	for i := range extras {
		extras[i].marshal(w)
	}
	extrasDigest := merkle.Sum256(w.buf)

	base := blockUpdatePublicInput(prev, next, cfg, custodian)
	buf := make([]byte, 0, 64)
	buf = append(buf, base[:]...)
	buf = append(buf, extrasDigest[:]...)
	return merkle.Sum256(buf)
}

// validateMintBuffer checks the pending-mint buffer against the finalized
// hash and the expected mint count, then locks it as the bridge-state PDA.
func (p *Program) validateAndLockMintBuffer(statePDA runtime.Pubkey, operator runtime.Pubkey, acct *runtime.Account, bump uint8, expectedHash merkle.Hash, delta uint16) error {
	if acct.Owner != p.MintBufferProgram.ID {
		return ErrInvalidMintBufferPdaProgram
	}
	expected, err := runtime.CreateProgramAddress([][]byte{[]byte(mintbuffer.SeedTag), operator[:]}, bump, p.MintBufferProgram.ID)
	if err != nil || expected != acct.Key {
		return ErrInvalidMintBufferPDA
	}

	header, err := mintbuffer.ParseHeader(acct.Data)
	if err != nil {
		return ErrInvalidAutoClaimMintBufferDataAccountSize
	}
	if header.AuthorizedLocker != statePDA {
		return ErrInvalidMintBufferLockingPermission
	}
	if header.MintsCount != delta || uint32(header.GroupsCount) != mintbuffer.GroupCount(uint32(delta)) {
		return ErrInvalidMintBufferHeaderGroupCountOrDepositsCount
	}
	if len(acct.Data) < mintbuffer.BufferSize(uint32(delta)) {
		return ErrInvalidAutoClaimMintBufferDataAccountSize
	}

	batchHash, err := mintbuffer.ComputeBatchHash(acct.Data, uint32(header.GroupsCount), header.MintsCount)
	if err != nil {
		return ErrInvalidAutoClaimMintBufferDataAccountSize
	}
	if batchHash != expectedHash {
		return ErrInvalidPendingMintsBufferHash
	}

	lockSigners := runtime.NewSigners(statePDA)
	if err := p.MintBufferProgram.Execute(acct, lockSigners, mintbuffer.EncodeLock(statePDA)); err != nil {
		return fmt.Errorf("%w: %v", ErrCpiLockCall, err)
	}
	return nil
}

// validateTxoBuffer checks the TXO buffer against the finalized hash and
// the expected Dogecoin height.
func (p *Program) validateTxoBuffer(operator runtime.Pubkey, acct *runtime.Account, bump uint8, expectedHash merkle.Hash, height uint32) error {
	if acct.Owner != p.TxoBufferProgram.ID {
		return ErrInvalidTxoBufferPdaProgram
	}
	expected, err := runtime.CreateProgramAddress([][]byte{[]byte(txobuffer.SeedTag), operator[:]}, bump, p.TxoBufferProgram.ID)
	if err != nil || expected != acct.Key {
		return ErrInvalidTxoBufferPDA
	}

	header, err := txobuffer.ParseHeader(acct.Data)
	if err != nil {
		return ErrInvalidTxoBufferPDA
	}
	if header.DogeBlockHeight != height {
		return ErrInvalidBlockHeight
	}
	if header.DataSize == 0 {
		return ErrInvalidAutoClaimTxoBufferPendingMintsCount
	}
	bodyHash, err := txobuffer.BodyHash(acct.Data)
	if err != nil {
		return ErrInvalidAutoClaimTxoBufferPendingMintsCount
	}
	if bodyHash != expectedHash {
		return ErrInvalidAutoClaimTxoBufferHash
	}
	return nil
}

// unlockMintBuffer releases the buffer as the bridge-state PDA.
func (p *Program) unlockMintBuffer(statePDA runtime.Pubkey, acct *runtime.Account) error {
	signers := runtime.NewSigners(statePDA)
	if err := p.MintBufferProgram.Execute(acct, signers, mintbuffer.EncodeUnlock(statePDA)); err != nil {
		return fmt.Errorf("%w: %v", ErrCpiUnlockCall, err)
	}
	return nil
}

// newTracker builds the tracker of a freshly validated batch.
func newTracker(storage runtime.Pubkey, delta uint32) PendingMintsTracker {
	return PendingMintsTracker{
		StorageAccount:              storage,
		TotalPendingMints:           delta,
		PendingMintsGroupsRemaining: mintbuffer.GroupCount(delta),
	}
}

// BlockUpdate applies a single-block transition. Accounts: bridge state,
// pending-mint buffer, TXO buffer. The operator signs.
func (p *Program) BlockUpdate(accounts []*runtime.Account, signers runtime.Signers, mintBump, txoBump uint8, params *BlockUpdateParams) error {
	if len(accounts) < 3 {
		return runtime.ErrInvalidAccountKey
	}
	stateAcct, mintAcct, txoAcct := accounts[0], accounts[1], accounts[2]

	st, err := p.loadState(stateAcct)
	if err != nil {
		return err
	}
	if err := signers.Require(st.AccessControl.Operator); err != nil {
		return err
	}
	if !st.PendingMintTxos.IsEmpty() || !st.PendingMintTxos.CurrentPendingMintsTracker.IsEmpty() {
		return ErrProgramStateNotReadyForBlockUpdate
	}

	if len(params.Proof) != zk.ProofSize {
		return ErrInvalidZKProofSize
	}
	newHeader := &params.NewHeader
	if newHeader.Finalized.BlockHeight != st.Header.Finalized.BlockHeight+1 {
		return ErrInvalidBlockHeight
	}
	if newHeader.Tip.BlockHeight <= st.Header.Tip.BlockHeight {
		return ErrInvalidTipHeight
	}
	if newHeader.Finalized.AutoClaimedDepositsNextIndex < st.Header.Finalized.AutoClaimedDepositsNextIndex {
		return ErrInvalidAutoClaimedDepositsNextIndex
	}
	delta := newHeader.Finalized.AutoClaimedDepositsNextIndex - st.Header.Finalized.AutoClaimedDepositsNextIndex
	if delta > math.MaxUint16 {
		return ErrTooManyNewAutoClaimedDeposits
	}

	input := blockUpdatePublicInput(&st.Header, newHeader, &st.Config, st.CustodianWalletConfigHash)
	if err := p.Verifier.Verify(zk.BlockUpdateKeyID, params.Proof, input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBridgeInputZKP, err)
	}

	if delta > 0 {
		operator := st.AccessControl.Operator
		if err := p.validateAndLockMintBuffer(stateAcct.Key, operator, mintAcct, mintBump, newHeader.Finalized.PendingMintsFinalizedHash, uint16(delta)); err != nil {
			return err
		}
		if err := p.validateTxoBuffer(operator, txoAcct, txoBump, newHeader.Finalized.TxoOutputListFinalizedHash, newHeader.Finalized.BlockHeight); err != nil {
			return err
		}

		st.PendingMintTxos = FinalizedBlockMintTxoManager{
			StartBlockHeight:           newHeader.Finalized.BlockHeight,
			Count:                      1,
			CurrentPendingMintsTracker: newTracker(mintAcct.Key, uint32(delta)),
		}
		st.PendingMintTxos.PendingFinalizedInfo[0] = FinalizedBlockMintTxoInfo{
			PendingMintsFinalizedHash:  newHeader.Finalized.PendingMintsFinalizedHash,
			TxoOutputListFinalizedHash: newHeader.Finalized.TxoOutputListFinalizedHash,
		}
	}

	st.Header = *newHeader
	st.pushRecentFinalized(commitmentOf(&newHeader.Finalized))

	if delta == 0 {
		if header, err := mintbuffer.ParseHeader(mintAcct.Data); err == nil && header.IsLocked != 0 && header.AuthorizedLocker == stateAcct.Key {
			if err := p.unlockMintBuffer(stateAcct.Key, mintAcct); err != nil {
				return err
			}
		}
	}

	p.logger().Info("block update applied",
		"finalized_height", newHeader.Finalized.BlockHeight,
		"tip_height", newHeader.Tip.BlockHeight,
		"new_mints", delta)
	return p.storeState(st, stateAcct)
}

// ProcessReorgBlocks applies a reorg fast-forward: several finalized blocks
// land at once and the first one carrying mints becomes the active batch.
func (p *Program) ProcessReorgBlocks(accounts []*runtime.Account, signers runtime.Signers, mintBump, txoBump uint8, params *ReorgParams) error {
	if len(accounts) < 3 {
		return runtime.ErrInvalidAccountKey
	}
	stateAcct, mintAcct, txoAcct := accounts[0], accounts[1], accounts[2]

	st, err := p.loadState(stateAcct)
	if err != nil {
		return err
	}
	if err := signers.Require(st.AccessControl.Operator); err != nil {
		return err
	}
	if !st.PendingMintTxos.IsEmpty() || !st.PendingMintTxos.CurrentPendingMintsTracker.IsEmpty() {
		return ErrProgramStateNotReadyForBlockUpdate
	}

	if len(params.Proof) != zk.ProofSize {
		return ErrInvalidZKProofSize
	}
	newHeader := &params.NewHeader
	oldHeight := st.Header.Finalized.BlockHeight
	if newHeader.Finalized.BlockHeight <= oldHeight {
		return ErrInvalidBlockHeight
	}
	if newHeader.Tip.BlockHeight <= st.Header.Tip.BlockHeight {
		return ErrInvalidTipHeight
	}
	fastForward := newHeader.Finalized.BlockHeight - oldHeight
	if uint32(len(params.ExtraFinalized)) != fastForward-1 {
		return ErrInvalidExtraFinalizedBlocksLength
	}
	if fastForward > PipelineDepth {
		return ErrTooManyPendingFinalizedBlocks
	}

	input := reorgPublicInput(&st.Header, newHeader, &st.Config, st.CustodianWalletConfigHash, params.ExtraFinalized)
	if err := p.Verifier.Verify(zk.ReorgUpdateKeyID, params.Proof, input); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBridgeInputZKP, err)
	}

	// Full backlog: the skipped blocks followed by the new header's own
	// finalized pair.
	backlog := make([]FinalizedBlockMintTxoInfo, 0, fastForward)
	backlog = append(backlog, params.ExtraFinalized...)
	backlog = append(backlog, FinalizedBlockMintTxoInfo{
		PendingMintsFinalizedHash:  newHeader.Finalized.PendingMintsFinalizedHash,
		TxoOutputListFinalizedHash: newHeader.Finalized.TxoOutputListFinalizedHash,
	})

	firstNonEmpty := -1
	for i := range backlog {
		if backlog[i].PendingMintsFinalizedHash != mintbuffer.EmptyBatchHash {
			firstNonEmpty = i
			break
		}
	}

	if firstNonEmpty >= 0 {
		activeHeight := oldHeight + 1 + uint32(firstNonEmpty)
		operator := st.AccessControl.Operator

		mintHeader, err := mintbuffer.ParseHeader(mintAcct.Data)
		if err != nil {
			return ErrInvalidAutoClaimMintBufferDataAccountSize
		}
		if err := p.validateAndLockMintBuffer(stateAcct.Key, operator, mintAcct, mintBump, backlog[firstNonEmpty].PendingMintsFinalizedHash, mintHeader.MintsCount); err != nil {
			return err
		}
		if err := p.validateTxoBuffer(operator, txoAcct, txoBump, backlog[firstNonEmpty].TxoOutputListFinalizedHash, activeHeight); err != nil {
			return err
		}

		manager := FinalizedBlockMintTxoManager{
			StartBlockHeight:           activeHeight,
			Count:                      uint32(len(backlog) - firstNonEmpty),
			CurrentPendingMintsTracker: newTracker(mintAcct.Key, uint32(mintHeader.MintsCount)),
		}
		copy(manager.PendingFinalizedInfo[:], backlog[firstNonEmpty:])
		st.PendingMintTxos = manager
	}

	st.Header = *newHeader
	st.pushRecentFinalized(commitmentOf(&newHeader.Finalized))

	p.logger().Info("reorg fast-forward applied",
		"from_height", oldHeight,
		"to_height", newHeader.Finalized.BlockHeight,
		"active_batch", firstNonEmpty >= 0)
	return p.storeState(st, stateAcct)
}

// SetupNextPendingBuffer activates the next enqueued block's batch after
// the previous batch fully drained. Empty-sentinel entries are skipped.
func (p *Program) SetupNextPendingBuffer(accounts []*runtime.Account, signers runtime.Signers, mintBump, txoBump uint8) error {
	if len(accounts) < 3 {
		return runtime.ErrInvalidAccountKey
	}
	stateAcct, mintAcct, txoAcct := accounts[0], accounts[1], accounts[2]

	st, err := p.loadState(stateAcct)
	if err != nil {
		return err
	}
	if err := signers.Require(st.AccessControl.Operator); err != nil {
		return err
	}
	if st.PendingMintTxos.IsEmpty() || !st.PendingMintTxos.CurrentPendingMintsTracker.IsEmpty() {
		return ErrNoPendingMintsToProcess
	}

	if err := p.setupNextLocked(st, stateAcct, mintAcct, txoAcct, mintBump, txoBump); err != nil {
		return err
	}
	return p.storeState(st, stateAcct)
}

// setupNextLocked advances the pipeline cursor to the next non-empty entry
// and installs its tracker. The caller stores the state.
func (p *Program) setupNextLocked(st *State, stateAcct, mintAcct, txoAcct *runtime.Account, mintBump, txoBump uint8) error {
	if !st.PendingMintTxos.SkipEmptyEntries() {
		st.PendingMintTxos.Reset()
		return nil
	}

	entry := st.PendingMintTxos.PendingFinalizedInfo[st.PendingMintTxos.CurrentIndex]
	height := st.PendingMintTxos.CurrentBlockHeight()
	operator := st.AccessControl.Operator

	mintHeader, err := mintbuffer.ParseHeader(mintAcct.Data)
	if err != nil {
		return ErrInvalidAutoClaimMintBufferDataAccountSize
	}
	if err := p.validateAndLockMintBuffer(stateAcct.Key, operator, mintAcct, mintBump, entry.PendingMintsFinalizedHash, mintHeader.MintsCount); err != nil {
		return err
	}
	if err := p.validateTxoBuffer(operator, txoAcct, txoBump, entry.TxoOutputListFinalizedHash, height); err != nil {
		return err
	}

	st.PendingMintTxos.CurrentPendingMintsTracker = newTracker(mintAcct.Key, uint32(mintHeader.MintsCount))
	return nil
}
