package bridge

import (
	"fmt"

	"github.com/psy-protocol/doge-bridge/internal/mintbuffer"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
)

// MintGroupParams selects one group of the active batch.
type MintGroupParams struct {
	GroupIndex   uint16
	ShouldUnlock bool
}

// drainGroup claims one group of the active batch, mints its records, and
// reports whether the batch is now fully drained.
func (p *Program) drainGroup(st *State, mintAcct *runtime.Account, params *MintGroupParams) (drained bool, err error) {
	tracker := &st.PendingMintTxos.CurrentPendingMintsTracker
	if st.PendingMintTxos.IsEmpty() || tracker.IsEmpty() {
		return false, ErrNoPendingMintsToProcess
	}
	if mintAcct.Key != tracker.StorageAccount {
		return false, ErrInvalidMintBufferPDA
	}

	groupIndex := uint32(params.GroupIndex)
	groups := tracker.GroupCount()
	if groupIndex >= groups || groupIndex >= MaxGroupBits {
		return false, ErrPendingMintsGroupIndexOutOfBounds
	}
	if tracker.GroupsClaimed.Bit(groupIndex) {
		return false, ErrPendingMintsGroupAlreadyProcessed
	}

	mintsInGroup := mintbuffer.MintsInGroup(tracker.TotalPendingMints, groupIndex)
	records, err := mintbuffer.GroupRecords(mintAcct.Data, groups, groupIndex, mintsInGroup)
	if err != nil {
		return false, ErrInvalidAutoClaimMintBufferDataAccountSize
	}

	tracker.GroupsClaimed.Set(groupIndex)
	tracker.PendingMintsGroupsRemaining--
	canUnlock := tracker.PendingMintsGroupsRemaining == 0

	if params.ShouldUnlock && !canUnlock {
		return false, ErrAttemptedUnlockPendingMintBuffer
	}
	if !params.ShouldUnlock && canUnlock {
		return false, ErrFailedUnlockPendingMintBuffer
	}

	for i := range records {
		if err := p.Minter.MintTo(records[i].Recipient, records[i].Amount); err != nil {
			return false, fmt.Errorf("%w: %v", ErrCpiTokenMintToCall, err)
		}
	}
	return canUnlock, nil
}

// ProcessMintGroup drains one group of the active batch. On the final
// group the buffer is unlocked and the pipeline cursor advances; a
// follow-up SetupNextPendingBuffer activates any remaining block.
// Accounts: bridge state, pending-mint buffer. The operator signs.
func (p *Program) ProcessMintGroup(accounts []*runtime.Account, signers runtime.Signers, params *MintGroupParams) error {
	if len(accounts) < 2 {
		return runtime.ErrInvalidAccountKey
	}
	stateAcct, mintAcct := accounts[0], accounts[1]

	st, err := p.loadState(stateAcct)
	if err != nil {
		return err
	}
	if err := signers.Require(st.AccessControl.Operator); err != nil {
		return err
	}

	drained, err := p.drainGroup(st, mintAcct, params)
	if err != nil {
		return err
	}

	if drained {
		if err := p.unlockMintBuffer(stateAcct.Key, mintAcct); err != nil {
			return err
		}
		st.PendingMintTxos.CurrentPendingMintsTracker = PendingMintsTracker{}
		st.PendingMintTxos.CurrentIndex++
		if !st.PendingMintTxos.HasMoreBlocks() {
			st.PendingMintTxos.Reset()
		}
	}

	p.logger().Debug("mint group processed",
		"group", params.GroupIndex,
		"batch_drained", drained)
	return p.storeState(st, stateAcct)
}

// ProcessMintGroupAutoAdvance bundles the final group drain with the
// activation of the next enqueued block's batch. The next batch must live
// in a different buffer account; relocking the one just released would
// undo the unlock mid-transaction.
// Accounts: bridge state, pending-mint buffer, next pending-mint buffer,
// next TXO buffer. The operator signs.
func (p *Program) ProcessMintGroupAutoAdvance(accounts []*runtime.Account, signers runtime.Signers, nextMintBump, nextTxoBump uint8, params *MintGroupParams) error {
	if len(accounts) < 4 {
		return runtime.ErrInvalidAccountKey
	}
	stateAcct, mintAcct, nextMintAcct, nextTxoAcct := accounts[0], accounts[1], accounts[2], accounts[3]

	st, err := p.loadState(stateAcct)
	if err != nil {
		return err
	}
	if err := signers.Require(st.AccessControl.Operator); err != nil {
		return err
	}
	if st.PendingMintTxos.IsEmpty() {
		return ErrNoPendingMintsToAutoProcess
	}

	drained, err := p.drainGroup(st, mintAcct, params)
	if err != nil {
		return err
	}

	if drained {
		if err := p.unlockMintBuffer(stateAcct.Key, mintAcct); err != nil {
			return err
		}
		st.PendingMintTxos.CurrentPendingMintsTracker = PendingMintsTracker{}
		st.PendingMintTxos.CurrentIndex++
		if st.PendingMintTxos.HasMoreBlocks() {
			if nextMintAcct.Key == mintAcct.Key {
				return ErrCannotUnlockAfterAutoAdvance
			}
			if err := p.setupNextLocked(st, stateAcct, nextMintAcct, nextTxoAcct, nextMintBump, nextTxoBump); err != nil {
				return err
			}
		} else {
			st.PendingMintTxos.Reset()
		}
	}

	p.logger().Debug("mint group processed with auto advance",
		"group", params.GroupIndex,
		"batch_drained", drained)
	return p.storeState(st, stateAcct)
}
