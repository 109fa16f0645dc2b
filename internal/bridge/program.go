package bridge

import (
	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/mintbuffer"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
	"github.com/psy-protocol/doge-bridge/internal/txobuffer"
	"github.com/psy-protocol/doge-bridge/internal/zk"
	"github.com/psy-protocol/doge-bridge/pkg/logging"
)

// Instruction discriminators.
const (
	OpInitialize               = 0
	OpBlockUpdate              = 1
	OpProcessReorgBlocks       = 2
	OpRequestWithdrawal        = 3
	OpProcessWithdrawal        = 4
	OpOperatorWithdrawFees     = 5
	OpProcessManualDeposit     = 6
	OpReplayWithdrawal         = 7
	OpProcessMintGroup         = 8
	OpProcessMintGroupAutoAdvance = 9
	OpSnapshotWithdrawals      = 10
)

// ReplayIntervalMs is the minimum wall-clock gap between withdrawal
// replays.
const ReplayIntervalMs = 60_000

// TokenMinter mints wrapped DOGE to a recipient token account.
type TokenMinter interface {
	MintTo(recipient runtime.Pubkey, amount uint64) error
}

// TokenBurner burns wrapped DOGE from a holder's token account.
type TokenBurner interface {
	Burn(holder runtime.Pubkey, amount uint64) error
}

// MessagePoster delivers a signed Dogecoin transaction to the cross-chain
// messenger. The bridge-state PDA signs as the emitter.
type MessagePoster interface {
	PostMessage(nonce uint32, sighash merkle.Hash, txBytes []byte) error
}

// Clock supplies wall-clock time for snapshots and replay throttling.
type Clock interface {
	NowMillis() int64
}

// Program is the bridge program with its external collaborators bound in.
type Program struct {
	ID                   runtime.Pubkey
	MintBufferProgram    *mintbuffer.Program
	TxoBufferProgram     *txobuffer.Program
	ManualClaimProgramID runtime.Pubkey

	Verifier  zk.Verifier
	Minter    TokenMinter
	Burner    TokenBurner
	Messenger MessagePoster
	Clock     Clock

	Log *logging.Logger
}

// StateAddress derives the bridge state PDA.
func (p *Program) StateAddress() (runtime.Pubkey, uint8, error) {
	return runtime.FindProgramAddress([][]byte{[]byte(StateSeedTag)}, p.ID)
}

// ManualClaimAddress derives the manual-claim PDA for a user. The address
// lives under the manual-claim subprogram, not the bridge.
func (p *Program) ManualClaimAddress(user runtime.Pubkey) (runtime.Pubkey, uint8, error) {
	return runtime.FindProgramAddress([][]byte{[]byte("manual-claim"), user[:]}, p.ManualClaimProgramID)
}

func (p *Program) logger() *logging.Logger {
	if p.Log != nil {
		return p.Log
	}
	return logging.GetDefault()
}

// loadState parses the bridge state account after checking ownership.
func (p *Program) loadState(acct *runtime.Account) (*State, error) {
	if err := acct.AssertOwner(p.ID); err != nil {
		return nil, err
	}
	st := &State{}
	if err := st.UnmarshalBinary(acct.Data); err != nil {
		return nil, err
	}
	return st, nil
}

// storeState writes the state back into the account.
func (p *Program) storeState(st *State, acct *runtime.Account) error {
	buf, err := st.MarshalBinary()
	if err != nil {
		return err
	}
	if len(acct.Data) < len(buf) {
		acct.Resize(len(buf))
	}
	copy(acct.Data, buf)
	return nil
}

// OpName names a discriminator for logs.
func OpName(op byte) string {
	switch op {
	case OpInitialize:
		return "initialize"
	case OpBlockUpdate:
		return "block_update"
	case OpProcessReorgBlocks:
		return "process_reorg_blocks"
	case OpRequestWithdrawal:
		return "request_withdrawal"
	case OpProcessWithdrawal:
		return "process_withdrawal"
	case OpOperatorWithdrawFees:
		return "operator_withdraw_fees"
	case OpProcessManualDeposit:
		return "process_manual_deposit"
	case OpReplayWithdrawal:
		return "replay_withdrawal"
	case OpProcessMintGroup:
		return "process_mint_group"
	case OpProcessMintGroupAutoAdvance:
		return "process_mint_group_auto_advance"
	case OpSnapshotWithdrawals:
		return "snapshot_withdrawals"
	default:
		return "unknown"
	}
}
