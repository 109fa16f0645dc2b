// Package daemon hosts the bridge program over the durable ledger. It loads
// instruction accounts from storage, executes the program against them, and
// persists the results, broadcasting websocket events for the operations
// clients care about.
package daemon

import (
	"fmt"
	"sync"
	"time"

	"github.com/psy-protocol/doge-bridge/internal/bridge"
	"github.com/psy-protocol/doge-bridge/internal/config"
	"github.com/psy-protocol/doge-bridge/internal/custodian"
	"github.com/psy-protocol/doge-bridge/internal/ledger"
	"github.com/psy-protocol/doge-bridge/internal/mintbuffer"
	"github.com/psy-protocol/doge-bridge/internal/rpc"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
	"github.com/psy-protocol/doge-bridge/internal/txobuffer"
	"github.com/psy-protocol/doge-bridge/internal/zk"
	"github.com/psy-protocol/doge-bridge/pkg/logging"
)

// SystemClock reads wall-clock time.
type SystemClock struct{}

// NowMillis implements bridge.Clock.
func (SystemClock) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// EventSink receives events for successfully executed instructions. The
// websocket hub implements it.
type EventSink interface {
	Broadcast(eventType rpc.EventType, data interface{})
}

// Daemon binds the bridge program to the ledger and the tx messenger.
type Daemon struct {
	cfg     *config.Config
	store   *ledger.Store
	program *bridge.Program

	stateKey  runtime.Pubkey
	stateBump uint8

	events EventSink
	log    *logging.Logger

	mu sync.Mutex
}

// New wires the bridge program from the config. The poster journals signed
// Dogecoin transactions in the outbox before publishing, so withdrawals
// survive gossip outages.
func New(cfg *config.Config, store *ledger.Store, poster bridge.MessagePoster) (*Daemon, error) {
	book := store.TokenBook()

	program := &bridge.Program{
		ID:                   cfg.Bridge.ProgramID.Pubkey(),
		MintBufferProgram:    &mintbuffer.Program{ID: cfg.Bridge.MintBufferProgramID.Pubkey()},
		TxoBufferProgram:     &txobuffer.Program{ID: cfg.Bridge.TxoBufferProgramID.Pubkey()},
		ManualClaimProgramID: cfg.Bridge.ManualClaimProgramID.Pubkey(),

		Verifier:  zk.NewGroth16Verifier(),
		Minter:    book,
		Burner:    book,
		Messenger: poster,
		Clock:     SystemClock{},

		Log: logging.GetDefault().Component("bridge"),
	}

	stateKey, stateBump, err := program.StateAddress()
	if err != nil {
		return nil, fmt.Errorf("failed to derive state address: %w", err)
	}

	return &Daemon{
		cfg:       cfg,
		store:     store,
		program:   program,
		stateKey:  stateKey,
		stateBump: stateBump,
		log:       logging.GetDefault().Component("daemon"),
	}, nil
}

// SetEventSink attaches the websocket hub. May be nil.
func (d *Daemon) SetEventSink(sink EventSink) {
	d.events = sink
}

// Program exposes the wired bridge program, mostly for instruction encoding.
func (d *Daemon) Program() *bridge.Program {
	return d.program
}

// StateAddress returns the bridge state PDA and its bump.
func (d *Daemon) StateAddress() (runtime.Pubkey, uint8) {
	return d.stateKey, d.stateBump
}

// BridgeState loads and parses the current bridge state. Implements
// rpc.StateProvider.
func (d *Daemon) BridgeState() (*bridge.State, error) {
	acct, err := d.store.LoadAccount(d.stateKey)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, fmt.Errorf("bridge state not initialized")
	}
	st := &bridge.State{}
	if err := st.UnmarshalBinary(acct.Data); err != nil {
		return nil, err
	}
	return st, nil
}

// Initialized reports whether the bridge state account exists.
func (d *Daemon) Initialized() (bool, error) {
	acct, err := d.store.LoadAccount(d.stateKey)
	if err != nil {
		return false, err
	}
	return acct != nil, nil
}

// InitializeState creates and seeds the bridge state account. Fails if the
// state already exists.
func (d *Daemon) InitializeState(params *bridge.InitializeParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	existing, err := d.store.LoadAccount(d.stateKey)
	if err != nil {
		return err
	}
	if existing != nil {
		return bridge.ErrStateAlreadyInitialized
	}

	acct := &runtime.Account{Key: d.stateKey}
	execErr := d.program.Initialize(acct, d.stateBump, params)
	if err := d.store.RecordInstruction(bridge.OpName(bridge.OpInitialize), execErr); err != nil {
		d.log.Error("Failed to journal instruction", "error", err)
	}
	if execErr != nil {
		return execErr
	}
	return d.store.SaveAccount(acct)
}

// ApplyInstruction loads the named accounts, executes one bridge instruction
// against them, and persists every account on success. Missing accounts are
// materialized empty so the program's own ownership and PDA checks decide
// whether they are acceptable.
func (d *Daemon) ApplyInstruction(accountKeys []runtime.Pubkey, signers runtime.Signers, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	accounts := make([]*runtime.Account, len(accountKeys))
	for i, key := range accountKeys {
		acct, err := d.store.LoadAccount(key)
		if err != nil {
			return err
		}
		if acct == nil {
			acct = &runtime.Account{Key: key}
		}
		accounts[i] = acct
	}

	op := opOf(data)
	execErr := d.program.Execute(accounts, signers, data)
	if err := d.store.RecordInstruction(bridge.OpName(op), execErr); err != nil {
		d.log.Error("Failed to journal instruction", "error", err)
	}
	if execErr != nil {
		d.log.Warn("Instruction failed", "op", bridge.OpName(op), "error", execErr)
		return execErr
	}

	for _, acct := range accounts {
		if err := d.store.SaveAccount(acct); err != nil {
			return err
		}
	}

	d.emit(op)
	return nil
}

// BuildInitializeParams assembles the genesis state parameters from the
// daemon config, the custodian wallet, and the chosen genesis header.
func BuildInitializeParams(cfg *config.Config, wallet *custodian.WalletConfig, header bridge.Header, ret bridge.ReturnOutput) (*bridge.InitializeParams, error) {
	scriptHash, err := wallet.ScriptHash()
	if err != nil {
		return nil, err
	}
	return &bridge.InitializeParams{
		Header:                    header,
		ReturnOutput:              ret,
		Config:                    cfg.BridgeFees(),
		CustodianWalletConfigHash: wallet.Hash(),
		Operator:                  cfg.Bridge.Operator.Pubkey(),
		FeeSpender:                cfg.Bridge.FeeSpender.Pubkey(),
		DogeMint:                  cfg.Bridge.DogeMint.Pubkey(),
		BridgeDogePublicKeyHash:   scriptHash,
	}, nil
}

func opOf(data []byte) byte {
	if len(data) == 0 {
		return 0xff
	}
	return data[0]
}

// emit maps an executed instruction to its websocket event, when one exists.
func (d *Daemon) emit(op byte) {
	if d.events == nil {
		return
	}
	st, err := d.BridgeState()
	if err != nil {
		return
	}

	switch op {
	case bridge.OpBlockUpdate:
		d.events.Broadcast(rpc.EventBlockFinalized, map[string]interface{}{
			"tip_height":       st.Header.Tip.BlockHeight,
			"finalized_height": st.Header.Finalized.BlockHeight,
		})
	case bridge.OpProcessReorgBlocks:
		d.events.Broadcast(rpc.EventReorg, map[string]interface{}{
			"tip_height":       st.Header.Tip.BlockHeight,
			"finalized_height": st.Header.Finalized.BlockHeight,
		})
	case bridge.OpProcessMintGroup, bridge.OpProcessMintGroupAutoAdvance:
		d.events.Broadcast(rpc.EventMintGroupProcessed, map[string]interface{}{
			"pending_mints": st.PendingMintTxos.CurrentPendingMintsTracker.TotalPendingMints,
		})
	case bridge.OpRequestWithdrawal:
		d.events.Broadcast(rpc.EventWithdrawalRequest, map[string]interface{}{
			"requested_withdrawals_root": st.RequestedWithdrawalsTree.Root.String(),
		})
	case bridge.OpProcessWithdrawal, bridge.OpReplayWithdrawal:
		d.events.Broadcast(rpc.EventWithdrawalSent, map[string]interface{}{
			"next_processed_withdrawals_index": st.NextProcessedWithdrawalsIndex,
		})
	case bridge.OpProcessManualDeposit:
		d.events.Broadcast(rpc.EventManualDeposit, map[string]interface{}{
			"manual_deposits_root": st.ManualDepositsTree.Root.String(),
		})
	}
}
