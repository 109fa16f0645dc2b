package daemon

import (
	"context"
	"testing"

	"github.com/psy-protocol/doge-bridge/internal/bridge"
	"github.com/psy-protocol/doge-bridge/internal/config"
	"github.com/psy-protocol/doge-bridge/internal/ledger"
	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/messenger"
	"github.com/psy-protocol/doge-bridge/internal/rpc"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
)

// Compressed secp256k1 points (G, 2G, 3G).
var custodianKeys = []string{
	"0x0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
	"0x02c6047f9441ed7d6d3045406e95c07cd85c778e4b8cef3ca7abac09b95c709ee5",
	"0x02f9308a019258c31049344f85f89d5229b531c845836f99b08601f113bce036f9",
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Bridge.ProgramID = config.HexKey{0x01}
	cfg.Bridge.MintBufferProgramID = config.HexKey{0x02}
	cfg.Bridge.TxoBufferProgramID = config.HexKey{0x03}
	cfg.Bridge.ManualClaimProgramID = config.HexKey{0x04}
	cfg.Bridge.DogeMint = config.HexKey{0x05}
	cfg.Bridge.Operator = config.HexKey{0x06}
	cfg.Bridge.FeeSpender = config.HexKey{0x07}
	cfg.Bridge.Fees.WithdrawalFlatFeeSats = 1000
	cfg.Custodian.RequiredSignatures = 2
	cfg.Custodian.PublicKeys = custodianKeys
	return cfg
}

func testDaemon(t *testing.T) (*Daemon, *ledger.Store) {
	t.Helper()
	store, err := ledger.Open(&ledger.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("ledger.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	poster := messenger.NewPoster(context.Background(), store, &messenger.MemoryPublisher{})
	d, err := New(testConfig(), store, poster)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return d, store
}

func genesisParams(t *testing.T, d *Daemon) *bridge.InitializeParams {
	t.Helper()
	cfg := testConfig()
	wallet, err := cfg.WalletConfig()
	if err != nil {
		t.Fatalf("WalletConfig() error = %v", err)
	}

	var header bridge.Header
	header.Tip.BlockHeight = 100
	header.Tip.BlockHash = merkle.Sum256([]byte("tip"))
	header.Finalized.BlockHeight = 100
	header.Finalized.BlockHash = merkle.Sum256([]byte("tip"))
	header.Finalized.PendingMintsFinalizedHash = merkle.Sum256([]byte("mints"))
	header.Finalized.TxoOutputListFinalizedHash = merkle.Sum256([]byte("txos"))

	ret := bridge.ReturnOutput{
		Sighash:     merkle.Sum256([]byte("genesis output")),
		OutputIndex: 0,
		Amount:      50_000,
	}

	params, err := BuildInitializeParams(cfg, wallet, header, ret)
	if err != nil {
		t.Fatalf("BuildInitializeParams() error = %v", err)
	}
	return params
}

func TestInitializeState(t *testing.T) {
	d, _ := testDaemon(t)

	ok, err := d.Initialized()
	if err != nil {
		t.Fatalf("Initialized() error = %v", err)
	}
	if ok {
		t.Fatal("fresh daemon reports initialized state")
	}
	if _, err := d.BridgeState(); err == nil {
		t.Error("BridgeState() succeeded before initialization")
	}

	params := genesisParams(t, d)
	if err := d.InitializeState(params); err != nil {
		t.Fatalf("InitializeState() error = %v", err)
	}

	ok, err = d.Initialized()
	if err != nil || !ok {
		t.Fatalf("Initialized() = (%v, %v), want (true, nil)", ok, err)
	}

	st, err := d.BridgeState()
	if err != nil {
		t.Fatalf("BridgeState() error = %v", err)
	}
	if st.Header.Finalized.BlockHeight != 100 {
		t.Errorf("finalized height = %d, want 100", st.Header.Finalized.BlockHeight)
	}
	if st.AccessControl.Operator != params.Operator {
		t.Errorf("operator = %s, want %s", st.AccessControl.Operator, params.Operator)
	}

	if err := d.InitializeState(params); err != bridge.ErrStateAlreadyInitialized {
		t.Errorf("second InitializeState() error = %v, want ErrStateAlreadyInitialized", err)
	}
}

func TestStatePersistsAcrossDaemons(t *testing.T) {
	store, err := ledger.Open(&ledger.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("ledger.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	poster := messenger.NewPoster(context.Background(), store, &messenger.MemoryPublisher{})
	first, err := New(testConfig(), store, poster)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := first.InitializeState(genesisParams(t, first)); err != nil {
		t.Fatalf("InitializeState() error = %v", err)
	}

	second, err := New(testConfig(), store, poster)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	st, err := second.BridgeState()
	if err != nil {
		t.Fatalf("BridgeState() after restart error = %v", err)
	}
	if st.Header.Finalized.BlockHeight != 100 {
		t.Errorf("finalized height = %d, want 100", st.Header.Finalized.BlockHeight)
	}
}

type recordingSink struct {
	events []rpc.EventType
}

func (s *recordingSink) Broadcast(eventType rpc.EventType, data interface{}) {
	s.events = append(s.events, eventType)
}

func TestApplyWithdrawalRequest(t *testing.T) {
	d, store := testDaemon(t)
	if err := d.InitializeState(genesisParams(t, d)); err != nil {
		t.Fatalf("InitializeState() error = %v", err)
	}
	sink := &recordingSink{}
	d.SetEventSink(sink)

	requester := runtime.Pubkey{0x42}
	if err := store.TokenBook().MintTo(requester, 10_000); err != nil {
		t.Fatalf("MintTo() error = %v", err)
	}

	req := &bridge.WithdrawalRequest{
		Requester:   requester,
		AmountSats:  10_000,
		Recipient:   merkle.Hash160{0xaa},
		AddressType: bridge.AddressTypeP2PKH,
	}
	stateKey, _ := d.StateAddress()
	data := bridge.EncodeRequestWithdrawal(req)

	// Unsigned request must fail and leave the balance alone.
	if err := d.ApplyInstruction([]runtime.Pubkey{stateKey}, runtime.Signers{}, data); err == nil {
		t.Fatal("unsigned withdrawal request was accepted")
	}
	if bal, _ := store.TokenBook().Balance(requester); bal != 10_000 {
		t.Errorf("balance after rejected request = %d, want 10000", bal)
	}

	signers := runtime.NewSigners(requester)
	if err := d.ApplyInstruction([]runtime.Pubkey{stateKey}, signers, data); err != nil {
		t.Fatalf("ApplyInstruction() error = %v", err)
	}

	if bal, _ := store.TokenBook().Balance(requester); bal != 0 {
		t.Errorf("balance after burn = %d, want 0", bal)
	}
	st, err := d.BridgeState()
	if err != nil {
		t.Fatalf("BridgeState() error = %v", err)
	}
	if st.RequestedWithdrawalsTree.NextIndex != 1 {
		t.Errorf("withdrawals tree index = %d, want 1", st.RequestedWithdrawalsTree.NextIndex)
	}
	if st.TotalWithdrawalFeesSats != 1000 {
		t.Errorf("withdrawal fees = %d, want 1000", st.TotalWithdrawalFeesSats)
	}

	if len(sink.events) != 1 || sink.events[0] != rpc.EventWithdrawalRequest {
		t.Errorf("events = %v, want [withdrawal_request]", sink.events)
	}
}

func TestSnapshotRequiresOperator(t *testing.T) {
	d, _ := testDaemon(t)
	if err := d.InitializeState(genesisParams(t, d)); err != nil {
		t.Fatalf("InitializeState() error = %v", err)
	}

	stateKey, _ := d.StateAddress()
	data := bridge.EncodeSnapshotWithdrawals()

	if err := d.ApplyInstruction([]runtime.Pubkey{stateKey}, runtime.NewSigners(runtime.Pubkey{0x99}), data); err == nil {
		t.Fatal("snapshot accepted a non-operator signer")
	}

	operator := testConfig().Bridge.Operator.Pubkey()
	if err := d.ApplyInstruction([]runtime.Pubkey{stateKey}, runtime.NewSigners(operator), data); err != nil {
		t.Fatalf("ApplyInstruction() error = %v", err)
	}

	st, err := d.BridgeState()
	if err != nil {
		t.Fatalf("BridgeState() error = %v", err)
	}
	if st.WithdrawalSnapshot.BlockHeight != 100 {
		t.Errorf("snapshot height = %d, want 100", st.WithdrawalSnapshot.BlockHeight)
	}
	if st.WithdrawalSnapshot.LastSnapshottedSeconds == 0 {
		t.Error("snapshot timestamp not set")
	}
}
