package bridge

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/mintbuffer"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
	"github.com/psy-protocol/doge-bridge/internal/txobuffer"
	"github.com/psy-protocol/doge-bridge/internal/zk"
)

// fakeLedger is an in-memory token module.
type fakeLedger struct {
	balances map[runtime.Pubkey]uint64
	mintErr  error
}

func (l *fakeLedger) MintTo(recipient runtime.Pubkey, amount uint64) error {
	if l.mintErr != nil {
		return l.mintErr
	}
	l.balances[recipient] += amount
	return nil
}

func (l *fakeLedger) Burn(holder runtime.Pubkey, amount uint64) error {
	if l.balances[holder] < amount {
		return errors.New("insufficient balance")
	}
	l.balances[holder] -= amount
	return nil
}

type postedMessage struct {
	nonce   uint32
	sighash merkle.Hash
	tx      []byte
}

// fakePoster records messenger posts.
type fakePoster struct {
	posts []postedMessage
}

func (m *fakePoster) PostMessage(nonce uint32, sighash merkle.Hash, txBytes []byte) error {
	m.posts = append(m.posts, postedMessage{nonce, sighash, txBytes})
	return nil
}

// fakeClock is a settable wall clock.
type fakeClock struct {
	ms int64
}

func (c *fakeClock) NowMillis() int64 { return c.ms }

// env wires a bridge program with its companion programs, buffer accounts,
// and fake collaborators.
type env struct {
	bridge   *Program
	stateAcct *runtime.Account
	stateBump uint8

	mintAcct *runtime.Account
	mintBump uint8
	txoAcct  *runtime.Account
	txoBump  uint8

	operator   runtime.Pubkey
	feeSpender runtime.Pubkey
	opSigners  runtime.Signers

	ledger    *fakeLedger
	messenger *fakePoster
	clock     *fakeClock
}

func newEnv(t *testing.T, cfg Config) *env {
	t.Helper()
	e := &env{
		ledger:    &fakeLedger{balances: map[runtime.Pubkey]uint64{}},
		messenger: &fakePoster{},
		clock:     &fakeClock{ms: 1_700_000_000_000},
	}
	e.operator[0] = 0xA1
	e.feeSpender[0] = 0xA2
	e.opSigners = runtime.NewSigners(e.operator)

	mintProg := &mintbuffer.Program{ID: runtime.Pubkey{0xB2}}
	txoProg := &txobuffer.Program{ID: runtime.Pubkey{0xB3}}
	e.bridge = &Program{
		ID:                   runtime.Pubkey{0xB1},
		MintBufferProgram:    mintProg,
		TxoBufferProgram:     txoProg,
		ManualClaimProgramID: runtime.Pubkey{0xB4},
		Verifier:             &zk.StubVerifier{},
		Minter:               e.ledger,
		Burner:               e.ledger,
		Messenger:            e.messenger,
		Clock:                e.clock,
	}

	statePDA, stateBump, err := e.bridge.StateAddress()
	if err != nil {
		t.Fatalf("StateAddress() error = %v", err)
	}
	e.stateBump = stateBump
	e.stateAcct = &runtime.Account{Key: statePDA}

	params := &InitializeParams{
		Config:     cfg,
		Operator:   e.operator,
		FeeSpender: e.feeSpender,
		DogeMint:   runtime.Pubkey{0xD0},
	}
	err = e.bridge.Execute([]*runtime.Account{e.stateAcct}, e.opSigners, EncodeInitialize(stateBump, params))
	if err != nil {
		t.Fatalf("initialize error = %v", err)
	}

	mintAddr, mintBump, err := mintProg.DeriveBufferAddress(e.operator)
	if err != nil {
		t.Fatalf("mint DeriveBufferAddress() error = %v", err)
	}
	e.mintBump = mintBump
	e.mintAcct = &runtime.Account{Key: mintAddr}
	err = mintProg.Execute(e.mintAcct, e.opSigners, mintbuffer.EncodeSetup(e.operator, mintBump, statePDA, e.operator))
	if err != nil {
		t.Fatalf("mint buffer setup error = %v", err)
	}

	txoAddr, txoBump, err := txoProg.DeriveBufferAddress(e.operator)
	if err != nil {
		t.Fatalf("txo DeriveBufferAddress() error = %v", err)
	}
	e.txoBump = txoBump
	e.txoAcct = &runtime.Account{Key: txoAddr}
	err = txoProg.Execute(e.txoAcct, e.opSigners, txobuffer.EncodeInit(e.operator, txoBump, e.operator))
	if err != nil {
		t.Fatalf("txo buffer init error = %v", err)
	}
	return e
}

func (e *env) state(t *testing.T) *State {
	t.Helper()
	st := &State{}
	if err := st.UnmarshalBinary(e.stateAcct.Data); err != nil {
		t.Fatalf("state unmarshal error = %v", err)
	}
	return st
}

func (e *env) updateAccounts() []*runtime.Account {
	return []*runtime.Account{e.stateAcct, e.mintAcct, e.txoAcct}
}

// stageMints fills the pending-mint buffer with a batch and returns its
// finalized hash.
func (e *env) stageMints(t *testing.T, mints []mintbuffer.PendingMint) merkle.Hash {
	t.Helper()
	return e.stageMintsIn(t, e.mintAcct, mints)
}

func (e *env) stageMintsIn(t *testing.T, acct *runtime.Account, mints []mintbuffer.PendingMint) merkle.Hash {
	t.Helper()
	total := uint16(len(mints))
	target := mintbuffer.BufferSize(uint32(total))
	for {
		err := e.bridge.MintBufferProgram.Execute(acct, e.opSigners, mintbuffer.EncodeReinit(total))
		if err != nil {
			t.Fatalf("reinit error = %v", err)
		}
		if len(acct.Data) >= target {
			break
		}
	}

	groups := mintbuffer.GroupCount(uint32(total))
	for g := uint32(0); g < groups; g++ {
		lo := g * mintbuffer.GroupSize
		hi := lo + mintbuffer.MintsInGroup(uint32(total), g)
		data, err := mintbuffer.EncodeInsert(uint16(g), mints[lo:hi])
		if err != nil {
			t.Fatalf("EncodeInsert() error = %v", err)
		}
		if err := e.bridge.MintBufferProgram.Execute(acct, e.opSigners, data); err != nil {
			t.Fatalf("insert group %d error = %v", g, err)
		}
	}

	hash, err := mintbuffer.ComputeBatchHash(acct.Data, groups, total)
	if err != nil {
		t.Fatalf("ComputeBatchHash() error = %v", err)
	}
	return hash
}

// stageTxos fills the TXO buffer for one finalized block and returns its
// finalized hash.
func (e *env) stageTxos(t *testing.T, height uint32, indices []uint32) merkle.Hash {
	t.Helper()
	return e.stageTxosIn(t, e.txoAcct, height, indices)
}

func (e *env) stageTxosIn(t *testing.T, acct *runtime.Account, height uint32, indices []uint32) merkle.Hash {
	t.Helper()
	header, err := txobuffer.ParseHeader(acct.Data)
	if err != nil {
		t.Fatalf("txo ParseHeader() error = %v", err)
	}
	batchID := header.BatchID + 1
	body := make([]byte, 4*len(indices))
	for i, v := range indices {
		binary.LittleEndian.PutUint32(body[i*4:], v)
	}

	prog := e.bridge.TxoBufferProgram
	err = prog.Execute(acct, e.opSigners, txobuffer.EncodeSetLen(uint32(len(body)), true, batchID, height, false))
	if err != nil {
		t.Fatalf("txo set_len error = %v", err)
	}
	if err := prog.Execute(acct, e.opSigners, txobuffer.EncodeWrite(batchID, 0, body)); err != nil {
		t.Fatalf("txo write error = %v", err)
	}
	err = prog.Execute(acct, e.opSigners, txobuffer.EncodeSetLen(uint32(len(body)), false, batchID, height, true))
	if err != nil {
		t.Fatalf("txo finalize error = %v", err)
	}

	hash, err := txobuffer.BodyHash(acct.Data)
	if err != nil {
		t.Fatalf("txo BodyHash() error = %v", err)
	}
	return hash
}

// altBufferPair initializes a second mint/TXO buffer pair for the operator.
// The seeds are the same; the accounts live at the next viable bump below
// the canonical one.
func (e *env) altBufferPair(t *testing.T) (*runtime.Account, uint8, *runtime.Account, uint8) {
	t.Helper()
	mintProg := e.bridge.MintBufferProgram
	mintAcct, mintBump := altPDA(t, [][]byte{[]byte(mintbuffer.SeedTag), e.operator[:]}, e.mintBump, mintProg.ID)
	err := mintProg.Execute(mintAcct, e.opSigners, mintbuffer.EncodeSetup(e.operator, mintBump, e.stateAcct.Key, e.operator))
	if err != nil {
		t.Fatalf("alt mint buffer setup error = %v", err)
	}

	txoProg := e.bridge.TxoBufferProgram
	txoAcct, txoBump := altPDA(t, [][]byte{[]byte(txobuffer.SeedTag), e.operator[:]}, e.txoBump, txoProg.ID)
	err = txoProg.Execute(txoAcct, e.opSigners, txobuffer.EncodeInit(e.operator, txoBump, e.operator))
	if err != nil {
		t.Fatalf("alt txo buffer init error = %v", err)
	}
	return mintAcct, mintBump, txoAcct, txoBump
}

// altPDA derives a valid program address for the seeds at a bump below the
// given one. Roughly every other bump is viable, so a second address for
// the same seeds always exists in practice.
func altPDA(t *testing.T, seeds [][]byte, below uint8, program runtime.Pubkey) (*runtime.Account, uint8) {
	t.Helper()
	for bump := int(below) - 1; bump >= 0; bump-- {
		addr, err := runtime.CreateProgramAddress(seeds, uint8(bump), program)
		if err == nil {
			return &runtime.Account{Key: addr}, uint8(bump)
		}
	}
	t.Fatalf("no viable bump below %d", below)
	return nil, 0
}

// nextHeader extends the current header by one finalized block.
func (e *env) nextHeader(t *testing.T, delta uint64, pendingHash, txoHash merkle.Hash) Header {
	t.Helper()
	h := e.state(t).Header
	h.Finalized.BlockHeight++
	h.Tip.BlockHeight = h.Finalized.BlockHeight
	h.Finalized.AutoClaimedDepositsNextIndex += delta
	h.Finalized.PendingMintsFinalizedHash = pendingHash
	h.Finalized.TxoOutputListFinalizedHash = txoHash

	var heightSeed [4]byte
	binary.LittleEndian.PutUint32(heightSeed[:], h.Finalized.BlockHeight)
	h.Finalized.BlockHash = merkle.Sum256(heightSeed[:])
	h.Tip.BlockHash = h.Finalized.BlockHash
	return h
}

// applyBlock stages the buffers, builds the next header, and submits a
// block_update for the given batch of mints.
func (e *env) applyBlock(t *testing.T, mints []mintbuffer.PendingMint) {
	t.Helper()
	pendingHash := mintbuffer.EmptyBatchHash
	txoHash := merkle.Hash{}
	nextHeight := e.state(t).Header.Finalized.BlockHeight + 1
	if len(mints) > 0 {
		pendingHash = e.stageMints(t, mints)
		txoHash = e.stageTxos(t, nextHeight, []uint32{uint32(nextHeight) << 8})
	}

	header := e.nextHeader(t, uint64(len(mints)), pendingHash, txoHash)
	params := &BlockUpdateParams{Proof: make([]byte, zk.ProofSize), NewHeader: header}
	err := e.bridge.Execute(e.updateAccounts(), e.opSigners, EncodeBlockUpdate(e.mintBump, e.txoBump, params))
	if err != nil {
		t.Fatalf("block_update at height %d error = %v", nextHeight, err)
	}
}

// drainBatch claims every group of the active batch in order.
func (e *env) drainBatch(t *testing.T) {
	t.Helper()
	groups := e.state(t).PendingMintTxos.CurrentPendingMintsTracker.GroupCount()
	for g := uint32(0); g < groups; g++ {
		params := &MintGroupParams{GroupIndex: uint16(g), ShouldUnlock: g == groups-1}
		accounts := []*runtime.Account{e.stateAcct, e.mintAcct}
		if err := e.bridge.Execute(accounts, e.opSigners, EncodeProcessMintGroup(params)); err != nil {
			t.Fatalf("process_mint_group(%d) error = %v", g, err)
		}
	}
}

func mintsOf(recipients []runtime.Pubkey, amount uint64) []mintbuffer.PendingMint {
	mints := make([]mintbuffer.PendingMint, len(recipients))
	for i := range mints {
		mints[i] = mintbuffer.PendingMint{Recipient: recipients[i], Amount: amount}
	}
	return mints
}

func user(n byte) runtime.Pubkey {
	var k runtime.Pubkey
	k[0] = 0xC0
	k[1] = n
	return k
}
