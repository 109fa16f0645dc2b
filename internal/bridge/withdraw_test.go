package bridge

import (
	"errors"
	"testing"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
	"github.com/psy-protocol/doge-bridge/internal/zk"
)

func TestWithdrawalLifecycle(t *testing.T) {
	e := newEnv(t, Config{})
	alice := user(1)
	e.ledger.balances[alice] = 150_000_000

	req := &WithdrawalRequest{
		Requester:  alice,
		AmountSats: 25_000_000,
		Recipient:  merkle.Sum160([]byte("doge recipient")),
	}
	signers := runtime.NewSigners(alice)
	err := e.bridge.Execute([]*runtime.Account{e.stateAcct}, signers, EncodeRequestWithdrawal(req))
	if err != nil {
		t.Fatalf("request_withdrawal error = %v", err)
	}

	if got := e.ledger.balances[alice]; got != 125_000_000 {
		t.Errorf("alice balance = %d, want 125000000", got)
	}
	st := e.state(t)
	if st.RequestedWithdrawalsTree.NextIndex != 1 {
		t.Errorf("requested tree next index = %d, want 1", st.RequestedWithdrawalsTree.NextIndex)
	}
	if st.TotalRequestedWithdrawalsSats != 25_000_000 {
		t.Errorf("requested sats = %d, want 25000000", st.TotalRequestedWithdrawalsSats)
	}

	err = e.bridge.Execute([]*runtime.Account{e.stateAcct}, e.opSigners, EncodeSnapshotWithdrawals())
	if err != nil {
		t.Fatalf("snapshot_withdrawals error = %v", err)
	}
	st = e.state(t)
	snap := st.WithdrawalSnapshot
	if snap.NextRequestedWithdrawalsTreeIndex != 1 {
		t.Errorf("snapshot next index = %d, want 1", snap.NextRequestedWithdrawalsTreeIndex)
	}
	if snap.RequestedWithdrawalsTreeRoot != st.RequestedWithdrawalsTree.Root {
		t.Error("snapshot root does not match the requested tree")
	}
	if snap.LastSnapshottedSeconds != uint64(e.clock.ms/1000) {
		t.Errorf("snapshot seconds = %d, want %d", snap.LastSnapshottedSeconds, e.clock.ms/1000)
	}
}

func TestRequestWithdrawalRejections(t *testing.T) {
	e := newEnv(t, Config{WithdrawalFlatFeeSats: 1_000})
	alice := user(1)
	e.ledger.balances[alice] = 10_000

	// Amount below the flat fee is a hard reject before any burn.
	req := &WithdrawalRequest{Requester: alice, AmountSats: 500}
	err := e.bridge.RequestWithdrawal([]*runtime.Account{e.stateAcct}, runtime.NewSigners(alice), req)
	if !errors.Is(err, ErrInvalidWithdrawalAmount) {
		t.Errorf("dust withdrawal error = %v, want ErrInvalidWithdrawalAmount", err)
	}
	if e.ledger.balances[alice] != 10_000 {
		t.Error("rejected withdrawal burned tokens")
	}

	// The requester must sign.
	req = &WithdrawalRequest{Requester: alice, AmountSats: 5_000}
	err = e.bridge.RequestWithdrawal([]*runtime.Account{e.stateAcct}, runtime.Signers{}, req)
	if !errors.Is(err, runtime.ErrMissingSignature) {
		t.Errorf("unsigned withdrawal error = %v, want ErrMissingSignature", err)
	}
}

func TestWithdrawalFeeAccounting(t *testing.T) {
	e := newEnv(t, Config{
		WithdrawalFeeRateNum:  100, // 1%
		WithdrawalFeeRateDen:  DefaultFeeRateDenominator,
		WithdrawalFlatFeeSats: 50,
	})
	alice := user(1)
	e.ledger.balances[alice] = 1_000_000

	req := &WithdrawalRequest{Requester: alice, AmountSats: 100_000}
	err := e.bridge.RequestWithdrawal([]*runtime.Account{e.stateAcct}, runtime.NewSigners(alice), req)
	if err != nil {
		t.Fatalf("request_withdrawal error = %v", err)
	}

	st := e.state(t)
	wantFee := uint64(50 + 1_000)
	if st.TotalWithdrawalFeesSats != wantFee {
		t.Errorf("fees = %d, want %d", st.TotalWithdrawalFeesSats, wantFee)
	}
	if st.TotalRequestedWithdrawalsSats != 100_000-wantFee {
		t.Errorf("net = %d, want %d", st.TotalRequestedWithdrawalsSats, 100_000-wantFee)
	}

	// The operator can mint the accumulated fees exactly once.
	err = e.bridge.Execute([]*runtime.Account{e.stateAcct}, e.opSigners, EncodeOperatorWithdrawFees())
	if err != nil {
		t.Fatalf("operator_withdraw_fees error = %v", err)
	}
	if got := e.ledger.balances[e.feeSpender]; got != wantFee {
		t.Errorf("fee spender balance = %d, want %d", got, wantFee)
	}
	err = e.bridge.OperatorWithdrawFees([]*runtime.Account{e.stateAcct}, e.opSigners)
	if !errors.Is(err, ErrNoOperatorFeesToWithdraw) {
		t.Errorf("second fee withdrawal error = %v, want ErrNoOperatorFeesToWithdraw", err)
	}
}

func TestUnauthorizedSnapshot(t *testing.T) {
	e := newEnv(t, Config{})
	mallory := user(9)
	err := e.bridge.Execute([]*runtime.Account{e.stateAcct}, runtime.NewSigners(mallory), EncodeSnapshotWithdrawals())
	if !errors.Is(err, runtime.ErrMissingSignature) {
		t.Errorf("snapshot error = %v, want ErrMissingSignature", err)
	}
}

func TestProcessWithdrawal(t *testing.T) {
	e := newEnv(t, Config{})
	txBytes := []byte("signed dogecoin transaction")
	sighash := merkle.DoubleSum256(txBytes)

	params := &ProcessWithdrawalParams{
		Proof:                            make([]byte, zk.ProofSize),
		NewReturnOutput:                  ReturnOutput{Sighash: sighash, OutputIndex: 1, Amount: 42},
		NewSpentTxoTreeRoot:              merkle.Sum256([]byte("new spent root")),
		NewNextProcessedWithdrawalsIndex: 3,
		TxBytes:                          txBytes,
	}
	err := e.bridge.Execute([]*runtime.Account{e.stateAcct}, e.opSigners, EncodeProcessWithdrawal(params))
	if err != nil {
		t.Fatalf("process_withdrawal error = %v", err)
	}

	st := e.state(t)
	if st.NextProcessedWithdrawalsIndex != 3 {
		t.Errorf("processed index = %d, want 3", st.NextProcessedWithdrawalsIndex)
	}
	if st.SpentTxoTreeRoot != params.NewSpentTxoTreeRoot {
		t.Error("spent txo root not updated")
	}
	if st.LastReturnOutput != params.NewReturnOutput {
		t.Error("return output not updated")
	}
	if st.SentTransactionsTree.NextIndex != 1 {
		t.Errorf("sent tree next index = %d, want 1", st.SentTransactionsTree.NextIndex)
	}

	if len(e.messenger.posts) != 1 {
		t.Fatalf("messenger posts = %d, want 1", len(e.messenger.posts))
	}
	post := e.messenger.posts[0]
	if post.nonce != 3 || post.sighash != sighash || string(post.tx) != string(txBytes) {
		t.Errorf("unexpected messenger post: %+v", post)
	}

	stub := e.bridge.Verifier.(*zk.StubVerifier)
	if len(stub.Calls) != 1 || stub.Calls[0].KeyID != zk.WithdrawalKeyID {
		t.Error("withdrawal verified with wrong key")
	}

	// The cursor must strictly advance.
	params.NewNextProcessedWithdrawalsIndex = 3
	err = e.bridge.ProcessWithdrawal([]*runtime.Account{e.stateAcct}, e.opSigners, params)
	if !errors.Is(err, ErrInvalidProcessedWithdrawalsIndex) {
		t.Errorf("stale cursor error = %v, want ErrInvalidProcessedWithdrawalsIndex", err)
	}
}

func TestReplayWithdrawalRateLimit(t *testing.T) {
	e := newEnv(t, Config{})
	txBytes := []byte("signed dogecoin transaction")
	sighash := merkle.DoubleSum256(txBytes)

	// Send the transaction once so its sighash is a leaf of the sent tree.
	sendParams := &ProcessWithdrawalParams{
		Proof:                            make([]byte, zk.ProofSize),
		NewNextProcessedWithdrawalsIndex: 1,
		TxBytes:                          txBytes,
	}
	if err := e.bridge.ProcessWithdrawal([]*runtime.Account{e.stateAcct}, e.opSigners, sendParams); err != nil {
		t.Fatalf("process_withdrawal error = %v", err)
	}

	proof := merkle.Proof{Index: 0, Value: sighash}
	for i := range proof.Siblings {
		proof.Siblings[i] = merkle.ZeroHash(i)
	}
	replay := &ReplayWithdrawalParams{TxBytes: txBytes, Proof: proof}

	// Within the throttle window the replay is refused.
	e.clock.ms += 30_000
	data, err := EncodeReplayWithdrawal(replay)
	if err != nil {
		t.Fatalf("EncodeReplayWithdrawal() error = %v", err)
	}
	err = e.bridge.Execute([]*runtime.Account{e.stateAcct}, e.opSigners, data)
	if !errors.Is(err, ErrWithdrawalReplayRateLimited) {
		t.Fatalf("early replay error = %v, want ErrWithdrawalReplayRateLimited", err)
	}

	e.clock.ms += 31_000
	if err := e.bridge.Execute([]*runtime.Account{e.stateAcct}, e.opSigners, data); err != nil {
		t.Fatalf("replay error = %v", err)
	}
	if len(e.messenger.posts) != 2 {
		t.Fatalf("messenger posts = %d, want 2", len(e.messenger.posts))
	}
	if e.messenger.posts[1].sighash != sighash {
		t.Error("replay posted a different sighash")
	}

	// A proof over a different payload is rejected.
	bogus := &ReplayWithdrawalParams{TxBytes: []byte("forged"), Proof: proof}
	e.clock.ms += 61_000
	err = e.bridge.ReplayWithdrawal([]*runtime.Account{e.stateAcct}, e.opSigners, bogus)
	if !errors.Is(err, ErrInvalidSentTransactionProof) {
		t.Errorf("forged replay error = %v, want ErrInvalidSentTransactionProof", err)
	}
}
