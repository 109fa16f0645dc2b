package mintbuffer

import (
	"errors"
	"testing"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
)

func testKey(n byte) runtime.Pubkey {
	var p runtime.Pubkey
	p[0] = n
	p[31] = ^n
	return p
}

type fixture struct {
	program  *Program
	operator runtime.Pubkey
	locker   runtime.Pubkey
	writer   runtime.Pubkey
	bump     uint8
	acct     *runtime.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		program:  &Program{ID: testKey(1)},
		operator: testKey(2),
		locker:   testKey(3),
		writer:   testKey(4),
	}
	addr, bump, err := f.program.DeriveBufferAddress(f.operator)
	if err != nil {
		t.Fatalf("DeriveBufferAddress() error = %v", err)
	}
	f.bump = bump
	f.acct = &runtime.Account{Key: addr}
	return f
}

func (f *fixture) setup(t *testing.T) {
	t.Helper()
	data := EncodeSetup(f.operator, f.bump, f.locker, f.writer)
	if err := f.program.Execute(f.acct, runtime.NewSigners(), data); err != nil {
		t.Fatalf("setup error = %v", err)
	}
}

// fill reinitializes for totalMints and inserts every group.
func (f *fixture) fill(t *testing.T, totalMints int) {
	t.Helper()
	writerSig := runtime.NewSigners(f.writer)

	// Repeat reinit until the account reaches the batch size.
	for i := 0; i < 64; i++ {
		if err := f.program.Execute(f.acct, writerSig, EncodeReinit(uint16(totalMints))); err != nil {
			t.Fatalf("reinit error = %v", err)
		}
		if len(f.acct.Data) >= BufferSize(uint32(totalMints)) {
			break
		}
	}
	if len(f.acct.Data) < BufferSize(uint32(totalMints)) {
		t.Fatal("reinit never reached the batch size")
	}

	groups := GroupCount(uint32(totalMints))
	for g := uint32(0); g < groups; g++ {
		n := MintsInGroup(uint32(totalMints), g)
		mints := make([]PendingMint, n)
		for i := range mints {
			mints[i] = PendingMint{Recipient: testKey(byte(10 + i)), Amount: uint64(g)*1000 + uint64(i)}
		}
		data, err := EncodeInsert(uint16(g), mints)
		if err != nil {
			t.Fatalf("EncodeInsert() error = %v", err)
		}
		if err := f.program.Execute(f.acct, writerSig, data); err != nil {
			t.Fatalf("insert group %d error = %v", g, err)
		}
	}
}

func TestSetup(t *testing.T) {
	f := newFixture(t)
	f.setup(t)

	if f.acct.Owner != f.program.ID {
		t.Error("setup did not assign the account to the program")
	}
	header, err := ParseHeader(f.acct.Data)
	if err != nil {
		t.Fatalf("ParseHeader() error = %v", err)
	}
	if header.AuthorizedLocker != f.locker || header.AuthorizedWriter != f.writer {
		t.Error("setup stored wrong authorities")
	}
	if header.IsLocked != 0 || header.MintsCount != 0 {
		t.Error("setup left non-zero state")
	}

	// Second setup fails.
	data := EncodeSetup(f.operator, f.bump, f.locker, f.writer)
	if err := f.program.Execute(f.acct, runtime.NewSigners(), data); !errors.Is(err, ErrAccountAlreadyInitialized) {
		t.Errorf("second setup error = %v, want ErrAccountAlreadyInitialized", err)
	}
}

func TestSetupRejectsWrongPDA(t *testing.T) {
	f := newFixture(t)
	f.acct.Key = testKey(99)
	data := EncodeSetup(f.operator, f.bump, f.locker, f.writer)
	if err := f.program.Execute(f.acct, runtime.NewSigners(), data); !errors.Is(err, runtime.ErrInvalidAccountKey) {
		t.Errorf("setup with wrong key error = %v, want ErrInvalidAccountKey", err)
	}
}

func TestFillAndBatchHash(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	f.fill(t, 30)

	header, _ := ParseHeader(f.acct.Data)
	if header.GroupsCount != 2 {
		t.Errorf("groups = %d, want 2", header.GroupsCount)
	}
	if header.MintsInitialized != 30 || header.MintsCount != 30 {
		t.Errorf("initialized/count = %d/%d, want 30/30", header.MintsInitialized, header.MintsCount)
	}

	// Group 1 holds the partial tail of 6 records.
	mints, err := GroupRecords(f.acct.Data, 2, 1, MintsInGroup(30, 1))
	if err != nil {
		t.Fatalf("GroupRecords() error = %v", err)
	}
	if len(mints) != 6 {
		t.Fatalf("partial group size = %d, want 6", len(mints))
	}
	if mints[0].Amount != 1000 {
		t.Errorf("first record of group 1 amount = %d, want 1000", mints[0].Amount)
	}

	// The batch hash commits to the length prefix and both group hashes.
	hash, err := ComputeBatchHash(f.acct.Data, 2, 30)
	if err != nil {
		t.Fatalf("ComputeBatchHash() error = %v", err)
	}
	if hash.IsZero() || hash == EmptyBatchHash {
		t.Error("batch hash degenerate")
	}

	g0, _ := GroupHash(f.acct.Data, 0)
	g1, _ := GroupHash(f.acct.Data, 1)
	manual := make([]byte, 2, 66)
	manual[0] = 30
	manual = append(manual, g0[:]...)
	manual = append(manual, g1[:]...)
	if merkle.Sum256(manual) != hash {
		t.Error("batch hash does not match manual digest")
	}
}

func TestInsertFailures(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	writerSig := runtime.NewSigners(f.writer)
	f.program.Execute(f.acct, writerSig, EncodeReinit(24))

	mints := []PendingMint{{Recipient: testKey(9), Amount: 5}}
	good, _ := EncodeInsert(0, mints)

	t.Run("unsigned", func(t *testing.T) {
		if err := f.program.Execute(f.acct, runtime.NewSigners(), good); !errors.Is(err, runtime.ErrMissingSignature) {
			t.Errorf("error = %v, want ErrMissingSignature", err)
		}
	})

	t.Run("group out of bounds", func(t *testing.T) {
		bad, _ := EncodeInsert(1, mints)
		if err := f.program.Execute(f.acct, writerSig, bad); !errors.Is(err, ErrGroupIndexOutOfBounds) {
			t.Errorf("error = %v, want ErrGroupIndexOutOfBounds", err)
		}
	})

	t.Run("ragged bytes", func(t *testing.T) {
		raw := append([]byte{TagInsert, 0, 0}, make([]byte, 41)...)
		if err := f.program.Execute(f.acct, writerSig, raw); !errors.Is(err, ErrBadMintBytes) {
			t.Errorf("error = %v, want ErrBadMintBytes", err)
		}
	})

	t.Run("one-shot group slot", func(t *testing.T) {
		if err := f.program.Execute(f.acct, writerSig, good); err != nil {
			t.Fatalf("first insert error = %v", err)
		}
		if err := f.program.Execute(f.acct, writerSig, good); !errors.Is(err, ErrGroupAlreadyInserted) {
			t.Errorf("second insert error = %v, want ErrGroupAlreadyInserted", err)
		}
	})
}

func TestLockDiscipline(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	lockerSig := runtime.NewSigners(f.locker)
	writerSig := runtime.NewSigners(f.writer)

	// Locking before every mint is inserted fails.
	f.program.Execute(f.acct, writerSig, EncodeReinit(2))
	if err := f.program.Execute(f.acct, lockerSig, EncodeLock(f.locker)); !errors.Is(err, ErrNotAllGroupsInserted) {
		t.Fatalf("premature lock error = %v, want ErrNotAllGroupsInserted", err)
	}

	mints := []PendingMint{{testKey(9), 5}, {testKey(8), 6}}
	ins, _ := EncodeInsert(0, mints)
	if err := f.program.Execute(f.acct, writerSig, ins); err != nil {
		t.Fatalf("insert error = %v", err)
	}

	// Wrong locker key fails, wrong signer fails.
	if err := f.program.Execute(f.acct, lockerSig, EncodeLock(f.writer)); !errors.Is(err, ErrNotLocker) {
		t.Errorf("wrong locker error = %v, want ErrNotLocker", err)
	}
	if err := f.program.Execute(f.acct, writerSig, EncodeLock(f.locker)); !errors.Is(err, runtime.ErrMissingSignature) {
		t.Errorf("unsigned lock error = %v, want ErrMissingSignature", err)
	}

	if err := f.program.Execute(f.acct, lockerSig, EncodeLock(f.locker)); err != nil {
		t.Fatalf("lock error = %v", err)
	}

	// While locked, writes are rejected.
	for _, data := range [][]byte{EncodeReinit(4), ins, {TagResize}} {
		if err := f.program.Execute(f.acct, writerSig, data); !errors.Is(err, ErrBufferLocked) {
			t.Errorf("write while locked error = %v, want ErrBufferLocked", err)
		}
	}

	// Double lock fails.
	if err := f.program.Execute(f.acct, lockerSig, EncodeLock(f.locker)); !errors.Is(err, ErrBufferLocked) {
		t.Errorf("double lock error = %v, want ErrBufferLocked", err)
	}

	// Unlock clears the counts and the buffer becomes reusable.
	if err := f.program.Execute(f.acct, lockerSig, EncodeUnlock(f.locker)); err != nil {
		t.Fatalf("unlock error = %v", err)
	}
	header, _ := ParseHeader(f.acct.Data)
	if header.IsLocked != 0 || header.MintsCount != 0 || header.GroupsCount != 0 || header.MintsInitialized != 0 {
		t.Error("unlock did not clear buffer state")
	}
	if err := f.program.Execute(f.acct, lockerSig, EncodeUnlock(f.locker)); !errors.Is(err, ErrBufferNotLocked) {
		t.Errorf("double unlock error = %v, want ErrBufferNotLocked", err)
	}
	if err := f.program.Execute(f.acct, writerSig, EncodeReinit(1)); err != nil {
		t.Errorf("reinit after unlock error = %v", err)
	}
}

func TestGroupMath(t *testing.T) {
	tests := []struct {
		total      uint32
		wantGroups uint32
		lastSize   uint32
	}{
		{0, 0, 0},
		{1, 1, 1},
		{24, 1, 24},
		{25, 2, 1},
		{30, 2, 6},
		{48, 2, 24},
		{6144, 256, 24},
	}

	for _, tt := range tests {
		if got := GroupCount(tt.total); got != tt.wantGroups {
			t.Errorf("GroupCount(%d) = %d, want %d", tt.total, got, tt.wantGroups)
		}
		if tt.wantGroups > 0 {
			if got := MintsInGroup(tt.total, tt.wantGroups-1); got != tt.lastSize {
				t.Errorf("MintsInGroup(%d, last) = %d, want %d", tt.total, got, tt.lastSize)
			}
			if tt.wantGroups > 1 {
				if got := MintsInGroup(tt.total, 0); got != GroupSize {
					t.Errorf("MintsInGroup(%d, 0) = %d, want %d", tt.total, got, GroupSize)
				}
			}
		}
	}
}

func TestReinitChunkedResize(t *testing.T) {
	f := newFixture(t)
	f.setup(t)
	writerSig := runtime.NewSigners(f.writer)

	// 5000 mints need well over one 10 KiB chunk.
	total := uint16(5000)
	need := BufferSize(uint32(total))

	if err := f.program.Execute(f.acct, writerSig, EncodeReinit(total)); err != nil {
		t.Fatalf("reinit error = %v", err)
	}
	if len(f.acct.Data) >= need {
		t.Fatal("single reinit should not reach the full batch size")
	}
	if len(f.acct.Data) > HeaderSize+MaxResizeChunk {
		t.Errorf("reinit grew by more than one chunk: %d", len(f.acct.Data))
	}

	calls := 1
	for len(f.acct.Data) < need {
		if err := f.program.Execute(f.acct, writerSig, EncodeReinit(total)); err != nil {
			t.Fatalf("reinit #%d error = %v", calls+1, err)
		}
		calls++
		if calls > 100 {
			t.Fatal("reinit not converging")
		}
	}
	if len(f.acct.Data) != need {
		t.Errorf("final size = %d, want %d", len(f.acct.Data), need)
	}
}

func TestEmptyBatchHashSentinel(t *testing.T) {
	if EmptyBatchHash.IsZero() {
		t.Error("empty batch sentinel is the zero hash")
	}
	// A zero-group buffer digests to the sentinel.
	data := make([]byte, HeaderSize)
	hash, err := ComputeBatchHash(data, 0, 0)
	if err != nil {
		t.Fatalf("ComputeBatchHash() error = %v", err)
	}
	if hash != EmptyBatchHash {
		t.Error("zero-mint batch hash is not the sentinel")
	}
}
