package bridge

import (
	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
	"github.com/psy-protocol/doge-bridge/internal/txo"
	"github.com/psy-protocol/doge-bridge/internal/zk"
)

// Execute dispatches a serialized bridge instruction: the 8-byte prefix
// (discriminator plus up to three buffer bumps) followed by the
// little-endian body of the selected operation.
func (p *Program) Execute(accounts []*runtime.Account, signers runtime.Signers, data []byte) error {
	prefix, body, err := runtime.DecodePrefix(data)
	if err != nil {
		return err
	}

	switch prefix.Discriminator {
	case OpInitialize:
		params := &InitializeParams{}
		r := &reader{buf: body}
		params.unmarshal(r)
		if r.err != nil {
			return r.err
		}
		if len(accounts) < 1 {
			return runtime.ErrInvalidAccountKey
		}
		return p.Initialize(accounts[0], prefix.BumpSlots[0], params)

	case OpBlockUpdate:
		params := &BlockUpdateParams{}
		r := &reader{buf: body}
		params.Proof = r.take(zk.ProofSize)
		params.NewHeader.unmarshal(r)
		if r.err != nil {
			return r.err
		}
		return p.BlockUpdate(accounts, signers, prefix.BumpSlots[0], prefix.BumpSlots[1], params)

	case OpProcessReorgBlocks:
		params := &ReorgParams{}
		r := &reader{buf: body}
		params.Proof = r.take(zk.ProofSize)
		params.NewHeader.unmarshal(r)
		count := int(r.u16())
		params.ExtraFinalized = make([]FinalizedBlockMintTxoInfo, count)
		for i := range params.ExtraFinalized {
			params.ExtraFinalized[i].unmarshal(r)
		}
		if r.err != nil {
			return r.err
		}
		return p.ProcessReorgBlocks(accounts, signers, prefix.BumpSlots[0], prefix.BumpSlots[1], params)

	case OpRequestWithdrawal:
		req := &WithdrawalRequest{}
		r := &reader{buf: body}
		req.unmarshal(r)
		if r.err != nil {
			return r.err
		}
		return p.RequestWithdrawal(accounts, signers, req)

	case OpProcessWithdrawal:
		params := &ProcessWithdrawalParams{}
		r := &reader{buf: body}
		params.Proof = r.take(zk.ProofSize)
		params.NewReturnOutput.unmarshal(r)
		params.NewSpentTxoTreeRoot = r.hash()
		params.NewNextProcessedWithdrawalsIndex = r.u64()
		params.TxBytes = r.take(int(r.u32()))
		if r.err != nil {
			return r.err
		}
		return p.ProcessWithdrawal(accounts, signers, params)

	case OpOperatorWithdrawFees:
		return p.OperatorWithdrawFees(accounts, signers)

	case OpProcessManualDeposit:
		params := &ManualDepositParams{}
		r := &reader{buf: body}
		params.TxHash = r.hash()
		params.RecentBlockMerkleRoot = r.hash()
		params.RecentAutoClaimTxoRoot = r.hash()
		params.CombinedIndex = txo.CombinedIndex(r.u64())
		params.Depositor = r.pubkey()
		params.DepositAmountSats = r.u64()
		if r.err != nil {
			return r.err
		}
		return p.ProcessManualDeposit(accounts, signers, params)

	case OpReplayWithdrawal:
		params := &ReplayWithdrawalParams{}
		r := &reader{buf: body}
		params.TxBytes = r.take(int(r.u32()))
		proofBytes := r.take(merkle.ProofSize)
		if r.err != nil {
			return r.err
		}
		if err := params.Proof.UnmarshalBinary(proofBytes); err != nil {
			return err
		}
		return p.ReplayWithdrawal(accounts, signers, params)

	case OpProcessMintGroup:
		params := &MintGroupParams{}
		r := &reader{buf: body}
		params.GroupIndex = r.u16()
		params.ShouldUnlock = r.u8() != 0
		if r.err != nil {
			return r.err
		}
		return p.ProcessMintGroup(accounts, signers, params)

	case OpProcessMintGroupAutoAdvance:
		params := &MintGroupParams{}
		r := &reader{buf: body}
		params.GroupIndex = r.u16()
		params.ShouldUnlock = r.u8() != 0
		if r.err != nil {
			return r.err
		}
		return p.ProcessMintGroupAutoAdvance(accounts, signers, prefix.BumpSlots[0], prefix.BumpSlots[1], params)

	case OpSnapshotWithdrawals:
		return p.SnapshotWithdrawals(accounts, signers)

	default:
		return runtime.ErrShortInstruction
	}
}

// EncodeInitialize builds an initialize instruction.
func EncodeInitialize(stateBump uint8, params *InitializeParams) []byte {
	prefix := runtime.EncodePrefix(OpInitialize, stateBump)
	w := &writer{buf: append([]byte{}, prefix[:]...)}
	params.marshal(w)
	return w.buf
}

// EncodeBlockUpdate builds a block_update instruction.
func EncodeBlockUpdate(mintBump, txoBump uint8, params *BlockUpdateParams) []byte {
	prefix := runtime.EncodePrefix(OpBlockUpdate, mintBump, txoBump)
	w := &writer{buf: append([]byte{}, prefix[:]...)}
	w.raw(params.Proof)
	params.NewHeader.marshal(w)
	return w.buf
}

// EncodeProcessReorgBlocks builds a process_reorg_blocks instruction.
func EncodeProcessReorgBlocks(mintBump, txoBump uint8, params *ReorgParams) []byte {
	prefix := runtime.EncodePrefix(OpProcessReorgBlocks, mintBump, txoBump)
	w := &writer{buf: append([]byte{}, prefix[:]...)}
	w.raw(params.Proof)
	params.NewHeader.marshal(w)
	w.u16(uint16(len(params.ExtraFinalized)))
	for i := range params.ExtraFinalized {
		params.ExtraFinalized[i].marshal(w)
	}
	return w.buf
}

// EncodeRequestWithdrawal builds a request_withdrawal instruction.
func EncodeRequestWithdrawal(req *WithdrawalRequest) []byte {
	prefix := runtime.EncodePrefix(OpRequestWithdrawal)
	w := &writer{buf: append([]byte{}, prefix[:]...)}
	req.marshal(w)
	return w.buf
}

// EncodeProcessWithdrawal builds a process_withdrawal instruction.
func EncodeProcessWithdrawal(params *ProcessWithdrawalParams) []byte {
	prefix := runtime.EncodePrefix(OpProcessWithdrawal)
	w := &writer{buf: append([]byte{}, prefix[:]...)}
	w.raw(params.Proof)
	params.NewReturnOutput.marshal(w)
	w.hash(params.NewSpentTxoTreeRoot)
	w.u64(params.NewNextProcessedWithdrawalsIndex)
	w.u32(uint32(len(params.TxBytes)))
	w.raw(params.TxBytes)
	return w.buf
}

// EncodeOperatorWithdrawFees builds an operator_withdraw_fees instruction.
func EncodeOperatorWithdrawFees() []byte {
	prefix := runtime.EncodePrefix(OpOperatorWithdrawFees)
	return prefix[:]
}

// EncodeProcessManualDeposit builds a process_manual_deposit instruction.
func EncodeProcessManualDeposit(params *ManualDepositParams) []byte {
	prefix := runtime.EncodePrefix(OpProcessManualDeposit)
	w := &writer{buf: append([]byte{}, prefix[:]...)}
	w.hash(params.TxHash)
	w.hash(params.RecentBlockMerkleRoot)
	w.hash(params.RecentAutoClaimTxoRoot)
	w.u64(uint64(params.CombinedIndex))
	w.pubkey(params.Depositor)
	w.u64(params.DepositAmountSats)
	return w.buf
}

// EncodeReplayWithdrawal builds a replay_withdrawal instruction.
func EncodeReplayWithdrawal(params *ReplayWithdrawalParams) ([]byte, error) {
	proofBytes, err := params.Proof.MarshalBinary()
	if err != nil {
		return nil, err
	}
	prefix := runtime.EncodePrefix(OpReplayWithdrawal)
	w := &writer{buf: append([]byte{}, prefix[:]...)}
	w.u32(uint32(len(params.TxBytes)))
	w.raw(params.TxBytes)
	w.raw(proofBytes)
	return w.buf, nil
}

// EncodeProcessMintGroup builds a process_mint_group instruction.
func EncodeProcessMintGroup(params *MintGroupParams) []byte {
	prefix := runtime.EncodePrefix(OpProcessMintGroup)
	w := &writer{buf: append([]byte{}, prefix[:]...)}
	w.u16(params.GroupIndex)
	if params.ShouldUnlock {
		w.u8(1)
	} else {
		w.u8(0)
	}
	return w.buf
}

// EncodeProcessMintGroupAutoAdvance builds a process_mint_group_auto_advance
// instruction.
func EncodeProcessMintGroupAutoAdvance(nextMintBump, nextTxoBump uint8, params *MintGroupParams) []byte {
	prefix := runtime.EncodePrefix(OpProcessMintGroupAutoAdvance, nextMintBump, nextTxoBump)
	w := &writer{buf: append([]byte{}, prefix[:]...)}
	w.u16(params.GroupIndex)
	if params.ShouldUnlock {
		w.u8(1)
	} else {
		w.u8(0)
	}
	return w.buf
}

// EncodeSnapshotWithdrawals builds a snapshot_withdrawals instruction.
func EncodeSnapshotWithdrawals() []byte {
	prefix := runtime.EncodePrefix(OpSnapshotWithdrawals)
	return prefix[:]
}
