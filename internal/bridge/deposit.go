package bridge

import (
	"fmt"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
	"github.com/psy-protocol/doge-bridge/internal/runtime"
	"github.com/psy-protocol/doge-bridge/internal/txo"
)

// ManualDepositParams carries a user-initiated deposit claim. The roots
// are the ones the user's claim proof was built against; they must still
// be inside the recent-finalized window.
type ManualDepositParams struct {
	TxHash                 merkle.Hash
	RecentBlockMerkleRoot  merkle.Hash
	RecentAutoClaimTxoRoot merkle.Hash
	CombinedIndex          txo.CombinedIndex
	Depositor              runtime.Pubkey
	DepositAmountSats      uint64
}

// Leaf digests the claim for the manual-deposits tree. The net amount is
// committed, not the gross one.
func (mp *ManualDepositParams) Leaf(netAmount uint64) merkle.Hash {
	w := &writer{buf: make([]byte, 0, 80)}
	w.hash(mp.TxHash)
	w.u64(uint64(mp.CombinedIndex))
	w.pubkey(mp.Depositor)
	w.u64(netAmount)
	return merkle.Sum256(w.buf)
}

// ProcessManualDeposit credits a deposit the user claims themselves. The
// manual-claim subprogram's per-user PDA signs, attesting the claim proof
// was checked. Accounts: bridge state.
func (p *Program) ProcessManualDeposit(accounts []*runtime.Account, signers runtime.Signers, params *ManualDepositParams) error {
	if len(accounts) < 1 {
		return runtime.ErrInvalidAccountKey
	}
	stateAcct := accounts[0]

	st, err := p.loadState(stateAcct)
	if err != nil {
		return err
	}

	claimPDA, _, err := p.ManualClaimAddress(params.Depositor)
	if err != nil {
		return ErrInvalidManualClaimSigner
	}
	if !signers.Signed(claimPDA) {
		return ErrInvalidManualClaimSigner
	}

	// The claim's roots must match one entry of the 9-element window:
	// the current finalized commitment plus the ring.
	window := st.recentWindow()
	matched := -1
	for i := range window {
		if window[i].AutoClaimedTxoTreeRoot == params.RecentAutoClaimTxoRoot {
			matched = i
			break
		}
	}
	if matched < 0 {
		return ErrAutoClaimedDepositTreeRootNotRecentEnough
	}
	if window[matched].BlockMerkleRoot != params.RecentBlockMerkleRoot {
		return ErrBlockMerkleTreeRootNotRecentEnough
	}
	// A TXO newer than the matched commitment cannot be in the trees that
	// commitment was built from.
	if params.CombinedIndex.BlockHeight() > window[matched].BlockHeight {
		return ErrAutoClaimedDepositTreeRootNotRecentEnough
	}

	net, fee := st.Config.SplitDeposit(params.DepositAmountSats)
	if net == 0 {
		return ErrInvalidDepositAmount
	}

	if err := st.ManualDepositsTree.Append(params.Leaf(net)); err != nil {
		return err
	}
	st.TotalManualDepositFeesSats += fee

	if err := p.Minter.MintTo(params.Depositor, net); err != nil {
		return fmt.Errorf("%w: %v", ErrCpiTokenMintToCall, err)
	}

	p.logger().Info("manual deposit processed",
		"depositor", params.Depositor.String(),
		"net_sats", net,
		"fee_sats", fee)
	return p.storeState(st, stateAcct)
}
