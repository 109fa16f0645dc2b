package bridge

import "fmt"

// Error is a dense-numbered bridge error. Codes are grouped by subsystem:
// ZK verification 750..753 and bridge state 800 and up. Generic account
// errors live in the runtime package and tree revert errors in merkle.
type Error struct {
	Code uint32
	Name string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Name, e.Code)
}

// ZK errors.
var (
	ErrInvalidZKProofSize       = &Error{750, "InvalidZKProofSize"}
	ErrInvalidZKVerifierKeySize = &Error{751, "InvalidZKVerifierKeySize"}
	ErrInvalidBridgeInputZKP    = &Error{752, "InvalidBridgeInputZKP"}
	ErrMalformedZKProof         = &Error{753, "MalformedZKProof"}
)

// Bridge state errors.
var (
	ErrStateAlreadyInitialized                          = &Error{800, "StateAlreadyInitialized"}
	ErrProgramStateNotReadyForBlockUpdate               = &Error{801, "ProgramStateNotReadyForBlockUpdate"}
	ErrPendingFinalizedBlockMintsNotEmpty               = &Error{802, "PendingFinalizedBlockMintsNotEmpty"}
	ErrRemainingPendingMintsInPreviousState             = &Error{803, "RemainingPendingMintsInPreviousState"}
	ErrInvalidMintBufferPDA                             = &Error{804, "InvalidMintBufferPDA"}
	ErrInvalidTxoBufferPDA                              = &Error{805, "InvalidTxoBufferPDA"}
	ErrInvalidMintBufferPdaProgram                      = &Error{806, "InvalidMintBufferPdaProgram"}
	ErrInvalidTxoBufferPdaProgram                       = &Error{807, "InvalidTxoBufferPdaProgram"}
	ErrInvalidMintBufferLockingPermission               = &Error{808, "InvalidMintBufferLockingPermission"}
	ErrInvalidMintBufferHeaderGroupCountOrDepositsCount = &Error{809, "InvalidMintBufferHeaderGroupCountOrDepositsCount"}
	ErrInvalidAutoClaimMintBufferDataAccountSize        = &Error{810, "InvalidAutoClaimMintBufferDataAccountSize"}
	ErrInvalidPendingMintsBufferHash                    = &Error{811, "InvalidPendingMintsBufferHash"}
	ErrInvalidAutoClaimTxoBufferHash                    = &Error{812, "InvalidAutoClaimTxoBufferHash"}
	ErrInvalidAutoClaimTxoBufferPendingMintsCount       = &Error{813, "InvalidAutoClaimTxoBufferPendingMintsCount"}
	ErrPendingMintsGroupIndexOutOfBounds                = &Error{814, "PendingMintsGroupIndexOutOfBounds"}
	ErrPendingMintsGroupAlreadyProcessed                = &Error{815, "PendingMintsGroupAlreadyProcessed"}
	ErrNoPendingMintsToProcess                          = &Error{816, "NoPendingMintsToProcess"}
	ErrNoPendingMintsToAutoProcess                      = &Error{817, "NoPendingMintsToAutoProcess"}
	ErrNumericalOverflow                                = &Error{818, "NumericalOverflow"}
	ErrTooManyNewAutoClaimedDeposits                    = &Error{819, "TooManyNewAutoClaimedDeposits"}
	ErrInvalidAutoClaimedDepositsNextIndex              = &Error{820, "InvalidAutoClaimedDepositsNextIndex"}
	ErrInvalidBlockHeight                               = &Error{821, "InvalidBlockHeight"}
	ErrInvalidTipHeight                                 = &Error{822, "InvalidTipHeight"}
	ErrAttemptedUnlockPendingMintBuffer                 = &Error{823, "AttemptedUnlockPendingMintBuffer"}
	ErrFailedUnlockPendingMintBuffer                    = &Error{824, "FailedUnlockPendingMintBuffer"}
	ErrCannotUnlockAfterAutoAdvance                     = &Error{825, "CannotUnlockAfterAutoAdvance"}
	ErrInvalidWithdrawalAmount                          = &Error{826, "InvalidWithdrawalAmount"}
	ErrInsufficientBridgeFees                           = &Error{827, "InsufficientBridgeFees"}
	ErrNoOperatorFeesToWithdraw                         = &Error{828, "NoOperatorFeesToWithdraw"}
	ErrAutoClaimedDepositTreeRootNotRecentEnough        = &Error{829, "AutoClaimedDepositTreeRootNotRecentEnough"}
	ErrBlockMerkleTreeRootNotRecentEnough               = &Error{830, "BlockMerkleTreeRootNotRecentEnough"}
	ErrDepositAlreadyProcessed                          = &Error{831, "DepositAlreadyProcessed"}
	ErrInvalidExtraFinalizedBlocksLength                = &Error{832, "InvalidExtraFinalizedBlocksLength"}
	ErrTooManyPendingFinalizedBlocks                    = &Error{833, "TooManyPendingFinalizedBlocks"}
	ErrInvalidProcessedWithdrawalsIndex                 = &Error{834, "InvalidProcessedWithdrawalsIndex"}
	ErrWithdrawalReplayRateLimited                      = &Error{835, "WithdrawalReplayRateLimited"}
	ErrInvalidSentTransactionProof                      = &Error{836, "InvalidSentTransactionProof"}
	ErrInvalidManualClaimSigner                         = &Error{837, "InvalidManualClaimSigner"}
	ErrInvalidDepositAmount                             = &Error{843, "InvalidDepositAmount"}
)

// CPI failures are re-wrapped so the caller can distinguish origin.
var (
	ErrCpiLockCall        = &Error{838, "CpiLockCallError"}
	ErrCpiUnlockCall      = &Error{839, "CpiUnlockCallError"}
	ErrCpiTokenMintToCall = &Error{840, "CpiTokenMintToCallError"}
	ErrCpiTokenBurnCall   = &Error{841, "CpiTokenBurnCallError"}
	ErrCpiMessengerCall   = &Error{842, "CpiMessengerCallError"}
)
