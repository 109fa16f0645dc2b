package bridge

import (
	"math"
	"math/bits"

	"github.com/psy-protocol/doge-bridge/internal/merkle"
)

// ConfigSize is the serialized size of Config.
const ConfigSize = 48

// DefaultFeeRateDenominator is the conventional basis-point denominator.
const DefaultFeeRateDenominator = 10_000

// Config holds the fee parameters of the bridge. All amounts are in
// satoshis; rates are num/den fractions of the moved amount.
type Config struct {
	DepositFeeRateNum       uint64
	DepositFeeRateDen       uint64
	WithdrawalFeeRateNum    uint64
	WithdrawalFeeRateDen    uint64
	DepositFlatFeeSats      uint64
	WithdrawalFlatFeeSats   uint64
}

func (c *Config) marshal(w *writer) {
	w.u64(c.DepositFeeRateNum)
	w.u64(c.DepositFeeRateDen)
	w.u64(c.WithdrawalFeeRateNum)
	w.u64(c.WithdrawalFeeRateDen)
	w.u64(c.DepositFlatFeeSats)
	w.u64(c.WithdrawalFlatFeeSats)
}

func (c *Config) unmarshal(r *reader) {
	c.DepositFeeRateNum = r.u64()
	c.DepositFeeRateDen = r.u64()
	c.WithdrawalFeeRateNum = r.u64()
	c.WithdrawalFeeRateDen = r.u64()
	c.DepositFlatFeeSats = r.u64()
	c.WithdrawalFlatFeeSats = r.u64()
}

// Hash digests the serialized config; it is part of the block-update
// public inputs.
func (c *Config) Hash() merkle.Hash {
	w := &writer{buf: make([]byte, 0, ConfigSize)}
	c.marshal(w)
	return merkle.Sum256(w.buf)
}

// SplitDeposit splits a deposit amount into (net, fee). A (0, 0) result
// means the amount does not cover the fee and must be rejected.
func (c *Config) SplitDeposit(amount uint64) (net, fee uint64) {
	return splitAmount(amount, c.DepositFlatFeeSats, c.DepositFeeRateNum, c.DepositFeeRateDen)
}

// SplitWithdrawal splits a withdrawal amount into (net, fee). A (0, 0)
// result means the amount does not cover the fee and must be rejected.
func (c *Config) SplitWithdrawal(amount uint64) (net, fee uint64) {
	return splitAmount(amount, c.WithdrawalFlatFeeSats, c.WithdrawalFeeRateNum, c.WithdrawalFeeRateDen)
}

// splitAmount computes fee = flat + amount*num/den with saturating
// arithmetic. When the fee swallows the whole amount both parts come back
// zero, which upstream logic treats as a hard reject.
func splitAmount(amount, flat, num, den uint64) (net, fee uint64) {
	if amount == 0 {
		return 0, 0
	}
	var rate uint64
	if den != 0 && num != 0 {
		hi, lo := bits.Mul64(amount, num)
		if hi >= den {
			rate = math.MaxUint64
		} else {
			rate, _ = bits.Div64(hi, lo, den)
		}
	}
	fee = flat + rate
	if fee < flat {
		fee = math.MaxUint64
	}
	if fee >= amount {
		return 0, 0
	}
	return amount - fee, fee
}
