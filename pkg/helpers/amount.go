// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"fmt"
	"math/big"
	"strings"
)

// DogeDecimals is the number of decimal places in a DOGE amount.
// Amounts throughout the bridge are denominated in satoshis (1e-8 DOGE).
const DogeDecimals = 8

// FormatSats formats an amount in satoshis as a decimal DOGE string.
// For example, FormatSats(100000000) returns "1".
func FormatSats(amount uint64) string {
	amountBig := new(big.Int).SetUint64(amount)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(DogeDecimals), nil)

	whole := new(big.Int).Div(amountBig, divisor)
	frac := new(big.Int).Mod(amountBig, divisor)

	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := fmt.Sprintf("%0*d", DogeDecimals, frac)
	// Trim trailing zeros
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}

	return fmt.Sprintf("%s.%s", whole.String(), fracStr)
}

// ParseSats parses a decimal DOGE string into satoshis.
// For example, ParseSats("1") returns 100000000.
func ParseSats(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}

	parts := strings.SplitN(s, ".", 2)
	whole := parts[0]
	frac := ""
	if len(parts) == 2 {
		frac = parts[1]
	}
	if len(frac) > DogeDecimals {
		return 0, fmt.Errorf("too many decimal places: %s", s)
	}
	frac = frac + strings.Repeat("0", DogeDecimals-len(frac))

	wholeInt, ok := new(big.Int).SetString(whole, 10)
	if !ok || wholeInt.Sign() < 0 {
		return 0, fmt.Errorf("invalid amount: %s", s)
	}
	fracInt := big.NewInt(0)
	if frac != "" {
		fracInt, ok = new(big.Int).SetString(frac, 10)
		if !ok || fracInt.Sign() < 0 {
			return 0, fmt.Errorf("invalid amount: %s", s)
		}
	}

	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(DogeDecimals), nil)
	total := new(big.Int).Mul(wholeInt, divisor)
	total.Add(total, fracInt)

	if !total.IsUint64() {
		return 0, fmt.Errorf("amount out of range: %s", s)
	}
	return total.Uint64(), nil
}
