package main

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/rovshanmuradov/pumpcurve/internal/curve"
)

// toUnits converts a human amount such as "1.5" into smallest units.
func toUnits(amount string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("amount %q is negative", amount)
	}
	units := d.Shift(decimals)
	if !units.Equal(units.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimals", amount, decimals)
	}
	if units.GreaterThan(fromUint64(math.MaxUint64)) {
		return 0, fmt.Errorf("amount %q overflows", amount)
	}
	return units.BigInt().Uint64(), nil
}

// fromUnits renders smallest units as a human amount.
func fromUnits(units uint64, decimals int32) string {
	return fromUint64(units).Shift(-decimals).String()
}

// inputDecimals is the precision of what a trader pays in.
func inputDecimals(d curve.Direction) int32 {
	if d == curve.Sell {
		return curve.QuoteDecimals
	}
	return curve.BaseDecimals
}

// outputDecimals is the precision of what a trader receives.
func outputDecimals(d curve.Direction) int32 {
	if d == curve.Sell {
		return curve.BaseDecimals
	}
	return curve.QuoteDecimals
}

func sol(lamports uint64) string {
	return fromUnits(lamports, curve.BaseDecimals) + " SOL"
}

func tokens(units uint64) string {
	return fromUnits(units, curve.QuoteDecimals)
}

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}
