// Package money converts between USD and an asset's smallest on-chain unit,
// and holds the per-network stablecoin mint registry used by the matcher.
package money

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Money represents an amount in atomic (smallest-unit) terms for one asset.
// Arithmetic is integer-only to avoid floating point precision issues.
type Money struct {
	Asset  Asset
	Atomic int64
}

var (
	// ErrOverflow occurs when an operation would exceed int64 capacity.
	ErrOverflow = errors.New("money: arithmetic overflow")

	// ErrAssetMismatch occurs when operating on different assets.
	ErrAssetMismatch = errors.New("money: asset mismatch")

	// ErrInvalidFormat occurs when parsing fails.
	ErrInvalidFormat = errors.New("money: invalid format")

	// ErrNegativeAmount occurs when a negative or non-finite amount is given
	// where only a non-negative amount makes sense (e.g. a USD price).
	ErrNegativeAmount = errors.New("money: negative or non-finite amount not allowed")
)

// Zero returns a zero amount for the given asset.
func Zero(asset Asset) Money {
	return Money{Asset: asset, Atomic: 0}
}

// New creates a Money from atomic units.
func New(asset Asset, atomic int64) Money {
	return Money{Asset: asset, Atomic: atomic}
}

// USDToSmallestUnit converts a USD amount to the asset's smallest unit using
// floor division: floor(usd * 10^decimals). Negative or non-finite inputs
// are rejected — a price can never be negative.
func USDToSmallestUnit(usd float64, asset Asset) (int64, error) {
	if math.IsNaN(usd) || math.IsInf(usd, 0) || usd < 0 {
		return 0, ErrNegativeAmount
	}
	scaled := usd * math.Pow10(int(asset.Decimals))
	// floor, not round: a fractional smallest-unit must never round up to
	// more than the caller asked for.
	floored := math.Floor(scaled + 1e-9) // epsilon guards float64 repr error
	if floored > math.MaxInt64 {
		return 0, ErrOverflow
	}
	return int64(floored), nil
}

// SmallestUnitToUSD is the inverse of USDToSmallestUnit: the smallest-unit
// amount divided by 10^decimals as a float64. For an exact decimal string,
// use Money.ToMajor instead.
func SmallestUnitToUSD(smallest int64, asset Asset) float64 {
	return float64(smallest) / math.Pow10(int(asset.Decimals))
}

// FromMajor creates Money from a major unit string (e.g. "10.50"). Uses
// half-up rounding for fractional atomic units beyond the asset's decimals.
func FromMajor(asset Asset, major string) (Money, error) {
	parts := strings.Split(major, ".")
	if len(parts) > 2 {
		return Money{}, fmt.Errorf("%w: too many decimal points", ErrInvalidFormat)
	}

	integerPart := parts[0]
	fractionalPart := ""
	if len(parts) == 2 {
		fractionalPart = parts[1]
	}

	integerVal, err := strconv.ParseInt(integerPart, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	var atomicFromFraction int64
	if fractionalPart != "" {
		if len(fractionalPart) > int(asset.Decimals) {
			roundDigit := fractionalPart[asset.Decimals] - '0'
			fractionalPart = fractionalPart[:asset.Decimals]
			parsed, _ := strconv.ParseInt(fractionalPart, 10, 64)
			atomicFromFraction = parsed
			if roundDigit >= 5 {
				atomicFromFraction++
			}
		} else {
			for len(fractionalPart) < int(asset.Decimals) {
				fractionalPart += "0"
			}
			atomicFromFraction, _ = strconv.ParseInt(fractionalPart, 10, 64)
		}
	}

	multiplier := int64(math.Pow10(int(asset.Decimals)))
	if integerVal > 0 && multiplier > math.MaxInt64/integerVal {
		return Money{}, ErrOverflow
	}
	if integerVal < 0 && multiplier > math.MaxInt64/(-integerVal) {
		return Money{}, ErrOverflow
	}

	atomicFromInteger := integerVal * multiplier
	if integerVal < 0 {
		atomicFromFraction = -atomicFromFraction
	}

	return Money{Asset: asset, Atomic: atomicFromInteger + atomicFromFraction}, nil
}

// FromAtomic creates Money from a decimal-integer atomic units string, the
// same shape as the wire's maxAmountRequired field.
func FromAtomic(asset Asset, atomic string) (Money, error) {
	value, err := strconv.ParseInt(atomic, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return Money{Asset: asset, Atomic: value}, nil
}

// ToMajor converts Money to a major-unit decimal string.
func (m Money) ToMajor() string {
	if m.Atomic == 0 {
		if m.Asset.Decimals == 0 {
			return "0"
		}
		return "0." + strings.Repeat("0", int(m.Asset.Decimals))
	}

	divisor := int64(math.Pow10(int(m.Asset.Decimals)))
	integerPart := m.Atomic / divisor
	fractionalPart := m.Atomic % divisor
	if fractionalPart < 0 {
		fractionalPart = -fractionalPart
	}

	if m.Asset.Decimals == 0 {
		return strconv.FormatInt(integerPart, 10)
	}

	var buf strings.Builder
	buf.WriteString(strconv.FormatInt(integerPart, 10))
	buf.WriteByte('.')
	fractionalStr := strconv.FormatInt(fractionalPart, 10)
	for i := 0; i < int(m.Asset.Decimals)-len(fractionalStr); i++ {
		buf.WriteByte('0')
	}
	buf.WriteString(fractionalStr)
	return buf.String()
}

// ToAtomic returns the atomic units as a decimal-integer string, the wire
// shape used by maxAmountRequired.
func (m Money) ToAtomic() string {
	return strconv.FormatInt(m.Atomic, 10)
}

// Add returns the sum of two Money values of the same asset.
func (m Money) Add(other Money) (Money, error) {
	if m.Asset.Code != other.Asset.Code {
		return Money{}, fmt.Errorf("%w: cannot add %s and %s", ErrAssetMismatch, m.Asset.Code, other.Asset.Code)
	}
	result := m.Atomic + other.Atomic
	if (result > m.Atomic) != (other.Atomic > 0) {
		return Money{}, ErrOverflow
	}
	return Money{Asset: m.Asset, Atomic: result}, nil
}

// Sub returns the difference of two Money values of the same asset.
func (m Money) Sub(other Money) (Money, error) {
	if m.Asset.Code != other.Asset.Code {
		return Money{}, fmt.Errorf("%w: cannot subtract %s and %s", ErrAssetMismatch, m.Asset.Code, other.Asset.Code)
	}
	result := m.Atomic - other.Atomic
	if (result < m.Atomic) != (other.Atomic > 0) {
		return Money{}, ErrOverflow
	}
	return Money{Asset: m.Asset, Atomic: result}, nil
}

// Mul multiplies Money by an integer scalar, using big.Int to detect overflow.
func (m Money) Mul(multiplier int64) (Money, error) {
	if multiplier == 0 {
		return Zero(m.Asset), nil
	}
	bigResult := new(big.Int).Mul(big.NewInt(m.Atomic), big.NewInt(multiplier))
	if !bigResult.IsInt64() {
		return Money{}, ErrOverflow
	}
	return Money{Asset: m.Asset, Atomic: bigResult.Int64()}, nil
}

// IsZero returns true if amount is exactly zero.
func (m Money) IsZero() bool { return m.Atomic == 0 }

// IsPositive returns true if amount is greater than zero.
func (m Money) IsPositive() bool { return m.Atomic > 0 }

// LessThan returns true if m < other (same asset required).
func (m Money) LessThan(other Money) bool {
	return m.Asset.Code == other.Asset.Code && m.Atomic < other.Atomic
}

// GreaterOrEqual returns true if m >= other (same asset required).
func (m Money) GreaterOrEqual(other Money) bool {
	return m.Asset.Code == other.Asset.Code && m.Atomic >= other.Atomic
}

// Equal returns true if m == other (same asset and amount).
func (m Money) Equal(other Money) bool {
	return m.Asset.Code == other.Asset.Code && m.Atomic == other.Atomic
}

// String returns a human-readable representation, e.g. "10.50 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.ToMajor(), m.Asset.Code)
}
