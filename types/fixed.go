package types

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
)

// ErrOverflow is returned when fixed-point or scaled integer arithmetic
// does not fit the target width.
var ErrOverflow = errors.New("types: arithmetic overflow")

// ErrNegative is returned when an operand that must be non-negative is not.
var ErrNegative = errors.New("types: negative operand")

// FracBits is the number of fractional bits in a Fixed.
const FracBits = 32

// Fixed is an unsigned fixed-point number with 32 integer and 32
// fractional bits. Prices (DMC per PST) and rates (1.0 = 100%) use it so
// that every computation stays in integer arithmetic.
type Fixed uint64

// Well-known fixed-point values.
const (
	One      Fixed = 1 << FracBits
	MaxFixed Fixed = math.MaxUint64
)

var bigOne = new(big.Int).Lsh(big.NewInt(1), FracBits)

// FixedFromPercent converts an integer percentage (200 = 2.0) to Fixed,
// rounding down.
func FixedFromPercent(p uint64) Fixed {
	v := new(big.Int).SetUint64(p)
	v.Lsh(v, FracBits)
	v.Quo(v, big.NewInt(100))
	if !v.IsUint64() {
		return MaxFixed
	}
	return Fixed(v.Uint64())
}

// FixedFromRatio returns num/den as Fixed, rounding down.
func FixedFromRatio(num, den int64) (Fixed, error) {
	if num < 0 || den < 0 {
		return 0, ErrNegative
	}
	if den == 0 {
		return 0, fmt.Errorf("%w: division by zero", ErrOverflow)
	}
	v := new(big.Int).Lsh(big.NewInt(num), FracBits)
	v.Quo(v, big.NewInt(den))
	if !v.IsUint64() {
		return 0, ErrOverflow
	}
	return Fixed(v.Uint64()), nil
}

// ParseFixed parses a non-negative decimal string such as "0.5" or "12".
// Fractional digits beyond the representable precision are rounded down.
func ParseFixed(s string) (Fixed, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("types: parse fixed %q: empty string", s)
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	whole, err := strconv.ParseUint(intPart, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("types: parse fixed %q: %w", s, err)
	}

	v := new(big.Int).Lsh(new(big.Int).SetUint64(whole), FracBits)
	if fracPart != "" {
		if len(fracPart) > 18 {
			fracPart = fracPart[:18]
		}
		num, ok := new(big.Int).SetString(fracPart, 10)
		if !ok || num.Sign() < 0 {
			return 0, fmt.Errorf("types: parse fixed %q: invalid fraction", s)
		}
		den := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(len(fracPart))), nil)
		num.Lsh(num, FracBits)
		num.Quo(num, den)
		v.Add(v, num)
	}

	if !v.IsUint64() {
		return 0, fmt.Errorf("types: parse fixed %q: %w", s, ErrOverflow)
	}
	return Fixed(v.Uint64()), nil
}

// MustParseFixed is like ParseFixed but panics on error. Use for constants.
func MustParseFixed(s string) Fixed {
	f, err := ParseFixed(s)
	if err != nil {
		panic(err)
	}
	return f
}

// MulInt returns f × n as an integer, rounding up when ceil is set and
// down otherwise.
func (f Fixed) MulInt(n int64, ceil bool) (int64, error) {
	if n < 0 {
		return 0, ErrNegative
	}
	v := new(big.Int).Mul(new(big.Int).SetUint64(uint64(f)), big.NewInt(n))
	return shiftOut(v, ceil)
}

// Mul returns f × g, rounding down.
func (f Fixed) Mul(g Fixed) (Fixed, error) {
	v := new(big.Int).Mul(new(big.Int).SetUint64(uint64(f)), new(big.Int).SetUint64(uint64(g)))
	v.Rsh(v, FracBits)
	if !v.IsUint64() {
		return 0, ErrOverflow
	}
	return Fixed(v.Uint64()), nil
}

// Big returns the raw fixed-point bits as a big integer.
func (f Fixed) Big() *big.Int {
	return new(big.Int).SetUint64(uint64(f))
}

// AtLeastPercent reports whether f ≥ p/100.
func (f Fixed) AtLeastPercent(p uint64) bool {
	lhs := new(big.Int).Mul(f.Big(), big.NewInt(100))
	rhs := new(big.Int).Lsh(new(big.Int).SetUint64(p), FracBits)
	return lhs.Cmp(rhs) >= 0
}

// String renders the value in decimal with up to eight fractional digits.
func (f Fixed) String() string {
	whole := uint64(f) >> FracBits
	frac := uint64(f) & (uint64(One) - 1)
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	digits := frac * 100000000 >> FracBits
	s := strings.TrimRight(fmt.Sprintf("%08d", digits), "0")
	if s == "" {
		s = "0"
	}
	return strconv.FormatUint(whole, 10) + "." + s
}

// shiftOut divides v by 2^32 with the requested rounding and narrows it
// to int64.
func shiftOut(v *big.Int, ceil bool) (int64, error) {
	if ceil {
		v.Add(v, new(big.Int).Sub(bigOne, big.NewInt(1)))
	}
	v.Rsh(v, FracBits)
	if !v.IsInt64() {
		return 0, ErrOverflow
	}
	return v.Int64(), nil
}
