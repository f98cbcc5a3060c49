package types

import "math/big"

// MulDiv returns floor(a × b / c) computed without intermediate overflow.
func MulDiv(a, b, c int64) (int64, error) {
	return mulDiv(a, b, c, false)
}

// MulDivCeil returns ceil(a × b / c) computed without intermediate overflow.
func MulDivCeil(a, b, c int64) (int64, error) {
	return mulDiv(a, b, c, true)
}

func mulDiv(a, b, c int64, ceil bool) (int64, error) {
	if a < 0 || b < 0 || c < 0 {
		return 0, ErrNegative
	}
	if c == 0 {
		return 0, ErrOverflow
	}
	v := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	d := big.NewInt(c)
	if ceil {
		v.Add(v, new(big.Int).Sub(d, big.NewInt(1)))
	}
	v.Quo(v, d)
	if !v.IsInt64() {
		return 0, ErrOverflow
	}
	return v.Int64(), nil
}

// AddChecked returns a + b or ErrOverflow.
func AddChecked(a, b int64) (int64, error) {
	s := a + b
	if (b > 0 && s < a) || (b < 0 && s > a) {
		return 0, ErrOverflow
	}
	return s, nil
}

// SubNonNegative returns a - b, failing with ErrNegative if the result
// would drop below zero.
func SubNonNegative(a, b int64) (int64, error) {
	if b > a {
		return 0, ErrNegative
	}
	return a - b, nil
}
