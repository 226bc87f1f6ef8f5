package staking

import (
	"fmt"
	"math/big"
	"strings"
)

// DefaultPrecision is the number of fractional digits shown when the caller
// has no preference.
const DefaultPrecision = 3

// FormatOptions controls balance rendering.
type FormatOptions struct {
	// Precision is the number of fractional digits kept after rounding.
	Precision int
	// KeepZero keeps trailing zero fractional digits.
	KeepZero bool
}

// Parts is a formatted balance split at the decimal point. Decimal holds
// only the fractional digits, without the leading "0.".
type Parts struct {
	Integer string `json:"integer"`
	Decimal string `json:"decimal"`
}

// String joins the parts back into the FormatBalance form.
func (p Parts) String() string {
	if p.Decimal == "" {
		return p.Integer
	}
	return p.Integer + "." + p.Decimal
}

// FormatBalance renders value (in smallest units with the given decimals) as
// a grouped decimal string, e.g. 1234567890000000000 with 18 decimals and
// precision 3 gives "1.235".
func FormatBalance(value *big.Int, decimals int, opts FormatOptions) (string, error) {
	p, err := FormatBalanceParts(value, decimals, opts)
	if err != nil {
		return "", err
	}
	return p.String(), nil
}

// FormatBalanceParts is FormatBalance without gluing the pieces together.
//
// The integer/fraction split is exact. The fraction is then cut to
// opts.Precision digits, rounding half away from zero on the digit string,
// and the integer part gets thousands separators.
func FormatBalanceParts(value *big.Int, decimals int, opts FormatOptions) (Parts, error) {
	if err := nonNegative("value", value); err != nil {
		return Parts{}, err
	}
	if decimals < 0 {
		return Parts{}, fmt.Errorf("%w: decimals must be >= 0, got %d", ErrInvalidArgument, decimals)
	}
	if opts.Precision < 0 {
		return Parts{}, fmt.Errorf("%w: precision must be >= 0, got %d", ErrInvalidArgument, opts.Precision)
	}

	intPart, frac := splitDecimal(orZero(value).String(), decimals)

	prec := opts.Precision
	switch {
	case len(frac) < prec:
		frac += strings.Repeat("0", prec-len(frac))
	case len(frac) > prec:
		roundUp := frac[prec] >= '5'
		frac = frac[:prec]
		if roundUp {
			bumped := incrementDigits(intPart + frac)
			intPart, frac = bumped[:len(bumped)-prec], bumped[len(bumped)-prec:]
		}
	}

	if !opts.KeepZero {
		frac = strings.TrimRight(frac, "0")
	}
	return Parts{Integer: groupThousands(intPart), Decimal: frac}, nil
}

// ParseAmount converts human input such as "1,234.5" into smallest units.
// More fractional digits than decimals is an error, not a rounding.
func ParseAmount(s string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("%w: decimals must be >= 0, got %d", ErrInvalidArgument, decimals)
	}
	clean := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if clean == "" {
		return nil, fmt.Errorf("%w: empty amount", ErrInvalidArgument)
	}

	intPart, frac, _ := strings.Cut(clean, ".")
	if intPart == "" {
		intPart = "0"
	}
	if !allDigits(intPart) || !allDigits(frac) {
		return nil, fmt.Errorf("%w: %q is not a non-negative decimal", ErrInvalidArgument, s)
	}
	if len(frac) > decimals {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", ErrInvalidArgument, s, decimals)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	v, ok := new(big.Int).SetString(intPart+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a non-negative decimal", ErrInvalidArgument, s)
	}
	return v, nil
}

// splitDecimal splits a base-10 digit string at decimals places from the
// right. The fraction is left-padded so it always has exactly decimals digits.
func splitDecimal(digits string, decimals int) (string, string) {
	if decimals == 0 {
		return digits, ""
	}
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	cut := len(digits) - decimals
	return digits[:cut], digits[cut:]
}

// incrementDigits adds one to a base-10 digit string.
func incrementDigits(s string) string {
	b := []byte(s)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < '9' {
			b[i]++
			return string(b)
		}
		b[i] = '0'
	}
	return "1" + string(b)
}

func groupThousands(s string) string {
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		sb.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
