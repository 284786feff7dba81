// Package fixedpoint implements Amount, the non-negative fixed-point
// numeric type shared by every core component. All arithmetic is checked:
// operations that would overflow or underflow return an error instead of
// wrapping, and callers that want saturating behavior use the Sat variants.
package fixedpoint

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/tos-network/prizepool/internal/poolerr"
)

// Scale is the number of decimal places Amount carries (>= 8 per spec).
const Scale = 8

// scaleFactor is 10^Scale, the number of raw units per whole token.
const scaleFactor uint64 = 100_000_000

// Amount is a non-negative fixed-point quantity stored as raw base-10^-8
// units in a uint64. Max is ~1.84e11 whole units (math.MaxUint64 /
// scaleFactor), matching the spec's stated ceiling.
type Amount struct {
	raw uint64
}

// Max is the largest representable Amount.
var Max = Amount{raw: math.MaxUint64}

// Zero is the additive identity.
var Zero = Amount{raw: 0}

// FromRaw builds an Amount directly from base units (10^-8 of a token).
func FromRaw(raw uint64) Amount { return Amount{raw: raw} }

// FromWhole builds an Amount from a whole-token integer count.
func FromWhole(whole uint64) (Amount, error) {
	raw, overflow := mulOverflows(whole, scaleFactor)
	if overflow {
		return Zero, poolerr.Wrap(poolerr.Validation, "Amount.FromWhole", poolerr.ErrZeroAmount)
	}
	return Amount{raw: raw}, nil
}

// Raw returns the underlying base-10^-8 unit count.
func (a Amount) Raw() uint64 { return a.raw }

// IsZero reports whether a is exactly zero.
func (a Amount) IsZero() bool { return a.raw == 0 }

// GT reports a > b.
func (a Amount) GT(b Amount) bool { return a.raw > b.raw }

// GTE reports a >= b.
func (a Amount) GTE(b Amount) bool { return a.raw >= b.raw }

// LT reports a < b.
func (a Amount) LT(b Amount) bool { return a.raw < b.raw }

// LTE reports a <= b.
func (a Amount) LTE(b Amount) bool { return a.raw <= b.raw }

// Equal reports a == b.
func (a Amount) Equal(b Amount) bool { return a.raw == b.raw }

// Add returns a+b, or an error on overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := a.raw + b.raw
	if sum < a.raw {
		return Zero, poolerr.Wrap(poolerr.Invariant, "Amount.Add", fmt.Errorf("overflow: %d + %d", a.raw, b.raw))
	}
	return Amount{raw: sum}, nil
}

// SatAdd returns a+b, saturating at Max instead of erroring.
func (a Amount) SatAdd(b Amount) Amount {
	sum := a.raw + b.raw
	if sum < a.raw {
		return Max
	}
	return Amount{raw: sum}
}

// Sub returns a-b, or an Underflow error if b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if b.raw > a.raw {
		return Zero, poolerr.Wrap(poolerr.Invariant, "Amount.Sub", fmt.Errorf("underflow: %d - %d", a.raw, b.raw))
	}
	return Amount{raw: a.raw - b.raw}, nil
}

// SatSub returns a-b, saturating at zero instead of erroring.
func (a Amount) SatSub(b Amount) Amount {
	if b.raw > a.raw {
		return Zero
	}
	return Amount{raw: a.raw - b.raw}
}

// CappedSub returns min(a, a-b): a-b if b <= a, else zero. Used by
// decrease_total_assets, which is defined to cap at the current balance
// rather than error.
func (a Amount) CappedSub(b Amount) Amount { return a.SatSub(b) }

// Min returns the smaller of a and b.
func Min(a, b Amount) Amount {
	if a.raw < b.raw {
		return a
	}
	return b
}

// Max2 returns the larger of a and b.
func Max2(a, b Amount) Amount {
	if a.raw > b.raw {
		return a
	}
	return b
}

// MulDiv computes floor(a * num / den) without intermediate overflow,
// using a 128-bit intermediate via math/big. den must be nonzero.
func MulDiv(a Amount, num, den Amount) (Amount, error) {
	if den.raw == 0 {
		return Zero, poolerr.Wrap(poolerr.Invariant, "Amount.MulDiv", fmt.Errorf("division by zero"))
	}
	prod := new(big.Int).Mul(big.NewInt(0).SetUint64(a.raw), big.NewInt(0).SetUint64(num.raw))
	prod.Div(prod, big.NewInt(0).SetUint64(den.raw))
	if !prod.IsUint64() {
		return Zero, poolerr.Wrap(poolerr.Invariant, "Amount.MulDiv", fmt.Errorf("overflow"))
	}
	return Amount{raw: prod.Uint64()}, nil
}

// MulDivInt computes floor(a * num / den) where num and den are plain
// non-negative integers rather than Amounts (e.g. elapsed seconds divided
// by a time-scale constant). Used by the TWAB accumulator, where the
// ratio is dimensionless time, not a second fixed-point quantity.
func MulDivInt(a Amount, num, den int64) (Amount, error) {
	if den <= 0 {
		return Zero, poolerr.Wrap(poolerr.Invariant, "Amount.MulDivInt", fmt.Errorf("non-positive denominator: %d", den))
	}
	if num < 0 {
		return Zero, poolerr.Wrap(poolerr.Invariant, "Amount.MulDivInt", fmt.Errorf("negative numerator: %d", num))
	}
	prod := new(big.Int).Mul(big.NewInt(0).SetUint64(a.raw), big.NewInt(num))
	prod.Div(prod, big.NewInt(den))
	if !prod.IsUint64() {
		return Zero, poolerr.Wrap(poolerr.Invariant, "Amount.MulDivInt", fmt.Errorf("overflow"))
	}
	return Amount{raw: prod.Uint64()}, nil
}

// mulOverflows reports whether a*b overflows uint64, returning the
// product when it does not.
func mulOverflows(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, false
	}
	p := a * b
	return p, p/a != b
}

// Frac returns floor(a * num / den) for small plain-integer num/den,
// dividing before multiplying to avoid overflow on values near Max. Used
// for constants like "80% of the maximum representable amount".
func Frac(a Amount, num, den uint64) Amount {
	return Amount{raw: (a.raw / den) * num}
}

// String renders the amount as a decimal token value.
func (a Amount) String() string {
	whole := a.raw / scaleFactor
	frac := a.raw % scaleFactor
	return fmt.Sprintf("%d.%0*d", whole, Scale, frac)
}

// MarshalJSON renders the amount as a quoted decimal string, so API
// responses and event streams carry full precision instead of a uint64
// that JSON numbers can't represent exactly past 2^53.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON parses a quoted decimal string produced by MarshalJSON.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	whole, frac, ok := strings.Cut(s, ".")
	if !ok {
		frac = ""
	}
	for len(frac) < Scale {
		frac += "0"
	}
	frac = frac[:Scale]

	wholeVal, err := parseUint64(whole)
	if err != nil {
		return poolerr.Wrap(poolerr.Validation, "Amount.UnmarshalJSON", fmt.Errorf("invalid amount %q: %w", s, err))
	}
	fracVal, err := parseUint64(frac)
	if err != nil {
		return poolerr.Wrap(poolerr.Validation, "Amount.UnmarshalJSON", fmt.Errorf("invalid amount %q: %w", s, err))
	}

	rawWhole, overflow := mulOverflows(wholeVal, scaleFactor)
	if overflow {
		return poolerr.Wrap(poolerr.Validation, "Amount.UnmarshalJSON", fmt.Errorf("amount %q overflows", s))
	}
	raw := rawWhole + fracVal
	if raw < rawWhole {
		return poolerr.Wrap(poolerr.Validation, "Amount.UnmarshalJSON", fmt.Errorf("amount %q overflows", s))
	}
	a.raw = raw
	return nil
}

// parseUint64 parses a non-negative decimal digit string, treating an
// empty string as zero.
func parseUint64(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a digit: %q", s)
		}
		v = v*10 + uint64(c-'0')
	}
	return v, nil
}
