// Package core holds the settlement domain: exact currency amounts, the
// expenditure model and the summary types produced by aggregation.
//
// Amounts are kept as fractions so that dividing a bill among N people and
// adding the shares back together always yields the original total.
package core

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ExactAmount is an immutable rational currency amount.
// The zero value is 0/1 and ready to use.
type ExactAmount struct {
	r *big.Rat
}

var (
	bigTwo  = big.NewInt(2)
	bigFive = big.NewInt(5)
)

// Zero returns 0/1.
func Zero() ExactAmount {
	return ExactAmount{}
}

// NewExactAmount builds num/den. The sign is carried by the numerator.
func NewExactAmount(num, den int64) (ExactAmount, error) {
	if den == 0 {
		return ExactAmount{}, ErrDivisionByZero
	}
	return ExactAmount{r: big.NewRat(num, den)}, nil
}

// FromInt returns n/1.
func FromInt(n int64) ExactAmount {
	return ExactAmount{r: new(big.Rat).SetInt64(n)}
}

// FromDecimal converts a float to the fraction of its shortest decimal
// representation, so 0.1 becomes 1/10 rather than the nearest binary value.
func FromDecimal(v float64) (ExactAmount, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ExactAmount{}, fmt.Errorf("%w: %v is not finite", ErrInvalidAmount, v)
	}
	return FromDecimalValue(decimal.NewFromFloat(v)), nil
}

// FromNonNegativeDecimal is FromDecimal for contexts where negative amounts
// are not allowed (prices, totals).
func FromNonNegativeDecimal(v float64) (ExactAmount, error) {
	a, err := FromDecimal(v)
	if err != nil {
		return ExactAmount{}, err
	}
	if a.Sign() < 0 {
		return ExactAmount{}, fmt.Errorf("%w: %v is negative", ErrInvalidAmount, v)
	}
	return a, nil
}

// FromDecimalValue converts a decimal.Decimal without loss.
func FromDecimalValue(d decimal.Decimal) ExactAmount {
	return ExactAmount{r: d.Rat()}
}

// ParseAmount parses a decimal string ("12.34", "12,34", "1e3") or an exact
// fraction ("10/3"). Both separators are accepted for the decimal point.
func ParseAmount(s string) (ExactAmount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ExactAmount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	if strings.Contains(s, "/") {
		r, ok := new(big.Rat).SetString(s)
		if !ok {
			return ExactAmount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		return ExactAmount{r: r}, nil
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ExactAmount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimalValue(d), nil
}

// MustParseAmount is ParseAmount for literals in tests and seed data.
func MustParseAmount(s string) ExactAmount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a ExactAmount) rat() *big.Rat {
	if a.r == nil {
		return new(big.Rat)
	}
	return a.r
}

// Add returns a+b.
func (a ExactAmount) Add(b ExactAmount) ExactAmount {
	return ExactAmount{r: new(big.Rat).Add(a.rat(), b.rat())}
}

// Sub returns a-b.
func (a ExactAmount) Sub(b ExactAmount) ExactAmount {
	return ExactAmount{r: new(big.Rat).Sub(a.rat(), b.rat())}
}

// Multiply returns a*b.
func (a ExactAmount) Multiply(b ExactAmount) ExactAmount {
	return ExactAmount{r: new(big.Rat).Mul(a.rat(), b.rat())}
}

// MulInt returns a*n.
func (a ExactAmount) MulInt(n int64) ExactAmount {
	return a.Multiply(FromInt(n))
}

// Divide returns a/n.
func (a ExactAmount) Divide(n int) (ExactAmount, error) {
	if n == 0 {
		return ExactAmount{}, ErrDivisionByZero
	}
	return ExactAmount{r: new(big.Rat).Quo(a.rat(), big.NewRat(int64(n), 1))}, nil
}

// Quo returns a/b.
func (a ExactAmount) Quo(b ExactAmount) (ExactAmount, error) {
	if b.IsZero() {
		return ExactAmount{}, ErrDivisionByZero
	}
	return ExactAmount{r: new(big.Rat).Quo(a.rat(), b.rat())}, nil
}

// Sum adds all amounts; the empty sum is zero.
func Sum(amounts ...ExactAmount) ExactAmount {
	total := new(big.Rat)
	for _, a := range amounts {
		total.Add(total, a.rat())
	}
	return ExactAmount{r: total}
}

// Cmp compares a and b like big.Rat.Cmp.
func (a ExactAmount) Cmp(b ExactAmount) int {
	return a.rat().Cmp(b.rat())
}

// Equal reports fraction equality.
func (a ExactAmount) Equal(b ExactAmount) bool {
	return a.Cmp(b) == 0
}

func (a ExactAmount) Sign() int {
	return a.rat().Sign()
}

func (a ExactAmount) IsZero() bool {
	return a.Sign() == 0
}

// Num returns a copy of the numerator.
func (a ExactAmount) Num() *big.Int {
	return new(big.Int).Set(a.rat().Num())
}

// Denom returns a copy of the (always positive) denominator.
func (a ExactAmount) Denom() *big.Int {
	return new(big.Int).Set(a.rat().Denom())
}

// ToDecimal is a lossy conversion for sorting and comparisons. Never store
// its result back into an ExactAmount.
func (a ExactAmount) ToDecimal() float64 {
	f, _ := a.rat().Float64()
	return f
}

// Round rounds half away from zero to the given number of decimal places.
func (a ExactAmount) Round(places int32) decimal.Decimal {
	return decimal.NewFromBigRat(a.rat(), places)
}

// FloatString renders a with a fixed number of decimals.
func (a ExactAmount) FloatString(places int) string {
	return a.rat().FloatString(places)
}

// String renders a losslessly: a decimal when the fraction terminates,
// otherwise "num/den".
func (a ExactAmount) String() string {
	r := a.rat()
	if places, ok := terminatingPlaces(r.Denom()); ok {
		return r.FloatString(places)
	}
	return r.String()
}

// terminatingPlaces reports how many decimals are needed to write 1/den
// exactly, or false when the expansion repeats.
func terminatingPlaces(den *big.Int) (int, bool) {
	d := new(big.Int).Set(den)
	var twos, fives int
	m := new(big.Int)
	for {
		q, r := new(big.Int).QuoRem(d, bigTwo, m)
		if r.Sign() != 0 {
			break
		}
		d = q
		twos++
	}
	for {
		q, r := new(big.Int).QuoRem(d, bigFive, m)
		if r.Sign() != 0 {
			break
		}
		d = q
		fives++
	}
	if d.Cmp(big.NewInt(1)) != 0 {
		return 0, false
	}
	return max(twos, fives), true
}

// MarshalJSON writes the lossless String form as a JSON string.
func (a ExactAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts JSON numbers and strings without going through
// float64.
func (a *ExactAmount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*a = ExactAmount{}
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
		}
		s = str
	}
	v, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
