package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// ParseCurrency resolves an ISO 4217 code, case-insensitively.
func ParseCurrency(code string) (currency.Unit, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return currency.Unit{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	unit, err := currency.ParseISO(code)
	// XXX parses to the zero unit, which carries no currency at all.
	if err != nil || unit == (currency.Unit{}) {
		return currency.Unit{}, fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return unit, nil
}

// ValidateCurrencyCode reports whether code is a recognised ISO 4217 code.
func ValidateCurrencyCode(code string) error {
	_, err := ParseCurrency(code)
	return err
}

// CurrencyScale is the number of minor-unit digits for the currency (2 for
// USD, 0 for JPY, 3 for KWD).
func CurrencyScale(code string) (int, error) {
	unit, err := ParseCurrency(code)
	if err != nil {
		return 0, err
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale, nil
}

// ToDisplayString formats the amount for the given BCP 47 locale and
// currency, e.g. "$ 1,234.50" for en-US/USD or "€ 1.234,50" for de-DE/EUR.
// The stored fraction is not modified; rounding happens on a copy.
func ToDisplayString(a ExactAmount, locale, currencyCode string) (string, error) {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidLocale, locale)
	}
	unit, err := ParseCurrency(currencyCode)
	if err != nil {
		return "", err
	}
	scale, _ := currency.Standard.Rounding(unit)
	rounded := a.Round(int32(scale))

	p := message.NewPrinter(tag)
	template := layoutTemplate
	if rounded.Sign() < 0 {
		template = -template
	}
	layout := p.Sprint(currency.Symbol(unit.Amount(template)))
	if s, ok := spliceDigits(layout, rounded.Abs(), scale); ok {
		return s, nil
	}
	// Locales with non-ASCII digits keep the float path.
	return p.Sprint(currency.Symbol(unit.Amount(rounded.InexactFloat64()))), nil
}

// layoutTemplate is formatted by the locale printer to learn its symbol
// placement, separators and grouping. It is exact in float64.
const layoutTemplate = 1e9

// spliceDigits replaces the digit run of a formatted layoutTemplate with the
// exact digits of d, keeping the locale's separators and group sizes.
func spliceDigits(layout string, d decimal.Decimal, scale int) (string, bool) {
	start := strings.IndexByte(layout, '1')
	end := strings.LastIndexByte(layout, '0')
	if start < 0 || end < start {
		return "", false
	}
	span := layout[start : end+1]

	intPart, decimalSep := span, ""
	if scale > 0 {
		head := span[:len(span)-scale]
		i := len(head)
		for i > 0 && !isASCIIDigit(head[i-1]) {
			i--
		}
		intPart, decimalSep = head[:i], head[i:]
		if decimalSep == "" {
			return "", false
		}
	}

	var groups []string
	groupSep := ""
	for i := 0; i < len(intPart); {
		j := i
		for j < len(intPart) && isASCIIDigit(intPart[j]) == isASCIIDigit(intPart[i]) {
			j++
		}
		if isASCIIDigit(intPart[i]) {
			groups = append(groups, intPart[i:j])
		} else if groupSep == "" {
			groupSep = intPart[i:j]
		}
		i = j
	}
	if strings.Join(groups, "") != "1000000000" {
		return "", false
	}

	digits := d.StringFixed(int32(scale))
	whole, frac, _ := strings.Cut(digits, ".")
	out := whole
	if len(groups) > 1 {
		primary := len(groups[len(groups)-1])
		secondary := primary
		if len(groups) > 2 {
			secondary = len(groups[len(groups)-2])
		}
		out = groupDigits(whole, primary, secondary, groupSep)
	}
	if scale > 0 {
		out += decimalSep + frac
	}
	return layout[:start] + out + layout[end+1:], true
}

// groupDigits inserts sep into whole, counting primary digits from the
// right for the first group and secondary digits for each one after it.
func groupDigits(whole string, primary, secondary int, sep string) string {
	if len(whole) <= primary {
		return whole
	}
	var parts []string
	rest, size := whole, primary
	for len(rest) > size {
		parts = append([]string{rest[len(rest)-size:]}, parts...)
		rest = rest[:len(rest)-size]
		size = secondary
	}
	parts = append([]string{rest}, parts...)
	return strings.Join(parts, sep)
}

func isASCIIDigit(b byte) bool { return b >= '0' && b <= '9' }
