// Package money provides currency-aware price formatting and VAT math.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// def describes how a currency is rendered.
type def struct {
	symbol   string
	decimals int
	// group separates thousands, point separates decimals.
	group  string
	point  string
	suffix bool
}

var currencies = map[string]def{
	"VND": {symbol: "₫", decimals: 0, group: ".", suffix: true},
	"KRW": {symbol: "₩", decimals: 0, group: ","},
	"JPY": {symbol: "¥", decimals: 0, group: ","},
	"USD": {symbol: "$", decimals: 2, group: ",", point: "."},
	"EUR": {symbol: "€", decimals: 2, group: ",", point: "."},
}

func lookup(code string) def {
	if d, ok := currencies[strings.ToUpper(code)]; ok {
		return d
	}
	// Unknown codes render with two decimals and the code as a suffix.
	return def{symbol: strings.ToUpper(code), decimals: 2, group: ",", point: ".", suffix: true}
}

// Supported reports whether the code has a first-class rendering definition.
func Supported(code string) bool {
	_, ok := currencies[strings.ToUpper(code)]
	return ok
}

// Decimals reports the number of fractional digits for a currency code.
func Decimals(code string) int {
	return lookup(code).decimals
}

// Round rounds an amount to the currency's minor unit, half away from zero.
func Round(amount float64, code string) float64 {
	shift := math.Pow(10, float64(Decimals(code)))
	return math.Round(amount*shift) / shift
}

// Format renders an amount in the given currency. Zero-decimal currencies
// round to a whole number, others keep two fractional digits.
func Format(amount float64, code string) string {
	d := lookup(code)
	amount = Round(amount, code)

	neg := math.Signbit(amount) && amount != 0
	fixed := strconv.FormatFloat(math.Abs(amount), 'f', d.decimals, 64)

	intPart := fixed
	fracPart := ""
	if d.decimals > 0 {
		intPart = fixed[:len(fixed)-d.decimals-1]
		fracPart = d.point + fixed[len(fixed)-d.decimals:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	if !d.suffix {
		b.WriteString(d.symbol)
	}
	b.WriteString(groupDigits(intPart, d.group))
	b.WriteString(fracPart)
	if d.suffix {
		b.WriteByte(' ')
		b.WriteString(d.symbol)
	}
	return b.String()
}

func groupDigits(s, sep string) string {
	if sep == "" || len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// Parse extracts the numeric amount from a price string rendered for the
// given currency. It accepts both formatted output and plain numbers.
func Parse(s, code string) (float64, error) {
	d := lookup(code)
	cleaned := strings.TrimSpace(s)
	cleaned = strings.ReplaceAll(cleaned, d.symbol, "")
	cleaned = strings.ReplaceAll(cleaned, d.group, "")
	if d.point != "" && d.point != "." {
		cleaned = strings.ReplaceAll(cleaned, d.point, ".")
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return 0, fmt.Errorf("money: empty amount %q", s)
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %v", s, err)
	}
	return amount, nil
}

// Normalize re-renders a price string in canonical form. Normalizing an
// already formatted string returns it unchanged.
func Normalize(s, code string) (string, error) {
	amount, err := Parse(s, code)
	if err != nil {
		return "", err
	}
	return Format(amount, code), nil
}

// VATAmount computes the tax on a subtotal at the given percent rate,
// rounded to the currency's minor unit.
func VATAmount(subtotal, percent float64, code string) float64 {
	return Round(subtotal*percent/100, code)
}

// Total computes subtotal plus VAT, each rounded to the currency's minor unit.
func Total(subtotal, percent float64, code string) float64 {
	return Round(subtotal, code) + VATAmount(subtotal, percent, code)
}
