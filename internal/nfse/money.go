package nfse

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundHalfEven rounds v to places decimals, resolving exact midpoints of its
// shortest decimal representation to the even digit: 2.345 -> 2.34, 2.355 -> 2.36.
// Non-finite values are returned unchanged.
func RoundHalfEven(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).RoundBank(places).InexactFloat64()
}

// FormatMoney renders v with two decimals using the locale's separator.
// Non-finite values render as an empty string.
func FormatMoney(v float64, locale DecimalLocale) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	s := decimal.NewFromFloat(v).RoundBank(2).StringFixed(2)
	if locale == DecimalEN {
		return s
	}
	return strings.Replace(s, ".", ",", 1)
}

// ParseMoney converts a Brazilian currency string ("R$ 1.234,56") to a number.
// It returns nil when s holds no digits.
func ParseMoney(s string) *float64 {
	norm := strings.ReplaceAll(s, ".", "")
	norm = strings.Replace(norm, ",", ".", 1)
	norm = strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, norm)
	if strings.Trim(norm, ".") == "" {
		return nil
	}
	v, err := strconv.ParseFloat(norm, 64)
	if err != nil || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// MaskCNPJ renders the digits of s as NN.NNN.NNN/NNNN-NN. Inputs with fewer
// than 14 digits get the separators that their digits reach; extra digits are dropped.
func MaskCNPJ(s string) string {
	var b strings.Builder
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			continue
		}
		switch n {
		case 2, 5:
			b.WriteByte('.')
		case 8:
			b.WriteByte('/')
		case 12:
			b.WriteByte('-')
		}
		b.WriteRune(r)
		n++
		if n == 14 {
			break
		}
	}
	return b.String()
}

