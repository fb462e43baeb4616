package core

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var errEmptyAmount = errors.New("empty amount")

// ParseTotal converts a currency formatted amount into a float rounded to
// cents.
//
// Accepted forms include plain numbers ("1234.5"), a leading currency
// symbol ("$1,234.56", "€ 12"), thousands separators, a leading sign on
// either side of the symbol ("-$5", "$-5") and accounting parentheses
// ("(1,234.56)" is negative).
func ParseTotal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errEmptyAmount
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s, neg = trimSign(s, neg)
	if unsymbolled := strings.TrimLeftFunc(s, func(r rune) bool {
		return unicode.Is(unicode.Sc, r) || unicode.IsSpace(r)
	}); unsymbolled != s {
		s, neg = trimSign(unsymbolled, neg)
	}

	s = strings.Map(func(r rune) rune {
		if r == ',' || r == '_' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return 0, errEmptyAmount
	}
	// decimal accepts a sign of its own; every sign was consumed above.
	if s[0] == '-' || s[0] == '+' {
		return 0, errors.New("repeated sign")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, err
	}
	if neg {
		d = d.Neg()
	}
	return d.Round(2).InexactFloat64(), nil
}

// RoundCents rounds an already numeric amount to two decimals so that it
// compares equal to the same amount parsed from text.
func RoundCents(f float64) (float64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not a finite number")
	}
	return decimal.NewFromFloat(f).Round(2).InexactFloat64(), nil
}

func trimSign(s string, neg bool) (string, bool) {
	switch {
	case strings.HasPrefix(s, "-"):
		return strings.TrimSpace(s[1:]), !neg
	case strings.HasPrefix(s, "+"):
		return strings.TrimSpace(s[1:]), neg
	}
	return s, neg
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
