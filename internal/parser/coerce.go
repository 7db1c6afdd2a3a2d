package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/tally/internal/model"
	"github.com/shopspring/decimal"
)

// dateLayouts are tried in order; the first that parses wins.
var dateLayouts = []string{
	model.DateLayout,
	"20060102",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Value is a generically coerced cell.
type Value struct {
	Number *float64   `json:"number,omitempty"`
	Date   *time.Time `json:"date,omitempty"`
	Text   string     `json:"text"`
}

// Coerce turns raw cell text into a number, a day, or plain text.
func Coerce(raw string) Value {
	v := Value{Text: strings.TrimSpace(raw)}
	if v.Text == "" {
		return v
	}
	if d, err := ParseDate(v.Text); err == nil {
		v.Date = &d
		return v
	}
	if n, err := ParseNumber(v.Text); err == nil {
		v.Number = &n
	}
	return v
}

// cleanNumber strips currency prefixes, percent suffixes and thousands separators.
func cleanNumber(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	percent := false
	if strings.HasSuffix(s, "%") {
		percent = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}
	negative := false
	if strings.HasPrefix(s, "-") {
		negative = true
		s = s[1:]
	}
	for _, symbol := range []string{"$", "€", "£", "USD"} {
		s = strings.TrimPrefix(s, symbol)
	}
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	s = strings.ReplaceAll(s, "_", "")
	if negative {
		s = "-" + s
	}
	return s, percent
}

// ParseNumber parses a numeric-looking cell such as "1,234", "45.2%" or "$19.99".
func ParseNumber(raw string) (float64, error) {
	s, _ := cleanNumber(raw)
	if s == "" || s == "-" {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, fmt.Errorf("%q is not a number", raw)
	}
	return n, nil
}

// ParseCount parses a whole-number cell. "12.0" is accepted, "12.5" is not.
func ParseCount(raw string) (int64, error) {
	n, err := ParseNumber(raw)
	if err != nil {
		return 0, err
	}
	if n != math.Trunc(n) {
		return 0, fmt.Errorf("%q is not a whole number", raw)
	}
	if n > math.MaxInt64 || n < math.MinInt64 {
		return 0, fmt.Errorf("%q is out of range", raw)
	}
	return int64(n), nil
}

// ParseMoney parses a monetary cell exactly.
func ParseMoney(raw string) (decimal.Decimal, error) {
	s, percent := cleanNumber(raw)
	if s == "" || percent {
		return decimal.Zero, fmt.Errorf("%q is not an amount", raw)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not an amount", raw)
	}
	return d, nil
}

// ParseDate parses any supported date format and normalizes it to UTC
// midnight of the calendar day as written, ignoring any offset.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if len(s) < len("20060102") {
			break
		}
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a date", raw)
}
