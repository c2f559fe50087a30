// Package money provides decimal-safe parsing and formatting for monetary
// amounts. Amounts are held as shopspring decimals rounded to two places;
// go-money is used for locale-aware display strings in user-facing messages.
package money

import (
	"fmt"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places every stored amount carries.
const AmountScale = 2

// ParseAmount parses a raw cell value into a decimal rounded to two places.
// Currency symbols and thousands separators are tolerated.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}

	for _, sym := range []string{"$", "€", "£", "R$"} {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	// Accounting-style negatives: (42.50)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		s = "-" + strings.Trim(s, "()")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a valid number: %q", raw)
	}
	return d.Round(AmountScale), nil
}

// Round normalizes an amount to the storage scale.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// KeyString renders an amount the way duplicate keys expect it: fixed two
// decimal places, no grouping. Must be identical for stored and incoming data.
func KeyString(d decimal.Decimal) string {
	return d.Round(AmountScale).StringFixed(AmountScale)
}

// Display formats an amount for a row-result message, e.g. "$42.50".
func Display(d decimal.Decimal, currencyCode string) string {
	cur := money.GetCurrency(currencyCode)
	if cur == nil {
		cur = money.GetCurrency(money.USD)
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}
