package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the fixed number of decimal places carried by monetary amounts.
const MoneyPlaces = 2

// Money rounds an amount to two decimal places using half-away-from-zero rounding.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MoneyFromString parses a monetary amount and rejects values carrying more
// precision than the ledger can represent.
func MoneyFromString(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if !d.Equal(d.Round(MoneyPlaces)) {
		return decimal.Zero, ValidationError{Field: "amount", Message: fmt.Sprintf("%s has more than %d decimal places", s, MoneyPlaces)}
	}
	return d, nil
}

// MoneyFromFloat converts a float amount, rounding to two places. Intended for
// fixtures and configuration values, never for ledger arithmetic.
func MoneyFromFloat(f float64) decimal.Decimal {
	return Money(decimal.NewFromFloat(f))
}

// SumMoney adds the supplied amounts.
func SumMoney(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
