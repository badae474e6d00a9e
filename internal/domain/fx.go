package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rough indicative FX rates to USD used only for the aggregate balance
// display. 1 unit of currency = rate USD. Unknown currencies fall back to
// 1.0 rather than dropping the account from the total.
var fxToUSD = map[string]decimal.Decimal{
	"USD": decimal.NewFromInt(1),
	"EUR": decimal.RequireFromString("1.08"),
	"GBP": decimal.RequireFromString("1.25"),
	"JPY": decimal.RequireFromString("0.0067"),
	"CHF": decimal.RequireFromString("1.10"),
	"PLN": decimal.RequireFromString("0.25"),
	"CZK": decimal.RequireFromString("0.044"),
}

// ToUSD converts an amount in the given currency to USD using the
// indicative rate table.
func ToUSD(amount decimal.Decimal, currency string) decimal.Decimal {
	rate, ok := fxToUSD[strings.ToUpper(currency)]
	if !ok {
		rate = decimal.NewFromInt(1)
	}
	return amount.Mul(rate)
}
