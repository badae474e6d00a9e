package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToUSD_KnownCurrency(t *testing.T) {
	got := ToUSD(decimal.NewFromInt(100), "EUR")
	assert.Equal(t, "108", got.String())
}

func TestToUSD_UnknownCurrencyFallsBackToParity(t *testing.T) {
	got := ToUSD(decimal.NewFromInt(42), "XXX")
	assert.Equal(t, "42", got.String())
}

func TestToUSD_LowerCaseCurrency(t *testing.T) {
	got := ToUSD(decimal.NewFromInt(200), "gbp")
	assert.Equal(t, "250", got.String())
}

func TestNormalizeKind(t *testing.T) {
	assert.Equal(t, KindTransfer, NormalizeKind(" transfer "))
	assert.Equal(t, KindDebit, NormalizeKind("debit"))
	assert.Equal(t, "REVERSAL", NormalizeKind("reversal"))
}
