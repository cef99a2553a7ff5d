package tokens

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMinorUnits(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		decimals uint8
		want     uint64
		err      error
	}{
		{name: "one sol", amount: "1", decimals: 9, want: 1_000_000_000},
		{name: "fraction", amount: "1.5", decimals: 9, want: 1_500_000_000},
		{name: "usdc cents", amount: "0.01", decimals: 6, want: 10_000},
		{name: "exact precision", amount: "0.00001", decimals: 5, want: 1},
		{name: "too precise", amount: "0.000001", decimals: 5, err: ErrTooManyDigits},
		{name: "zero", amount: "0", decimals: 9, err: ErrInvalidAmount},
		{name: "negative", amount: "-1", decimals: 9, err: ErrInvalidAmount},
		{name: "overflow", amount: "18446744073.709551616", decimals: 9, err: ErrAmountOverflow},
		{name: "max", amount: "18446744073.709551615", decimals: 9, want: 18446744073709551615},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToMinorUnits(decimal.RequireFromString(tt.amount), tt.decimals)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	assert.True(t, decimal.RequireFromString("1.5").Equal(FromMinorUnits(1_500_000_000, 9)))
}

func TestResolve(t *testing.T) {
	sol, err := Resolve("sol", "", nil)
	require.NoError(t, err)
	assert.True(t, sol.Native())
	assert.Equal(t, uint8(9), sol.Decimals)

	usdc, err := Resolve("USDC", "", nil)
	require.NoError(t, err)
	assert.False(t, usdc.Native())
	assert.Equal(t, uint8(6), usdc.Decimals)

	byMint, err := Resolve("", usdc.Mint.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, "USDC", byMint.Symbol)

	wrong := uint8(9)
	_, err = Resolve("", usdc.Mint.String(), &wrong)
	assert.ErrorIs(t, err, ErrUnknownToken)

	_, err = Resolve("DOGE", "", nil)
	assert.ErrorIs(t, err, ErrUnknownToken)

	custom := "So11111111111111111111111111111111111111112"
	_, err = Resolve("wsol", custom, nil)
	assert.ErrorIs(t, err, ErrUnknownToken)

	dec := uint8(9)
	tok, err := Resolve("wsol", custom, &dec)
	require.NoError(t, err)
	assert.Equal(t, "WSOL", tok.Symbol)
	assert.Equal(t, custom, tok.Mint.String())
}

func TestSupportedIsACopy(t *testing.T) {
	list := Supported()
	list[0].Symbol = "XXX"
	_, ok := BySymbol("SOL")
	assert.True(t, ok)
	assert.Len(t, Supported(), 5)
}
