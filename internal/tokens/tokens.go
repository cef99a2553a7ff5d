// Package tokens knows the assets a link can carry and converts display amounts to minor units.
package tokens

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Fi44er/sol_gift/internal/models"
	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownToken   = errors.New("unknown token")
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrTooManyDigits  = errors.New("amount has more fractional digits than the token supports")
	ErrAmountOverflow = errors.New("amount does not fit the ledger's integer range")
)

// MaxDecimals bounds what a mint can declare.
const MaxDecimals = 18

type Token struct {
	Symbol   string
	Mint     solana.PublicKey
	Decimals uint8
}

func (t Token) Native() bool {
	return t.Mint.IsZero()
}

var registry = []Token{
	{Symbol: models.NativeSymbol, Decimals: models.NativeDecimals},
	{Symbol: "USDC", Mint: solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"), Decimals: 6},
	{Symbol: "USDT", Mint: solana.MustPublicKeyFromBase58("Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"), Decimals: 6},
	{Symbol: "SHDW", Mint: solana.MustPublicKeyFromBase58("SHDWyBxihqiCj6YekG2GUr7wqKLeLAMK1gHZck9pL6y"), Decimals: 9},
	{Symbol: "BONK", Mint: solana.MustPublicKeyFromBase58("DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"), Decimals: 5},
}

func Supported() []Token {
	return append([]Token(nil), registry...)
}

// BySymbol is case-insensitive.
func BySymbol(symbol string) (Token, bool) {
	for _, t := range registry {
		if strings.EqualFold(t.Symbol, symbol) {
			return t, true
		}
	}
	return Token{}, false
}

func ByMint(mint solana.PublicKey) (Token, bool) {
	if mint.IsZero() {
		return Token{}, false
	}
	for _, t := range registry {
		if t.Mint.Equals(mint) {
			return t, true
		}
	}
	return Token{}, false
}

// Resolve picks the asset for a link request: the native symbol, a known symbol,
// or an explicit mint with its decimals. A known mint must agree with the registry.
func Resolve(symbol, mint string, decimals *uint8) (Token, error) {
	if mint == "" {
		t, ok := BySymbol(symbol)
		if !ok {
			return Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, symbol)
		}
		return t, nil
	}

	key, err := solana.PublicKeyFromBase58(mint)
	if err != nil {
		return Token{}, fmt.Errorf("%w: bad mint %q", ErrUnknownToken, mint)
	}
	if known, ok := ByMint(key); ok {
		if decimals != nil && *decimals != known.Decimals {
			return Token{}, fmt.Errorf("%w: %s has %d decimals", ErrUnknownToken, known.Symbol, known.Decimals)
		}
		return known, nil
	}
	if decimals == nil || *decimals > MaxDecimals {
		return Token{}, fmt.Errorf("%w: decimals required for mint %s", ErrUnknownToken, mint)
	}
	return Token{Symbol: strings.ToUpper(symbol), Mint: key, Decimals: *decimals}, nil
}

// ToMinorUnits converts a display amount to the asset's smallest unit without rounding.
func ToMinorUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	if !amount.IsPositive() {
		return 0, fmt.Errorf("%w: %s must be positive", ErrInvalidAmount, amount)
	}
	minor := amount.Shift(int32(decimals))
	if !minor.IsInteger() {
		return 0, fmt.Errorf("%w: %s with %d decimals", ErrTooManyDigits, amount, decimals)
	}
	if minor.GreaterThan(decimal.NewFromUint64(math.MaxUint64)) {
		return 0, fmt.Errorf("%w: %s", ErrAmountOverflow, amount)
	}
	return minor.BigInt().Uint64(), nil
}

func FromMinorUnits(minor uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromUint64(minor).Shift(-int32(decimals))
}
