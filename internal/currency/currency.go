// Package currency converts canonical USD amounts into display currencies.
//
// Converted amounts exist purely for presentation. The amount actually
// authorized and charged is always computed in USD by the payment provider;
// any divergence between the displayed figure and the provider-side
// conversion is accepted, not corrected.
package currency

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// RateSource yields the USD→target multiplier for a lowercase currency code.
// Implementations are display-only and must never be used to compute a
// charge amount.
type RateSource interface {
	Rate(code string) (float64, bool)
}

// StaticRates is a hardcoded snapshot, not refreshed at runtime. Swap in a
// live source behind RateSource without touching call sites.
type StaticRates struct {
	rates map[string]float64
}

func NewStaticRates() *StaticRates {
	return &StaticRates{rates: map[string]float64{
		"usd": 1,
		"eur": 0.92,
		"gbp": 0.79,
		"cad": 1.36,
		"aud": 1.52,
		"jpy": 149.50,
		"mxn": 17.15,
		"brl": 4.97,
		"inr": 83.10,
		"cop": 3900.00,
	}}
}

func (s *StaticRates) Rate(code string) (float64, bool) {
	rate, ok := s.rates[strings.ToLower(code)]
	return rate, ok
}

type Converter struct {
	source RateSource
}

func NewConverter(source RateSource) *Converter {
	return &Converter{source: source}
}

// Convert multiplies a USD amount by the display rate for the target code,
// rounded half-up to two decimals. Unrecognized codes convert at rate 1.
// Non-finite input fails open and is returned unchanged.
func (c *Converter) Convert(amountUSD float64, code string) float64 {
	if math.IsNaN(amountUSD) || math.IsInf(amountUSD, 0) {
		return amountUSD
	}

	rate, ok := c.source.Rate(code)
	if !ok {
		rate = 1
	}
	return round2(amountUSD * rate)
}

// Format renders a locale-aware currency string. Codes outside ISO 4217 fall
// back to the caller-provided symbol plus a two-decimal amount.
func (c *Converter) Format(amount float64, code, symbol string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return symbol + strconv.FormatFloat(amount, 'f', 2, 64)
	}

	p := message.NewPrinter(language.English)
	return p.Sprint(currency.NarrowSymbol(unit.Amount(amount)))
}

func round2(x float64) float64 {
	return math.Floor(x*100+0.5) / 100
}
