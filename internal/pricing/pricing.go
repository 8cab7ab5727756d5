package pricing

import (
	"github.com/shopspring/decimal"
	"github.com/xtrntr/tokenmarket/pkg/mathutil"
)

const (
	// DefaultGrowthRateBps is the round over round price growth, 3%
	DefaultGrowthRateBps = 300
	// DefaultTokenDecimals is the precision of the traded token
	DefaultTokenDecimals = 18
)

// DefaultFixedIncrement is 0.000004 of a base currency with 18 decimals.
var DefaultFixedIncrement = decimal.NewFromInt(4000000000000)

// Params are the constants linking a sale round to the previous one.
type Params struct {
	GrowthRateBps  uint32
	FixedIncrement decimal.Decimal
	TokenDecimals  int32
}

// DefaultParams returns the marketplace defaults
func DefaultParams() Params {
	return Params{
		GrowthRateBps:  DefaultGrowthRateBps,
		FixedIncrement: DefaultFixedIncrement,
		TokenDecimals:  DefaultTokenDecimals,
	}
}

// NextPrice returns prev + prev*growth + increment.
func (p Params) NextPrice(prev decimal.Decimal) decimal.Decimal {
	return prev.Add(mathutil.Bps(prev, p.GrowthRateBps)).Add(p.FixedIncrement)
}

// NextSupply returns how many token units the trade volume buys at price.
func (p Params) NextSupply(tradeVolume, price decimal.Decimal) decimal.Decimal {
	return mathutil.MulDiv(tradeVolume, mathutil.Pow10(p.TokenDecimals), price)
}

// Cost returns the base currency value of amount token units at price.
func (p Params) Cost(amount, price decimal.Decimal) decimal.Decimal {
	return mathutil.MulDiv(amount, price, mathutil.Pow10(p.TokenDecimals))
}

// UnitPrice returns the price per whole token of an order selling amount
// units for totalCost.
func (p Params) UnitPrice(totalCost, amount decimal.Decimal) decimal.Decimal {
	return mathutil.MulDiv(totalCost, mathutil.Pow10(p.TokenDecimals), amount)
}
