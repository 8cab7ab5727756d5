package referral

import (
	"github.com/shopspring/decimal"
	"github.com/xtrntr/tokenmarket/internal/models"
	"github.com/xtrntr/tokenmarket/pkg/mathutil"
)

// Rates are the level one and level two referral rewards in basis points.
type Rates struct {
	Level1 uint32
	Level2 uint32
}

var (
	// SaleRates reward the buyer's upline on sale purchases.
	SaleRates = Rates{Level1: 500, Level2: 300}
	// TradeRates reward the seller's upline on order fills.
	TradeRates = Rates{Level1: 250, Level2: 250}
)

// Split is the outcome of distributing a payment over an upline.
type Split struct {
	Value     decimal.Decimal
	Level1    models.Address
	Reward1   decimal.Decimal
	Level2    models.Address
	Reward2   decimal.Decimal
	Remainder decimal.Decimal // kept by the marketplace
}

// Split distributes value over upline. The share of an absent level is not
// redistributed and stays in the remainder; truncation favours the remainder.
func (r Rates) Split(value decimal.Decimal, upline models.Upline) Split {
	s := Split{
		Value:   value,
		Level1:  upline.Level1,
		Level2:  upline.Level2,
		Reward1: decimal.Zero,
		Reward2: decimal.Zero,
	}
	if !upline.Level1.IsZero() {
		s.Reward1 = mathutil.Bps(value, r.Level1)
	}
	if !upline.Level2.IsZero() {
		s.Reward2 = mathutil.Bps(value, r.Level2)
	}
	s.Remainder = value.Sub(s.Reward1).Sub(s.Reward2)
	return s
}

// Fee returns the full referral cut of value regardless of who is present.
func (r Rates) Fee(value decimal.Decimal) decimal.Decimal {
	return mathutil.Bps(value, r.Level1).Add(mathutil.Bps(value, r.Level2))
}
