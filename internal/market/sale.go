package market

import (
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/xtrntr/tokenmarket/internal/models"
	"github.com/xtrntr/tokenmarket/internal/referral"
)

// Receipt describes a completed purchase, from a sale round or an order.
type Receipt struct {
	RoundID   int             `json:"round_id"`
	OrderID   *int            `json:"order_id,omitempty"`
	Seller    models.Address  `json:"seller"`
	Amount    decimal.Decimal `json:"amount"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Paid      decimal.Decimal `json:"paid"`
	Required  decimal.Decimal `json:"required"`
	Refund    decimal.Decimal `json:"refund"`
	// Proceeds is what the seller of record received.
	Proceeds decimal.Decimal `json:"proceeds"`
	Split    referral.Split  `json:"-"`
}

// Initialize opens the first sale round and mints its supply into
// marketplace custody.
func (e *Engine) Initialize(caller models.Address, startPrice, startSupply decimal.Decimal) (models.Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Owner {
		return models.Round{}, ErrNotOwner
	}
	if len(e.rounds) > 0 {
		return models.Round{}, ErrAlreadyInitialized
	}
	if err := wholeUnits(startPrice, startSupply); err != nil {
		return models.Round{}, err
	}
	if !startPrice.IsPositive() {
		return models.Round{}, ErrZeroPrice
	}
	if startSupply.IsNegative() {
		return models.Round{}, ErrZeroAmount
	}

	if startSupply.IsPositive() {
		if err := e.issuer.Mint(e.cfg.Self, startSupply); err != nil {
			return models.Round{}, err
		}
	}
	r := e.openRound(models.SaleRound, startPrice, startSupply)

	log.WithFields(log.Fields{
		"round":  r.id,
		"price":  r.price,
		"supply": r.tokensLeft,
	}).Info("marketplace opened")

	e.publish(models.RoundStarted{
		RoundID:    r.id,
		Kind:       r.kind,
		PrevPrice:  decimal.Zero,
		Price:      r.price,
		TokensLeft: r.tokensLeft,
	})
	return r.snapshot(), nil
}

// BuyDuringSale sells amount freshly issued tokens to buyer, who sends paid
// base currency. The excess over the round price is refunded and the cost is
// split with the buyer's upline.
func (e *Engine) BuyDuringSale(buyer models.Address, amount, paid decimal.Decimal) (Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return Receipt{}, ErrPaused
	}
	cur, err := e.current()
	if err != nil {
		return Receipt{}, err
	}
	if cur.kind != models.SaleRound {
		return Receipt{}, ErrNotSaleRound
	}
	if err := wholeUnits(amount, paid); err != nil {
		return Receipt{}, err
	}
	if !amount.IsPositive() {
		return Receipt{}, ErrZeroAmount
	}
	if amount.GreaterThan(cur.tokensLeft) {
		return Receipt{}, ErrSupplyExceeded
	}
	required := e.cfg.Pricing.Cost(amount, cur.price)
	if !required.IsPositive() {
		return Receipt{}, ErrDustAmount
	}
	if paid.LessThan(required) {
		return Receipt{}, ErrInsufficientPayment
	}

	split := referral.SaleRates.Split(required, e.referrals.Upline(buyer))

	// the payment reaches the marketplace before anything else moves
	if err := e.funds.Transfer(buyer, e.cfg.Self, paid); err != nil {
		return Receipt{}, err
	}

	cur.tokensLeft = cur.tokensLeft.Sub(amount)

	if err := e.release(buyer, amount, "sale tokens"); err != nil {
		cur.tokensLeft = cur.tokensLeft.Add(amount)
		e.pay(buyer, paid, "sale rollback")
		return Receipt{}, err
	}
	e.pay(split.Level1, split.Reward1, "level 1 reward")
	e.pay(split.Level2, split.Reward2, "level 2 reward")
	refund := paid.Sub(required)
	e.pay(buyer, refund, "refund")

	receipt := Receipt{
		RoundID:   cur.id,
		Seller:    e.cfg.Self,
		Amount:    amount,
		UnitPrice: cur.price,
		Paid:      paid,
		Required:  required,
		Refund:    refund,
		Proceeds:  split.Remainder,
		Split:     split,
	}

	log.WithFields(log.Fields{
		"round":  cur.id,
		"buyer":  buyer,
		"amount": amount,
		"value":  required,
	}).Debug("sale purchase")

	e.publish(purchaseEvent(buyer, receipt))
	return receipt, nil
}

func purchaseEvent(buyer models.Address, r Receipt) models.Purchase {
	return models.Purchase{
		RoundID:   r.RoundID,
		OrderID:   r.OrderID,
		Buyer:     buyer,
		Seller:    r.Seller,
		Amount:    r.Amount,
		UnitPrice: r.UnitPrice,
		Value:     r.Required,
		Level1:    r.Split.Level1,
		Reward1:   r.Split.Reward1,
		Level2:    r.Split.Level2,
		Reward2:   r.Split.Reward2,
	}
}
