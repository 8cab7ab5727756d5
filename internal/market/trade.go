package market

import (
	"errors"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/xtrntr/tokenmarket/internal/models"
	"github.com/xtrntr/tokenmarket/internal/referral"
)

func (e *Engine) tradeRound() (*round, error) {
	cur, err := e.current()
	if err != nil {
		return nil, err
	}
	if cur.kind != models.TradeRound {
		return nil, ErrNotTradeRound
	}
	return cur, nil
}

// PlaceOrder escrows amount tokens of seller and lists them for totalCost.
func (e *Engine) PlaceOrder(seller models.Address, amount, totalCost decimal.Decimal) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return 0, ErrPaused
	}
	cur, err := e.tradeRound()
	if err != nil {
		return 0, err
	}
	if err := wholeUnits(amount, totalCost); err != nil {
		return 0, err
	}
	if !totalCost.IsPositive() {
		return 0, ErrZeroCost
	}
	if !amount.IsPositive() {
		return 0, ErrZeroAmount
	}

	if err := e.tokens.Transfer(seller, e.cfg.Self, amount); err != nil {
		return 0, err
	}
	order, err := cur.book.Place(seller, amount, totalCost, e.now())
	if err != nil {
		// unreachable after the checks above, give the escrow back anyway
		if rerr := e.release(seller, amount, "escrow"); rerr != nil {
			return 0, errors.Join(err, rerr)
		}
		return 0, err
	}

	log.WithFields(log.Fields{
		"round":  cur.id,
		"order":  order.ID,
		"seller": seller,
		"amount": amount,
		"cost":   totalCost,
	}).Debug("order placed")

	e.publish(models.OrderPlaced{
		RoundID:   cur.id,
		OrderID:   order.ID,
		Seller:    seller,
		Amount:    amount,
		TotalCost: totalCost,
	})
	return order.ID, nil
}

// CancelOrder closes an order of caller and returns the unsold tokens.
func (e *Engine) CancelOrder(caller models.Address, orderID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.tradeRound()
	if err != nil {
		return err
	}
	returned, err := cur.book.Cancel(orderID, caller)
	if err != nil {
		return err
	}
	if err := e.release(caller, returned, "escrow"); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"round":    cur.id,
		"order":    orderID,
		"returned": returned,
	}).Debug("order cancelled")

	e.publish(models.OrderCancelled{
		RoundID:  cur.id,
		OrderID:  orderID,
		Seller:   caller,
		Returned: returned,
	})
	return nil
}

// BuyOrder fills amount tokens of an open order. The seller receives the cost
// minus the trade referral cut; the cut goes to the seller's upline, or stays
// with the marketplace for absent levels.
func (e *Engine) BuyOrder(buyer models.Address, orderID int, amount, paid decimal.Decimal) (Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return Receipt{}, ErrPaused
	}
	cur, err := e.tradeRound()
	if err != nil {
		return Receipt{}, err
	}
	if err := wholeUnits(amount, paid); err != nil {
		return Receipt{}, err
	}
	order, required, err := cur.book.Quote(orderID, buyer, amount)
	if err != nil {
		return Receipt{}, err
	}
	if !required.IsPositive() {
		return Receipt{}, ErrDustAmount
	}
	if paid.LessThan(required) {
		return Receipt{}, ErrInsufficientPayment
	}

	split := referral.TradeRates.Split(required, e.referrals.Upline(order.Seller))
	proceeds := required.Sub(referral.TradeRates.Fee(required))

	if err := e.funds.Transfer(buyer, e.cfg.Self, paid); err != nil {
		return Receipt{}, err
	}

	if _, err := cur.book.Fill(orderID, amount); err != nil {
		e.pay(buyer, paid, "fill rollback")
		return Receipt{}, err
	}
	cur.tradeVolume = cur.tradeVolume.Add(required)

	if err := e.release(buyer, amount, "escrow"); err != nil {
		cur.book.Unfill(orderID, amount)
		cur.tradeVolume = cur.tradeVolume.Sub(required)
		e.pay(buyer, paid, "fill rollback")
		return Receipt{}, err
	}
	e.pay(order.Seller, proceeds, "seller proceeds")
	e.pay(split.Level1, split.Reward1, "level 1 reward")
	e.pay(split.Level2, split.Reward2, "level 2 reward")
	refund := paid.Sub(required)
	e.pay(buyer, refund, "refund")

	id := orderID
	receipt := Receipt{
		RoundID:   cur.id,
		OrderID:   &id,
		Seller:    order.Seller,
		Amount:    amount,
		UnitPrice: e.cfg.Pricing.UnitPrice(order.TotalCost, order.OriginalAmount),
		Paid:      paid,
		Required:  required,
		Refund:    refund,
		Proceeds:  proceeds,
		Split:     split,
	}

	log.WithFields(log.Fields{
		"round":  cur.id,
		"order":  orderID,
		"buyer":  buyer,
		"amount": amount,
		"value":  required,
	}).Debug("order filled")

	e.publish(purchaseEvent(buyer, receipt))
	return receipt, nil
}
