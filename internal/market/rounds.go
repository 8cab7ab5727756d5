package market

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/xtrntr/tokenmarket/internal/models"
)

// ChangeRound closes the running round once its duration elapsed and opens
// the next one of the other kind. Anyone may call it.
//
// Closing a sale round burns the unsold supply. Closing a trade round gives
// the escrow of every open order back, in order id order, then prices the
// next sale round and mints its supply. The change stands even if some
// escrow could not be returned: those failures come back joined in the error,
// next to the new round.
func (e *Engine) ChangeRound() (models.Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.current()
	if err != nil {
		return models.Round{}, err
	}
	if e.now().Before(cur.startTime.Add(e.cfg.RoundDuration)) {
		return models.Round{}, ErrRoundTooYoung
	}

	var (
		next      *round
		escrowErr error
	)
	switch cur.kind {
	case models.SaleRound:
		next, err = e.closeSale(cur)
	default:
		next, escrowErr, err = e.closeTrade(cur)
	}
	if err != nil {
		return models.Round{}, err
	}

	log.WithFields(log.Fields{
		"closed": cur.id,
		"round":  next.id,
		"kind":   next.kind,
		"price":  next.price,
		"supply": next.tokensLeft,
	}).Info("round changed")

	e.publish(models.RoundFinished{
		RoundID:     cur.id,
		Kind:        cur.kind,
		Price:       cur.price,
		TokensLeft:  cur.tokensLeft,
		TradeVolume: cur.tradeVolume,
	})
	e.publish(models.RoundStarted{
		RoundID:    next.id,
		Kind:       next.kind,
		PrevPrice:  cur.price,
		Price:      next.price,
		TokensLeft: next.tokensLeft,
	})

	if escrowErr != nil {
		return next.snapshot(), fmt.Errorf("round %d closed with unreturned escrow: %w", cur.id, escrowErr)
	}
	return next.snapshot(), nil
}

func (e *Engine) closeSale(cur *round) (*round, error) {
	if cur.tokensLeft.IsPositive() {
		if err := e.issuer.Burn(e.cfg.Self, cur.tokensLeft); err != nil {
			return nil, err
		}
	}
	cur.closed = true
	return e.openRound(cur.kind.Next(), cur.price, decimal.Zero), nil
}

func (e *Engine) closeTrade(cur *round) (next *round, escrowErr error, err error) {
	prevSale := cur
	if cur.id > 1 {
		prevSale = e.rounds[cur.id-2]
	}
	price := e.cfg.Pricing.NextPrice(prevSale.price)
	supply := e.cfg.Pricing.NextSupply(cur.tradeVolume, price)

	if e.tokens.BalanceOf(e.cfg.Self).LessThan(cur.book.Escrowed()) {
		return nil, nil, ErrEscrowShortfall
	}
	// minting is the last step that can fail the change, do it before
	// closing anything
	if supply.IsPositive() {
		if err = e.issuer.Mint(e.cfg.Self, supply); err != nil {
			return nil, nil, err
		}
	}

	for _, c := range cur.book.CloseAll() {
		if err := e.release(c.Seller, c.Returned, "escrow"); err != nil {
			escrowErr = errors.Join(escrowErr, fmt.Errorf("order %d: %w", c.OrderID, err))
			continue
		}
		e.publish(models.OrderCancelled{
			RoundID:  cur.id,
			OrderID:  c.OrderID,
			Seller:   c.Seller,
			Returned: c.Returned,
			Forced:   true,
		})
	}
	cur.closed = true
	return e.openRound(cur.kind.Next(), price, supply), escrowErr, nil
}
