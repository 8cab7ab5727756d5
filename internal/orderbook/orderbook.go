package orderbook

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/tokenmarket/internal/models"
	"github.com/xtrntr/tokenmarket/pkg/mathutil"
)

var (
	ErrZeroCost           = errors.New("order cost must be positive")
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderClosed        = errors.New("order is closed")
	ErrOrderAlreadyClosed = errors.New("order already closed")
	ErrNotOrderOwner      = errors.New("not the order owner")
	ErrSelfTrade          = errors.New("can't buy own order")
	ErrFillExceedsOrder   = errors.New("amount exceeds order remainder")
)

// Book holds the sell orders of one trade round. Orders are kept in creation
// order and are never removed: closed orders stay for history.
type Book struct {
	roundID int
	orders  []models.Order
}

// New creates an empty book for a trade round
func New(roundID int) *Book {
	return &Book{roundID: roundID, orders: []models.Order{}}
}

// Place appends a sell order and returns it. The caller is responsible
// for escrowing amount before calling Place.
func (b *Book) Place(seller models.Address, amount, totalCost decimal.Decimal, at time.Time) (models.Order, error) {
	if !totalCost.IsPositive() {
		return models.Order{}, ErrZeroCost
	}
	if !amount.IsPositive() {
		return models.Order{}, ErrZeroAmount
	}

	order := models.Order{
		ID:             len(b.orders),
		RoundID:        b.roundID,
		Seller:         seller,
		Amount:         amount,
		OriginalAmount: amount,
		TotalCost:      totalCost,
		IsOpen:         true,
		CreatedAt:      at,
	}
	b.orders = append(b.orders, order)
	return order, nil
}

// Get returns a copy of the order with the given id
func (b *Book) Get(id int) (models.Order, error) {
	if id < 0 || id >= len(b.orders) {
		return models.Order{}, ErrOrderNotFound
	}
	return b.orders[id], nil
}

// Quote validates a fill of amount by buyer and returns its base currency
// cost. It doesn't modify the book.
func (b *Book) Quote(id int, buyer models.Address, amount decimal.Decimal) (models.Order, decimal.Decimal, error) {
	order, err := b.Get(id)
	if err != nil {
		return models.Order{}, decimal.Zero, err
	}
	if !order.IsOpen {
		return models.Order{}, decimal.Zero, ErrOrderClosed
	}
	if order.Seller == buyer {
		return models.Order{}, decimal.Zero, ErrSelfTrade
	}
	if !amount.IsPositive() {
		return models.Order{}, decimal.Zero, ErrZeroAmount
	}
	if amount.GreaterThan(order.Amount) {
		return models.Order{}, decimal.Zero, ErrFillExceedsOrder
	}

	// price per unit is fixed at creation: totalCost/originalAmount
	required := mathutil.MulDiv(order.TotalCost, amount, order.OriginalAmount)
	return order, required, nil
}

// Fill decreases the order remainder by amount, closing it when exhausted.
// It must follow a successful Quote.
func (b *Book) Fill(id int, amount decimal.Decimal) (models.Order, error) {
	if id < 0 || id >= len(b.orders) {
		return models.Order{}, ErrOrderNotFound
	}
	order := &b.orders[id]
	if !order.IsOpen {
		return models.Order{}, ErrOrderClosed
	}
	if amount.GreaterThan(order.Amount) {
		return models.Order{}, ErrFillExceedsOrder
	}

	order.Amount = order.Amount.Sub(amount)
	if order.Amount.IsZero() {
		order.IsOpen = false
	}
	return *order, nil
}

// Unfill gives amount back to an order, reopening it. It reverts a Fill whose
// settlement failed.
func (b *Book) Unfill(id int, amount decimal.Decimal) error {
	if id < 0 || id >= len(b.orders) {
		return ErrOrderNotFound
	}
	order := &b.orders[id]
	order.Amount = order.Amount.Add(amount)
	order.IsOpen = true
	return nil
}

// Cancel closes the order of caller and returns the unsold remainder that
// has to be released from escrow.
func (b *Book) Cancel(id int, caller models.Address) (decimal.Decimal, error) {
	if id < 0 || id >= len(b.orders) {
		return decimal.Zero, ErrOrderNotFound
	}
	order := &b.orders[id]
	if order.Seller != caller {
		return decimal.Zero, ErrNotOrderOwner
	}
	if !order.IsOpen {
		return decimal.Zero, ErrOrderAlreadyClosed
	}
	return closeOrder(order), nil
}

// Closed describes an order force-closed by CloseAll.
type Closed struct {
	OrderID  int
	Seller   models.Address
	Returned decimal.Decimal
}

// CloseAll closes every open order in id order and returns what each seller
// gets back.
func (b *Book) CloseAll() []Closed {
	var closed []Closed
	for i := range b.orders {
		if !b.orders[i].IsOpen {
			continue
		}
		returned := closeOrder(&b.orders[i])
		closed = append(closed, Closed{
			OrderID:  b.orders[i].ID,
			Seller:   b.orders[i].Seller,
			Returned: returned,
		})
	}
	return closed
}

// Orders returns a copy of all the orders of the round
func (b *Book) Orders() []models.Order {
	orders := make([]models.Order, len(b.orders))
	copy(orders, b.orders)
	return orders
}

// OpenCount returns the number of orders still open.
func (b *Book) OpenCount() int {
	count := 0
	for _, o := range b.orders {
		if o.IsOpen {
			count++
		}
	}
	return count
}

// Escrowed returns the total amount still held for open orders.
func (b *Book) Escrowed() decimal.Decimal {
	total := decimal.Zero
	for _, o := range b.orders {
		if o.IsOpen {
			total = total.Add(o.Amount)
		}
	}
	return total
}

func closeOrder(order *models.Order) decimal.Decimal {
	returned := order.Amount
	order.Amount = decimal.Zero
	order.IsOpen = false
	return returned
}
