package models

import (
	"github.com/shopspring/decimal"
)

// EventType names a marketplace state change.
type EventType string

const (
	EventUserRegistered EventType = "user_registered"
	EventPurchase       EventType = "purchase"
	EventOrderPlaced    EventType = "order_placed"
	EventOrderCancelled EventType = "order_cancelled"
	EventRoundFinished  EventType = "round_finished"
	EventRoundStarted   EventType = "round_started"
	EventWithdrawal     EventType = "withdrawal"
	EventPauseChanged   EventType = "pause_changed"
)

// Event is emitted once per state change. Every event carries enough fields
// to reconstruct the action without querying the engine.
type Event interface {
	EventType() EventType
	// EventRound returns the round the event belongs to, 0 if none.
	EventRound() int
}

type UserRegistered struct {
	User     Address `json:"user"`
	Referrer Address `json:"referrer"`
}

func (UserRegistered) EventType() EventType { return EventUserRegistered }
func (UserRegistered) EventRound() int      { return 0 }

// Purchase is emitted for sale purchases and order fills alike. On sale
// purchases the seller of record is the marketplace itself.
type Purchase struct {
	RoundID   int             `json:"round_id"`
	OrderID   *int            `json:"order_id,omitempty"`
	Buyer     Address         `json:"buyer"`
	Seller    Address         `json:"seller"`
	Amount    decimal.Decimal `json:"amount"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Value     decimal.Decimal `json:"value"`
	Level1    Address         `json:"level1,omitempty"`
	Reward1   decimal.Decimal `json:"reward1"`
	Level2    Address         `json:"level2,omitempty"`
	Reward2   decimal.Decimal `json:"reward2"`
}

func (Purchase) EventType() EventType { return EventPurchase }
func (e Purchase) EventRound() int    { return e.RoundID }

type OrderPlaced struct {
	RoundID   int             `json:"round_id"`
	OrderID   int             `json:"order_id"`
	Seller    Address         `json:"seller"`
	Amount    decimal.Decimal `json:"amount"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

func (OrderPlaced) EventType() EventType { return EventOrderPlaced }
func (e OrderPlaced) EventRound() int    { return e.RoundID }

// OrderCancelled is emitted both for explicit cancellations and for orders
// force-closed at the end of a trade round.
type OrderCancelled struct {
	RoundID  int             `json:"round_id"`
	OrderID  int             `json:"order_id"`
	Seller   Address         `json:"seller"`
	Returned decimal.Decimal `json:"returned"`
	Forced   bool            `json:"forced"`
}

func (OrderCancelled) EventType() EventType { return EventOrderCancelled }
func (e OrderCancelled) EventRound() int    { return e.RoundID }

type RoundFinished struct {
	RoundID     int             `json:"round_id"`
	Kind        RoundKind       `json:"kind"`
	Price       decimal.Decimal `json:"price"`
	TokensLeft  decimal.Decimal `json:"tokens_left"`
	TradeVolume decimal.Decimal `json:"trade_volume"`
}

func (RoundFinished) EventType() EventType { return EventRoundFinished }
func (e RoundFinished) EventRound() int    { return e.RoundID }

type RoundStarted struct {
	RoundID    int             `json:"round_id"`
	Kind       RoundKind       `json:"kind"`
	PrevPrice  decimal.Decimal `json:"prev_price"`
	Price      decimal.Decimal `json:"price"`
	TokensLeft decimal.Decimal `json:"tokens_left"`
}

func (RoundStarted) EventType() EventType { return EventRoundStarted }
func (e RoundStarted) EventRound() int    { return e.RoundID }

type Withdrawal struct {
	To     Address         `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

func (Withdrawal) EventType() EventType { return EventWithdrawal }
func (Withdrawal) EventRound() int      { return 0 }

type PauseChanged struct {
	Paused bool `json:"paused"`
}

func (PauseChanged) EventType() EventType { return EventPauseChanged }
func (PauseChanged) EventRound() int      { return 0 }

// Envelope is the wire form of an event, used by the journal and the stream.
type Envelope struct {
	Type    EventType `json:"type"`
	RoundID int       `json:"round_id"`
	Payload Event     `json:"payload"`
}

// Wrap builds the envelope of e.
func Wrap(e Event) Envelope {
	return Envelope{Type: e.EventType(), RoundID: e.EventRound(), Payload: e}
}
