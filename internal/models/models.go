package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address identifies an account on the token and base currency ledgers.
type Address string

// NoAddress is returned for absent upline levels.
const NoAddress Address = ""

// IsZero reports whether a is the "no address" sentinel.
func (a Address) IsZero() bool {
	return a == NoAddress
}

// RoundKind is either "sale" or "trade"
type RoundKind string

const (
	SaleRound  RoundKind = "sale"
	TradeRound RoundKind = "trade"
)

// Next returns the kind of the round that follows k.
func (k RoundKind) Next() RoundKind {
	if k == SaleRound {
		return TradeRound
	}
	return SaleRound
}

// User represents a registered account holder
type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Address returns the ledger account of the user.
func (u User) Address() Address {
	return Address(u.Username)
}

// Round is a snapshot of a sale or trade phase
type Round struct {
	ID          int             `json:"id"`
	Kind        RoundKind       `json:"kind"`
	StartTime   time.Time       `json:"start_time"`
	Price       decimal.Decimal `json:"price"`        // base units per whole token
	TokensLeft  decimal.Decimal `json:"tokens_left"`  // sale only
	TradeVolume decimal.Decimal `json:"trade_volume"` // trade only
	Orders      []Order         `json:"orders,omitempty"`
	Closed      bool            `json:"closed"`
}

// Order represents a sell order placed during a trade round
type Order struct {
	ID             int             `json:"id"`
	RoundID        int             `json:"round_id"`
	Seller         Address         `json:"seller"`
	Amount         decimal.Decimal `json:"amount"` // remaining escrow
	OriginalAmount decimal.Decimal `json:"original_amount"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	IsOpen         bool            `json:"is_open"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Upline is the two-level referrer chain of a user.
type Upline struct {
	Level1 Address `json:"level1"`
	Level2 Address `json:"level2"`
}
