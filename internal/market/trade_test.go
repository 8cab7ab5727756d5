package market

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/tokenmarket/internal/ledger"
	"github.com/xtrntr/tokenmarket/internal/models"
	"github.com/xtrntr/tokenmarket/internal/pricing"
	"github.com/xtrntr/tokenmarket/pkg/mathutil"
)

// newTradeFixture opens the marketplace, lets alice and bob buy 100 tokens
// each and moves to the first trade round.
func newTradeFixture(t *testing.T) *fixture {
	f := newOpenFixture(t)
	for _, buyer := range []models.Address{alice, bob} {
		_, err := f.engine.BuyDuringSale(buyer, tok(100), eth(t, "0.001"))
		require.NoError(t, err)
	}
	f.nextRound(t)
	return f
}

func TestEngine_PlaceOrder(t *testing.T) {
	f := newOpenFixture(t)

	_, err := f.engine.PlaceOrder(alice, tok(1), eth(t, "1"))
	assert.ErrorIs(t, err, ErrNotTradeRound)

	f = newTradeFixture(t)

	tests := []struct {
		name        string
		seller      models.Address
		amount      decimal.Decimal
		cost        decimal.Decimal
		expectID    int
		expectError error
	}{
		{"Success", alice, tok(50), eth(t, "0.01"), 0, nil},
		{"ZeroCost", alice, tok(10), decimal.Zero, 0, ErrZeroCost},
		{"ZeroAmount", alice, decimal.Zero, eth(t, "0.01"), 0, ErrZeroAmount},
		{"FractionalAmount", alice, tok(10).Add(decimal.New(5, -1)), eth(t, "0.01"), 0, ErrInvalidAmount},
		{"FractionalCost", alice, tok(10), eth(t, "0.01").Add(decimal.New(5, -1)), 0, ErrInvalidAmount},
		{"NotEnoughTokens", carol, tok(10), eth(t, "0.01"), 0, ledger.ErrInsufficientBalance},
		{"Second", bob, tok(100), eth(t, "0.05"), 1, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := f.engine.PlaceOrder(tt.seller, tt.amount, tt.cost)
			if tt.expectError != nil {
				assert.ErrorIs(t, err, tt.expectError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectID, id)
		})
	}

	// escrow
	assertAmount(t, tok(50), f.tokens.BalanceOf(alice))
	assert.True(t, f.tokens.BalanceOf(bob).IsZero())
	assertAmount(t, tok(150), f.tokens.BalanceOf(mp))

	orders, err := f.engine.CurrentOrders()
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, alice, orders[0].Seller)
	assert.True(t, orders[0].IsOpen)
	assertAmount(t, eth(t, "0.01"), orders[0].TotalCost)

	ev, ok := f.lastEvent().(models.OrderPlaced)
	require.True(t, ok)
	assert.Equal(t, models.OrderPlaced{RoundID: 2, OrderID: 1, Seller: bob, Amount: tok(100), TotalCost: eth(t, "0.05")}, ev)
}

func TestEngine_CancelOrder(t *testing.T) {
	f := newTradeFixture(t)

	_, err := f.engine.PlaceOrder(alice, tok(50), eth(t, "0.01"))
	require.NoError(t, err)
	_, err = f.engine.PlaceOrder(alice, tok(50), eth(t, "0.01"))
	require.NoError(t, err)

	// untouched order: everything comes back
	assert.ErrorIs(t, f.engine.CancelOrder(bob, 0), ErrNotOrderOwner)
	require.NoError(t, f.engine.CancelOrder(alice, 0))
	assertAmount(t, tok(50), f.tokens.BalanceOf(alice))
	assert.ErrorIs(t, f.engine.CancelOrder(alice, 0), ErrOrderAlreadyClosed)

	// partially filled order: only the remainder comes back
	_, err = f.engine.BuyOrder(bob, 1, tok(20), eth(t, "0.5"))
	require.NoError(t, err)
	require.NoError(t, f.engine.CancelOrder(alice, 1))
	assertAmount(t, tok(80), f.tokens.BalanceOf(alice))
	assertAmount(t, tok(120), f.tokens.BalanceOf(bob))
	assert.True(t, f.tokens.BalanceOf(mp).IsZero())

	order, err := f.engine.Order(2, 1)
	require.NoError(t, err)
	assert.False(t, order.IsOpen)
	assert.True(t, order.Amount.IsZero())
	assertAmount(t, tok(50), order.OriginalAmount)

	ev, ok := f.lastEvent().(models.OrderCancelled)
	require.True(t, ok)
	assert.Equal(t, 1, ev.OrderID)
	assertAmount(t, tok(30), ev.Returned)
	assert.False(t, ev.Forced)
}

func TestEngine_BuyOrder(t *testing.T) {
	f := newTradeFixture(t)
	// alice sells through carol's referral, carol has no referrer
	require.NoError(t, f.engine.RegisterUser(alice, carol))

	_, err := f.engine.PlaceOrder(alice, tok(50), eth(t, "0.01"))
	require.NoError(t, err)
	marketBefore := f.funds.BalanceOf(mp)
	aliceBefore := f.funds.BalanceOf(alice)

	// partial fill: 20 of 50 tokens
	receipt, err := f.engine.BuyOrder(bob, 0, tok(20), eth(t, "0.5"))
	require.NoError(t, err)

	required := eth(t, "0.004")
	share := mathutil.Bps(required, 250)
	assertAmount(t, required, receipt.Required)
	assertAmount(t, eth(t, "0.5").Sub(required), receipt.Refund)
	assertAmount(t, required.Sub(share).Sub(share), receipt.Proceeds)
	assertAmount(t, eth(t, "0.0002"), receipt.UnitPrice)

	assertAmount(t, tok(120), f.tokens.BalanceOf(bob))
	assertAmount(t, aliceBefore.Add(receipt.Proceeds), f.funds.BalanceOf(alice))
	assertAmount(t, eth(t, "1").Add(share), f.funds.BalanceOf(carol))
	// the missing level 2 share stays with the marketplace
	assertAmount(t, marketBefore.Add(share), f.funds.BalanceOf(mp))

	order, err := f.engine.Order(2, 0)
	require.NoError(t, err)
	assert.True(t, order.IsOpen)
	assertAmount(t, tok(30), order.Amount)

	ev, ok := f.lastEvent().(models.Purchase)
	require.True(t, ok)
	assert.Equal(t, alice, ev.Seller)
	assert.Equal(t, bob, ev.Buyer)
	require.NotNil(t, ev.OrderID)
	assert.Equal(t, 0, *ev.OrderID)
	assert.Equal(t, carol, ev.Level1)

	// full remainder closes the order
	_, err = f.engine.BuyOrder(dave, 0, tok(30), eth(t, "0.006"))
	require.NoError(t, err)
	order, _ = f.engine.Order(2, 0)
	assert.False(t, order.IsOpen)
	assert.True(t, order.Amount.IsZero())
	assertAmount(t, tok(30), f.tokens.BalanceOf(dave))

	round, _ := f.engine.CurrentRound()
	assertAmount(t, eth(t, "0.01"), round.TradeVolume)
}

func TestEngine_BuyOrderRejections(t *testing.T) {
	f := newTradeFixture(t)
	_, err := f.engine.PlaceOrder(alice, tok(50), eth(t, "0.01"))
	require.NoError(t, err)
	_, err = f.engine.PlaceOrder(alice, tok(10), eth(t, "0.01"))
	require.NoError(t, err)
	require.NoError(t, f.engine.CancelOrder(alice, 1))

	tests := []struct {
		name        string
		buyer       models.Address
		orderID     int
		amount      decimal.Decimal
		paid        decimal.Decimal
		expectError error
	}{
		{"OrderClosed", bob, 1, tok(1), eth(t, "1"), ErrOrderClosed},
		{"OrderNotFound", bob, 9, tok(1), eth(t, "1"), ErrOrderNotFound},
		{"SelfTrade", alice, 0, tok(1), eth(t, "1"), ErrSelfTrade},
		{"FillExceedsOrder", bob, 0, tok(51), eth(t, "1"), ErrFillExceedsOrder},
		{"InsufficientPayment", bob, 0, tok(50), eth(t, "0.009"), ErrInsufficientPayment},
		{"Dust", bob, 0, decimal.NewFromInt(1), eth(t, "1"), ErrDustAmount},
		{"FractionalAmount", bob, 0, tok(10).Add(decimal.New(5, -1)), eth(t, "0.5"), ErrInvalidAmount},
		{"FractionalPayment", bob, 0, tok(10), eth(t, "0.5").Add(decimal.New(5, -1)), ErrInvalidAmount},
		{"LedgerBalance", bob, 0, tok(50), eth(t, "5"), ledger.ErrInsufficientBalance},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := f.funds.BalanceOf(tt.buyer)
			_, err := f.engine.BuyOrder(tt.buyer, tt.orderID, tt.amount, tt.paid)
			assert.ErrorIs(t, err, tt.expectError)
			assertAmount(t, before, f.funds.BalanceOf(tt.buyer))

			order, _ := f.engine.Order(2, 0)
			assertAmount(t, tok(50), order.Amount)
		})
	}

	round, _ := f.engine.CurrentRound()
	assert.True(t, round.TradeVolume.IsZero())
}

func TestEngine_TradeRoundClose(t *testing.T) {
	f := newTradeFixture(t)
	require.NoError(t, f.engine.RegisterUser(bob, alice))

	_, err := f.engine.PlaceOrder(alice, tok(50), eth(t, "0.01"))
	require.NoError(t, err)
	_, err = f.engine.PlaceOrder(bob, tok(40), eth(t, "0.04"))
	require.NoError(t, err)
	_, err = f.engine.BuyOrder(carol, 0, tok(50), eth(t, "0.01"))
	require.NoError(t, err)
	_, err = f.engine.BuyOrder(dave, 1, tok(10), eth(t, "0.01"))
	require.NoError(t, err)

	volume := eth(t, "0.02")
	events := len(f.events)

	sale := f.nextRound(t)
	assert.Equal(t, 3, sale.ID)
	assert.Equal(t, models.SaleRound, sale.Kind)

	params := pricing.DefaultParams()
	price := params.NextPrice(eth(t, "0.00001"))
	assertAmount(t, eth(t, "0.0000143"), price)
	assertAmount(t, price, sale.Price)
	supply := params.NextSupply(volume, price)
	assertAmount(t, supply, sale.TokensLeft)
	assertAmount(t, supply, f.tokens.BalanceOf(mp))

	// bob's unsold 30 tokens came back
	assertAmount(t, tok(90), f.tokens.BalanceOf(bob))

	trade, err := f.engine.Round(2)
	require.NoError(t, err)
	assert.True(t, trade.Closed)
	assertAmount(t, volume, trade.TradeVolume)
	for _, o := range trade.Orders {
		assert.False(t, o.IsOpen)
	}

	orders, err := f.engine.RoundOrders(2)
	require.NoError(t, err)
	assert.Len(t, orders, 2)
	_, err = f.engine.RoundOrders(1)
	assert.ErrorIs(t, err, ErrNotTradeRound)
	_, err = f.engine.CurrentOrders()
	assert.ErrorIs(t, err, ErrNotTradeRound)
	_, err = f.engine.Order(1, 0)
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = f.engine.Round(9)
	assert.ErrorIs(t, err, ErrRoundNotFound)

	closeEvents := f.events[events:]
	require.Len(t, closeEvents, 3)
	forced, ok := closeEvents[0].(models.OrderCancelled)
	require.True(t, ok)
	assert.True(t, forced.Forced)
	assert.Equal(t, bob, forced.Seller)
	assertAmount(t, tok(30), forced.Returned)

	finished, ok := closeEvents[1].(models.RoundFinished)
	require.True(t, ok)
	assert.Equal(t, models.TradeRound, finished.Kind)
	assertAmount(t, volume, finished.TradeVolume)

	started, ok := closeEvents[2].(models.RoundStarted)
	require.True(t, ok)
	assertAmount(t, price, started.Price)

	// the new supply is for sale at the new price
	_, err = f.engine.BuyDuringSale(carol, supply, eth(t, "0.5"))
	require.NoError(t, err)

	status := f.engine.Status()
	assert.True(t, status.Initialized)
	assert.Equal(t, 3, status.RoundID)
	assert.Equal(t, sale.StartTime.Add(roundTime), status.Deadline)
}

func TestEngine_CancelOutsideTradeRound(t *testing.T) {
	f := newOpenFixture(t)
	assert.ErrorIs(t, f.engine.CancelOrder(alice, 0), ErrNotTradeRound)

	_, err := f.engine.BuyOrder(alice, 0, tok(1), eth(t, "1"))
	assert.ErrorIs(t, err, ErrNotTradeRound)
}

func TestEngine_BuyOrderRollback(t *testing.T) {
	f := newTradeFixture(t)
	_, err := f.engine.PlaceOrder(alice, tok(50), eth(t, "0.01"))
	require.NoError(t, err)
	fundsBefore := f.funds.BalanceOf(bob)
	marketBefore := f.funds.BalanceOf(mp)

	// the escrow can't reach bob, the fill is undone
	f.flaky.failTo = bob
	_, err = f.engine.BuyOrder(bob, 0, tok(10), eth(t, "0.5"))
	assert.ErrorIs(t, err, errTransferRefused)

	assertAmount(t, fundsBefore, f.funds.BalanceOf(bob))
	assertAmount(t, marketBefore, f.funds.BalanceOf(mp))
	assertAmount(t, tok(100), f.tokens.BalanceOf(bob))
	assertAmount(t, tok(50), f.tokens.BalanceOf(mp))

	order, err := f.engine.Order(2, 0)
	require.NoError(t, err)
	assert.True(t, order.IsOpen)
	assertAmount(t, tok(50), order.Amount)

	round, _ := f.engine.CurrentRound()
	assert.True(t, round.TradeVolume.IsZero())
	_, ok := f.lastEvent().(models.OrderPlaced)
	assert.True(t, ok, "no purchase event")

	// once the ledger recovers the same order fills normally
	f.flaky.failTo = models.NoAddress
	_, err = f.engine.BuyOrder(bob, 0, tok(50), eth(t, "0.01"))
	require.NoError(t, err)
	order, _ = f.engine.Order(2, 0)
	assert.False(t, order.IsOpen)
}

func TestEngine_TradeCloseEscrowFailures(t *testing.T) {
	f := newTradeFixture(t)
	_, err := f.engine.PlaceOrder(alice, tok(50), eth(t, "0.01"))
	require.NoError(t, err)
	_, err = f.engine.PlaceOrder(bob, tok(40), eth(t, "0.01"))
	require.NoError(t, err)

	f.flaky.failTo = alice
	f.clock.Advance(roundTime)
	sale, err := f.engine.ChangeRound()
	require.Error(t, err)
	assert.ErrorIs(t, err, errTransferRefused)

	// the round changed anyway and bob got his escrow back
	assert.Equal(t, 3, sale.ID)
	assert.Equal(t, models.SaleRound, sale.Kind)
	assertAmount(t, tok(100), f.tokens.BalanceOf(bob))
	assertAmount(t, tok(50), f.tokens.BalanceOf(alice))

	forced, ok := f.events[len(f.events)-3].(models.OrderCancelled)
	require.True(t, ok)
	assert.Equal(t, bob, forced.Seller)
}

func TestEngine_TradeCloseEscrowShortfall(t *testing.T) {
	f := newTradeFixture(t)
	_, err := f.engine.PlaceOrder(alice, tok(50), eth(t, "0.01"))
	require.NoError(t, err)

	// custody loses tokens outside the engine
	require.NoError(t, f.tokens.Transfer(mp, carol, tok(1)))

	f.clock.Advance(roundTime)
	_, err = f.engine.ChangeRound()
	assert.ErrorIs(t, err, ErrEscrowShortfall)

	round, err := f.engine.CurrentRound()
	require.NoError(t, err)
	assert.Equal(t, 2, round.ID)
	order, _ := f.engine.Order(2, 0)
	assert.True(t, order.IsOpen)
}
