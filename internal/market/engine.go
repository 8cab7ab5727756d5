package market

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/xtrntr/tokenmarket/internal/ledger"
	"github.com/xtrntr/tokenmarket/internal/models"
	"github.com/xtrntr/tokenmarket/internal/orderbook"
	"github.com/xtrntr/tokenmarket/internal/pricing"
	"github.com/xtrntr/tokenmarket/internal/referral"
	"github.com/xtrntr/tokenmarket/pkg/mathutil"
)

// DefaultRoundDuration is the minimum lifetime of a round, 3 days.
const DefaultRoundDuration = 72 * time.Hour

// Config holds the static parameters of the engine
type Config struct {
	// Self is the marketplace account holding sale supply, escrow and revenue.
	Self models.Address
	// Owner may open the marketplace, pause it and withdraw revenue.
	Owner         models.Address
	RoundDuration time.Duration
	Pricing       pricing.Params
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces time.Now as the engine clock.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSink sets where events are published.
func WithSink(sink Sink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

// WithRegistry shares an existing referral registry with the engine.
func WithRegistry(r *referral.Registry) Option {
	return func(e *Engine) {
		e.referrals = r
	}
}

type round struct {
	id          int
	kind        models.RoundKind
	startTime   time.Time
	price       decimal.Decimal
	tokensLeft  decimal.Decimal
	tradeVolume decimal.Decimal
	book        *orderbook.Book
	closed      bool
}

func (r *round) snapshot() models.Round {
	snap := models.Round{
		ID:          r.id,
		Kind:        r.kind,
		StartTime:   r.startTime,
		Price:       r.price,
		TokensLeft:  r.tokensLeft,
		TradeVolume: r.tradeVolume,
		Closed:      r.closed,
	}
	if r.book != nil {
		snap.Orders = r.book.Orders()
	}
	return snap
}

// Engine alternates sale and trade rounds over a token ledger. Every public
// method runs under a single lock: one action completes before the next one
// starts.
type Engine struct {
	mu sync.Mutex

	cfg    Config
	tokens ledger.Ledger
	issuer ledger.Issuer
	funds  ledger.Ledger

	referrals *referral.Registry
	rounds    []*round // rounds[i].id == i+1
	paused    bool

	now  func() time.Time
	sink Sink
}

// NewEngine binds an engine to the token ledger, the issuance capability
// granted to cfg.Self and the base currency ledger.
func NewEngine(cfg Config, tokens ledger.Ledger, issuer ledger.Issuer, funds ledger.Ledger, opts ...Option) *Engine {
	if cfg.RoundDuration <= 0 {
		cfg.RoundDuration = DefaultRoundDuration
	}
	if cfg.Pricing == (pricing.Params{}) {
		cfg.Pricing = pricing.DefaultParams()
	}

	e := &Engine{
		cfg:       cfg,
		tokens:    tokens,
		issuer:    issuer,
		funds:     funds,
		referrals: referral.NewRegistry(),
		now:       time.Now,
		sink:      LogSink,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) current() (*round, error) {
	if len(e.rounds) == 0 {
		return nil, ErrNotInitialized
	}
	return e.rounds[len(e.rounds)-1], nil
}

func (e *Engine) round(id int) (*round, error) {
	if id < 1 || id > len(e.rounds) {
		return nil, ErrRoundNotFound
	}
	return e.rounds[id-1], nil
}

func (e *Engine) openRound(kind models.RoundKind, price, tokensLeft decimal.Decimal) *round {
	r := &round{
		id:          len(e.rounds) + 1,
		kind:        kind,
		startTime:   e.now(),
		price:       price,
		tokensLeft:  decimal.Zero,
		tradeVolume: decimal.Zero,
	}
	if kind == models.SaleRound {
		r.tokensLeft = tokensLeft
	} else {
		r.book = orderbook.New(r.id)
	}
	e.rounds = append(e.rounds, r)
	return r
}

func (e *Engine) publish(event models.Event) {
	if e.sink != nil {
		e.sink.Publish(event)
	}
}

// pay moves base currency out of the marketplace account. The marketplace
// always holds what it pays out, so a failure means the funds ledger is
// broken and is only logged.
func (e *Engine) pay(to models.Address, amount decimal.Decimal, reason string) {
	if to.IsZero() || !amount.IsPositive() {
		return
	}
	if err := e.funds.Transfer(e.cfg.Self, to, amount); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"to":     to,
			"amount": amount,
		}).Errorf("failed to pay %s", reason)
	}
}

// wholeUnits rejects amounts carrying a fraction of the smallest unit.
// Ledgers only move integers, so these would fail halfway through a
// settlement.
func wholeUnits(amounts ...decimal.Decimal) error {
	for _, amount := range amounts {
		if !mathutil.IsIntegral(amount) {
			return ErrInvalidAmount
		}
	}
	return nil
}

// release moves tokens out of marketplace custody.
func (e *Engine) release(to models.Address, amount decimal.Decimal, reason string) error {
	if !amount.IsPositive() {
		return nil
	}
	if err := e.tokens.Transfer(e.cfg.Self, to, amount); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"to":     to,
			"amount": amount,
		}).Errorf("failed to release %s", reason)
		return err
	}
	return nil
}

// Status summarizes the engine state
type Status struct {
	Initialized bool             `json:"initialized"`
	Paused      bool             `json:"paused"`
	RoundID     int              `json:"round_id"`
	Kind        models.RoundKind `json:"kind,omitempty"`
	Deadline    time.Time        `json:"deadline"`
	OpenOrders  int              `json:"open_orders"`
	Escrowed    decimal.Decimal  `json:"escrowed"`
	Custody     decimal.Decimal  `json:"custody"`
	Revenue     decimal.Decimal  `json:"revenue"`
	Referrals   int              `json:"referrals"`
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Status{
		Paused:    e.paused,
		Escrowed:  decimal.Zero,
		Custody:   e.tokens.BalanceOf(e.cfg.Self),
		Revenue:   e.funds.BalanceOf(e.cfg.Self),
		Referrals: e.referrals.Len(),
	}
	cur, err := e.current()
	if err != nil {
		return s
	}
	s.Initialized = true
	s.RoundID = cur.id
	s.Kind = cur.kind
	s.Deadline = cur.startTime.Add(e.cfg.RoundDuration)
	if cur.book != nil {
		s.OpenOrders = cur.book.OpenCount()
		s.Escrowed = cur.book.Escrowed()
	}
	return s
}

// CurrentRound returns a snapshot of the running round.
func (e *Engine) CurrentRound() (models.Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.current()
	if err != nil {
		return models.Round{}, err
	}
	return cur.snapshot(), nil
}

// Round returns a snapshot of any round, running or closed.
func (e *Engine) Round(id int) (models.Round, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.round(id)
	if err != nil {
		return models.Round{}, err
	}
	return r.snapshot(), nil
}

// Order returns an order of a current or past trade round.
func (e *Engine) Order(roundID, orderID int) (models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.round(roundID)
	if err != nil {
		return models.Order{}, err
	}
	if r.book == nil {
		return models.Order{}, ErrOrderNotFound
	}
	return r.book.Get(orderID)
}

// CurrentOrders returns all the orders of the running trade round.
func (e *Engine) CurrentOrders() ([]models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, err := e.current()
	if err != nil {
		return nil, err
	}
	if cur.book == nil {
		return nil, ErrNotTradeRound
	}
	return cur.book.Orders(), nil
}

// RoundOrders returns all the orders of a trade round.
func (e *Engine) RoundOrders(roundID int) ([]models.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.round(roundID)
	if err != nil {
		return nil, err
	}
	if r.book == nil {
		return nil, ErrNotTradeRound
	}
	return r.book.Orders(), nil
}

func (e *Engine) Upline(user models.Address) models.Upline {
	return e.referrals.Upline(user)
}

func (e *Engine) HasReferrer(user models.Address) bool {
	return e.referrals.HasReferrer(user)
}
