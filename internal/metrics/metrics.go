package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xtrntr/tokenmarket/internal/market"
	"github.com/xtrntr/tokenmarket/internal/models"
	"github.com/xtrntr/tokenmarket/pkg/mathutil"
)

const (
	// Namespace is shared by all the metrics of the marketplace.
	Namespace = "tokenmarket"
)

// Metrics counts marketplace events. It is fed as an engine sink.
type Metrics struct {
	decimals int32

	Purchases      *prometheus.CounterVec
	Volume         *prometheus.CounterVec
	Rewards        *prometheus.CounterVec
	OrdersPlaced   prometheus.Counter
	OrdersCanceled *prometheus.CounterVec
	RoundsFinished *prometheus.CounterVec
	Registrations  prometheus.Counter
}

// New creates the counters. Values are reported in whole base currency
// units, scaled down by baseDecimals.
func New(baseDecimals int32) *Metrics {
	return &Metrics{
		decimals: baseDecimals,
		Purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "purchases_total",
			Help:      "Number of purchases by round kind.",
		}, []string{"kind"}),
		Volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "volume_total",
			Help:      "Base currency spent on purchases by round kind.",
		}, []string{"kind"}),
		Rewards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "referral_rewards_total",
			Help:      "Base currency paid to referrers by level.",
		}, []string{"level"}),
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "orders_placed_total",
			Help:      "Number of sell orders placed.",
		}),
		OrdersCanceled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "orders_cancelled_total",
			Help:      "Number of sell orders cancelled, forced at round end or not.",
		}, []string{"forced"}),
		RoundsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rounds_finished_total",
			Help:      "Number of rounds closed by kind.",
		}, []string{"kind"}),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "referral_registrations_total",
			Help:      "Number of referral edges registered.",
		}),
	}
}

// Register adds the counters and a gauge collector over engine to reg.
func (m *Metrics) Register(reg prometheus.Registerer, engine *market.Engine) error {
	collectors := []prometheus.Collector{
		m.Purchases, m.Volume, m.Rewards, m.OrdersPlaced,
		m.OrdersCanceled, m.RoundsFinished, m.Registrations,
	}
	if engine != nil {
		collectors = append(collectors, NewStatusCollector(engine, m.decimals))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Publish implements market.Sink.
func (m *Metrics) Publish(event models.Event) {
	switch e := event.(type) {
	case models.Purchase:
		kind := string(models.SaleRound)
		if e.OrderID != nil {
			kind = string(models.TradeRound)
		}
		m.Purchases.WithLabelValues(kind).Inc()
		m.Volume.WithLabelValues(kind).Add(m.float(e.Value.InexactFloat64()))
		if !e.Level1.IsZero() {
			m.Rewards.WithLabelValues("1").Add(m.float(e.Reward1.InexactFloat64()))
		}
		if !e.Level2.IsZero() {
			m.Rewards.WithLabelValues("2").Add(m.float(e.Reward2.InexactFloat64()))
		}
	case models.OrderPlaced:
		m.OrdersPlaced.Inc()
	case models.OrderCancelled:
		forced := "false"
		if e.Forced {
			forced = "true"
		}
		m.OrdersCanceled.WithLabelValues(forced).Inc()
	case models.RoundFinished:
		m.RoundsFinished.WithLabelValues(string(e.Kind)).Inc()
	case models.UserRegistered:
		m.Registrations.Inc()
	}
}

func (m *Metrics) float(v float64) float64 {
	return v / mathutil.Pow10(m.decimals).InexactFloat64()
}

var _ market.Sink = (*Metrics)(nil)
