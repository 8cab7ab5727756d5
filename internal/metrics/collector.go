package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/xtrntr/tokenmarket/internal/market"
	"github.com/xtrntr/tokenmarket/internal/models"
	"github.com/xtrntr/tokenmarket/pkg/mathutil"
)

// StatusCollector reads the engine status at scrape time.
type StatusCollector struct {
	engine   *market.Engine
	decimals int32

	round      *prometheus.Desc
	saleRound  *prometheus.Desc
	paused     *prometheus.Desc
	openOrders *prometheus.Desc
	revenue    *prometheus.Desc
	referrals  *prometheus.Desc
}

func NewStatusCollector(engine *market.Engine, baseDecimals int32) *StatusCollector {
	return &StatusCollector{
		engine:   engine,
		decimals: baseDecimals,
		round: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "current_round"),
			"Id of the running round.", nil, nil),
		saleRound: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "sale_round"),
			"1 while a sale round is running.", nil, nil),
		paused: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "paused"),
			"1 while the marketplace is paused.", nil, nil),
		openOrders: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "open_orders"),
			"Open sell orders in the running trade round.", nil, nil),
		revenue: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "revenue"),
			"Base currency held by the marketplace.", nil, nil),
		referrals: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "", "referrals"),
			"Registered referral edges.", nil, nil),
	}
}

func (c *StatusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.round
	ch <- c.saleRound
	ch <- c.paused
	ch <- c.openOrders
	ch <- c.revenue
	ch <- c.referrals
}

func (c *StatusCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.engine.Status()
	ch <- prometheus.MustNewConstMetric(c.round, prometheus.GaugeValue, float64(s.RoundID))
	ch <- prometheus.MustNewConstMetric(c.saleRound, prometheus.GaugeValue, boolToFloat(s.Kind == models.SaleRound))
	ch <- prometheus.MustNewConstMetric(c.paused, prometheus.GaugeValue, boolToFloat(s.Paused))
	ch <- prometheus.MustNewConstMetric(c.openOrders, prometheus.GaugeValue, float64(s.OpenOrders))
	ch <- prometheus.MustNewConstMetric(c.revenue, prometheus.GaugeValue,
		mathutil.FromUnits(s.Revenue, c.decimals).InexactFloat64())
	ch <- prometheus.MustNewConstMetric(c.referrals, prometheus.GaugeValue, float64(s.Referrals))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
