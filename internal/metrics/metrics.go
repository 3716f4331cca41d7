package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Settlements = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "flash_settlements_total",
		Help: "Settlement attempts by outcome and error kind",
	}, []string{"outcome", "kind"})

	SettlementProfit = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flash_settlement_profit_total",
		Help: "Profit paid out by committed settlements, in token base units",
	})

	LoanAmount = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flash_settlement_loan_amount",
		Help:    "Requested loan amounts, in token base units",
		Buckets: prometheus.ExponentialBuckets(100, 10, 10),
	})

	SettlementLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "flash_settlement_latency_seconds",
		Help:    "Time to run one settlement unit",
		Buckets: prometheus.DefBuckets,
	})

	ReserveBalance = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "flash_reserve_balance",
		Help: "Reserve account balance observed by the reconciler",
	}, []string{"account", "asset"})

	ReserveShortfalls = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "flash_reserve_shortfalls_total",
		Help: "Reconciliation runs that found a reserve below its provisioned liquidity",
	})
)

func init() {
	prometheus.MustRegister(
		Settlements,
		SettlementProfit,
		LoanAmount,
		SettlementLatency,
		ReserveBalance,
		ReserveShortfalls,
	)
}

// Handler exposes the default registry in the OpenMetrics format.
func Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
