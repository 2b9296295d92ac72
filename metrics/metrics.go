package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Counter: engine operations by outcome
	OpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickex_ops_total",
			Help: "Engine operations by name and outcome",
		},
		[]string{"op", "outcome"},
	)

	// Counter: orders admitted into the pending set
	OrdersPlacedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickex_orders_placed_total",
			Help: "Orders placed into the pending set",
		},
		[]string{"pair", "side"},
	)

	// Counter: pending orders linked into the book
	OrdersActivatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickex_orders_activated_total",
			Help: "Orders activated into tick level queues",
		},
		[]string{"pair", "side"},
	)

	// Counter: orders fully filled, including flip parents
	OrdersFilledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickex_orders_filled_total",
			Help: "Orders fully filled by swaps",
		},
		[]string{"pair", "side"},
	)

	OrdersCancelledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickex_orders_cancelled_total",
			Help: "Orders cancelled by their maker",
		},
		[]string{"pair", "side"},
	)

	// Counter: matched swap volume in base units
	SwapVolumeBase = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickex_swap_volume_base_units",
			Help: "Matched swap volume in base units",
		},
		[]string{"pair", "direction"},
	)

	// Histogram: distinct store keys touched per operation
	StoreAccesses = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tickex_store_accesses",
			Help:    "Distinct store keys touched per engine operation",
			Buckets: prometheus.ExponentialBuckets(4, 2, 10), // 4 to ~2048
		},
		[]string{"op"},
	)

	// Gauges: cached best ticks per pair
	BestBidTick = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tickex_best_bid_tick",
			Help: "Cached best bid tick per pair",
		},
		[]string{"pair"},
	)

	BestAskTick = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tickex_best_ask_tick",
			Help: "Cached best ask tick per pair",
		},
		[]string{"pair"},
	)
)
