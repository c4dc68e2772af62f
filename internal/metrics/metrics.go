package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Limit orders placed"},
		[]string{"symbol", "side"},
	)
	FillsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fills_total", Help: "Paper fills executed"},
		[]string{"symbol", "side"},
	)
	WindowsOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "windows_opened_total", Help: "Trading windows armed"},
		[]string{"kind"},
	)
	StopOutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stop_outs_total", Help: "Stop-out exits triggered"},
		[]string{"symbol"},
	)
	RealizedPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "realized_pnl", Help: "Gross realized PnL across symbols"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal, OrdersTotal, FillsTotal, WindowsOpenedTotal, StopOutsTotal, RealizedPnL)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
