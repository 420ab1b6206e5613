package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency       = metric.NewHistogram("1m1s")
	SwitchLatency         = metric.NewHistogram("1m1s")
	ReceivedPerSecond     = metric.NewCounter("10s1s")
	FulfilledPerSecond    = metric.NewCounter("10s1s")
	RejectedPerSecond     = metric.NewCounter("10s1s")
	ReservationsPerSecond = metric.NewCounter("10s1s")
	SettlementsPerSecond  = metric.NewCounter("10s1s")
	RouteUpdatesPerSecond = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("weft:Received/s", ReceivedPerSecond)
	expvar.Publish("weft:Fulfilled/s", FulfilledPerSecond)
	expvar.Publish("weft:Rejected/s", RejectedPerSecond)
	expvar.Publish("weft:Reservations/s", ReservationsPerSecond)
	expvar.Publish("weft:Settlements/s", SettlementsPerSecond)
	expvar.Publish("weft:RouteUpdates/s", RouteUpdatesPerSecond)
	expvar.Publish("weft:SwitchLatency (µs)", SwitchLatency)
	expvar.Publish("weft:DispatchLatency (µs)", DispatchLatency)
}
