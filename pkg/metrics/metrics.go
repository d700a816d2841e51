package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pcbuilder"

var HistogramBuckets = []float64{
	// fast responses
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	// admin API round trips
	750, 1000, 1500, 2000, 3000, 5000,
	// slow uploads / polls
	7500, 10000, 15000, 30000, 60000,
}

// Reconcile outcomes, labelled by trigger (plan_change, billing_event, cancel)
// and outcome (created, updated, renewed, downgraded, cancelled, noop, stale, error).
var ReconcileTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "billing",
	Name:      "reconcile_total",
	Help:      "Subscription reconciler decisions partitioned by trigger and outcome.",
}, []string{"trigger", "outcome"})

// GatewayDuration observes Shopify Admin API calls in milliseconds.
var GatewayDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "shopify",
	Name:      "call_dur_ms",
	Help:      "Shopify Admin API call latency in milliseconds.",
	Buckets:   HistogramBuckets,
}, []string{"operation", "result"})

// WebhookTotal counts inbound webhooks by topic and result.
var WebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "webhook",
	Name:      "received_total",
	Help:      "Inbound Shopify webhooks partitioned by topic and result.",
}, []string{"topic", "result"})

func init() {
	MustRegisterOrReuse(prometheus.DefaultRegisterer, ReconcileTotal)
	MustRegisterOrReuse(prometheus.DefaultRegisterer, GatewayDuration)
	MustRegisterOrReuse(prometheus.DefaultRegisterer, WebhookTotal)
}

// RegisterOrReuse registers c, returning the already registered collector
// when an identical one exists.
func RegisterOrReuse(r prometheus.Registerer, c prometheus.Collector) (prometheus.Collector, error) {
	if err := r.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector, nil
		}
		return nil, err
	}
	return c, nil
}

func MustRegisterOrReuse(r prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	got, err := RegisterOrReuse(r, c)
	if err != nil {
		panic(err)
	}
	return got
}

func MillisecondsSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// ObserveGateway records one Admin API call.
func ObserveGateway(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	GatewayDuration.WithLabelValues(operation, result).Observe(MillisecondsSince(start))
}
