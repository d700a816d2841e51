package metrics

/* HTTP request metrics for gin, derived from github.com/zsais/go-gin-prometheus
edits:
- request/response size summaries dropped
- collectors registered on an injectable Registerer
- metrics served by a separate handler instead of a second gin engine
*/

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const RefererKey = "X-Referer"

var defaultMetricPath = "/metrics"

type Logger interface {
	Errorf(format string, v ...interface{})
}

/*
RequestCounterURLLabelMappingFn controls the cardinality of the "url" label.
Mapping every request to c.FullPath() keeps "/api/v1/widgets/:id" as one series.
*/
type RequestCounterURLLabelMappingFn func(c *gin.Context) string

// Prometheus holds the HTTP collectors and the metrics path.
type Prometheus struct {
	reqCnt   *prometheus.CounterVec
	reqDur   *prometheus.HistogramVec
	gatherer prometheus.Gatherer

	MetricsPath             string
	ReqCntURLLabelMappingFn RequestCounterURLLabelMappingFn
}

type NewPrometheusOptions struct {
	Subsystem               string
	MetricsPath             string
	ReqCntURLLabelMappingFn RequestCounterURLLabelMappingFn
	// Registerer/Gatherer default to the prometheus globals.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Logger     Logger
}

// NewPrometheus builds the request counter and latency histogram.
func NewPrometheus(options NewPrometheusOptions) *Prometheus {
	reg := options.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := options.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	p := &Prometheus{
		MetricsPath:             options.MetricsPath,
		ReqCntURLLabelMappingFn: options.ReqCntURLLabelMappingFn,
		gatherer:                gatherer,
	}
	if p.MetricsPath == "" {
		p.MetricsPath = defaultMetricPath
	}
	if p.ReqCntURLLabelMappingFn == nil {
		p.ReqCntURLLabelMappingFn = func(c *gin.Context) string {
			if fp := c.FullPath(); fp != "" {
				return fp
			}
			return "unmatched"
		}
	}

	reqCnt := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: options.Subsystem,
		Name:      "req_total",
		Help:      "How many HTTP requests processed, partitioned by status code and HTTP method.",
	}, []string{"code", "method", "url", "ref"})
	reqDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: options.Subsystem,
		Name:      "req_dur_ms",
		Help:      "The HTTP request latencies in milliseconds.",
		Buckets:   HistogramBuckets,
	}, []string{"code", "method", "url", "ref"})

	if c, err := RegisterOrReuse(reg, reqCnt); err == nil {
		p.reqCnt = c.(*prometheus.CounterVec)
	} else {
		p.reqCnt = reqCnt
		if options.Logger != nil {
			options.Logger.Errorf("req_total could not be registered in Prometheus, err=%v", err)
		}
	}
	if c, err := RegisterOrReuse(reg, reqDur); err == nil {
		p.reqDur = c.(*prometheus.HistogramVec)
	} else {
		p.reqDur = reqDur
		if options.Logger != nil {
			options.Logger.Errorf("req_dur_ms could not be registered in Prometheus, err=%v", err)
		}
	}
	return p
}

// Use adds the middleware to a gin engine.
func (p *Prometheus) Use(e *gin.Engine) {
	e.Use(p.HandlerFunc())
}

// Handler serves the gathered metrics; mount it on a separate listener so
// scrapes stay out of the access log.
func (p *Prometheus) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(p.MetricsPath, promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// HandlerFunc defines handler function for middleware
func (p *Prometheus) HandlerFunc() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == p.MetricsPath {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		url := p.ReqCntURLLabelMappingFn(c)
		ref := c.Request.Header.Get(RefererKey)

		p.reqDur.WithLabelValues(status, c.Request.Method, url, ref).Observe(MillisecondsSince(start))
		p.reqCnt.WithLabelValues(status, c.Request.Method, url, ref).Inc()
	}
}
