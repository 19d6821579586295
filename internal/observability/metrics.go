package observability

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// Render and solve outcomes used as label values.
const (
	OutcomeOK         = "ok"
	OutcomeInvalid    = "invalid"
	OutcomeDegenerate = "degenerate"
	OutcomeFailed     = "failed"
	OutcomeTimeout    = "timeout"
)

// Collector bundles the service's Prometheus metrics and provides helpers to
// wire them into HTTP handlers and the gRPC server.
type Collector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec
	RPCRequests   *prometheus.CounterVec

	Solves           *prometheus.CounterVec
	Renders          *prometheus.CounterVec
	RenderDurations  *prometheus.HistogramVec
	BatchPartFailure prometheus.Counter
	LastBearingAngle prometheus.Gauge
}

// NewCollector registers metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice against the same registry
// returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	httpRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eqp_http_requests_total",
		Help: "Total number of handled HTTP requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"}), "eqp_http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eqp_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"route"}), "eqp_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	rpcRequests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eqp_grpc_requests_total",
		Help: "Total number of handled gRPC calls, labeled by service, method, and gRPC status code.",
	}, []string{"service", "method", "code"}), "eqp_grpc_requests_total")
	if err != nil {
		return nil, err
	}

	solves, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eqp_geometry_solves_total",
		Help: "Geometry solves, labeled by outcome (ok, invalid, degenerate).",
	}, []string{"outcome"}), "eqp_geometry_solves_total")
	if err != nil {
		return nil, err
	}

	renders, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eqp_renders_total",
		Help: "Renderer invocations, labeled by part code, output format, and outcome.",
	}, []string{"part", "format", "outcome"}), "eqp_renders_total")
	if err != nil {
		return nil, err
	}

	renderDurations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "eqp_render_duration_seconds",
		Help:    "Renderer latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 60, 120},
	}, []string{"part", "format"}), "eqp_render_duration_seconds")
	if err != nil {
		return nil, err
	}

	batchFailures, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "eqp_batch_part_failures_total",
		Help: "Parts that failed inside an otherwise successful all-parts batch.",
	}), "eqp_batch_part_failures_total")
	if err != nil {
		return nil, err
	}

	bearingAngle, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eqp_last_bearing_angle_degrees",
		Help: "Bearing angle of the most recent successful geometry solve.",
	}), "eqp_last_bearing_angle_degrees")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		HTTPRequests:     httpRequests,
		HTTPDurations:    httpDurations,
		RPCRequests:      rpcRequests,
		Solves:           solves,
		Renders:          renders,
		RenderDurations:  renderDurations,
		BatchPartFailure: batchFailures,
		LastBearingAngle: bearingAngle,
	}, nil
}

// ObserveSolve records a geometry solve. bearingAngle is only used on
// success.
func (c *Collector) ObserveSolve(outcome string, bearingAngle float64) {
	if c == nil {
		return
	}
	c.Solves.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK {
		c.LastBearingAngle.Set(bearingAngle)
	}
}

// ObserveRender records one renderer invocation.
func (c *Collector) ObserveRender(part, format, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Renders.WithLabelValues(part, format, outcome).Inc()
	c.RenderDurations.WithLabelValues(part, format).Observe(elapsed.Seconds())
}

// ObserveBatchFailures adds n failed parts.
func (c *Collector) ObserveBatchFailures(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.BatchPartFailure.Add(float64(n))
}

// HTTPMiddleware records request counts and durations under route, which
// should be the registered pattern rather than the raw path.
func (c *Collector) HTTPMiddleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if c == nil {
			return
		}
		c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		c.HTTPDurations.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// UnaryServerInterceptor records request counts for unary RPCs.
func (c *Collector) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if c == nil {
			return resp, err
		}
		fullMethod := ""
		if info != nil {
			fullMethod = info.FullMethod
		}
		service, method := SplitMethod(fullMethod)
		c.RPCRequests.WithLabelValues(service, method, status.Code(err).String()).Inc()
		return resp, err
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SplitMethod parses a fully-qualified gRPC method name into service and method
// components, returning "unknown"/"unknown" when parsing fails.
func SplitMethod(fullMethod string) (string, string) {
	if fullMethod == "" {
		return "unknown", "unknown"
	}
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	parts := strings.Split(fullMethod, "/")
	if len(parts) < 2 {
		return "unknown", "unknown"
	}
	service := parts[len(parts)-2]
	method := parts[len(parts)-1]
	if dot := strings.LastIndex(service, "."); dot >= 0 && dot+1 < len(service) {
		service = service[dot+1:]
	}
	if service == "" {
		service = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	return service, method
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
