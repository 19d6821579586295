package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func newTestCollector(t *testing.T) (*Collector, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	return c, reg
}

func TestHTTPMiddlewareRecordsMetrics(t *testing.T) {
	c, reg := newTestCollector(t)

	h := c.HTTPMiddleware("/geometry", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/geometry", nil))

	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("/geometry", "POST", "422")); got != 1 {
		t.Fatalf("eqp_http_requests_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "eqp_http_request_duration_seconds", map[string]string{"route": "/geometry"}); count != 1 {
		t.Fatalf("eqp_http_request_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestHTTPMiddlewareDefaultsToOK(t *testing.T) {
	c, _ := newTestCollector(t)
	h := c.HTTPMiddleware("/health", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := testutil.ToFloat64(c.HTTPRequests.WithLabelValues("/health", "GET", "200")); got != 1 {
		t.Fatalf("eqp_http_requests_total = %v, want 1", got)
	}
}

func TestObserveRenderAndSolve(t *testing.T) {
	c, reg := newTestCollector(t)

	c.ObserveSolve(OutcomeOK, 17.26)
	c.ObserveSolve(OutcomeDegenerate, 0)
	c.ObserveRender("bne", "stl", OutcomeOK, 200*time.Millisecond)
	c.ObserveRender("bne", "stl", OutcomeTimeout, time.Minute)
	c.ObserveBatchFailures(2)
	c.ObserveBatchFailures(0)

	if got := testutil.ToFloat64(c.Solves.WithLabelValues(OutcomeDegenerate)); got != 1 {
		t.Fatalf("degenerate solves = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.LastBearingAngle); got != 17.26 {
		t.Fatalf("last bearing angle = %v, want 17.26", got)
	}
	if got := testutil.ToFloat64(c.Renders.WithLabelValues("bne", "stl", OutcomeTimeout)); got != 1 {
		t.Fatalf("timeout renders = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "eqp_render_duration_seconds", map[string]string{"part": "bne", "format": "stl"}); count != 2 {
		t.Fatalf("render duration samples = %d, want 2", count)
	}
	if got := testutil.ToFloat64(c.BatchPartFailure); got != 2 {
		t.Fatalf("batch failures = %v, want 2", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.ObserveSolve(OutcomeOK, 1)
	c.ObserveRender("tbs", "svg", OutcomeOK, time.Second)
	c.ObserveBatchFailures(1)
	rr := httptest.NewRecorder()
	c.HTTPMiddleware("/x", http.NotFoundHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("nil collector middleware altered the response: %d", rr.Code)
	}
}

func TestNewCollectorTwiceReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	b, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}
	a.ObserveSolve(OutcomeOK, 10)
	if got := testutil.ToFloat64(b.Solves.WithLabelValues(OutcomeOK)); got != 1 {
		t.Fatalf("collectors not shared: %v", got)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	c, _ := newTestCollector(t)

	interceptor := c.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}
	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})

	if got := testutil.ToFloat64(c.RPCRequests.WithLabelValues("Health", "Check", "NotFound")); got != 1 {
		t.Fatalf("eqp_grpc_requests_total = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesMetrics(t *testing.T) {
	c, _ := newTestCollector(t)
	c.ObserveSolve(OutcomeOK, 17.26)
	c.ObserveRender("tpt3d", "stl", OutcomeOK, time.Second)
	c.HTTPRequests.WithLabelValues("/describe", "POST", "200").Inc()

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"eqp_http_requests_total",
		"eqp_geometry_solves_total",
		"eqp_renders_total",
		"eqp_render_duration_seconds",
		"eqp_last_bearing_angle_degrees 17.26",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func TestSplitMethod(t *testing.T) {
	cases := map[string][2]string{
		"":                             {"unknown", "unknown"},
		"/grpc.health.v1.Health/Check": {"Health", "Check"},
		"nomethod":                     {"unknown", "unknown"},
	}
	for in, want := range cases {
		s, m := SplitMethod(in)
		if s != want[0] || m != want[1] {
			t.Errorf("SplitMethod(%q) = %q, %q; want %q, %q", in, s, m, want[0], want[1])
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
