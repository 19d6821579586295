// Package api exposes the platform designer over HTTP, plus a gRPC health
// service that tracks the renderer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/eqplatform/assembler"
	"github.com/signalsfoundry/eqplatform/core"
	"github.com/signalsfoundry/eqplatform/internal/archive"
	"github.com/signalsfoundry/eqplatform/internal/history"
	"github.com/signalsfoundry/eqplatform/internal/logging"
	"github.com/signalsfoundry/eqplatform/internal/observability"
	"github.com/signalsfoundry/eqplatform/model"
	"github.com/signalsfoundry/eqplatform/render"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Response headers set on batch downloads.
const (
	HeaderFailedParts = "X-Failed-Parts"
	HeaderBatchID     = "X-Batch-Id"
)

// HistoryStore records and lists generation requests.
type HistoryStore interface {
	Record(ctx context.Context, rec history.Record) error
	List(ctx context.Context, limit int) ([]history.Record, error)
}

// Prober checks that the renderer works.
type Prober interface {
	Probe(ctx context.Context) error
	Version(ctx context.Context) (string, error)
}

// Server holds the HTTP handlers. It keeps no per-request state.
type Server struct {
	asm     *assembler.Assembler
	history HistoryStore
	prober  Prober
	metrics *observability.Collector
	log     logging.Logger
	maxBody int64
	now     func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables GET /renders and records generation requests.
func WithHistory(h HistoryStore) Option { return func(s *Server) { s.history = h } }

// WithProber sets the renderer health check used by GET /health.
func WithProber(p Prober) Option { return func(s *Server) { s.prober = p } }

// WithMetrics records per-route request metrics.
func WithMetrics(c *observability.Collector) Option { return func(s *Server) { s.metrics = c } }

// WithLogger sets the base logger for request loggers.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithClock overrides the clock used for tracking plans and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// NewServer returns a Server generating parts with asm.
func NewServer(asm *assembler.Assembler, opts ...Option) *Server {
	s := &Server{
		asm:     asm,
		log:     logging.Noop(),
		maxBody: DefaultMaxBodyBytes,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, http.MethodPost, "/generate-template", s.handleGenerateTemplate)
	s.route(mux, http.MethodPost, "/preview-part", s.handlePreviewPart)
	s.route(mux, http.MethodPost, "/describe", s.handleDescribe)
	s.route(mux, http.MethodPost, "/generate-all-parts", s.handleGenerateAllParts)
	s.route(mux, http.MethodPost, "/geometry", s.handleGeometry)
	s.route(mux, http.MethodPost, "/tracking", s.handleTracking)
	s.route(mux, http.MethodGet, "/parameters/defaults", s.handleDefaults)
	s.route(mux, http.MethodGet, "/renders", s.handleRenders)
	s.route(mux, http.MethodGet, "/health", s.handleHealth)
	return RecoverMiddleware(RequestIDMiddleware(s.log, mux))
}

func (s *Server) route(mux *http.ServeMux, method, path string, h http.HandlerFunc) {
	var handler http.Handler = h
	handler = TracingMiddleware(path, handler)
	handler = s.metrics.HTTPMiddleware(path, handler)
	mux.Handle(method+" "+path, handler)
}

// partRequest is the body of the part endpoints. Parameters missing from the
// request keep their default values.
type partRequest struct {
	Parameters   model.ParameterSet `json:"parameters"`
	PartType     string             `json:"part_type"`
	TemplateType string             `json:"template_type"`
	Format       string             `json:"format"`
	// Start is the tracking start time for /tracking; defaults to now.
	Start *time.Time `json:"start,omitempty"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (partRequest, error) {
	req := partRequest{Parameters: model.DefaultParameters()}
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return partRequest{}, fmt.Errorf("%w: request body exceeds %d bytes", model.ErrInvalidParameter, tooLarge.Limit)
		}
		return partRequest{}, fmt.Errorf("%w: decode request: %v", model.ErrInvalidParameter, err)
	}
	return req, nil
}

// kind resolves the requested part. part_type wins over the front end's
// template_type; with neither the cutting template is generated.
func (req partRequest) kind() (model.PartKind, error) {
	raw := req.PartType
	if raw == "" {
		raw = req.TemplateType
	}
	if raw == "" {
		return model.PartPlatformTop2D, nil
	}
	return model.ParsePartKind(raw)
}

// output resolves the requested format. A template type such as "tpt-png"
// implies its format when none is given.
func (req partRequest) output(kind model.PartKind) (render.OutputKind, error) {
	raw := req.Format
	if raw == "" {
		if i := strings.LastIndex(req.TemplateType, "-"); i >= 0 {
			if out, err := render.ParseOutputKind(req.TemplateType[i+1:]); err == nil {
				return out, nil
			}
		}
		return render.DefaultOutput(kind), nil
	}
	return render.ParseOutputKind(raw)
}

func (s *Server) handleGenerateTemplate(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	kind, err := req.kind()
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := req.output(kind)
	if err != nil {
		writeError(w, err)
		return
	}
	s.serveArtifact(w, r, "generate-template", assembler.Request{Parameters: req.Parameters, Kind: kind, Output: out}, "attachment")
}

func (s *Server) handlePreviewPart(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	kind, err := req.kind()
	if err != nil {
		writeError(w, err)
		return
	}
	s.serveArtifact(w, r, "preview-part", assembler.Request{Parameters: req.Parameters, Kind: kind, Output: render.RasterImage}, "inline")
}

func (s *Server) serveArtifact(w http.ResponseWriter, r *http.Request, op string, req assembler.Request, disposition string) {
	ctx := r.Context()
	start := time.Now()
	art, err := s.asm.Generate(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}
	s.record(ctx, history.Record{
		ID:           logging.NewID(),
		Operation:    op,
		Parts:        []string{art.Kind.Code()},
		Format:       art.Output.Extension(),
		LatitudeDeg:  art.Description.Geometry.Latitude,
		BearingAngle: art.Description.Geometry.BearingAngle,
		Parameters:   req.Parameters,
		Elapsed:      time.Since(start),
	})

	w.Header().Set("Content-Type", art.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, art.FileName()))
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}

func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	kind, err := req.kind()
	if err != nil {
		writeError(w, err)
		return
	}
	desc, err := s.asm.Describe(r.Context(), req.Parameters, kind)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", desc.FileName()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(desc.Source)
}

func (s *Server) handleGenerateAllParts(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	out := render.OutputUnknown
	if req.Format != "" {
		if out, err = render.ParseOutputKind(req.Format); err != nil {
			writeError(w, err)
			return
		}
	}

	ctx := r.Context()
	start := time.Now()
	b, err := s.asm.GenerateAll(ctx, req.Parameters, out)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := archive.Bytes(b)
	if err != nil {
		writeError(w, err)
		return
	}

	codes := make([]string, 0, len(b.Parts)+1)
	for _, res := range b.Parts {
		codes = append(codes, res.Kind.Code())
	}
	codes = append(codes, b.Template.Kind.Code())
	failed := b.FailedCodes()
	rec := history.Record{
		ID:           b.ID,
		Operation:    "generate-all-parts",
		Parts:        codes,
		Format:       out.Extension(),
		LatitudeDeg:  b.Geometry.Latitude,
		BearingAngle: b.Geometry.BearingAngle,
		Parameters:   req.Parameters,
		FailedParts:  failed,
		Elapsed:      time.Since(start),
	}
	if rec.Format == "" {
		rec.Format = "default"
	}
	s.record(ctx, rec)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="platform_design.zip"`)
	w.Header().Set(HeaderBatchID, b.ID)
	if len(failed) > 0 {
		w.Header().Set(HeaderFailedParts, strings.Join(failed, ","))
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type geometryResponse struct {
	Geometry       core.GeometryState  `json:"geometry"`
	PlatformWidth  float64             `json:"platform_width"`
	PlatformLength float64             `json:"platform_length"`
	NorthMounting  core.MountingLayout `json:"north_mounting"`
	CutList        core.CutList        `json:"cut_list"`
}

func (s *Server) handleGeometry(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	g, err := s.asm.Solve(r.Context(), req.Parameters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, geometryResponse{
		Geometry:       g,
		PlatformWidth:  g.PlatformWidth(),
		PlatformLength: g.PlatformLength(),
		NorthMounting:  core.NorthMounting(g, req.Parameters),
		CutList:        core.BuildCutList(g, req.Parameters),
	})
}

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	req, err := s.decode(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	g, err := s.asm.Solve(r.Context(), req.Parameters)
	if err != nil {
		writeError(w, err)
		return
	}
	start := s.now()
	if req.Start != nil {
		start = *req.Start
	}
	writeJSON(w, http.StatusOK, core.PlanTracking(g, req.Parameters, start))
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, model.DefaultParameters())
}

type rendersResponse struct {
	Renders []history.Record `json:"renders"`
}

func (s *Server) handleRenders(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "generation history is disabled", Code: CodeUnavailable})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer, got %q", model.ErrInvalidParameter, raw))
			return
		}
		limit = n
	}
	records, err := s.history.List(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rendersResponse{Renders: records})
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string    `json:"status"`
	OpenSCAD  string    `json:"openscad"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{Status: "healthy", OpenSCAD: "working", Timestamp: s.now().UTC()}
	if s.prober == nil {
		status.Status = "unhealthy"
		status.OpenSCAD = "error: no renderer configured"
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	if err := s.prober.Probe(r.Context()); err != nil {
		status.Status = "unhealthy"
		status.OpenSCAD = "error: " + err.Error()
		writeJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	if v, err := s.prober.Version(r.Context()); err == nil {
		status.Version = v
	}
	writeJSON(w, http.StatusOK, status)
}

// record stores rec if history is enabled. Failures are logged only; a
// generated file is never withheld because history could not be written.
func (s *Server) record(ctx context.Context, rec history.Record) {
	if s.history == nil {
		return
	}
	rec.RequestID = logging.RequestIDFromContext(ctx)
	rec.CreatedAt = s.now()
	if err := s.history.Record(ctx, rec); err != nil {
		logging.FromContext(ctx, s.log).Warn(ctx, "history record failed",
			logging.String("id", rec.ID),
			logging.Err(err),
		)
	}
}
