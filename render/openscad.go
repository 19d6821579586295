package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/signalsfoundry/eqplatform/internal/logging"
)

const (
	// DefaultTimeout bounds a single engine run.
	DefaultTimeout = 60 * time.Second
	// DefaultBinary is looked up on PATH.
	DefaultBinary = "openscad"

	probeTimeout = 10 * time.Second
)

// probeDescription is the smallest useful drawing.
var probeDescription = []byte("circle(10);\n")

// OpenSCAD runs the openscad command line. Each Render gets its own temp
// directory, removed before Render returns.
type OpenSCAD struct {
	binary    string
	timeout   time.Duration
	tempDir   string
	imageSize [2]int
	log       logging.Logger
}

// Option configures an OpenSCAD renderer.
type Option func(*OpenSCAD)

// WithBinary sets the engine executable.
func WithBinary(path string) Option {
	return func(o *OpenSCAD) {
		if path != "" {
			o.binary = path
		}
	}
}

// WithTimeout bounds each engine run; non-positive keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(o *OpenSCAD) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithTempDir sets the parent of the per-render scratch directories.
func WithTempDir(dir string) Option {
	return func(o *OpenSCAD) { o.tempDir = dir }
}

// WithImageSize sets the PNG raster size.
func WithImageSize(w, h int) Option {
	return func(o *OpenSCAD) {
		if w > 0 && h > 0 {
			o.imageSize = [2]int{w, h}
		}
	}
}

// WithLogger sets the logger used for engine diagnostics.
func WithLogger(l logging.Logger) Option {
	return func(o *OpenSCAD) {
		if l != nil {
			o.log = l
		}
	}
}

// NewOpenSCAD returns a renderer with the given options applied.
func NewOpenSCAD(opts ...Option) *OpenSCAD {
	o := &OpenSCAD{
		binary:    DefaultBinary,
		timeout:   DefaultTimeout,
		imageSize: [2]int{1024, 768},
		log:       logging.Noop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Render writes description to a temporary .scad file, runs the engine and
// returns the bytes of the produced file.
func (o *OpenSCAD) Render(ctx context.Context, description []byte, kind OutputKind) ([]byte, error) {
	ext := kind.Extension()
	if ext == "" {
		return nil, &EngineError{Kind: FailureLaunch, Output: kind, Err: fmt.Errorf("unsupported output kind %d", int(kind))}
	}

	dir, err := os.MkdirTemp(o.tempDir, "eqp-render-*")
	if err != nil {
		return nil, &EngineError{Kind: FailureLaunch, Output: kind, Err: fmt.Errorf("create temp dir: %w", err)}
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "part.scad")
	out := filepath.Join(dir, "part."+ext)
	if err := os.WriteFile(in, description, 0o600); err != nil {
		return nil, &EngineError{Kind: FailureLaunch, Output: kind, Err: fmt.Errorf("write description: %w", err)}
	}

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	args := []string{"-o", out}
	if kind == RasterImage {
		args = append(args, "--render", fmt.Sprintf("--imgsize=%d,%d", o.imageSize[0], o.imageSize[1]))
	}
	args = append(args, in)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, o.binary, args...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)
	diag := truncate(strings.TrimSpace(stderr.String()))

	if runErr != nil {
		switch {
		case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
			o.log.Warn(ctx, "render timed out", logging.String("output", kind.String()), logging.Duration("timeout", o.timeout))
			return nil, &EngineError{Kind: FailureTimeout, Output: kind, Diagnostic: diag, Err: context.DeadlineExceeded}
		case ctx.Err() != nil:
			return nil, fmt.Errorf("render %s: %w", kind, ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			o.log.Warn(ctx, "render engine failed",
				logging.String("output", kind.String()),
				logging.Int("exit_code", exitErr.ExitCode()),
				logging.String("diagnostic", diag),
			)
			return nil, &EngineError{Kind: FailureExit, Output: kind, Diagnostic: diag, Err: runErr}
		}
		return nil, &EngineError{Kind: FailureLaunch, Output: kind, Diagnostic: diag, Err: runErr}
	}

	data, err := os.ReadFile(out)
	if err != nil || len(data) == 0 {
		if err == nil {
			err = errors.New("engine wrote an empty file")
		}
		return nil, &EngineError{Kind: FailureEmptyOutput, Output: kind, Diagnostic: diag, Err: err}
	}

	o.log.Debug(ctx, "rendered",
		logging.String("output", kind.String()),
		logging.Int("bytes", len(data)),
		logging.Duration("elapsed", elapsed),
	)
	return data, nil
}

// Version returns the first line the engine prints for --version.
func (o *OpenSCAD) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, o.binary, "--version").CombinedOutput()
	if err != nil {
		return "", &EngineError{Kind: FailureLaunch, Diagnostic: truncate(strings.TrimSpace(string(out))), Err: err}
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}

// Probe renders a trivial drawing to check the engine end to end.
func (o *OpenSCAD) Probe(ctx context.Context) error {
	_, err := o.Render(ctx, probeDescription, VectorDrawing)
	return err
}
