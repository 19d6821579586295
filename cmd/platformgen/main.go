// Command platformgen generates equatorial platform parts from a parameter
// file without running the HTTP service.
//
//	platformgen [-params file] <command> [flags]
//
// Commands: defaults, geometry, tracking, describe, render, all.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/eqplatform/assembler"
	"github.com/signalsfoundry/eqplatform/core"
	"github.com/signalsfoundry/eqplatform/internal/archive"
	"github.com/signalsfoundry/eqplatform/internal/logging"
	"github.com/signalsfoundry/eqplatform/model"
	"github.com/signalsfoundry/eqplatform/render"
)

const usage = `usage: platformgen [global flags] <command> [command flags]

commands:
  defaults   print the default parameter file
  geometry   print the solved geometry, north mounting and cut list
  tracking   print the tracking plan for a run starting now (or -start)
  describe   print the OpenSCAD description of one part
  render     render one part with openscad
  all        render every part and write the batch archive
`

// errUsage is returned for bad invocations; main exits 2 on it.
var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "platformgen: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	params    string
	asYAML    bool
	openscad  string
	timeout   time.Duration
	logLevel  string
	logFormat string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("platformgen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fmt.Fprintln(stderr, "\nglobal flags:")
		fs.PrintDefaults()
	}

	var g globalFlags
	fs.StringVar(&g.params, "params", "", "JSON or YAML parameter file overlaid on the defaults")
	fs.BoolVar(&g.asYAML, "yaml", false, "print structured output as YAML instead of JSON")
	fs.StringVar(&g.openscad, "openscad", envOr("EQP_OPENSCAD_PATH", "openscad"), "openscad binary")
	fs.DurationVar(&g.timeout, "timeout", render.DefaultTimeout, "per-render timeout")
	fs.StringVar(&g.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	fs.StringVar(&g.logFormat, "log-format", "text", "log format (text or json)")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	log := logging.New(logging.Config{Level: g.logLevel, Format: g.logFormat, Output: stderr})

	p, err := loadParameters(g.params)
	if err != nil {
		return err
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "defaults":
		return encodeYAML(stdout, model.DefaultParameters())
	case "geometry":
		return runGeometry(ctx, g, p, log, stdout)
	case "tracking":
		return runTracking(ctx, g, p, log, rest, stdout, stderr)
	case "describe":
		return runDescribe(ctx, p, log, rest, stdout, stderr)
	case "render":
		return runRender(ctx, g, p, log, rest, stdout, stderr)
	case "all":
		return runAll(ctx, g, p, log, rest, stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		fs.Usage()
		return errUsage
	}
}

// loadParameters reads path over the defaults. YAML is a superset of JSON so
// one decoder serves both.
func loadParameters(path string) (model.ParameterSet, error) {
	p := model.DefaultParameters()
	if path == "" {
		return p, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return model.ParameterSet{}, fmt.Errorf("read parameters: %w", err)
	}
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return model.ParameterSet{}, fmt.Errorf("parse parameters %s: %w", path, err)
	}
	return p, nil
}

type geometryReport struct {
	Geometry       core.GeometryState  `json:"geometry" yaml:"geometry"`
	PlatformWidth  float64             `json:"platform_width" yaml:"platform_width"`
	PlatformLength float64             `json:"platform_length" yaml:"platform_length"`
	NorthMounting  core.MountingLayout `json:"north_mounting" yaml:"north_mounting"`
	CutList        core.CutList        `json:"cut_list" yaml:"cut_list"`
}

func runGeometry(ctx context.Context, g globalFlags, p model.ParameterSet, log logging.Logger, stdout io.Writer) error {
	asm := assembler.New(assembler.WithLogger(log))
	geo, err := asm.Solve(ctx, p)
	if err != nil {
		return err
	}
	return g.encode(stdout, geometryReport{
		Geometry:       geo,
		PlatformWidth:  geo.PlatformWidth(),
		PlatformLength: geo.PlatformLength(),
		NorthMounting:  core.NorthMounting(geo, p),
		CutList:        core.BuildCutList(geo, p),
	})
}

func runTracking(ctx context.Context, g globalFlags, p model.ParameterSet, log logging.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tracking", flag.ContinueOnError)
	fs.SetOutput(stderr)
	startRaw := fs.String("start", "", "run start time (RFC 3339); defaults to now")
	minutes := fs.Float64("minutes", 0, "tracking duration in minutes; overrides the parameter file")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	start := time.Now()
	if *startRaw != "" {
		t, err := time.Parse(time.RFC3339, *startRaw)
		if err != nil {
			return fmt.Errorf("parse -start: %w", err)
		}
		start = t
	}
	if *minutes > 0 {
		p.TrackingMinutes = *minutes
	}

	asm := assembler.New(assembler.WithLogger(log))
	geo, err := asm.Solve(ctx, p)
	if err != nil {
		return err
	}
	return g.encode(stdout, core.PlanTracking(geo, p.WithDefaults(), start))
}

func runDescribe(ctx context.Context, p model.ParameterSet, log logging.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("describe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	partFlag := fs.String("part", "tpt3d", "part code or template type")
	out := fs.String("o", "", "write the description here instead of stdout")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	kind, err := model.ParsePartKind(*partFlag)
	if err != nil {
		return err
	}

	asm := assembler.New(assembler.WithLogger(log))
	desc, err := asm.Describe(ctx, p, kind)
	if err != nil {
		return err
	}
	if *out == "" {
		_, err = stdout.Write(desc.Source)
		return err
	}
	return writeFile(*out, desc.Source)
}

func runRender(ctx context.Context, g globalFlags, p model.ParameterSet, log logging.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	partFlag := fs.String("part", "tpt", "part code or template type")
	format := fs.String("format", "", "output format (svg, png, stl, pdf); defaults per part")
	out := fs.String("o", "", "output file; defaults to the artifact name in the current directory")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	kind, err := model.ParsePartKind(*partFlag)
	if err != nil {
		return err
	}
	output := render.OutputUnknown
	if *format != "" {
		if output, err = render.ParseOutputKind(*format); err != nil {
			return err
		}
	}

	asm := g.assembler(log)
	art, err := asm.Generate(ctx, assembler.Request{Parameters: p, Kind: kind, Output: output})
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = art.FileName()
	}
	if err := writeFile(path, art.Data); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s (%d bytes)\n", path, len(art.Data))
	return nil
}

func runAll(ctx context.Context, g globalFlags, p model.ParameterSet, log logging.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("all", flag.ContinueOnError)
	fs.SetOutput(stderr)
	format := fs.String("format", "", "output format for every physical part; defaults per part")
	out := fs.String("o", "platform_design.zip", "archive path")
	concurrency := fs.Int("concurrency", assembler.DefaultConcurrency, "concurrent renders")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	output := render.OutputUnknown
	if *format != "" {
		var err error
		if output, err = render.ParseOutputKind(*format); err != nil {
			return err
		}
	}

	asm := g.assembler(log, assembler.WithConcurrency(*concurrency))
	batch, err := asm.GenerateAll(ctx, p, output)
	if err != nil {
		return err
	}

	data, err := archive.Bytes(batch)
	if err != nil {
		return err
	}
	if err := writeFile(*out, data); err != nil {
		return err
	}
	_, _ = stdout.Write(archive.Readme(batch))
	fmt.Fprintf(stdout, "\nwrote %s (%d bytes)\n", *out, len(data))

	if failed := batch.FailedCodes(); len(failed) > 0 {
		return fmt.Errorf("%d parts failed to render: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func (g globalFlags) assembler(log logging.Logger, opts ...assembler.Option) *assembler.Assembler {
	renderer := render.NewOpenSCAD(
		render.WithBinary(g.openscad),
		render.WithTimeout(g.timeout),
		render.WithLogger(log),
	)
	base := []assembler.Option{
		assembler.WithRenderer(renderer),
		assembler.WithLogger(log),
		assembler.WithRenderTimeout(g.timeout),
	}
	return assembler.New(append(base, opts...)...)
}

func (g globalFlags) encode(w io.Writer, v any) error {
	if g.asYAML {
		return encodeYAML(w, v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
