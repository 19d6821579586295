package csg

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

const annotationPrefix = "// @"

// AnnotationRecord is an annotation recovered from an encoded document.
type AnnotationRecord struct {
	Kind   string
	Label  string
	Points []r2.Vec
}

var (
	pointPattern    = regexp.MustCompile(`\[\s*([^,\]]+)\s*,\s*([^\]]+?)\s*\]`)
	constantPattern = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.+);$`)
)

// ParseAnnotations reads the structured annotation comments written by
// Encode, in document order.
func ParseAnnotations(r io.Reader) ([]AnnotationRecord, error) {
	var out []AnnotationRecord
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, annotationPrefix) {
			continue
		}
		rec, err := parseAnnotation(strings.TrimPrefix(line, annotationPrefix))
		if err != nil {
			return nil, fmt.Errorf("csg: line %d: %w", lineNo, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("csg: scan annotations: %w", err)
	}
	return out, nil
}

func parseAnnotation(s string) (AnnotationRecord, error) {
	kind, rest, ok := strings.Cut(s, " ")
	if !ok || kind == "" {
		return AnnotationRecord{}, fmt.Errorf("malformed annotation %q", s)
	}
	quoted, err := strconv.QuotedPrefix(rest)
	if err != nil {
		return AnnotationRecord{}, fmt.Errorf("annotation %s: label: %w", kind, err)
	}
	label, err := strconv.Unquote(quoted)
	if err != nil {
		return AnnotationRecord{}, fmt.Errorf("annotation %s: label: %w", kind, err)
	}
	rec := AnnotationRecord{Kind: kind, Label: label}
	for _, m := range pointPattern.FindAllStringSubmatch(rest[len(quoted):], -1) {
		x, err := strconv.ParseFloat(strings.TrimSpace(m[1]), 64)
		if err != nil {
			return AnnotationRecord{}, fmt.Errorf("annotation %s: x: %w", kind, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(m[2]), 64)
		if err != nil {
			return AnnotationRecord{}, fmt.Errorf("annotation %s: y: %w", kind, err)
		}
		rec.Points = append(rec.Points, r2.Vec{X: x, Y: y})
	}
	return rec, nil
}

// ParseConstants reads the top-level numeric constants of an encoded
// document. Non-numeric assignments are skipped.
func ParseConstants(r io.Reader) (map[string]float64, error) {
	out := make(map[string]float64)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			// Constants end at the first blank line.
			break
		}
		m := constantPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(m[2]), 64)
		if err != nil {
			continue
		}
		out[m[1]] = v
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("csg: scan constants: %w", err)
	}
	return out, nil
}
