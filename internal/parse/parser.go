// Package parse turns free-text model responses into typed values. Model
// output is treated as data only: the decoders never evaluate anything.
package parse

import (
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/domain"
)

// FallbackRecorder counts responses that could not be parsed
type FallbackRecorder interface {
	RecordParseFallback(shape string)
}

// Parser applies the fallback policy on top of Literal. None of its methods
// return errors or panic; a response of the wrong shape yields a defined
// fallback and a warning.
type Parser struct {
	logger  *zap.Logger
	metrics FallbackRecorder
}

// NewParser creates a parser. Both arguments may be nil.
func NewParser(logger *zap.Logger, metrics FallbackRecorder) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{
		logger:  logger.Named("parse"),
		metrics: metrics,
	}
}

// Decode strips a code fence and decodes the remaining literal
func (p *Parser) Decode(raw string) (any, error) {
	return Literal(StripFence(raw))
}

// Issues parses a list of issue descriptions. Blank input yields no issues.
// Any other failure yields a single issue holding the raw text so nothing
// the model said is lost.
func (p *Parser) Issues(raw string) domain.Issues {
	if strings.TrimSpace(raw) == "" {
		return domain.Issues{}
	}
	items, err := p.decodeStrings(raw)
	if err != nil {
		p.fallback(ShapeStrings, raw, err)
		return domain.Issues{raw}
	}
	return domain.Issues(items)
}

// Strings parses a list of strings, or returns an empty list
func (p *Parser) Strings(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	items, err := p.decodeStrings(raw)
	if err != nil {
		p.fallback(ShapeStrings, raw, err)
		return []string{}
	}
	return items
}

// StringMap parses a mapping of strings, or returns an empty mapping
func (p *Parser) StringMap(raw string) map[string]string {
	if strings.TrimSpace(raw) == "" {
		return map[string]string{}
	}
	m, err := decodeAs(raw, AsStringMap)
	if err != nil {
		p.fallback(ShapeStringMap, raw, err)
		return map[string]string{}
	}
	return m
}

// StringListMap parses a mapping of string lists, or returns an empty mapping
func (p *Parser) StringListMap(raw string) map[string][]string {
	if strings.TrimSpace(raw) == "" {
		return map[string][]string{}
	}
	m, err := decodeAs(raw, AsStringListMap)
	if err != nil {
		p.fallback(ShapeStringListMap, raw, err)
		return map[string][]string{}
	}
	return m
}

func (p *Parser) decodeStrings(raw string) ([]string, error) {
	return decodeAs(raw, AsStrings)
}

// decodeAs returns the first candidate decoding of raw that has the shape
// coerce accepts.
func decodeAs[T any](raw string, coerce func(any) (T, error)) (T, error) {
	src := StripFence(raw)

	var zero T
	var shapeErr error
	for v := range Candidates(src) {
		out, err := coerce(v)
		if err == nil {
			return out, nil
		}
		if shapeErr == nil {
			shapeErr = err
		}
	}
	if shapeErr != nil {
		return zero, shapeErr
	}
	_, err := Literal(src)
	return zero, err
}

func (p *Parser) fallback(shape, raw string, err error) {
	p.logger.Warn("Model response did not parse, using fallback",
		zap.String("shape", shape),
		zap.Int("length", len(raw)),
		zap.String("preview", preview(raw, 120)),
		zap.Error(domain.ErrParse(shape, err)),
	)
	if p.metrics != nil {
		p.metrics.RecordParseFallback(shape)
	}
}

func preview(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
