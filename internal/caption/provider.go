// Package caption generates one-sentence alt text for images with a
// vision-capable model.
package caption

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/llm"
	"github.com/testforge/a11yforge/internal/observability"
)

const (
	// SystemPrompt is sent with every captioning request
	SystemPrompt = "You are an assistant that generates concise and descriptive alt text for web accessibility."

	// Instruction accompanies the image
	Instruction = "Describe this image in one sentence as alt text."

	sentinelPrefix = "[Error generating alt text: "
)

var errNoResult = errors.New("vision model returned no result")

// Sentinel renders a failed caption. It is a valid caption value, not an
// error: the batch keeps going and the text explains what went wrong.
func Sentinel(reason string) string {
	return sentinelPrefix + reason + "]"
}

// IsSentinel reports whether caption is a failure placeholder
func IsSentinel(caption string) bool {
	return strings.HasPrefix(caption, sentinelPrefix)
}

// ImageSource loads image bytes by reference
type ImageSource interface {
	Image(ref string) ([]byte, error)
}

// Options configures a Provider
type Options struct {
	Concurrency int
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Provider captions images from one source
type Provider struct {
	source      ImageSource
	describer   llm.Describer
	concurrency int
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewProvider creates a caption provider
func NewProvider(source ImageSource, describer llm.Describer, opts Options) *Provider {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Provider{
		source:      source,
		describer:   describer,
		concurrency: concurrency,
		metrics:     opts.Metrics,
		logger:      logger.Named("caption"),
	}
}

// Caption returns the alt text for ref, or a sentinel describing the failure
func (p *Provider) Caption(ctx context.Context, ref string) string {
	start := time.Now()

	text, err := p.describe(ctx, ref)
	if err != nil {
		p.logger.Warn("caption failed",
			zap.String("image", ref),
			zap.Error(err),
		)
		p.metrics.RecordCaption("failed")
		return Sentinel(err.Error())
	}

	p.logger.Debug("caption generated",
		zap.String("image", ref),
		zap.Duration("duration", time.Since(start)),
	)
	p.metrics.RecordCaption("succeeded")
	return text
}

func (p *Provider) describe(ctx context.Context, ref string) (string, error) {
	raw, err := p.source.Image(ref)
	if err != nil {
		return "", err
	}

	encoded, err := ToPNG(raw)
	if err != nil {
		return "", domain.ErrImageUnreadable(ref, err)
	}

	text, err := p.describer.Describe(ctx, encoded, "image/png", Instruction)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errNoResult
	}
	return text, nil
}

// CaptionAll captions every distinct ref concurrently. Each ref gets an
// entry; failures hold a sentinel.
func (p *Provider) CaptionAll(ctx context.Context, refs []string) domain.Captions {
	captions := make(domain.Captions, len(refs))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(p.concurrency)

	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		if seen[ref] {
			continue
		}
		seen[ref] = true

		g.Go(func() error {
			caption := p.Caption(ctx, ref)
			mu.Lock()
			captions[ref] = caption
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("captioning complete",
		zap.Int("images", len(captions)),
		zap.Int("failed", countSentinels(captions)),
	)
	return captions
}

// ToPNG decodes any supported raster format and re-encodes it as PNG
func ToPNG(data []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if format == "png" {
		return data, nil
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding %s as png: %w", format, err)
	}
	return buf.Bytes(), nil
}

func countSentinels(captions domain.Captions) int {
	n := 0
	for _, c := range captions {
		if IsSentinel(c) {
			n++
		}
	}
	return n
}
