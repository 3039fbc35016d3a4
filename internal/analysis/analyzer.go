// Package analysis asks the model for the accessibility issues of an asset
// and parses the answer into an ordered issue list.
package analysis

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/testforge/a11yforge/internal/chunker"
	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/llm"
	"github.com/testforge/a11yforge/internal/observability"
	"github.com/testforge/a11yforge/internal/parse"
)

// Options configures an Analyzer
type Options struct {
	// Concurrency bounds parallel chunk analysis; values < 1 mean 1
	Concurrency int
	Metrics     *observability.Metrics
	Logger      *zap.Logger
}

// Analyzer runs one profile against the model
type Analyzer struct {
	profile     Profile
	caller      llm.Caller
	parser      *parse.Parser
	concurrency int
	metrics     *observability.Metrics
	logger      *zap.Logger
}

// NewAnalyzer creates an analyzer for profile
func NewAnalyzer(profile Profile, caller llm.Caller, parser *parse.Parser, opts Options) *Analyzer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if parser == nil {
		parser = parse.NewParser(logger, opts.Metrics)
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	return &Analyzer{
		profile:     profile,
		caller:      caller,
		parser:      parser,
		concurrency: concurrency,
		metrics:     opts.Metrics,
		logger:      logger.Named("analyzer").With(zap.String("profile", profile.Name)),
	}
}

// Profile returns the analyzer's profile
func (a *Analyzer) Profile() Profile {
	return a.profile
}

// Analyze returns the issues found in content. Chunked content is analyzed
// concurrently and the results are concatenated in chunk order. It never
// fails: a lost model call contributes no issues.
func (a *Analyzer) Analyze(ctx context.Context, content string) domain.Issues {
	if strings.TrimSpace(content) == "" {
		return domain.Issues{}
	}

	var chunks []string
	if a.profile.ChunkTokens > 0 {
		chunks = chunker.Split(content, a.profile.ChunkTokens)
	} else {
		chunks = []string{content}
	}
	a.metrics.RecordChunks(a.profile.Name, len(chunks))

	start := time.Now()
	results := make([]domain.Issues, len(chunks))

	if len(chunks) == 1 {
		results[0] = a.analyzeChunk(ctx, 0, chunks[0])
	} else {
		var g errgroup.Group
		g.SetLimit(a.concurrency)
		for i, chunk := range chunks {
			g.Go(func() error {
				results[i] = a.analyzeChunk(ctx, i, chunk)
				return nil
			})
		}
		_ = g.Wait()
	}

	issues := domain.Issues{}
	for _, r := range results {
		issues = append(issues, r...)
	}

	a.logger.Info("analysis complete",
		zap.Int("chunks", len(chunks)),
		zap.Int("issues", len(issues)),
		zap.Duration("duration", time.Since(start)),
	)
	return issues
}

func (a *Analyzer) analyzeChunk(ctx context.Context, index int, chunk string) domain.Issues {
	raw := a.caller.Call(ctx, a.profile.System, a.profile.Prompt(chunk))
	if strings.TrimSpace(raw) == "" {
		a.logger.Warn("empty model response, no issues recorded for chunk", zap.Int("chunk", index))
		return nil
	}
	return a.parser.Issues(raw)
}

// Bundle joins assets of one language with "\n" in lexical name order
func Bundle(assets []domain.Asset) string {
	sorted := make([]domain.Asset, len(assets))
	copy(sorted, assets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, len(sorted))
	for i, asset := range sorted {
		parts[i] = asset.Content
	}
	return strings.Join(parts, "\n")
}
