package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/analysis"
	"github.com/testforge/a11yforge/internal/caption"
	"github.com/testforge/a11yforge/internal/config"
	"github.com/testforge/a11yforge/internal/correction"
	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/llm"
	"github.com/testforge/a11yforge/internal/observability"
	"github.com/testforge/a11yforge/internal/parse"
	"github.com/testforge/a11yforge/internal/tools"
)

// Model call purposes, used as metric labels
const (
	PurposeRecommend = "recommend_tools"
	PurposeCaption   = "caption"
)

// AnalyzePurpose labels the analysis calls of one profile
func AnalyzePurpose(profile string) string {
	return "analyze_" + profile
}

// CorrectPurpose labels the correction calls of one language
func CorrectPurpose(lang domain.Language) string {
	return "correct_" + string(lang)
}

// NewComponents builds the model-backed components from configuration
func NewComponents(cfg *config.Config, backend *llm.Backend, metrics *observability.Metrics, logger *zap.Logger) (Components, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	profiles, err := analysis.LoadProfiles(cfg.Pipeline.PromptsFile)
	if err != nil {
		return Components{}, err
	}
	if cfg.Pipeline.ChunkTokens > 0 {
		js := profiles[domain.LanguageJS]
		js.ChunkTokens = cfg.Pipeline.ChunkTokens
		profiles[domain.LanguageJS] = js
	}

	parser := parse.NewParser(logger, metrics)
	text := backend.Text

	analyzers := make(map[domain.Language]IssueAnalyzer, len(profiles))
	for lang, profile := range profiles {
		analyzers[lang] = analysis.NewAnalyzer(profile, text.For(AnalyzePurpose(profile.Name)), parser, analysis.Options{
			Concurrency: cfg.Pipeline.Concurrency,
			Metrics:     metrics,
			Logger:      logger,
		})
	}

	recommender, err := tools.New(cfg.Pipeline.RecommenderMode, text.For(PurposeRecommend), parser, logger)
	if err != nil {
		return Components{}, fmt.Errorf("creating recommender: %w", err)
	}

	var describer llm.Describer
	if backend.Vision != nil {
		describer = backend.Vision.Describer(PurposeCaption, caption.SystemPrompt)
	}

	correctors := map[domain.Language]correction.Corrector{
		domain.LanguageHTML: correction.NewHTMLCorrector(text.For(CorrectPurpose(domain.LanguageHTML)), cfg.Pipeline.HTMLFile, logger),
		domain.LanguageCSS:  correction.NewBundleCorrector(correction.CSSProfile(), text.For(CorrectPurpose(domain.LanguageCSS)), parser, logger),
		domain.LanguageJS:   correction.NewBundleCorrector(correction.JSProfile(), text.For(CorrectPurpose(domain.LanguageJS)), parser, logger),
	}

	return Components{
		Analyzers:   analyzers,
		Recommender: recommender,
		Describer:   describer,
		Correctors:  correctors,
	}, nil
}

// OptionsFromConfig maps pipeline settings onto orchestrator options
func OptionsFromConfig(cfg config.PipelineConfig, metrics *observability.Metrics, logger *zap.Logger) Options {
	return Options{
		Resume:       cfg.Resume,
		KeepOriginal: cfg.KeepOriginal,
		Concurrency:  cfg.Concurrency,
		Metrics:      metrics,
		Logger:       logger,
	}
}
