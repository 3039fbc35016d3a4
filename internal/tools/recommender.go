// Package tools decides which auxiliary tools (image captioning, video
// transcription) should run for a set of accessibility issues.
package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/config"
	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/llm"
	"github.com/testforge/a11yforge/internal/parse"
)

// Recommender maps issues onto tool tasks. The result always holds an entry
// for every supported tool, possibly empty.
type Recommender interface {
	Recommend(ctx context.Context, issues domain.Issues) domain.ToolTasks
}

// New returns the recommender selected by mode
func New(mode string, caller llm.Caller, parser *parse.Parser, logger *zap.Logger) (Recommender, error) {
	switch mode {
	case "", config.RecommenderModel:
		if caller == nil {
			return nil, fmt.Errorf("model recommender requires a model caller")
		}
		return NewModelRecommender(caller, parser, logger), nil
	case config.RecommenderPattern:
		return NewPatternRecommender(logger), nil
	default:
		return nil, fmt.Errorf("unknown recommender mode: %s", mode)
	}
}

const recommenderSystem = "You are an expert accessibility engineer."

// ModelRecommender asks the model which tools apply
type ModelRecommender struct {
	caller llm.Caller
	parser *parse.Parser
	logger *zap.Logger
}

// NewModelRecommender creates a model-driven recommender
func NewModelRecommender(caller llm.Caller, parser *parse.Parser, logger *zap.Logger) *ModelRecommender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parser == nil {
		parser = parse.NewParser(logger, nil)
	}
	return &ModelRecommender{
		caller: caller,
		parser: parser,
		logger: logger.Named("recommender"),
	}
}

// Recommend implements Recommender. Tool ids outside the supported set are
// kept as the model returned them.
func (r *ModelRecommender) Recommend(ctx context.Context, issues domain.Issues) domain.ToolTasks {
	if len(issues) == 0 {
		return domain.NewToolTasks()
	}

	raw := r.caller.Call(ctx, recommenderSystem, RecommendPrompt(issues))
	if strings.TrimSpace(raw) == "" {
		r.logger.Warn("empty model response, no tools recommended")
		return domain.NewToolTasks()
	}

	tasks := domain.NewToolTasks()
	for tool, refs := range r.parser.StringListMap(raw) {
		tool = strings.TrimSpace(tool)
		if tool == "" {
			continue
		}
		if tasks[tool] == nil {
			tasks[tool] = []string{}
		}
		for _, ref := range refs {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				ref = domain.UnknownFileRef
			}
			tasks.Add(tool, ref)
		}
	}

	r.logger.Info("tools recommended",
		zap.Int("issues", len(issues)),
		zap.Strings("tools", nonEmpty(tasks)),
	)
	return tasks
}

// RecommendPrompt renders the user message listing the supported tools
func RecommendPrompt(issues domain.Issues) string {
	var b strings.Builder
	b.WriteString("You are an expert accessibility engineer.\n")
	b.WriteString("You are given a list of accessibility issues detected in HTML, CSS, or JavaScript files.\n")
	b.WriteString("Your job is to recommend which external tools should be used based on the issues.\n\n")
	b.WriteString("Supported tools:\n")
	fmt.Fprintf(&b, "- '%s': Use if image alt attributes are missing or non-descriptive.\n", domain.ToolImageCaptioning)
	fmt.Fprintf(&b, "- '%s': Use if video elements are missing captions.\n", domain.ToolVideoTranscription)
	b.WriteString("- Other tools may be included if you can justify them based on accessibility needs.\n\n")
	b.WriteString("Return your answer strictly as a Python dictionary in this format:\n")
	b.WriteString("{\n")
	fmt.Fprintf(&b, "  '%s': ['img1.jpg', 'img2.png'],\n", domain.ToolImageCaptioning)
	fmt.Fprintf(&b, "  '%s': ['video1.mp4']\n", domain.ToolVideoTranscription)
	b.WriteString("}\n")
	b.WriteString("Use only the file name or relative path from the issue description if available.\n")
	fmt.Fprintf(&b, "If the file is not specified, write '%s'.\n\n", domain.UnknownFileRef)
	b.WriteString("Accessibility Issues:\n")
	for _, issue := range issues {
		b.WriteString("- ")
		b.WriteString(issue)
		b.WriteString("\n")
	}
	return b.String()
}

func nonEmpty(tasks domain.ToolTasks) []string {
	var tools []string
	for _, tool := range tasks.Tools() {
		if len(tasks[tool]) > 0 {
			tools = append(tools, tool)
		}
	}
	return tools
}
