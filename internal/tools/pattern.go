package tools

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/domain"
)

// Rule routes issues that mention a marker and a trigger phrase to a tool
type Rule struct {
	Tool     string
	Marker   *regexp.Regexp
	Triggers []string
	Path     *regexp.Regexp
}

// Matches reports whether issue mentions the rule's element and problem
func (r Rule) Matches(issue string) bool {
	if !r.Marker.MatchString(issue) {
		return false
	}
	lower := strings.ToLower(issue)
	for _, trigger := range r.Triggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// Refs returns the file paths embedded in issue, or UNKNOWN
func (r Rule) Refs(issue string) []string {
	var refs []string
	seen := map[string]bool{}
	for _, m := range r.Path.FindAllString(issue, -1) {
		m = strings.TrimPrefix(m, "./")
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		refs = append(refs, m)
	}
	if len(refs) == 0 {
		return []string{domain.UnknownFileRef}
	}
	return refs
}

var (
	imagePath = regexp.MustCompile(`(?i)[\w./-]*[\w-]\.(?:png|jpe?g|gif|webp|svg|bmp|tiff?|ico|avif)\b`)
	mediaPath = regexp.MustCompile(`(?i)[\w./-]*[\w-]\.(?:mp4|webm|ogv|ogg|mov|m4v|mp3|wav|m4a)\b`)
)

// DefaultRules covers the supported tools
func DefaultRules() []Rule {
	return []Rule{
		{
			Tool:     domain.ToolImageCaptioning,
			Marker:   regexp.MustCompile(`(?i)<img\b|\bimg\b|\bimages?\b|\bpicture\b|\.(?:png|jpe?g|gif|webp|svg|bmp|tiff?|ico|avif)\b`),
			Triggers: []string{"missing alt", "non-descriptive alt", "alt text", "alt attribute", "without alt", "lacks alt", "empty alt", `alt=""`},
			Path:     imagePath,
		},
		{
			Tool:     domain.ToolVideoTranscription,
			Marker:   regexp.MustCompile(`(?i)<video\b|<audio\b|\bvideos?\b|\baudio\b|\.(?:mp4|webm|ogv|ogg|mov|m4v|mp3|wav|m4a)\b`),
			Triggers: []string{"caption", "transcript", "subtitle"},
			Path:     mediaPath,
		},
	}
}

// PatternRecommender routes issues with regular expressions, no model call
type PatternRecommender struct {
	rules  []Rule
	logger *zap.Logger
}

// NewPatternRecommender creates a recommender using DefaultRules
func NewPatternRecommender(logger *zap.Logger) *PatternRecommender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PatternRecommender{
		rules:  DefaultRules(),
		logger: logger.Named("recommender"),
	}
}

// Recommend implements Recommender. Issues matching no rule are skipped.
func (r *PatternRecommender) Recommend(_ context.Context, issues domain.Issues) domain.ToolTasks {
	tasks := domain.NewToolTasks()
	matched := 0

	for _, issue := range issues {
		hit := false
		for _, rule := range r.rules {
			if !rule.Matches(issue) {
				continue
			}
			hit = true
			for _, ref := range rule.Refs(issue) {
				tasks.Add(rule.Tool, ref)
			}
		}
		if hit {
			matched++
		}
	}

	r.logger.Debug("pattern recommendation",
		zap.Int("issues", len(issues)),
		zap.Int("matched", matched),
	)
	return tasks
}
