package correction

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/llm"
	"github.com/testforge/a11yforge/internal/parse"
)

// BundleProfile is the per-language wording of a BundleCorrector
type BundleProfile struct {
	Language domain.Language
	System   string
	Role     string
	Label    string

	// Marker renders the delimiter line placed before each file
	Marker func(name string) string
}

// CSSProfile corrects stylesheets
func CSSProfile() BundleProfile {
	return BundleProfile{
		Language: domain.LanguageCSS,
		System:   "You are an expert in web accessibility and CSS.",
		Role:     "You are an expert web accessibility and CSS developer.",
		Label:    "CSS",
		Marker:   func(name string) string { return "/* FILE: " + name + " */" },
	}
}

// JSProfile corrects scripts
func JSProfile() BundleProfile {
	return BundleProfile{
		Language: domain.LanguageJS,
		System:   "You are an expert in web accessibility and JavaScript.",
		Role:     "You are an expert web accessibility and JavaScript developer.",
		Label:    "JavaScript",
		Marker:   func(name string) string { return "// FILE: " + name },
	}
}

// BundleCorrector sends every file of one language in a single prompt and
// parses a filename to content mapping from the answer
type BundleCorrector struct {
	profile BundleProfile
	caller  llm.Caller
	parser  *parse.Parser
	logger  *zap.Logger
}

// NewBundleCorrector creates a corrector for profile
func NewBundleCorrector(profile BundleProfile, caller llm.Caller, parser *parse.Parser, logger *zap.Logger) *BundleCorrector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if parser == nil {
		parser = parse.NewParser(logger, nil)
	}
	return &BundleCorrector{
		profile: profile,
		caller:  caller,
		parser:  parser,
		logger:  logger.Named("corrector").With(zap.String("language", string(profile.Language))),
	}
}

func (c *BundleCorrector) Language() domain.Language {
	return c.profile.Language
}

// Correct implements Corrector. Keys that do not name an input file are
// dropped, so the result never introduces new files.
func (c *BundleCorrector) Correct(ctx context.Context, req Request) domain.CorrectionResult {
	result := domain.CorrectionResult{}
	if len(req.Issues) == 0 || len(req.Assets) == 0 {
		c.logger.Info("nothing to correct",
			zap.Int("issues", len(req.Issues)),
			zap.Int("files", len(req.Assets)),
		)
		return result
	}

	raw := c.caller.Call(ctx, c.profile.System, c.Prompt(req.Assets, req.Issues))
	if strings.TrimSpace(raw) == "" {
		c.logger.Warn("empty model response, no files corrected")
		return result
	}

	names := make([]string, len(req.Assets))
	for i, asset := range req.Assets {
		names[i] = asset.Name
	}

	for key, content := range c.parser.StringMap(raw) {
		name, ok := resolve(names, key)
		if !ok {
			c.logger.Warn("dropping correction for unknown file", zap.String("file", key))
			continue
		}
		result[name] = content
	}

	if missing := len(names) - len(result); missing > 0 {
		c.logger.Info("model omitted files", zap.Int("missing", missing))
	}
	return result
}

// Prompt renders the correction request for assets
func (c *BundleCorrector) Prompt(assets []domain.Asset, issues domain.Issues) string {
	label := c.profile.Label
	short := label
	if c.profile.Language == domain.LanguageJS {
		short = "JS"
	}

	var b strings.Builder
	b.WriteString(c.profile.Role)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Given the following accessibility issues found in %s files and the %s code, ", label, short)
	fmt.Fprintf(&b, "provide corrected %s code for each file to fix the issues.\n", label)
	fmt.Fprintf(&b, "Return the result as a Python dictionary mapping each %s filename to its corrected %s code as a string.\n", short, short)
	b.WriteString("Use the filenames exactly as they appear in the FILE markers and fix only the listed issues.\n")
	b.WriteString("Make sure to keep the code formatting clean and do not change unrelated code.\n\n")
	b.WriteString("Accessibility Issues:\n")
	b.WriteString(issueLines(issues))
	fmt.Fprintf(&b, "\n\n%s Code:\n", label)
	b.WriteString(c.Combine(assets))
	b.WriteString("\n\nProvide only the Python dictionary as output.")
	return b.String()
}

// Combine joins assets in name order, each preceded by its marker line
func (c *BundleCorrector) Combine(assets []domain.Asset) string {
	parts := make([]string, 0, len(assets))
	for _, asset := range sortedAssets(assets) {
		parts = append(parts, c.profile.Marker(asset.Name)+"\n"+asset.Content)
	}
	return strings.Join(parts, "\n\n")
}

// resolve maps a key from the model onto an input file name. Exact names
// win; otherwise a key whose base name matches exactly one input is
// accepted.
func resolve(names []string, key string) (string, bool) {
	key = strings.TrimSpace(key)
	for _, name := range names {
		if name == key {
			return name, true
		}
	}

	base := path.Base(strings.TrimPrefix(key, "./"))
	match := ""
	for _, name := range names {
		if path.Base(name) == base {
			if match != "" {
				return "", false
			}
			match = name
		}
	}
	return match, match != ""
}
