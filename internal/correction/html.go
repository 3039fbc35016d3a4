package correction

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/llm"
	"github.com/testforge/a11yforge/internal/parse"
)

const htmlSystem = "You are an expert in accessible HTML coding."

// HTMLCorrector rewrites the page document. The model answer is the
// corrected document itself, not a structured value.
type HTMLCorrector struct {
	caller   llm.Caller
	filename string
	logger   *zap.Logger
}

// NewHTMLCorrector creates a corrector for the document named filename
func NewHTMLCorrector(caller llm.Caller, filename string, logger *zap.Logger) *HTMLCorrector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if filename == "" {
		filename = "index.html"
	}
	return &HTMLCorrector{
		caller:   caller,
		filename: filename,
		logger:   logger.Named("corrector").With(zap.String("language", string(domain.LanguageHTML))),
	}
}

func (c *HTMLCorrector) Language() domain.Language {
	return domain.LanguageHTML
}

// Correct returns exactly one entry keyed by the document name when the
// model was called. The value is empty when the model gave no answer.
func (c *HTMLCorrector) Correct(ctx context.Context, req Request) domain.CorrectionResult {
	if len(req.Issues) == 0 {
		c.logger.Info("no issues, skipping correction")
		return domain.CorrectionResult{}
	}

	document := ""
	for _, asset := range req.Assets {
		if asset.Name == c.filename {
			document = asset.Content
			break
		}
	}
	if document == "" && len(req.Assets) > 0 {
		document = req.Assets[0].Content
	}

	raw := c.caller.Call(ctx, htmlSystem, HTMLPrompt(document, req.Issues, req.Captions))
	corrected := parse.StripFence(raw)
	if corrected == "" {
		c.logger.Warn("empty model response, document not corrected")
	}

	return domain.CorrectionResult{c.filename: corrected}
}

// HTMLPrompt renders the correction request for the page document
func HTMLPrompt(document string, issues domain.Issues, captions domain.Captions) string {
	var b strings.Builder
	b.WriteString("You are an expert web developer specialized in accessibility.\n")
	b.WriteString("Below are HTML accessibility issues and the HTML code. Your job is to fix only those issues ")
	b.WriteString("that can be addressed by editing HTML structure or attributes (e.g., adding labels, ARIA roles, skip links, lang tags).\n")
	b.WriteString("Use the image captions provided to add meaningful alt text to <img> tags when appropriate.\n")
	b.WriteString("DO NOT attempt to fix issues requiring video transcripts. Ignore them.\n")
	b.WriteString("Do not modify CSS or JavaScript.\n")
	b.WriteString("Return only the corrected HTML string.\n\n")
	b.WriteString("Issues:\n")
	b.WriteString(issueLines(issues))
	b.WriteString("\n\nImage Captions:\n")
	b.WriteString(captionLines(captions))
	b.WriteString("\n\nHTML Code:\n")
	b.WriteString(document)
	b.WriteString("\n")
	return b.String()
}
