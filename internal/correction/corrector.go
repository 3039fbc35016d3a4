// Package correction asks the model to rewrite assets so the known issues
// are fixed. Correctors read their inputs and return new content; they never
// write files and never modify the request.
package correction

import (
	"context"
	"sort"
	"strings"

	"github.com/testforge/a11yforge/internal/domain"
)

// Request is the input of one correction stage
type Request struct {
	Assets   []domain.Asset
	Issues   domain.Issues
	Captions domain.Captions
}

// Corrector produces corrected content for the assets of one language. A
// file missing from the result means no correction was produced for it.
type Corrector interface {
	Language() domain.Language
	Correct(ctx context.Context, req Request) domain.CorrectionResult
}

func issueLines(issues domain.Issues) string {
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = "- " + issue
	}
	return strings.Join(lines, "\n")
}

// captionLines renders captions as "ref: caption" lines in ref order
func captionLines(captions domain.Captions) string {
	refs := make([]string, 0, len(captions))
	for ref := range captions {
		refs = append(refs, ref)
	}
	sort.Strings(refs)

	lines := make([]string, len(refs))
	for i, ref := range refs {
		lines[i] = ref + ": " + captions[ref]
	}
	return strings.Join(lines, "\n")
}

func sortedAssets(assets []domain.Asset) []domain.Asset {
	sorted := make([]domain.Asset, len(assets))
	copy(sorted, assets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return sorted
}
