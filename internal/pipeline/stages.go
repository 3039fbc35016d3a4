package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/analysis"
	"github.com/testforge/a11yforge/internal/audit"
	"github.com/testforge/a11yforge/internal/caption"
	"github.com/testforge/a11yforge/internal/correction"
	"github.com/testforge/a11yforge/internal/domain"
)

// Collect reads the snapshot. It fails only when there is nothing at all to
// work on.
func (o *Orchestrator) Collect(ctx context.Context, run *Run) domain.StageResult {
	res := o.exec(ctx, run, domain.StageCollect, o.collect)
	run.record(res)
	return res
}

// Analyze finds the issues of every language and persists them
func (o *Orchestrator) Analyze(ctx context.Context, run *Run) domain.StageResult {
	res := o.exec(ctx, run, domain.StageAnalyze, o.analyze)
	run.record(res)
	return res
}

// RecommendTools routes the HTML issues to auxiliary tools
func (o *Orchestrator) RecommendTools(ctx context.Context, run *Run) domain.StageResult {
	res := o.exec(ctx, run, domain.StageRecommendTools, o.recommendTools)
	run.record(res)
	return res
}

// Caption describes the images the captioning tool was asked for
func (o *Orchestrator) Caption(ctx context.Context, run *Run) domain.StageResult {
	res := o.exec(ctx, run, domain.StageCaption, o.caption)
	run.record(res)
	return res
}

// CorrectHTML rewrites the page document
func (o *Orchestrator) CorrectHTML(ctx context.Context, run *Run) domain.StageResult {
	return o.correctStage(ctx, run, domain.StageCorrectHTML)
}

// CorrectCSS rewrites the stylesheets
func (o *Orchestrator) CorrectCSS(ctx context.Context, run *Run) domain.StageResult {
	return o.correctStage(ctx, run, domain.StageCorrectCSS)
}

// CorrectJS rewrites the scripts
func (o *Orchestrator) CorrectJS(ctx context.Context, run *Run) domain.StageResult {
	return o.correctStage(ctx, run, domain.StageCorrectJS)
}

func (o *Orchestrator) correctStage(ctx context.Context, run *Run, stage domain.Stage) domain.StageResult {
	res := o.exec(ctx, run, stage, o.correctFor(stage))
	run.record(res)
	return res
}

func (o *Orchestrator) collect(_ context.Context, run *Run) (stageOutcome, error) {
	snap, err := run.Workspace.Source.Snapshot()
	if err != nil {
		return stageOutcome{}, err
	}
	run.Snapshot = snap

	if snap.HTML == nil {
		o.logger.Warn("no HTML document, HTML analysis and correction will be skipped",
			zap.String("file", run.Workspace.Layout.HTMLFile),
		)
	}

	count := len(snap.CSS) + len(snap.JS)
	if snap.HTML != nil {
		count++
	}
	return succeeded(count, fmt.Sprintf("%d css, %d js", len(snap.CSS), len(snap.JS))), nil
}

// errNotCollected is returned by stages that need the snapshot before
// COLLECT has run
var errNotCollected = errors.New("snapshot not collected")

func (o *Orchestrator) analyze(ctx context.Context, run *Run) (stageOutcome, error) {
	if run.Snapshot == nil {
		return stageOutcome{}, errNotCollected
	}
	loaded := 0
	var errs []error

	for _, lang := range domain.Languages {
		if o.opts.Resume {
			issues, ok, err := run.Workspace.Artifacts.LoadIssues(lang)
			if err != nil {
				o.logger.Warn("ignoring unreadable issues artifact", zap.String("language", string(lang)), zap.Error(err))
			} else if ok {
				run.Issues.Set(lang, issues)
				loaded++
				continue
			}
		}

		issues := o.analyzeLanguage(ctx, run, lang)
		run.Issues.Set(lang, issues)
		o.metrics.RecordIssues(string(lang), len(issues))

		if err := run.Workspace.Artifacts.SaveIssues(lang, run.Issues.For(lang)); err != nil {
			errs = append(errs, err)
		}
	}

	run.Report.Issues = domain.IssueCounts{
		HTML: len(run.Issues.HTML),
		CSS:  len(run.Issues.CSS),
		JS:   len(run.Issues.JS),
	}

	if err := errors.Join(errs...); err != nil {
		return stageOutcome{count: run.Issues.Total()}, err
	}
	if loaded == len(domain.Languages) {
		return resumed(run.Issues.Total()), nil
	}
	return succeeded(run.Issues.Total(), fmt.Sprintf("html=%d css=%d js=%d",
		len(run.Issues.HTML), len(run.Issues.CSS), len(run.Issues.JS))), nil
}

func (o *Orchestrator) analyzeLanguage(ctx context.Context, run *Run, lang domain.Language) domain.Issues {
	assets := run.Snapshot.Assets(lang)
	if len(assets) == 0 {
		return domain.Issues{}
	}
	analyzer, ok := o.components.Analyzers[lang]
	if !ok {
		o.logger.Warn("no analyzer configured", zap.String("language", string(lang)))
		return domain.Issues{}
	}
	return analyzer.Analyze(ctx, analysis.Bundle(assets))
}

func (o *Orchestrator) recommendTools(ctx context.Context, run *Run) (stageOutcome, error) {
	if o.opts.Resume {
		tasks, ok, err := run.Workspace.Artifacts.LoadToolTasks()
		if err != nil {
			o.logger.Warn("ignoring unreadable tool tasks artifact", zap.Error(err))
		} else if ok {
			run.Tasks = tasks
			run.Report.Tools = tasks
			return resumed(countTasks(tasks)), nil
		}
	}

	if o.components.Recommender == nil {
		run.Tasks = domain.NewToolTasks()
		run.Report.Tools = run.Tasks
		if err := run.Workspace.Artifacts.SaveToolTasks(run.Tasks); err != nil {
			return stageOutcome{}, err
		}
		return skipped("no recommender configured"), nil
	}

	run.Tasks = o.components.Recommender.Recommend(ctx, run.Issues.HTML).Ensure()
	run.Report.Tools = run.Tasks

	if err := run.Workspace.Artifacts.SaveToolTasks(run.Tasks); err != nil {
		return stageOutcome{count: countTasks(run.Tasks)}, err
	}
	return succeeded(countTasks(run.Tasks), strings.Join(nonEmptyTools(run.Tasks), ",")), nil
}

func (o *Orchestrator) caption(ctx context.Context, run *Run) (stageOutcome, error) {
	refs := o.imageRefs(run)
	if len(refs) == 0 {
		run.Captions = domain.Captions{}
		return skipped("no image captioning task"), nil
	}

	if o.opts.Resume {
		captions, ok, err := run.Workspace.Artifacts.LoadCaptions()
		if err != nil {
			o.logger.Warn("ignoring unreadable captions artifact", zap.Error(err))
		} else if ok {
			run.Captions = captions
			run.Report.Captions = len(captions)
			return resumed(len(captions)), nil
		}
	}

	if o.components.Describer == nil {
		run.Captions = domain.Captions{}
		return skipped("no vision model configured"), nil
	}

	provider := caption.NewProvider(run.Workspace.Source, o.components.Describer, caption.Options{
		Concurrency: o.opts.Concurrency,
		Metrics:     o.metrics,
		Logger:      o.logger,
	})
	run.Captions = provider.CaptionAll(ctx, refs)
	run.Report.Captions = len(run.Captions)

	if err := run.Workspace.Artifacts.SaveCaptions(run.Captions); err != nil {
		return stageOutcome{count: len(run.Captions)}, err
	}

	failed := 0
	for _, c := range run.Captions {
		if caption.IsSentinel(c) {
			failed++
		}
	}
	return succeeded(len(run.Captions), fmt.Sprintf("%d failed", failed)), nil
}

// imageRefs returns the images to caption. An UNKNOWN reference expands to
// the local images of the document that have no alt attribute.
func (o *Orchestrator) imageRefs(run *Run) []string {
	var refs []string
	seen := map[string]bool{}
	add := func(ref string) {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}

	for _, ref := range run.Tasks[domain.ToolImageCaptioning] {
		if ref != domain.UnknownFileRef {
			add(ref)
			continue
		}
		if run.Snapshot == nil || run.Snapshot.HTML == nil {
			continue
		}
		report, err := audit.Images(run.Snapshot.HTML.Content)
		if err != nil {
			o.logger.Warn("cannot resolve UNKNOWN image reference", zap.Error(err))
			continue
		}
		for _, src := range report.MissingAltSources() {
			if isLocal(src) {
				add(src)
			}
		}
	}
	return refs
}

func isLocal(src string) bool {
	return !strings.Contains(src, "://") && !strings.HasPrefix(src, "data:") && !strings.HasPrefix(src, "//")
}

func (o *Orchestrator) correctFor(stage domain.Stage) stageFunc {
	lang := languageOf(stage)
	return func(ctx context.Context, run *Run) (stageOutcome, error) {
		return o.correct(ctx, run, lang)
	}
}

func (o *Orchestrator) correct(ctx context.Context, run *Run, lang domain.Language) (stageOutcome, error) {
	if run.Snapshot == nil {
		return stageOutcome{}, errNotCollected
	}
	assets := run.Snapshot.Assets(lang)
	if len(assets) == 0 {
		return skipped(fmt.Sprintf("no %s input", lang)), nil
	}

	var result domain.CorrectionResult
	if corrector, ok := o.components.Correctors[lang]; ok {
		result = corrector.Correct(ctx, correction.Request{
			Assets:   assets,
			Issues:   run.Issues.For(lang),
			Captions: run.Captions,
		})
	}
	if result == nil {
		result = domain.CorrectionResult{}
	}
	run.setCorrection(lang, result)

	corrected, kept := 0, 0
	var errs []error
	for _, asset := range assets {
		content, ok := result[asset.Name]
		source := "corrected"
		if !ok || strings.TrimSpace(content) == "" {
			if !o.opts.KeepOriginal {
				continue
			}
			content = asset.Content
			source = "original"
		}

		path, err := run.Workspace.Output.Write(lang, asset.Name, content)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		run.addWritten(path)
		o.metrics.RecordFileWritten(string(lang), source)
		if source == "corrected" {
			corrected++
		} else {
			kept++
		}
	}

	outcome := succeeded(corrected, fmt.Sprintf("%d corrected, %d kept", corrected, kept))
	if err := errors.Join(errs...); err != nil {
		return outcome, domain.ErrArtifact("output", err)
	}
	return outcome, nil
}

// auditImages compares the images of the document before and after
// correction
func (o *Orchestrator) auditImages(run *Run) {
	if run.Snapshot == nil || run.Snapshot.HTML == nil {
		return
	}
	html := run.Snapshot.HTML
	after := run.correction(domain.LanguageHTML)[html.Name]

	result, err := audit.CompareImages(html.Content, after)
	if err != nil {
		o.logger.Warn("image audit failed", zap.Error(err))
		return
	}
	run.Report.Images = result
}

func languageOf(stage domain.Stage) domain.Language {
	switch stage {
	case domain.StageCorrectCSS:
		return domain.LanguageCSS
	case domain.StageCorrectJS:
		return domain.LanguageJS
	default:
		return domain.LanguageHTML
	}
}

func countTasks(tasks domain.ToolTasks) int {
	n := 0
	for _, refs := range tasks {
		n += len(refs)
	}
	return n
}

func nonEmptyTools(tasks domain.ToolTasks) []string {
	var out []string
	for _, tool := range tasks.Tools() {
		if len(tasks[tool]) > 0 {
			out = append(out, tool)
		}
	}
	return out
}
