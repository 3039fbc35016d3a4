package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/fatih/color"
	goredis "github.com/redis/go-redis/v9"
	"github.com/schollz/progressbar/v3"

	"github.com/testforge/a11yforge/internal/domain"
	"github.com/testforge/a11yforge/internal/pipeline"
	rediscache "github.com/testforge/a11yforge/internal/repository/redis"
)

func cacheClient(cache *rediscache.Cache) *goredis.Client {
	if cache == nil {
		return nil
	}
	return cache.Client()
}

func printBanner() {
	// Byte-identical to cyan.Println(banner): color wraps the banner, then a newline.
	fmt.Fprintln(color.Output, cyan.Sprint(`
╔════════════════════════════════════════════════════╗
║                    a11yforge                       ║
║        Accessibility remediation pipeline          ║
╚════════════════════════════════════════════════════╝
`))
}

// progress shows a bar over the pipeline stages. The correction stages
// report concurrently.
type progress struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func newProgress() *progress {
	return &progress{
		bar: progressbar.NewOptions(len(domain.Stages)-1,
			progressbar.OptionSetDescription("   Remediating..."),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerPadding: "░",
				BarStart:      "│",
				BarEnd:        "│",
			}),
		),
	}
}

func (p *progress) Hooks() pipeline.Hooks {
	return pipeline.Hooks{
		StageStarted: func(stage domain.Stage) {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.bar.Describe(fmt.Sprintf("   %s...", stage))
		},
		StageFinished: func(result domain.StageResult) {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.bar.Clear()
			printStage(result)
			p.bar.Add(1)
		},
	}
}

func (p *progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Finish()
}

func printStage(result domain.StageResult) {
	line := fmt.Sprintf("%-14s %s", result.Stage, stageDetail(result))
	switch result.Status {
	case domain.StageStatusFailed:
		red.Printf("   ✗ %s\n", line)
	case domain.StageStatusSkipped:
		dim.Printf("   - %s\n", line)
	case domain.StageStatusResumed:
		yellow.Printf("   ↺ %s\n", line)
	default:
		green.Printf("   ✓ %s\n", line)
	}
}

func stageDetail(result domain.StageResult) string {
	if result.Status == domain.StageStatusFailed {
		return result.Error
	}
	detail := result.Detail
	if result.Duration > 0 {
		detail = strings.TrimSpace(fmt.Sprintf("%s (%s)", detail, result.Duration.Round(1e6)))
	}
	return detail
}

func printSummary(report *domain.RunReport) {
	if report == nil {
		return
	}
	fmt.Println()
	cyan.Println("┌─────────────────────────────────────────────────────┐")
	cyan.Println("│                   RUN SUMMARY                       │")
	cyan.Println("├─────────────────────────────────────────────────────┤")

	statusColor, statusText := green, "✓ SUCCEEDED"
	if failed := report.Failed(); len(failed) > 0 {
		statusColor, statusText = yellow, fmt.Sprintf("⚠ %d STAGE(S) FAILED", len(failed))
	}
	fmt.Printf("│ Status:       ")
	statusColor.Printf("%-38s", statusText)
	fmt.Println("│")

	fmt.Printf("│ Run:          %-38s│\n", report.RunID.String()[:8])
	fmt.Printf("│ Issues:       %-38s│\n",
		fmt.Sprintf("html %d, css %d, js %d", report.Issues.HTML, report.Issues.CSS, report.Issues.JS))
	fmt.Printf("│ Captions:     %-38d│\n", report.Captions)
	fmt.Printf("│ Files:        %-38d│\n", len(report.Written))
	if report.Images.Images > 0 {
		fmt.Printf("│ Missing alt:  %-38s│\n",
			fmt.Sprintf("%d → %d of %d images", report.Images.MissingBefore, report.Images.MissingAfter, report.Images.Images))
	}
	if !report.FinishedAt.IsZero() {
		fmt.Printf("│ Duration:     %-38s│\n", report.FinishedAt.Sub(report.StartedAt).Round(1e6))
	}
	cyan.Println("└─────────────────────────────────────────────────────┘")

	for _, stage := range report.Failed() {
		if res, ok := report.Result(stage); ok {
			bold.Printf("   %s: ", stage)
			fmt.Println(res.Error)
		}
	}
}
