package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/testforge/a11yforge/internal/config"
	"github.com/testforge/a11yforge/internal/llm"
	"github.com/testforge/a11yforge/internal/observability"
	"github.com/testforge/a11yforge/internal/pipeline"
	rediscache "github.com/testforge/a11yforge/internal/repository/redis"
	"github.com/testforge/a11yforge/internal/storage"
	"github.com/testforge/a11yforge/internal/temporal"
	"github.com/testforge/a11yforge/internal/workflows"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	bold   = color.New(color.Bold)
	dim    = color.New(color.Faint)
)

func main() {
	godotenv.Load()

	workDir := flag.String("dir", "", "Directory holding the input, output and artifact roots (default: configured paths)")
	input := flag.String("input", "", "Input snapshot directory (overrides PIPELINE_INPUT_DIR)")
	output := flag.String("output", "", "Output directory (overrides PIPELINE_OUTPUT_DIR)")
	artifacts := flag.String("artifacts", "", "Artifact directory (overrides PIPELINE_ARTIFACT_DIR)")
	resume := flag.Bool("resume", false, "Reuse artifacts from a previous run")
	recommender := flag.String("recommender", "", "Tool recommender: model or pattern")
	concurrency := flag.Int("concurrency", 0, "Parallel model calls per stage")
	mirror := flag.Bool("mirror", false, "Mirror the run to object storage")
	submit := flag.Bool("temporal", false, "Submit the run to the Temporal worker instead of running locally")
	wait := flag.Bool("wait", true, "With -temporal, wait for the workflow to finish")
	verbose := flag.Bool("verbose", false, "Verbose output")

	flag.Parse()

	cfg, err := config.LoadWithDefaults()
	if err != nil {
		red.Printf("❌ Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, *input, *output, *artifacts, *recommender, *concurrency, *resume, *mirror)

	if err := cfg.Validate(); err != nil {
		red.Printf("❌ %v\n", err)
		fmt.Println("   Add the missing settings to the .env file or the environment")
		os.Exit(1)
	}

	logger := newLogger(cfg, *verbose)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	layout := storage.LayoutFromConfig(cfg.Pipeline).Under(*workDir)
	metrics := observability.NewMetrics(cfg.Metrics.Job)

	var code int
	if *submit {
		code = runRemote(ctx, cfg, *workDir, *wait, metrics, logger)
	} else {
		code = runLocal(ctx, cfg, layout, metrics, logger)
	}

	if err := metrics.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
		yellow.Printf("⚠ Failed to push metrics: %v\n", err)
	}
	os.Exit(code)
}

func applyFlags(cfg *config.Config, input, output, artifacts, recommender string, concurrency int, resume, mirror bool) {
	if input != "" {
		cfg.Pipeline.InputDir = input
	}
	if output != "" {
		cfg.Pipeline.OutputDir = output
	}
	if artifacts != "" {
		cfg.Pipeline.ArtifactDir = artifacts
	}
	if recommender != "" {
		cfg.Pipeline.RecommenderMode = recommender
	}
	if concurrency > 0 {
		cfg.Pipeline.Concurrency = concurrency
	}
	if resume {
		cfg.Pipeline.Resume = true
	}
	if mirror {
		cfg.Storage.Enabled = true
	}
}

// newLogger keeps the console for the progress display unless verbose
func newLogger(cfg *config.Config, verbose bool) *zap.Logger {
	if verbose {
		return observability.NewLogger(string(cfg.Env), "debug")
	}
	logger, err := quietLogConfig().Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// quietLogConfig keeps warnings and errors on stderr so they survive the
// progress display on stdout
func quietLogConfig() zap.Config {
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	zcfg.Development = false
	zcfg.DisableStacktrace = true
	zcfg.EncoderConfig.TimeKey = ""
	zcfg.OutputPaths = []string{"stderr"}
	zcfg.ErrorOutputPaths = []string{"stderr"}
	return zcfg
}

func runLocal(ctx context.Context, cfg *config.Config, layout storage.Layout, metrics *observability.Metrics, logger *zap.Logger) int {
	printBanner()
	fmt.Printf("📂 Input:  %s\n", layout.InputDir)
	fmt.Printf("📁 Output: %s\n", layout.OutputDir)
	fmt.Println()

	opts := pipeline.OptionsFromConfig(cfg.Pipeline, metrics, logger)

	var cache *rediscache.Cache
	if cfg.Redis.Enabled {
		c, err := rediscache.New(cfg.Redis)
		if err != nil {
			yellow.Printf("⚠ Redis unavailable, response cache and report store disabled: %v\n", err)
		} else {
			cache = c
			defer cache.Close()
			opts.Reports = cache
		}
	}

	if cfg.Storage.Enabled {
		m, err := newMirror(ctx, cfg, logger)
		if err != nil {
			yellow.Printf("⚠ Object storage unavailable, mirroring disabled: %v\n", err)
		} else {
			opts.Mirror = m
		}
	}

	backend, err := llm.NewBackend(cfg, cacheClient(cache), metrics, logger)
	if err != nil {
		red.Printf("❌ Failed to create model backend: %v\n", err)
		return 1
	}
	defer backend.Close()

	components, err := pipeline.NewComponents(cfg, backend, metrics, logger)
	if err != nil {
		red.Printf("❌ %v\n", err)
		return 1
	}

	progress := newProgress()
	opts.Hooks = progress.Hooks()

	orch := pipeline.New(components, opts)
	report, err := orch.Execute(ctx, pipeline.NewRun(uuid.New(), storage.NewWorkspace(layout, logger), time.Now()))
	progress.Finish()

	printSummary(report)
	if err != nil {
		red.Printf("\n❌ %v\n", err)
		return 1
	}
	if !report.Succeeded() {
		return 2
	}
	return 0
}

func runRemote(ctx context.Context, cfg *config.Config, workDir string, wait bool, metrics *observability.Metrics, logger *zap.Logger) int {
	tc, err := temporal.NewClient(cfg.Temporal, logger)
	if err != nil {
		red.Printf("❌ %v\n", err)
		return 1
	}
	defer tc.Close()
	tc.WithMetrics(metrics)

	run, err := tc.StartRemediation(ctx, workflows.RemediationInput{
		RunID:   uuid.New(),
		WorkDir: workDir,
		Resume:  cfg.Pipeline.Resume,
		Mirror:  cfg.Storage.Enabled,
	})
	if err != nil {
		red.Printf("❌ Failed to submit run: %v\n", err)
		return 1
	}

	green.Printf("✓ Submitted %s\n", run.GetID())
	dim.Printf("   task queue %s, namespace %s\n", tc.TaskQueue(), tc.Namespace())
	if !wait {
		return 0
	}

	var out workflows.RemediationOutput
	if err := run.Get(ctx, &out); err != nil {
		metrics.RecordWorkflowComplete(workflows.RemediationWorkflowName, workflows.StatusFailed)
		red.Printf("❌ Workflow failed: %v\n", err)
		return 1
	}
	metrics.RecordWorkflowComplete(workflows.RemediationWorkflowName, out.Status)

	if out.Report != nil {
		printSummary(out.Report)
	}
	if out.Mirrored > 0 {
		dim.Printf("   mirrored %d objects\n", out.Mirrored)
	}
	switch out.Status {
	case pipeline.StatusSucceeded:
		return 0
	case pipeline.StatusPartial:
		return 2
	default:
		red.Printf("❌ %s\n", out.Error)
		return 1
	}
}

func newMirror(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage.MinIOMirror, error) {
	m, err := storage.NewMinIOMirror(storage.MinIOConfigFrom(cfg.Storage), logger)
	if err != nil {
		return nil, err
	}
	if err := m.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
