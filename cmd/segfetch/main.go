package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"segfetch/internal/config"
	"segfetch/internal/engine"
	"segfetch/internal/httpclient"
	"segfetch/internal/lockfile"
	"segfetch/internal/logging"
	"segfetch/internal/metrics"
	"segfetch/internal/progress"
	"segfetch/internal/ratelimit"
	"segfetch/internal/scheduler"
	"segfetch/internal/tasklist"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	code, err := run(ctx, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if code == 0 {
			code = 1
		}
	}
	os.Exit(code)
}

func run(ctx context.Context, args []string) (int, error) {
	if len(args) == 0 {
		usage()
		return 2, errors.New("no command provided")
	}
	switch args[0] {
	case "fetch":
		return handleFetch(ctx, args[1:])
	case "version":
		fmt.Println(version)
		return 0, nil
	case "help", "-h", "--help":
		usage()
		return 0, nil
	default:
		usage()
		return 2, fmt.Errorf("unknown command: %s", args[0])
	}
}

func usage() {
	fmt.Println(`segfetch - resumable parallel HTTP(S) file downloader

Usage:
  segfetch fetch --config <path> --input <path> [flags]
  segfetch version

Run 'segfetch fetch -h' for the full flag list.`)
}

func handleFetch(ctx context.Context, args []string) (int, error) {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to YAML config file")
	inputPath := fs.String("input", "", "Task list file: one 'url' or 'url|sha256' per line")
	outputDir := fs.String("output-dir", "", "Override general.output_dir")
	parallel := fs.Int("parallel", 0, "Override concurrency.files (0 => config/CPU default)")
	split := fs.Int("split", 0, "Override concurrency.split (0 => config default)")
	rateLimit := fs.Int64("rate-limit", -1, "Override rate.bytes_per_second (-1 => leave config as-is, 0 => unlimited)")
	verifyMode := fs.String("verify", "", "Override verify.mode: auto|on|off")
	logLevel := fs.String("log-level", "", "Override logging.level")
	jsonLogs := fs.Bool("json-logs", false, "Force JSON log output regardless of config")
	noLock := fs.Bool("no-lock", false, "Skip acquiring the run lock over output_dir")
	noProgress := fs.Bool("no-progress", false, "Disable the overwritten-line progress bar")
	if err := fs.Parse(args); err != nil {
		return 2, err
	}
	if *cfgPath == "" {
		if env := os.Getenv("SEGFETCH_CONFIG"); env != "" {
			*cfgPath = env
		}
	}
	if *cfgPath == "" {
		return 2, errors.New("--config is required or set SEGFETCH_CONFIG")
	}
	if *inputPath == "" {
		return 2, errors.New("--input is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return 1, fmt.Errorf("load config: %w", err)
	}
	if *outputDir != "" {
		cfg.General.OutputDir = *outputDir
	}
	if *parallel > 0 {
		cfg.Concurrency.Files = *parallel
	}
	if *split > 0 {
		cfg.Concurrency.Split = *split
	}
	if *rateLimit >= 0 {
		cfg.Rate.BytesPerSecond = *rateLimit
	}
	if *verifyMode != "" {
		cfg.Verify.Mode = config.Mode(*verifyMode)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *jsonLogs {
		cfg.Logging.Format = "json"
	}
	if err := cfg.Validate(); err != nil {
		return 1, fmt.Errorf("config after overrides: %w", err)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format == "json")

	if err := os.MkdirAll(cfg.General.OutputDir, 0o755); err != nil {
		return 1, fmt.Errorf("create output dir: %w", err)
	}

	if cfg.General.Lock && !*noLock {
		lockPath := filepath.Join(cfg.General.OutputDir, ".segfetch.lock")
		lock, err := lockfile.Acquire(lockPath)
		if err != nil {
			return 1, err
		}
		defer func() { _ = lock.Release() }()
	}

	items, err := (tasklist.FileProvider{Path: *inputPath}).Items()
	if err != nil {
		return 1, fmt.Errorf("read task list: %w", err)
	}
	if len(items) == 0 {
		log.Warnf("task list %s contains no items", *inputPath)
		return 0, nil
	}
	if err := requireHashesUnderVerifyOn(items, cfg.EffectiveVerifyMode()); err != nil {
		return 1, err
	}

	var metricsMgr *metrics.Manager
	if cfg.Metrics.PrometheusTextfile.Enabled {
		metricsMgr = metrics.New(cfg.Metrics.PrometheusTextfile.Path)
	}
	metricsMgr.SetRateLimit(cfg.Rate.BytesPerSecond)

	deps := engine.Deps{
		HTTP:     httpclient.New(time.Duration(cfg.EffectiveTimeout())*time.Second, cfg.Network.UserAgent),
		Limiter:  ratelimit.New(cfg.Rate.BytesPerSecond),
		Counters: progress.New(),
		Metrics:  metricsMgr,
		Log:      log,
		Split:    cfg.EffectiveSplit(),
		Verify:   cfg.EffectiveVerifyMode(),
	}

	jobs := preScan(ctx, deps, items)

	emitterCtx, stopEmitter := context.WithCancel(ctx)
	var renderer *progressRenderer
	if !*noProgress {
		renderer = newProgressRenderer(os.Stderr)
		emitter := progress.NewEmitter(deps.Counters, 10)
		go emitter.Run(emitterCtx, renderer.render)
	}

	sched := scheduler.New(deps, cfg.General.OutputDir, cfg.EffectiveFiles(runtime.NumCPU()))
	outcomes := sched.Run(ctx, jobs)

	stopEmitter()
	if renderer != nil {
		renderer.finish(deps.Counters.Snapshot())
	}

	if err := metricsMgr.Write(); err != nil {
		log.Warnf("failed to write metrics: %v", err)
	}

	failures := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failures++
			log.ErrorfURL(o.Job.URL, "%v", o.Err)
		}
	}
	if failures > 0 {
		return 1, fmt.Errorf("%d of %d files failed", failures, len(outcomes))
	}
	return 0, nil
}

// requireHashesUnderVerifyOn enforces the whole-batch half of "missing hash
// under verify=on is fatal before any download begins": engine.Download
// already rejects a single job missing its hash, but the scheduler starts
// every job's engine concurrently, so that per-engine check alone lets
// every other item's HEAD/segment work race ahead while the offending
// item fails. Checking every item here, before scheduler.Run is ever
// called, fails the entire run up front instead.
func requireHashesUnderVerifyOn(items []tasklist.Item, mode config.Mode) error {
	if mode != config.ModeOn {
		return nil
	}
	for _, it := range items {
		if it.ExpectedHash == "" {
			return fmt.Errorf("verify=on requires an expected hash for every item; missing for %s", it.URL)
		}
	}
	return nil
}

// preScan issues a HEAD for every item up front solely to seed the
// progress aggregator's bytes-known denominator before any segment work
// starts; a failed or sizeless HEAD here is not an error, the engine
// re-attempts sizing itself when the download actually runs.
func preScan(ctx context.Context, deps engine.Deps, items []tasklist.Item) []engine.Job {
	jobs := make([]engine.Job, len(items))
	for i, it := range items {
		jobs[i] = engine.Job{URL: it.URL, ExpectedHash: it.ExpectedHash}
		info, err := deps.HTTP.Head(ctx, it.URL, nil)
		if err == nil && info.ContentLength > 0 {
			deps.Counters.AddBytesKnown(info.ContentLength)
			jobs[i].AccountedInPreScan = true
		}
	}
	return jobs
}
