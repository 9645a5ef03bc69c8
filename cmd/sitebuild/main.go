package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitebuild/internal/build"
	"git.home.luguber.info/inful/sitebuild/internal/cache"
	"git.home.luguber.info/inful/sitebuild/internal/config"
	sberrors "git.home.luguber.info/inful/sitebuild/internal/errors"
	"git.home.luguber.info/inful/sitebuild/internal/metrics"
	"git.home.luguber.info/inful/sitebuild/internal/server"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"sitebuild.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Source string `short:"s" help:"Source directory (overrides config)"`
		Output string `short:"o" help:"Output directory (overrides config)"`
		Clean  bool   `help:"Remove the output directory before building"`
	} `cmd:"" help:"Build the site once"`

	Serve struct {
		Addr string `short:"a" help:"Listen address (overrides config)"`
	} `cmd:"" help:"Build, then serve with file watching and live reload"`

	Init struct {
		Force bool `help:"Overwrite an existing configuration file"`
	} `cmd:"" help:"Write a starter configuration file"`

	Clean struct{} `cmd:"" help:"Remove the output directory and build cache"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	var err error
	switch ctx.Command() {
	case "build":
		err = runBuild(logger)
	case "serve":
		err = runServe(logger)
	case "init":
		err = runInit(CLI.Config, CLI.Init.Force)
	case "clean":
		err = runClean(logger)
	default:
		err = fmt.Errorf("unknown command: %s", ctx.Command())
	}
	if err != nil {
		reportError(err)
		os.Exit(1)
	}
}

// reportError prints a BuildError with its suggestions, or a plain message.
func reportError(err error) {
	var berr *sberrors.BuildError
	if errors.As(err, &berr) {
		fmt.Fprintln(os.Stderr, "error:", berr.UserMessage())
		return
	}
	fmt.Fprintln(os.Stderr, "error:", err)
}

func loadOptions() (*config.Options, error) {
	opts, err := config.Load(CLI.Config)
	if err != nil {
		// No config file is fine for quick one-off builds; everything has
		// a default.
		if sberrors.IsCategory(err, sberrors.CategoryConfig) && os.IsNotExist(errorCause(err)) {
			opts = config.Default()
		} else {
			return nil, err
		}
	}
	if CLI.Build.Source != "" {
		opts.Source = CLI.Build.Source
	}
	if CLI.Build.Output != "" {
		opts.Output = CLI.Build.Output
	}
	if CLI.Build.Clean {
		opts.Clean = true
	}
	if CLI.Serve.Addr != "" {
		opts.Serve.Addr = CLI.Serve.Addr
	}
	return opts, opts.Validate()
}

func errorCause(err error) error {
	var berr *sberrors.BuildError
	if errors.As(err, &berr) && berr.Cause != nil {
		return berr.Cause
	}
	return err
}

func newSession(opts *config.Options, recorder metrics.Recorder, logger *slog.Logger) (*build.Session, error) {
	var store cache.Store
	if opts.CacheEnabled() {
		dbPath := cacheDBPath(opts)
		s, err := cache.NewSQLiteStore(dbPath)
		if err != nil {
			// A broken cache never blocks a build.
			logger.Warn("cache store unavailable, building without cache", "path", dbPath, "error", err)
		} else {
			store = s
		}
	}
	return build.NewSession(opts, store, recorder, logger)
}

func cacheDBPath(opts *config.Options) string {
	return filepath.Join(cacheDir(opts), "cache.db")
}

func runBuild(logger *slog.Logger) error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}
	session, err := newSession(opts, nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = session.Cache.Close() }()

	report, err := build.NewBuilder(session).Run(context.Background())
	for _, berr := range report.Errors {
		fmt.Fprintln(os.Stderr, berr.UserMessage())
	}
	fmt.Printf("processed %d, copied %d, skipped %d, errors %d in %s\n",
		report.Processed, report.Copied, report.Skipped, len(report.Errors), report.Duration.Round(1e6))
	return err
}

func runServe(logger *slog.Logger) error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}

	var recorder metrics.Recorder
	var registry *prom.Registry
	if opts.Serve.Metrics {
		registry = prom.NewRegistry()
		recorder = metrics.NewPrometheusRecorder(registry)
	}

	session, err := newSession(opts, recorder, logger)
	if err != nil {
		return err
	}
	defer func() { _ = session.Cache.Close() }()

	builder := build.NewBuilder(session)
	if _, err := builder.Run(context.Background()); err != nil {
		// Serve anyway: error markers in the browser beat a dead server.
		logger.Error("initial build had errors", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.New(builder, registry, logger).ListenAndServe(ctx)
}

func runInit(configPath string, force bool) error {
	slog.Info("Initializing configuration", "path", configPath, "force", force)
	return config.Init(configPath, force)
}

func runClean(logger *slog.Logger) error {
	opts, err := loadOptions()
	if err != nil {
		return err
	}
	for _, dir := range []string{opts.Output, cacheDir(opts)} {
		if err := os.RemoveAll(dir); err != nil {
			return sberrors.FileSystemError("clean", dir, err)
		}
		logger.Info("removed", "path", dir)
	}
	return nil
}

func cacheDir(opts *config.Options) string {
	if filepath.IsAbs(opts.CacheDir) {
		return opts.CacheDir
	}
	return filepath.Join(opts.Source, opts.CacheDir)
}
