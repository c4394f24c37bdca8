// Command gamebuild builds the browser bundle of a Go game and serves it
// with live reload.
//
//	gamebuild [options] [TASK]
//
// Tasks: clean, copy-static, copy-runtime, build, fast-build, serve,
// watch-js, watch-static, default (serve).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/phanxgames/maskfx/internal/build"
	"github.com/phanxgames/maskfx/internal/config"
	"github.com/phanxgames/maskfx/internal/ctxlog"
)

// ExitError carries a process exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// options is the parsed command line.
type options struct {
	production bool
	configPath string
	logLevel   slog.Level
	task       string
}

// parseArgs processes command-line arguments. It reports shouldExit when
// help was printed.
func parseArgs(args []string, out io.Writer) (opts options, shouldExit bool, err error) {
	fs := flag.NewFlagSet("gamebuild", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, `
gamebuild - build and serve a Go game for the browser.

Usage:
  gamebuild [options] [TASK]

Tasks:
  clean, copy-static, copy-runtime, build, fast-build,
  serve, watch-js, watch-static, default

Options:
`)
		fs.PrintDefaults()
	}

	production := fs.Bool("production", false, "Strip debug info and skip the source manifest.")
	configPath := fs.String("config", config.DefaultFile, "Path to the HCL build config.")
	logLevel := fs.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return options{}, true, nil
		}
		return options{}, false, &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() > 1 {
		return options{}, false, &ExitError{Code: 2, Message: "at most one task may be given"}
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(*logLevel))); err != nil {
		return options{}, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	opts = options{
		production: *production,
		configPath: *configPath,
		logLevel:   level,
		task:       build.TaskDefault,
	}
	if fs.NArg() == 1 {
		opts.task = fs.Arg(0)
	}
	return opts, false, nil
}

// run encapsulates the command logic for testing.
func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	opts, shouldExit, err := parseArgs(args, outW)
	if err != nil || shouldExit {
		return err
	}

	logger := slog.New(slog.NewTextHandler(errW, &slog.HandlerOptions{Level: opts.logLevel}))
	ctx = ctxlog.WithLogger(ctx, logger)

	cfg, err := config.Load(opts.configPath, opts.production)
	if err != nil {
		return err
	}
	logger.Debug("Loaded config", "path", opts.configPath, "buildDir", cfg.BuildDir, "entry", cfg.Entry)

	b := build.New(cfg, build.Options{Production: opts.production, Out: errW})
	if err := b.Run(ctx, opts.task); err != nil {
		if errors.Is(err, build.ErrUnknownTask) {
			return &ExitError{Code: 2, Message: fmt.Sprintf("%v (tasks: %s)", err, strings.Join(b.Tasks(), ", "))}
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}
