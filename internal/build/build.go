package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync/atomic"

	"github.com/gookit/color"
	"github.com/pkg/browser"
	"github.com/phanxgames/maskfx/internal/config"
	"github.com/phanxgames/maskfx/internal/ctxlog"
)

// Task names.
const (
	TaskClean       = "clean"
	TaskCopyStatic  = "copy-static"
	TaskCopyRuntime = "copy-runtime"
	TaskBuild       = "build"
	TaskFastBuild   = "fast-build"
	TaskServe       = "serve"
	TaskWatchJS     = "watch-js"
	TaskWatchStatic = "watch-static"
	TaskDefault     = "default"
)

// ErrUnknownTask is returned by Run for names that are not registered.
var ErrUnknownTask = errors.New("unknown task")

// Reloader is notified after a watch rebuild completes.
type Reloader interface {
	Reload()
}

// commandRunner runs an external command and returns its combined output.
type commandRunner func(ctx context.Context, env []string, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)
	return cmd.CombinedOutput()
}

// Options configures a Builder.
type Options struct {
	// Production strips debug info and skips the source manifest.
	Production bool
	// Out receives the colored build-mode banner and build errors.
	// Defaults to os.Stderr.
	Out io.Writer
}

type task struct {
	deps []string
	run  func(ctx context.Context) error
}

// Builder runs build tasks against one configuration.
type Builder struct {
	cfg        config.Config
	production bool
	out        io.Writer

	run      commandRunner
	reloader Reloader
	openURL  func(url string) error

	// keepFiles makes the next clean a no-op. Set when a static asset
	// changes so the watch rebuild does not wipe the compiled bundle.
	keepFiles atomic.Bool
	// keepAlive makes bundle failures non-fatal while serving.
	keepAlive atomic.Bool

	tasks map[string]task
}

// New creates a Builder for cfg.
func New(cfg config.Config, opts Options) *Builder {
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	b := &Builder{
		cfg:        cfg,
		production: opts.Production,
		out:        out,
		run:        execCommand,
		openURL:    browser.OpenURL,
	}
	b.tasks = map[string]task{
		TaskClean:       {run: b.clean},
		TaskCopyStatic:  {deps: []string{TaskClean}, run: b.copyStatic},
		TaskCopyRuntime: {deps: []string{TaskCopyStatic}, run: b.copyRuntime},
		TaskBuild:       {deps: []string{TaskCopyRuntime}, run: b.bundle},
		TaskFastBuild:   {run: b.bundle},
		TaskServe:       {deps: []string{TaskBuild}, run: b.serve},
		TaskWatchJS:     {deps: []string{TaskFastBuild}, run: b.reload},
		TaskWatchStatic: {deps: []string{TaskCopyRuntime}, run: b.reload},
		TaskDefault:     {deps: []string{TaskServe}},
	}
	return b
}

// Tasks returns the registered task names in sorted order.
func (b *Builder) Tasks() []string {
	names := make([]string, 0, len(b.tasks))
	for name := range b.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetReloader sets the reloader notified by the watch tasks.
func (b *Builder) SetReloader(r Reloader) {
	b.reloader = r
}

// KeepFilesOnce makes the next clean task skip deleting files.
func (b *Builder) KeepFilesOnce() {
	b.keepFiles.Store(true)
}

// Run executes the named task after its dependencies.
func (b *Builder) Run(ctx context.Context, name string) error {
	return b.runTask(ctx, name, make(map[string]bool), make(map[string]bool))
}

func (b *Builder) runTask(ctx context.Context, name string, done, visiting map[string]bool) error {
	if done[name] {
		return nil
	}
	t, ok := b.tasks[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	if visiting[name] {
		return fmt.Errorf("task %q depends on itself", name)
	}
	visiting[name] = true
	for _, dep := range t.deps {
		if err := b.runTask(ctx, dep, done, visiting); err != nil {
			return err
		}
	}
	visiting[name] = false

	if err := ctx.Err(); err != nil {
		return err
	}
	logger := ctxlog.FromContext(ctx)
	if t.run != nil {
		logger.Debug("Starting task", "task", name)
		if err := t.run(ctx); err != nil {
			return fmt.Errorf("task %s: %w", name, err)
		}
		logger.Debug("Finished task", "task", name)
	}
	done[name] = true
	return nil
}

func (b *Builder) reload(ctx context.Context) error {
	if b.reloader != nil {
		b.reloader.Reload()
	}
	return nil
}

// logBuildMode prints the colored build-mode banner.
func (b *Builder) logBuildMode() {
	if b.production {
		fmt.Fprintln(b.out, color.Green.Sprint("Running production build..."))
	} else {
		fmt.Fprintln(b.out, color.Yellow.Sprint("Running development build..."))
	}
}
