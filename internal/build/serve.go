package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/phanxgames/maskfx/internal/ctxlog"
	"github.com/phanxgames/maskfx/internal/livereload"
)

const (
	watchDebounce   = 100 * time.Millisecond
	shutdownTimeout = 5 * time.Second
)

// change classifies a file event.
type change uint8

const (
	changeNone   change = iota // ignored path
	changeSource               // Go source edit, triggers watch-js
	changeStatic               // static asset edit, triggers watch-static
)

// serve starts the development server and the file watchers, and blocks
// until ctx is canceled.
func (b *Builder) serve(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	b.keepAlive.Store(true)
	defer b.keepAlive.Store(false)

	hub := livereload.NewHub(logger)
	if b.reloader == nil {
		b.reloader = hub
	}

	ln, err := net.Listen("tcp", b.cfg.Serve.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.cfg.Serve.Addr, err)
	}
	url := "http://" + ln.Addr().String()
	srv := &http.Server{
		Handler:           livereload.Handler(b.cfg.BuildDir, hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()
	logger.Info("Serving build directory", "addr", url, "dir", b.cfg.BuildDir)
	if b.cfg.Serve.Open {
		if err := b.openURL(url); err != nil {
			logger.Warn("Failed to open browser", "url", url, "error", err)
		}
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchErr := make(chan error, 1)
	go func() { watchErr <- b.Watch(watchCtx) }()

	select {
	case <-ctx.Done():
	case err = <-srvErr:
		err = fmt.Errorf("server failed: %w", err)
	case err = <-watchErr:
		if err != nil {
			err = fmt.Errorf("watcher failed: %w", err)
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("Server shutdown failed", "error", shutdownErr)
	}
	return err
}

// Watch watches the source and static directories and runs watch-js or
// watch-static after a burst of changes settles. Blocks until ctx is
// canceled.
func (b *Builder) Watch(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	for _, dir := range []string{b.cfg.SourceDir, b.cfg.StaticDir} {
		if err := addTree(w, dir); err != nil {
			return err
		}
	}

	var (
		pendingSource bool
		pendingStatic bool
		fire          <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
					if err := addTree(w, ev.Name); err != nil {
						logger.Warn("Failed to watch new directory", "dir", ev.Name, "error", err)
					}
				}
			}
			switch b.classify(ev.Name) {
			case changeSource:
				pendingSource = true
			case changeStatic:
				pendingStatic = true
			default:
				continue
			}
			logger.Debug("File changed", "path", ev.Name, "op", ev.Op.String())
			fire = time.After(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", "error", err)
		case <-fire:
			fire = nil
			if pendingStatic {
				pendingStatic = false
				b.KeepFilesOnce()
				if err := b.Run(ctx, TaskWatchStatic); err != nil {
					logger.Error("Static rebuild failed", "error", err)
				}
			}
			if pendingSource {
				pendingSource = false
				if err := b.Run(ctx, TaskWatchJS); err != nil {
					logger.Error("Rebuild failed", "error", err)
				}
			}
		}
	}
}

// classify decides which watch task a changed path belongs to. Static
// assets win when the static directory is nested in the source directory.
func (b *Builder) classify(path string) change {
	if within(b.cfg.StaticDir, path) {
		return changeStatic
	}
	if within(b.cfg.SourceDir, path) && strings.HasSuffix(path, ".go") {
		return changeSource
	}
	return changeNone
}

// within reports whether path is dir or lies beneath it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// addTree adds dir and every directory beneath it to w. fsnotify does not
// watch recursively.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
