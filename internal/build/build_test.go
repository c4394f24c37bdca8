package build

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/phanxgames/maskfx/internal/config"
	"github.com/stretchr/testify/require"
)

// fakeRunner records commands instead of executing them.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	envs   [][]string
	goroot string
	fail   bool
	// dirs maps import paths to package directories for go list.
	dirs map[string]string
}

func (f *fakeRunner) run(ctx context.Context, env []string, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.envs = append(f.envs, env)
	if len(args) > 0 && args[0] == "env" {
		return []byte(f.goroot + "\n"), nil
	}
	if len(args) > 0 && args[0] == "list" {
		pkg := args[len(args)-1]
		if dir, ok := f.dirs[pkg]; ok {
			return []byte(dir + "\n"), nil
		}
		return []byte(pkg + "\n"), nil
	}
	if f.fail {
		return []byte("main.go:3:1: syntax error"), errors.New("exit status 1")
	}
	return nil, nil
}

// lastBuild returns the arguments and environment of the most recent go build.
func (f *fakeRunner) lastBuild() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if c := f.calls[i]; len(c) > 1 && c[1] == "build" {
			return c, f.envs[i]
		}
	}
	return nil, nil
}

func (f *fakeRunner) buildCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if len(c) > 1 && c[1] == "build" {
			n++
		}
	}
	return n
}

// countingReloader counts Reload calls.
type countingReloader struct {
	mu sync.Mutex
	n  int
}

func (r *countingReloader) Reload() {
	r.mu.Lock()
	r.n++
	r.mu.Unlock()
}

func (r *countingReloader) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func writeFile(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
}

// newTestBuilder lays out a project in a temp dir and returns a Builder
// whose commands go to a fakeRunner.
func newTestBuilder(t *testing.T, production bool) (*Builder, *fakeRunner, *bytes.Buffer) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.BuildDir = filepath.Join(root, "build")
	cfg.SourceDir = filepath.Join(root, "game")
	cfg.StaticDir = filepath.Join(root, "game", "static")
	cfg.Entry = filepath.Join(root, "game")
	cfg.RuntimeDir = filepath.Join(root, "goroot", "lib", "wasm")

	writeFile(t, filepath.Join(cfg.SourceDir, "main.go"), "package main\n")
	writeFile(t, filepath.Join(cfg.SourceDir, "main_test.go"), "package main\n")
	writeFile(t, filepath.Join(cfg.StaticDir, "index.html"), "<body></body>")
	writeFile(t, filepath.Join(cfg.StaticDir, "img", "mask.png"), "png")
	writeFile(t, filepath.Join(cfg.RuntimeDir, runtimeFile), "// runtime")

	out := &bytes.Buffer{}
	b := New(cfg, Options{Production: production, Out: out})
	fr := &fakeRunner{goroot: filepath.Join(root, "goroot")}
	b.run = fr.run
	return b, fr, out
}

func TestTasks_Names(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	require.Equal(t, []string{
		TaskBuild, TaskClean, TaskCopyRuntime, TaskCopyStatic, TaskDefault,
		TaskFastBuild, TaskServe, TaskWatchJS, TaskWatchStatic,
	}, b.Tasks())
}

func TestRun_DependencyOrder(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	var order []string
	for name, tk := range b.tasks {
		name := name
		tk.run = func(context.Context) error {
			order = append(order, name)
			return nil
		}
		b.tasks[name] = tk
	}

	require.NoError(t, b.Run(context.Background(), TaskDefault))
	require.Equal(t, []string{TaskClean, TaskCopyStatic, TaskCopyRuntime, TaskBuild, TaskServe, TaskDefault}, order)
}

func TestRun_SharedDependencyRunsOnce(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	calls := 0
	clean := b.tasks[TaskClean]
	clean.run = func(context.Context) error { calls++; return nil }
	b.tasks[TaskClean] = clean
	b.tasks["both"] = task{deps: []string{TaskCopyStatic, TaskCopyRuntime}}

	require.NoError(t, b.Run(context.Background(), "both"))
	require.Equal(t, 1, calls)
}

func TestRun_UnknownTask(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	err := b.Run(context.Background(), "deploy")
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestRun_Cycle(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	b.tasks["a"] = task{deps: []string{"b"}}
	b.tasks["b"] = task{deps: []string{"a"}}
	err := b.Run(context.Background(), "a")
	require.Error(t, err)
	require.Contains(t, err.Error(), "depends on itself")
}

func TestRun_StopsOnFailedDependency(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	ran := false
	cs := b.tasks[TaskCopyStatic]
	cs.run = func(context.Context) error { return errors.New("disk full") }
	b.tasks[TaskCopyStatic] = cs
	cr := b.tasks[TaskCopyRuntime]
	cr.run = func(context.Context) error { ran = true; return nil }
	b.tasks[TaskCopyRuntime] = cr

	err := b.Run(context.Background(), TaskCopyRuntime)
	require.Error(t, err)
	require.Contains(t, err.Error(), "disk full")
	require.False(t, ran)
}

func TestBuild_Development(t *testing.T) {
	b, fr, out := newTestBuilder(t, false)
	require.NoError(t, b.Run(context.Background(), TaskBuild))

	scripts := b.scriptsDir()
	require.FileExists(t, filepath.Join(b.cfg.BuildDir, "index.html"))
	require.FileExists(t, filepath.Join(b.cfg.BuildDir, "img", "mask.png"))
	require.FileExists(t, filepath.Join(scripts, runtimeFile))

	require.Equal(t, 1, fr.buildCalls())
	last, env := fr.lastBuild()
	require.NotContains(t, last, "-trimpath")
	require.Equal(t, b.cfg.Entry, last[len(last)-1])
	require.Contains(t, env, "GOOS=js")
	require.Contains(t, env, "GOARCH=wasm")

	data, err := os.ReadFile(filepath.Join(scripts, b.cfg.OutputFile+".map"))
	require.NoError(t, err)
	var m sourceManifest
	require.NoError(t, json.Unmarshal(data, &m))
	require.Equal(t, b.cfg.OutputFile, m.File)
	require.Len(t, m.Sources, 1)
	require.True(t, strings.HasSuffix(m.Sources[0], "main.go"))

	require.Contains(t, out.String(), "Running development build...")
}

func TestBuild_Production(t *testing.T) {
	b, fr, out := newTestBuilder(t, true)
	stale := filepath.Join(b.scriptsDir(), b.cfg.OutputFile+".map")
	writeFile(t, stale, "{}")

	require.NoError(t, b.Run(context.Background(), TaskFastBuild))

	last, _ := fr.lastBuild()
	require.Contains(t, last, "-trimpath")
	require.Contains(t, last, "-ldflags=-s -w")
	require.NoFileExists(t, stale)
	require.Contains(t, out.String(), "Running production build...")
}

func TestBuild_ManifestForImportPathEntry(t *testing.T) {
	b, fr, _ := newTestBuilder(t, false)
	fr.dirs = map[string]string{"example.com/game": b.cfg.SourceDir}
	b.cfg.Entry = "example.com/game"

	require.NoError(t, b.Run(context.Background(), TaskFastBuild))

	last, _ := fr.lastBuild()
	require.Equal(t, "example.com/game", last[len(last)-1])
	data, err := os.ReadFile(filepath.Join(b.scriptsDir(), b.cfg.OutputFile+".map"))
	require.NoError(t, err)
	var m sourceManifest
	require.NoError(t, json.Unmarshal(data, &m))
	require.Equal(t, "example.com/game", m.Entry)
	require.Equal(t, []string{filepath.ToSlash(filepath.Join(b.cfg.SourceDir, "main.go"))}, m.Sources)
}

func TestServe_OpensBrowserWhenConfigured(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	b.cfg.Serve = &config.ServeConfig{Addr: "127.0.0.1:0", Open: true}
	require.NoError(t, b.Run(context.Background(), TaskCopyStatic))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opened := make(chan string, 1)
	b.openURL = func(url string) error {
		opened <- url
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- b.serve(ctx) }()

	var url string
	select {
	case url = <-opened:
	case err := <-done:
		t.Fatalf("serve returned before opening the browser: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("browser was not opened")
	}
	require.True(t, strings.HasPrefix(url, "http://127.0.0.1:"))
	require.NotEqual(t, "http://127.0.0.1:0", url)

	resp, err := http.Get(url + "/index.html")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
}

func TestServe_DoesNotOpenBrowserByDefault(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	b.cfg.Serve = &config.ServeConfig{Addr: "127.0.0.1:0"}
	b.openURL = func(url string) error {
		t.Errorf("unexpected browser open for %s", url)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, b.serve(ctx))
}

func TestBuild_FailureIsFatalOutsideServe(t *testing.T) {
	b, fr, out := newTestBuilder(t, false)
	fr.fail = true
	err := b.Run(context.Background(), TaskFastBuild)
	require.Error(t, err)
	require.Contains(t, out.String(), "[Build Error]")
	require.Contains(t, out.String(), "syntax error")
}

func TestBuild_FailureKeepsServerAlive(t *testing.T) {
	b, fr, out := newTestBuilder(t, false)
	fr.fail = true
	b.keepAlive.Store(true)
	require.NoError(t, b.Run(context.Background(), TaskFastBuild))
	require.Contains(t, out.String(), "[Build Error]")
}

func TestClean_RemovesFilesKeepsDirs(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	writeFile(t, filepath.Join(b.cfg.BuildDir, "js", "game", "game.wasm"), "wasm")
	writeFile(t, filepath.Join(b.cfg.BuildDir, "index.html"), "old")

	require.NoError(t, b.Run(context.Background(), TaskClean))
	require.NoFileExists(t, filepath.Join(b.cfg.BuildDir, "js", "game", "game.wasm"))
	require.NoFileExists(t, filepath.Join(b.cfg.BuildDir, "index.html"))
	require.DirExists(t, filepath.Join(b.cfg.BuildDir, "js", "game"))
}

func TestClean_MissingBuildDir(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	require.NoError(t, b.Run(context.Background(), TaskClean))
}

func TestClean_KeepFilesOnce(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	bundle := filepath.Join(b.scriptsDir(), "game.wasm")
	writeFile(t, bundle, "wasm")

	b.KeepFilesOnce()
	require.NoError(t, b.Run(context.Background(), TaskClean))
	require.FileExists(t, bundle)

	require.NoError(t, b.Run(context.Background(), TaskClean))
	require.NoFileExists(t, bundle)
}

func TestCopyRuntime_FromGOROOT(t *testing.T) {
	for _, sub := range []string{"lib", "misc"} {
		t.Run(sub, func(t *testing.T) {
			b, fr, _ := newTestBuilder(t, false)
			b.cfg.RuntimeDir = ""
			root := t.TempDir()
			fr.goroot = root
			writeFile(t, filepath.Join(root, sub, "wasm", runtimeFile), "// "+sub)

			require.NoError(t, b.copyRuntime(context.Background()))
			data, err := os.ReadFile(filepath.Join(b.scriptsDir(), runtimeFile))
			require.NoError(t, err)
			require.Equal(t, "// "+sub, string(data))
		})
	}
}

func TestCopyRuntime_Missing(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	b.cfg.RuntimeDir = t.TempDir()
	err := b.copyRuntime(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestWatchStatic_KeepsBundle(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	rl := &countingReloader{}
	b.SetReloader(rl)
	require.NoError(t, b.Run(context.Background(), TaskBuild))

	bundle := filepath.Join(b.scriptsDir(), "game.wasm")
	writeFile(t, bundle, "wasm")
	writeFile(t, filepath.Join(b.cfg.StaticDir, "new.css"), "body{}")

	b.KeepFilesOnce()
	require.NoError(t, b.Run(context.Background(), TaskWatchStatic))
	require.FileExists(t, bundle)
	require.FileExists(t, filepath.Join(b.cfg.BuildDir, "new.css"))
	require.Equal(t, 1, rl.count())
}

func TestClassify(t *testing.T) {
	b, _, _ := newTestBuilder(t, false)
	tests := []struct {
		path string
		want change
	}{
		{filepath.Join(b.cfg.SourceDir, "main.go"), changeSource},
		{filepath.Join(b.cfg.SourceDir, "sub", "x.go"), changeSource},
		{filepath.Join(b.cfg.SourceDir, "README.md"), changeNone},
		{filepath.Join(b.cfg.StaticDir, "index.html"), changeStatic},
		{filepath.Join(b.cfg.StaticDir, "gen.go"), changeStatic},
		{filepath.Join(b.cfg.BuildDir, "x.go"), changeNone},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, b.classify(tt.path), tt.path)
	}
}

func TestWithin(t *testing.T) {
	require.True(t, within("a/b", "a/b"))
	require.True(t, within("a/b", "a/b/c.go"))
	require.False(t, within("a/b", "a/bc/d.go"))
	require.False(t, within("a/b", "a/x.go"))
}

func TestWatch_SourceChangeRebuilds(t *testing.T) {
	b, fr, _ := newTestBuilder(t, false)
	rl := &countingReloader{}
	b.SetReloader(rl)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register directories.
	time.Sleep(50 * time.Millisecond)
	writeFile(t, filepath.Join(b.cfg.SourceDir, "main.go"), "package main\n\nfunc main() {}\n")

	require.Eventually(t, func() bool { return rl.count() >= 1 }, 3*time.Second, 20*time.Millisecond)
	require.GreaterOrEqual(t, fr.buildCalls(), 1)
}
