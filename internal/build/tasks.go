package build

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gookit/color"
	"github.com/phanxgames/maskfx/internal/ctxlog"
)

// runtimeFile is the JavaScript glue that boots a Go WebAssembly module.
const runtimeFile = "wasm_exec.js"

// sourceManifest is written next to a development bundle so browser
// tooling can map the module back to its Go sources.
type sourceManifest struct {
	File    string   `json:"file"`
	Entry   string   `json:"entry"`
	Sources []string `json:"sources"`
}

func (b *Builder) scriptsDir() string {
	return filepath.Join(b.cfg.BuildDir, filepath.FromSlash(b.cfg.ScriptsDir))
}

// clean removes every file under the build directory, keeping the
// directory tree. It is skipped once after KeepFilesOnce.
func (b *Builder) clean(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if b.keepFiles.Swap(false) {
		logger.Debug("Keeping build files", "dir", b.cfg.BuildDir)
		return nil
	}
	removed := 0
	err := filepath.WalkDir(b.cfg.BuildDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
		removed++
		return nil
	})
	if err != nil {
		return err
	}
	logger.Info("Cleaned build directory", "dir", b.cfg.BuildDir, "files", removed)
	return nil
}

// copyStatic copies the static directory tree into the build directory.
func (b *Builder) copyStatic(ctx context.Context) error {
	n, err := copyTree(b.cfg.StaticDir, b.cfg.BuildDir)
	if err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Copied static files", "from", b.cfg.StaticDir, "to", b.cfg.BuildDir, "files", n)
	return nil
}

// copyRuntime copies wasm_exec.js matching the Go toolchain into the
// scripts directory.
func (b *Builder) copyRuntime(ctx context.Context) error {
	src, err := b.runtimePath(ctx)
	if err != nil {
		return err
	}
	dst := filepath.Join(b.scriptsDir(), runtimeFile)
	if err := copyFile(src, dst); err != nil {
		return err
	}
	ctxlog.FromContext(ctx).Info("Copied runtime", "from", src, "to", dst)
	return nil
}

// runtimePath locates wasm_exec.js. Go 1.24 moved it from misc/wasm to
// lib/wasm; both are tried.
func (b *Builder) runtimePath(ctx context.Context) (string, error) {
	var dirs []string
	if b.cfg.RuntimeDir != "" {
		dirs = append(dirs, b.cfg.RuntimeDir)
	} else {
		out, err := b.run(ctx, nil, "go", "env", "GOROOT")
		if err != nil {
			return "", fmt.Errorf("failed to locate GOROOT: %w: %s", err, out)
		}
		root := strings.TrimSpace(string(out))
		dirs = append(dirs, filepath.Join(root, "lib", "wasm"), filepath.Join(root, "misc", "wasm"))
	}
	for _, dir := range dirs {
		p := filepath.Join(dir, runtimeFile)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s not found in %s", runtimeFile, strings.Join(dirs, ", "))
}

// bundle compiles the entry package for js/wasm. While serving, a failed
// compile is logged and swallowed so the server stays up.
func (b *Builder) bundle(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	b.logBuildMode()

	out := filepath.Join(b.scriptsDir(), b.cfg.OutputFile)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(out), err)
	}

	args := []string{"build", "-o", out}
	if b.production {
		args = append(args, "-trimpath", "-ldflags=-s -w")
	}
	args = append(args, b.cfg.Entry)

	env := []string{"GOOS=js", "GOARCH=wasm"}
	if output, err := b.run(ctx, env, "go", args...); err != nil {
		msg := strings.TrimSpace(string(output))
		if msg == "" {
			msg = err.Error()
		}
		fmt.Fprintln(b.out, color.Red.Sprint("[Build Error]"), msg)
		if b.keepAlive.Load() {
			logger.Error("Build failed, keeping server alive", "error", err)
			return nil
		}
		return fmt.Errorf("go build failed: %w", err)
	}

	manifest := out + ".map"
	if b.production {
		if err := os.Remove(manifest); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove stale %s: %w", manifest, err)
		}
	} else if err := b.writeManifest(ctx, manifest); err != nil {
		return err
	}
	logger.Info("Built bundle", "output", out, "production", b.production)
	return nil
}

// writeManifest lists the Go sources of the entry package. The entry may
// be a directory or an import path; go list resolves either.
func (b *Builder) writeManifest(ctx context.Context, path string) error {
	out, err := b.run(ctx, nil, "go", "list", "-f", "{{.Dir}}", b.cfg.Entry)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w: %s", b.cfg.Entry, err, bytes.TrimSpace(out))
	}
	dir := strings.TrimSpace(string(out))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to list sources in %s: %w", dir, err)
	}
	m := sourceManifest{File: b.cfg.OutputFile, Entry: b.cfg.Entry, Sources: []string{}}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		m.Sources = append(m.Sources, filepath.ToSlash(filepath.Join(dir, name)))
	}
	sort.Strings(m.Sources)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// copyTree copies every regular file under src into dst, preserving
// relative paths. Returns the number of files copied.
func copyTree(src, dst string) (int, error) {
	n := 0
	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return n, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
