// Package config loads the build orchestrator's settings from an HCL file.
//
// Every attribute is optional. A missing file yields Defaults. The variable
// `production` is available to expressions, so a file can vary paths by
// mode:
//
//	output_file = production ? "game.min.wasm" : "game.wasm"
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
)

// DefaultFile is the config file name looked up when none is given.
const DefaultFile = "gamebuild.hcl"

// Config holds the paths and server settings for a build.
type Config struct {
	// BuildDir receives the deployable bundle.
	BuildDir string `hcl:"build_dir,optional"`
	// ScriptsDir is where the runtime and compiled game land, relative to BuildDir.
	ScriptsDir string `hcl:"scripts_dir,optional"`
	// SourceDir is watched for code changes while serving.
	SourceDir string `hcl:"source_dir,optional"`
	// StaticDir is copied verbatim into BuildDir.
	StaticDir string `hcl:"static_dir,optional"`
	// Entry is the main package built for the browser.
	Entry string `hcl:"entry,optional"`
	// OutputFile is the compiled bundle's file name.
	OutputFile string `hcl:"output_file,optional"`
	// RuntimeDir overrides where wasm_exec.js is copied from. Empty means
	// look it up under GOROOT.
	RuntimeDir string `hcl:"runtime_dir,optional"`

	Serve *ServeConfig `hcl:"serve,block"`
}

// ServeConfig configures the development server.
type ServeConfig struct {
	Addr string `hcl:"addr,optional"`
	// Open launches the system browser at the server address once it is
	// listening.
	Open bool `hcl:"open,optional"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		BuildDir:   "build",
		ScriptsDir: "js/game",
		SourceDir:  "examples/alphamask",
		StaticDir:  "examples/alphamask/static",
		Entry:      "./examples/alphamask",
		OutputFile: "game.wasm",
		Serve:      &ServeConfig{Addr: "localhost:3000"},
	}
}

// Load reads path and fills unset attributes from Defaults. A missing file
// is not an error.
func Load(path string, production bool) (Config, error) {
	var cfg Config
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"production": cty.BoolVal(production),
		},
	}
	err := hclsimple.DecodeFile(path, ctx, &cfg)
	if err != nil {
		if _, statErr := os.Stat(path); errors.Is(statErr, fs.ErrNotExist) {
			return Defaults(), nil
		}
		return Config{}, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg.withDefaults(), nil
}

// Parse decodes HCL source held in memory. filename is used in diagnostics
// and must end in .hcl.
func Parse(filename string, src []byte, production bool) (Config, error) {
	var cfg Config
	ctx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"production": cty.BoolVal(production),
		},
	}
	if err := hclsimple.Decode(filename, src, ctx, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", filename, err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) withDefaults() Config {
	d := Defaults()
	if c.BuildDir == "" {
		c.BuildDir = d.BuildDir
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = d.ScriptsDir
	}
	if c.SourceDir == "" {
		c.SourceDir = d.SourceDir
	}
	if c.StaticDir == "" {
		c.StaticDir = d.StaticDir
	}
	if c.Entry == "" {
		c.Entry = d.Entry
	}
	if c.OutputFile == "" {
		c.OutputFile = d.OutputFile
	}
	if c.Serve == nil {
		c.Serve = d.Serve
	} else if c.Serve.Addr == "" {
		c.Serve.Addr = d.Serve.Addr
	}
	return c
}
