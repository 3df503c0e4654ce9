// Package config loads refgraph's YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"refgraph/internal/analyzer"
	"refgraph/internal/augment"
	"refgraph/internal/logging"
	"refgraph/internal/resolve"
	"refgraph/internal/source"
	"refgraph/internal/traverse"
)

// EnvPath names the environment variable holding the config file path.
const EnvPath = "REFGRAPH_CONFIG"

// Config is the whole configuration file.
type Config struct {
	// MaxNodes caps the nodes of one pass.
	MaxNodes  int             `yaml:"max_nodes"`
	Traversal TraversalConfig `yaml:"traversal"`
	Resolve   ResolveConfig   `yaml:"resolve"`
	Augment   AugmentConfig   `yaml:"augment"`
	Source    SourceConfig    `yaml:"source"`
	Store     StoreConfig     `yaml:"store"`
	LSP       LSPConfig       `yaml:"lsp"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       logging.Config  `yaml:"log"`
}

type TraversalConfig struct {
	IgnoreTypes     []string `yaml:"ignore_types"`
	IgnoreTransform bool     `yaml:"ignore_transform"`
	TransformType   string   `yaml:"transform_type"`
	BehaviorNodes   bool     `yaml:"behavior_nodes"`
	MaxDepth        int      `yaml:"max_depth"`
}

type ResolveConfig struct {
	SingletonAccessors []string          `yaml:"singleton_accessors"`
	Keywords           map[string]string `yaml:"keywords"`
}

type AugmentConfig struct {
	MaxFanout int `yaml:"max_fanout"`
	CacheSize int `yaml:"cache_size"`
}

type SourceConfig struct {
	// Root is the project directory; empty means discover it from the
	// working directory.
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
	Outline    bool     `yaml:"outline"`
	Watch      bool     `yaml:"watch"`
}

type StoreConfig struct {
	// Path of the SQLite database; empty disables persistence.
	Path string `yaml:"path"`
	// Keep is how many passes survive pruning; zero keeps all.
	Keep int `yaml:"keep"`
}

// LSPConfig enables the language-server type checker when Command is set.
type LSPConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	a := analyzer.DefaultOptions()
	src := source.DefaultOptions()
	return Config{
		MaxNodes: a.MaxNodes,
		Traversal: TraversalConfig{
			IgnoreTypes:     a.Traversal.IgnoreTypes,
			IgnoreTransform: a.Traversal.IgnoreTransform,
			TransformType:   a.Traversal.TransformType,
			BehaviorNodes:   a.Traversal.BehaviorNodes,
			MaxDepth:        a.Traversal.MaxDepth,
		},
		Resolve: ResolveConfig{
			SingletonAccessors: a.Resolve.SingletonAccessors,
			Keywords:           a.Resolve.Keywords,
		},
		Augment: AugmentConfig{
			MaxFanout: a.Augment.MaxFanout,
			CacheSize: a.Augment.CacheSize,
		},
		Source: SourceConfig{Extensions: src.Extensions},
		LSP:    LSPConfig{Timeout: 2 * time.Second},
		Log:    logging.DefaultConfig(),
	}
}

// Load reads the file at path, or at $REFGRAPH_CONFIG when path is empty,
// over the defaults. With neither set the defaults are returned.
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvPath)
	}
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	var errs []error
	if c.MaxNodes < 0 {
		errs = append(errs, fmt.Errorf("max_nodes must not be negative"))
	}
	if c.Traversal.MaxDepth < 0 {
		errs = append(errs, fmt.Errorf("traversal.max_depth must not be negative"))
	}
	if c.Traversal.IgnoreTransform && c.Traversal.TransformType == "" {
		errs = append(errs, fmt.Errorf("traversal.transform_type is required with ignore_transform"))
	}
	if c.Augment.MaxFanout <= 0 {
		errs = append(errs, fmt.Errorf("augment.max_fanout must be positive"))
	}
	if c.Augment.CacheSize <= 0 {
		errs = append(errs, fmt.Errorf("augment.cache_size must be positive"))
	}
	if len(c.Source.Extensions) == 0 {
		errs = append(errs, fmt.Errorf("source.extensions must not be empty"))
	}
	if c.Store.Keep < 0 {
		errs = append(errs, fmt.Errorf("store.keep must not be negative"))
	}
	if c.LSP.Timeout < 0 {
		errs = append(errs, fmt.Errorf("lsp.timeout must not be negative"))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	return errors.Join(errs...)
}

// AnalyzerOptions converts the pass settings.
func (c Config) AnalyzerOptions() analyzer.Options {
	return analyzer.Options{
		MaxNodes: c.MaxNodes,
		Traversal: traverse.Options{
			IgnoreTypes:     c.Traversal.IgnoreTypes,
			IgnoreTransform: c.Traversal.IgnoreTransform,
			TransformType:   c.Traversal.TransformType,
			BehaviorNodes:   c.Traversal.BehaviorNodes,
			MaxDepth:        c.Traversal.MaxDepth,
		},
		Resolve: resolve.Options{
			SingletonAccessors: c.Resolve.SingletonAccessors,
			Keywords:           c.Resolve.Keywords,
		},
		Augment: augment.Options{
			MaxFanout: c.Augment.MaxFanout,
			CacheSize: c.Augment.CacheSize,
		},
	}
}

// SourceOptions converts the index settings.
func (c Config) SourceOptions() source.Options {
	return source.Options{
		Extensions: c.Source.Extensions,
		Outline:    c.Source.Outline,
	}
}
