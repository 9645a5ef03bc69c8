// Package config loads and validates the sitebuild configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	sberrors "git.home.luguber.info/inful/sitebuild/internal/errors"
)

const (
	DefaultSource         = "."
	DefaultOutput         = "build"
	DefaultIncludesDir    = "includes"
	DefaultAssetsDir      = "assets"
	DefaultCacheDir       = ".sitebuild"
	DefaultMaxImportDepth = 10
	DefaultWorkers        = 4
	DefaultServeAddr      = "localhost:8080"
	DefaultDebounceMS     = 250
)

// Load reads a YAML configuration file, applies the .env overlay and
// defaults, and validates the result.
func Load(configPath string) (*Options, error) {
	loadEnvOverlay()

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sberrors.ConfigNotFound(configPath)
		}
		return nil, sberrors.Wrap(err, sberrors.CategoryConfig, sberrors.SeverityFatal, "failed to read configuration").
			WithContext("path", configPath)
	}

	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, sberrors.Wrap(err, sberrors.CategoryConfig, sberrors.SeverityFatal, "failed to parse configuration").
			WithContext("path", configPath).
			WithSuggestion("check YAML indentation and quoting")
	}

	opts.ApplyDefaults()
	applyEnvOverrides(&opts)

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &opts, nil
}

// Default returns an Options with all defaults applied and no file input.
func Default() *Options {
	opts := &Options{}
	opts.ApplyDefaults()
	return opts
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (o *Options) ApplyDefaults() {
	if o.Source == "" {
		o.Source = DefaultSource
	}
	if o.Output == "" {
		o.Output = DefaultOutput
	}
	if o.IncludesDir == "" {
		o.IncludesDir = DefaultIncludesDir
	}
	if o.AssetsDir == "" {
		o.AssetsDir = DefaultAssetsDir
	}
	if o.CacheDir == "" {
		o.CacheDir = DefaultCacheDir
	}
	if o.MaxImportDepth <= 0 {
		o.MaxImportDepth = DefaultMaxImportDepth
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	o.FailOn = o.FailOn.Normalize()
	if o.Serve.Addr == "" {
		o.Serve.Addr = DefaultServeAddr
	}
	if o.Serve.DebounceMS <= 0 {
		o.Serve.DebounceMS = DefaultDebounceMS
	}
}

// Validate checks option consistency. Pattern lists are validated eagerly so
// a glob typo fails at startup instead of mid-build.
func (o *Options) Validate() error {
	if o.Source == "" {
		return sberrors.ConfigRequired("source")
	}
	if o.Output == "" {
		return sberrors.ConfigRequired("output")
	}
	if sameDir(o.Source, o.Output) {
		return sberrors.ValidationFailed("output", "output directory must differ from source")
	}
	if o.Sitemap && o.BaseURL == "" {
		return sberrors.ValidationFailed("sitemap", "sitemap generation requires base_url")
	}

	lists := map[string][]string{
		"ignore":        o.Ignore,
		"ignore_render": o.IgnoreRender,
		"ignore_copy":   o.IgnoreCopy,
		"render":        o.Render,
		"copy":          o.Copy,
	}
	for field, patterns := range lists {
		for _, p := range patterns {
			if len(p) > 0 && p[0] == '!' {
				p = p[1:]
			}
			if !doublestar.ValidatePattern(p) {
				return sberrors.ValidationFailed(field, fmt.Sprintf("invalid glob pattern %q", p))
			}
		}
	}
	return nil
}

// Init writes a starter configuration file. It refuses to overwrite an
// existing file unless force is set.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}

	example := Options{
		Source:  ".",
		Output:  DefaultOutput,
		Ignore:  []string{"README.md", "drafts/**"},
		Copy:    []string{"favicon.ico"},
		BaseURL: "https://example.com",
		Serve: ServeOptions{
			Addr: DefaultServeAddr,
		},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func sameDir(a, b string) bool {
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	if err1 != nil || err2 != nil {
		return a == b
	}
	return aa == bb
}
