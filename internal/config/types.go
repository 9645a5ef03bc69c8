package config

import "strings"

// FailMode controls when a build aborts instead of recording an error and
// moving on (stringly for YAML compatibility).
type FailMode string

const (
	FailNone    FailMode = "none"    // record errors, always finish the run
	FailWarning FailMode = "warning" // abort on the first warning or error
	FailError   FailMode = "error"   // abort on the first error
)

// Normalize returns the typed fail mode for a raw config string.
// Unknown values return FailNone so callers can branch safely.
func (f FailMode) Normalize() FailMode {
	switch FailMode(strings.ToLower(strings.TrimSpace(string(f)))) {
	case FailWarning:
		return FailWarning
	case FailError:
		return FailError
	default:
		return FailNone
	}
}

// FailFast reports whether the first error should abort the whole run.
func (f FailMode) FailFast() bool {
	n := f.Normalize()
	return n == FailWarning || n == FailError
}

// Options is the full build configuration. Zero values trigger the defaults
// applied in ApplyDefaults, so a partial YAML file is always usable.
type Options struct {
	// Source is the root of the content tree.
	Source string `yaml:"source"`
	// Output is the directory the built site is written to.
	Output string `yaml:"output"`
	// Clean removes the output directory before building.
	Clean bool `yaml:"clean"`
	// PrettyURLs writes about.html as about/index.html.
	PrettyURLs bool `yaml:"pretty_urls"`

	// Classification rule lists. Within a list the last matching pattern
	// wins and a leading ! negates an earlier match.
	Ignore       []string `yaml:"ignore,omitempty"`
	IgnoreRender []string `yaml:"ignore_render,omitempty"`
	IgnoreCopy   []string `yaml:"ignore_copy,omitempty"`
	Render       []string `yaml:"render,omitempty"`
	Copy         []string `yaml:"copy,omitempty"`

	// AutoIgnore suppresses emission of registered layout/include files and
	// underscore-prefixed paths.
	AutoIgnore *bool `yaml:"auto_ignore,omitempty"`

	// FailOn selects error propagation: none (default), warning, or error.
	FailOn FailMode `yaml:"fail_on,omitempty"`

	// Cache enables the content-hash build cache between runs.
	Cache *bool `yaml:"cache,omitempty"`
	// CacheDir is where the cache database lives.
	CacheDir string `yaml:"cache_dir,omitempty"`

	Minify  bool `yaml:"minify"`
	Sitemap bool `yaml:"sitemap"`

	// BaseURL is required for sitemap generation.
	BaseURL string `yaml:"base_url,omitempty"`

	// IncludesDir is the conventional fallback directory for short-name
	// fragment lookup, relative to Source.
	IncludesDir string `yaml:"includes_dir,omitempty"`
	// AssetsDir is the always-copy directory, relative to Source.
	AssetsDir string `yaml:"assets_dir,omitempty"`

	// MaxImportDepth bounds cascading import recursion.
	MaxImportDepth int `yaml:"max_import_depth,omitempty"`

	// Workers caps concurrent page resolution. <1 is coerced to a default.
	Workers int `yaml:"workers,omitempty"`

	Serve ServeOptions `yaml:"serve,omitempty"`
}

// ServeOptions configures the development server.
type ServeOptions struct {
	Addr string `yaml:"addr,omitempty"`
	// DebounceMS is the file-watch debounce window in milliseconds.
	DebounceMS int `yaml:"debounce_ms,omitempty"`
	// Metrics exposes Prometheus metrics on /metrics when true.
	Metrics bool `yaml:"metrics"`
}

// AutoIgnoreEnabled reports the effective auto-ignore setting (default true).
func (o *Options) AutoIgnoreEnabled() bool {
	return o.AutoIgnore == nil || *o.AutoIgnore
}

// CacheEnabled reports the effective cache setting (default true).
func (o *Options) CacheEnabled() bool {
	return o.Cache == nil || *o.Cache
}
