package config

import (
	"os"

	"github.com/joho/godotenv"
)

// loadEnvOverlay loads .env/.env.local into the process environment.
// Existing variables are never overwritten; a missing file is not an error.
func loadEnvOverlay() {
	for _, envPath := range []string{".env", ".env.local"} {
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
	}
}

// applyEnvOverrides maps well-known environment variables onto options that
// were not already set explicitly. Only deployment-ish knobs are exposed;
// rule lists stay file-only.
func applyEnvOverrides(o *Options) {
	if v := os.Getenv("SITEBUILD_SOURCE"); v != "" && o.Source == DefaultSource {
		o.Source = v
	}
	if v := os.Getenv("SITEBUILD_OUTPUT"); v != "" && o.Output == DefaultOutput {
		o.Output = v
	}
	if v := os.Getenv("SITEBUILD_BASE_URL"); v != "" && o.BaseURL == "" {
		o.BaseURL = v
	}
	if v := os.Getenv("SITEBUILD_SERVE_ADDR"); v != "" && o.Serve.Addr == DefaultServeAddr {
		o.Serve.Addr = v
	}
}
