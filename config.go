package vbforge

import (
	"os"
	"strconv"
	"time"
)

// Config holds the runtime limits for a conversion service instance.
// Values come from the environment with sensible defaults; see
// FromEnv.
type Config struct {
	// MaxFileSizeMB caps the uploaded archive size.
	MaxFileSizeMB int

	// MaxCodeLength caps the number of bytes of a single source file
	// sent to the transform backend. Longer files are truncated with
	// a warning, never rejected.
	MaxCodeLength int

	// MaxFiles caps how many discovered files are processed. Excess
	// files are dropped with a pipeline-level warning.
	MaxFiles int

	// ConversionTimeout bounds one end-to-end run.
	ConversionTimeout time.Duration

	// Retention is how long an unclaimed artifact survives before the
	// background sweep removes it.
	Retention time.Duration

	// StreamIdleTimeout is the idle window after which the progress
	// stream emits a keep-alive ping instead of closing.
	StreamIdleTimeout time.Duration

	// OutputDir is where packaged artifacts are persisted.
	OutputDir string

	// AllowedHosts lists the remote repository hosts accepted by the
	// ingestor.
	AllowedHosts []string
}

// FromEnv builds a Config from environment variables, falling back to
// the defaults used by the reference deployment.
func FromEnv() Config {
	return Config{
		MaxFileSizeMB:     envInt("MAX_FILE_SIZE_MB", 50),
		MaxCodeLength:     envInt("MAX_CODE_LENGTH", 100000),
		MaxFiles:          envInt("MAX_FILES", 50),
		ConversionTimeout: time.Duration(envInt("CONVERSION_TIMEOUT_SECONDS", 600)) * time.Second,
		Retention:         time.Duration(envInt("FILE_EXPIRATION_SECONDS", 3600)) * time.Second,
		StreamIdleTimeout: 30 * time.Second,
		OutputDir:         envString("OUTPUT_DIR", "output"),
		AllowedHosts:      []string{"github.com"},
	}
}

func envInt(name string, def int) int {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envString(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
