// Package config handles configuration loading and management
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var (
	errNoURLs          = errors.New("no urls to test")
	errUnknownBackend  = errors.New("unknown baseline backend")
	errMissingS3Bucket = errors.New("s3 backend requires BASELINE_S3_BUCKET")
)

// Config holds the action configuration. Action inputs arrive as INPUT_*
// environment variables; the rest are the runner's GITHUB_* variables and
// optional deployment settings.
type Config struct {
	APIKey      string
	URLs        []string
	WPTOptions  string
	Budget      string
	Label       string
	BaseBranch  string
	GitHubToken string
	Workspace   string

	WPTHost         string
	CommentTemplate string
	// Comment enables publishing the report as a PR or commit comment.
	Comment bool
	// FailOnTestError marks the run failed when any URL could not be tested.
	FailOnTestError bool
	// BundleThreshold is the byte change that flags a bundle size; 0 selects
	// the default.
	BundleThreshold float64

	BaselineBackend string
	S3Bucket        string
	S3Prefix        string
	S3Region        string
	S3Endpoint      string

	PushgatewayURL string
	LogLevel       string
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// It's okay if the file doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		APIKey:          getEnv("INPUT_APIKEY", ""),
		URLs:            parseURLs(getEnv("INPUT_URLS", "")),
		WPTOptions:      getEnv("INPUT_WPTOPTIONS", ""),
		Budget:          getEnv("INPUT_BUDGET", ""),
		Label:           getEnv("INPUT_LABEL", ""),
		BaseBranch:      getEnv("INPUT_BASEBRANCH", DefaultBaseBranch),
		GitHubToken:     getEnv("INPUT_GITHUB_TOKEN", os.Getenv("GITHUB_TOKEN")),
		Workspace:       getEnv("GITHUB_WORKSPACE", "."),
		WPTHost:         getEnv("WPT_HOST", ""),
		CommentTemplate: getEnv("INPUT_COMMENTTEMPLATE", ""),
		BaselineBackend: getEnv("BASELINE_BACKEND", BackendGitHub),
		S3Bucket:        getEnv("BASELINE_S3_BUCKET", ""),
		S3Prefix:        getEnv("BASELINE_S3_PREFIX", DefaultS3Prefix),
		S3Region:        getEnv("BASELINE_S3_REGION", ""),
		S3Endpoint:      getEnv("BASELINE_S3_ENDPOINT", ""),
		PushgatewayURL:  getEnv("PUSHGATEWAY_URL", ""),
		LogLevel:        getEnv("LOG_LEVEL", DefaultLogLevel),
	}

	var err error

	if cfg.Comment, err = strconv.ParseBool(getEnv("INPUT_COMMENT", "true")); err != nil {
		return nil, fmt.Errorf("invalid INPUT_COMMENT: %w", err)
	}

	if cfg.FailOnTestError, err = strconv.ParseBool(getEnv("INPUT_FAILONTESTERROR", "true")); err != nil {
		return nil, fmt.Errorf("invalid INPUT_FAILONTESTERROR: %w", err)
	}

	if cfg.BundleThreshold, err = strconv.ParseFloat(getEnv("BUNDLE_THRESHOLD_BYTES", "0"), 64); err != nil {
		return nil, fmt.Errorf("invalid BUNDLE_THRESHOLD_BYTES: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration is complete enough to run.
func (c *Config) Validate() error {
	if len(c.URLs) == 0 {
		return errNoURLs
	}

	switch c.BaselineBackend {
	case BackendFile, BackendGitHub:
	case BackendS3:
		if c.S3Bucket == "" {
			return errMissingS3Bucket
		}
	default:
		return fmt.Errorf("%w: %q", errUnknownBackend, c.BaselineBackend)
	}

	return nil
}

// WorkspacePath resolves a path relative to the workspace. Empty stays empty.
func (c *Config) WorkspacePath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(c.Workspace, path)
}

func (c *Config) String() string {
	return fmt.Sprintf(`Current Configuration:
======================
URLs:              %s
API Key:           %s
WPT Host:          %s
WPT Options:       %s
Budget:            %s
Label:             %s
Base Branch:       %s
GitHub Token:      %s
Workspace:         %s
Comment:           %t
Comment Template:  %s
Fail On Errors:    %t
Bundle Threshold:  %s
Baseline Backend:  %s
S3 Bucket:         %s
Pushgateway:       %s
Log Level:         %s`,
		orNotSet(strings.Join(c.URLs, ", ")),
		mask(c.APIKey),
		orNotSet(c.WPTHost),
		orNotSet(c.WPTOptions),
		orNotSet(c.Budget),
		orNotSet(c.Label),
		c.BaseBranch,
		mask(c.GitHubToken),
		c.Workspace,
		c.Comment,
		orNotSet(c.CommentTemplate),
		c.FailOnTestError,
		thresholdDisplay(c.BundleThreshold),
		c.BaselineBackend,
		orNotSet(c.S3Bucket),
		orNotSet(c.PushgatewayURL),
		c.LogLevel,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseURLs splits the newline separated urls input.
func parseURLs(s string) []string {
	if s == "" {
		return []string{}
	}

	parts := strings.Split(s, "\n")
	urls := make([]string, 0, len(parts))

	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			urls = append(urls, trimmed)
		}
	}

	return urls
}

func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return "********"
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

func thresholdDisplay(v float64) string {
	if v <= 0 {
		return "(default)"
	}
	return strconv.FormatFloat(v, 'f', -1, 64) + " bytes"
}
