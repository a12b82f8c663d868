package config

const (
	// DefaultBaseBranch is the reference branch baselines are read from.
	DefaultBaseBranch = "dev"
	// DefaultLogLevel is used when LOG_LEVEL is unset or invalid.
	DefaultLogLevel = "info"

	// BackendFile keeps the baseline in the workspace only.
	BackendFile = "file"
	// BackendGitHub reads baselines from workflow artifacts.
	BackendGitHub = "github"
	// BackendS3 keeps baselines in an S3 bucket.
	BackendS3 = "s3"

	// DefaultS3Prefix is the key prefix for S3 baselines.
	DefaultS3Prefix = "wpt-action"
)
