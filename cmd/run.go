package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethpandaops/wpt-action/internal/baseline"
	"github.com/ethpandaops/wpt-action/internal/budget"
	"github.com/ethpandaops/wpt-action/internal/config"
	"github.com/ethpandaops/wpt-action/internal/github"
	"github.com/ethpandaops/wpt-action/internal/report"
	"github.com/ethpandaops/wpt-action/internal/runner"
	"github.com/ethpandaops/wpt-action/internal/telemetry"
	"github.com/ethpandaops/wpt-action/internal/wpt"
	"github.com/sethvargo/go-githubactions"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Test every URL and publish the report",
	Long: `Submits a WebPageTest run per URL, waits for the results, compares them with
the baseline of the base branch, saves the new baseline and publishes the
report comment.

Settings come from the action inputs (INPUT_*), the environment and the
flags below, which take precedence.`,
	SilenceUsage: true,
	RunE:         runRun,
}

func init() {
	registerRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func registerRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringSlice("url", nil, "URL to test (repeatable, replaces INPUT_URLS)")
	cmd.Flags().String("label", "", "Label shown at the top of the report")
	cmd.Flags().String("base-branch", "", "Branch whose baseline is compared against")
	cmd.Flags().String("backend", "", "Baseline backend: file, github or s3")
	cmd.Flags().String("wpt-host", "", "WebPageTest host")
	cmd.Flags().Float64("bundle-threshold", 0, "Bundle size change in bytes that flags a report")
	cmd.Flags().Bool("no-comment", false, "Do not publish the report comment")
}

// applyRunFlags overrides cfg with the flags set on cmd.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	if flags.Changed("url") {
		cfg.URLs, _ = flags.GetStringSlice("url")
	}

	if flags.Changed("label") {
		cfg.Label, _ = flags.GetString("label")
	}

	if flags.Changed("base-branch") {
		cfg.BaseBranch, _ = flags.GetString("base-branch")
	}

	if flags.Changed("backend") {
		cfg.BaselineBackend, _ = flags.GetString("backend")
	}

	if flags.Changed("wpt-host") {
		cfg.WPTHost, _ = flags.GetString("wpt-host")
	}

	if flags.Changed("bundle-threshold") {
		cfg.BundleThreshold, _ = flags.GetFloat64("bundle-threshold")
	}

	if noComment, _ := flags.GetBool("no-comment"); noComment {
		cfg.Comment = false
	}
}

func runRun(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	applyRunFlags(cmd, cfg)

	actions := githubactions.New(githubactions.WithWriter(cmd.OutOrStdout()))
	maskSecrets(actions, cfg.APIKey, cfg.GitHubToken)

	if err := cfg.Validate(); err != nil {
		actions.Errorf("%s", err)

		return fmt.Errorf("invalid config: %w", err)
	}

	r, err := buildRunner(ctx, Logger, cfg, actions)
	if err != nil {
		actions.Errorf("%s", err)

		return err
	}

	status := r.Run(ctx)
	if err := status.Err(); err != nil {
		actions.Errorf("%s", err)

		return err
	}

	Logger.Info("run complete")

	return nil
}

// maskSecrets hides every non-empty secret from later log output.
func maskSecrets(actions *githubactions.Action, secrets ...string) {
	for _, secret := range secrets {
		if secret != "" {
			actions.AddMask(secret)
		}
	}
}

func buildRunner(ctx context.Context, log logrus.FieldLogger, cfg *config.Config, actions *githubactions.Action) (*runner.Runner, error) {
	opts := wpt.DefaultOptions()

	if cfg.WPTOptions != "" {
		loaded, err := wpt.LoadOptions(cfg.WorkspacePath(cfg.WPTOptions), opts)
		if err != nil {
			return nil, err
		}

		opts = loaded
	}

	if cfg.Label != "" {
		opts.Label = cfg.Label
	}

	var spec *budget.Spec

	if cfg.Budget != "" {
		loaded, err := budget.Load(cfg.WorkspacePath(cfg.Budget))
		if err != nil {
			return nil, err
		}

		spec = loaded
	}

	client, err := wpt.NewClient(log, wpt.Config{Host: cfg.WPTHost, APIKey: cfg.APIKey})
	if err != nil {
		return nil, err
	}

	needsGitHub := cfg.Comment || cfg.BaselineBackend == config.BackendGitHub

	event, err := github.EventFromEnv(log, os.Getenv)
	if err != nil && needsGitHub {
		return nil, fmt.Errorf("reading workflow event: %w", err)
	}

	var (
		ghClient      *github.Client
		currentBranch string
		repository    string
	)

	if event != nil {
		currentBranch = event.Branch
		repository = event.Repository

		ghClient, err = github.NewClient(ctx, log, event.APIURL, cfg.GitHubToken)
		if err != nil {
			return nil, err
		}
	}

	transport, err := newTransport(ctx, log, cfg, ghClient, repository)
	if err != nil {
		return nil, err
	}

	var publisher runner.Publisher
	if cfg.Comment {
		publisher = github.NewPublisher(log, ghClient, event, report.Marker)
	}

	collector := telemetry.NewCollector(log, telemetry.Config{
		PushgatewayURL: cfg.PushgatewayURL,
		Labels: map[string]string{
			"repository": strings.ReplaceAll(repository, "/", "_"),
			"branch":     currentBranch,
		},
	})

	log.WithFields(logrus.Fields{
		"urls":    len(cfg.URLs),
		"wpt":     client.Host(),
		"backend": cfg.BaselineBackend,
		"base":    cfg.BaseBranch,
		"branch":  currentBranch,
		"comment": cfg.Comment,
		"budget":  spec != nil,
	}).Debug("configured run")

	return runner.New(runner.Config{
		Logger:          log,
		URLs:            cfg.URLs,
		Options:         opts,
		Budget:          spec,
		Label:           cfg.Label,
		BundleThreshold: cfg.BundleThreshold,
		Comment:         cfg.Comment,
		FailOnTestError: cfg.FailOnTestError,
		BaselineBackend: cfg.BaselineBackend,
		Service:         client,
		Store:           baseline.NewStore(log, transport, cfg.BaseBranch, currentBranch),
		Renderer:        report.NewRenderer(log, cfg.WorkspacePath(cfg.CommentTemplate)),
		Publisher:       publisher,
		Collector:       collector,
		Actions:         actions,
	}), nil
}

func newTransport(ctx context.Context, log logrus.FieldLogger, cfg *config.Config, client *github.Client, repository string) (baseline.Transport, error) {
	switch cfg.BaselineBackend {
	case config.BackendGitHub:
		return github.NewArtifactTransport(log, client, repository, cfg.Workspace), nil
	case config.BackendS3:
		return baseline.NewS3Transport(ctx, baseline.S3Config{
			Bucket:   cfg.S3Bucket,
			Prefix:   cfg.S3Prefix,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
	default:
		return baseline.NewFileTransport(cfg.Workspace), nil
	}
}
