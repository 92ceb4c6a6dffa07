package main

import (
	"context"
	"net/http"
	"os"

	"github.com/lodthe/multiarch-publisher/internal/baseimage"
	"github.com/lodthe/multiarch-publisher/internal/dockerfile"
	"github.com/lodthe/multiarch-publisher/internal/engine"
	"github.com/lodthe/multiarch-publisher/internal/manifest"
	"github.com/lodthe/multiarch-publisher/internal/metrics"
	"github.com/lodthe/multiarch-publisher/internal/publish"
	"github.com/lodthe/multiarch-publisher/internal/reconcile"
	"github.com/lodthe/multiarch-publisher/internal/release"
	"github.com/lodthe/multiarch-publisher/internal/upstream"
	"github.com/lodthe/multiarch-publisher/pkg/registry"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/logs"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type options struct {
	DryRun  bool
	Debug   bool
	Variant string
}

var rootOpts options

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "publisher",
		Short:         "Build and publish multi-architecture images of missing upstream releases",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd.Context(), rootOpts)
		},
	}

	cmd.PersistentFlags().BoolVarP(&rootOpts.DryRun, "dry-run", "n", false, "Build with the layer cache and push nothing")
	cmd.PersistentFlags().BoolVarP(&rootOpts.Debug, "debug", "d", false, "Trace registry and upstream HTTP traffic")
	cmd.PersistentFlags().StringVarP(&rootOpts.Variant, "variant", "v", "", "Image variant: alpine or slim")

	cmd.AddCommand(newTagsCmd())

	return cmd
}

// environment is what every command needs before doing its job.
type environment struct {
	cfg     *Config
	logger  zerolog.Logger
	httpCli *http.Client

	// Set with -d. Shared by every HTTP client of the run.
	tracer http.RoundTripper
}

func setup(opts options) (*environment, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "config cannot be loaded")
	}

	// Initialize logger.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if cfg.Log.Format == PrettyLogFormat {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	lvl, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	if opts.Debug {
		lvl = zerolog.DebugLevel
	}

	zlog.Logger = zlog.Logger.Level(lvl).With().Str("run_id", uuid.NewString()).Logger()

	env := &environment{
		cfg:     cfg,
		logger:  zlog.Logger,
		httpCli: http.DefaultClient,
	}

	if opts.Debug {
		env.tracer = debugTransport()
		env.httpCli = &http.Client{Transport: env.tracer}

		logs.Debug.SetOutput(os.Stderr)
		logs.Progress.SetOutput(os.Stderr)
	}
	logs.Warn.SetOutput(os.Stderr)

	return env, nil
}

func runPublish(ctx context.Context, opts options) error {
	variant, err := release.ParseVariant(opts.Variant)
	if err != nil {
		return err
	}

	env, err := setup(opts)
	if err != nil {
		return err
	}

	cfg := env.cfg
	logger := env.logger.With().Str("repository", cfg.Image.Repository).Logger()

	logger.Info().
		Bool("dry_run", opts.DryRun).
		Str("variant", string(variant)).
		Str("platforms", release.Platforms(release.Architectures)).
		Msg("publish run has been started")

	tok := registry.Token(cfg.Registry.Token)
	if tok == "" {
		tok, err = registry.FetchToken(ctx, env.httpCli, cfg.Registry.AuthURL, cfg.Registry.Service, cfg.Image.Repository)
		if err != nil {
			return errors.Wrap(err, "failed to obtain registry token")
		}
	}

	eng, err := engine.New(logger, engine.Config{
		DaemonURL:     cfg.Build.DockerHost,
		ContextDir:    cfg.Build.ContextDir,
		ServerAddress: engine.DockerHubServerAddress,
		DryRun:        opts.DryRun,
		Output:        os.Stderr,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create docker engine client")
	}
	defer func() {
		err := eng.Close()
		if err != nil {
			logger.Err(err).Msg("failed to close docker engine client")
		}
	}()

	registryCli := registry.NewClient(cfg.Registry.URL, cfg.Image.Repository, cfg.Registry.MaxRPS, env.httpCli)

	remoteOpts := []remote.Option{
		remote.WithAuthFromKeychain(authn.DefaultKeychain),
	}
	if env.tracer != nil {
		remoteOpts = append(remoteOpts, remote.WithTransport(env.tracer))
	}

	orchestrator := publish.New(logger, publish.Config{
		Repository:  cfg.Image.Repository,
		Variant:     variant,
		VersionArg:  cfg.Build.VersionArg,
		ChecksumArg: cfg.Build.ChecksumArg,
	}, publish.Deps{
		Versions: upstream.NewResolver(upstream.Config{
			IndexURL:    cfg.Upstream.IndexURL,
			ChecksumURL: cfg.Upstream.ChecksumURL,
			Window:      *cfg.Upstream.Window,
		}, logger, env.httpCli),
		Registry: registryCli,
		Builder:  eng,
		Renderer: dockerfile.NewRenderer(dockerfile.Config{
			TemplateDir: cfg.Build.TemplateDir,
			ContextDir:  cfg.Build.ContextDir,
		}, logger, baseimage.NewResolver(cfg.Build.BaseImage)),
		Reconciler: reconcile.New(logger, cfg.Image.Repository, registryCli, eng),
		Manifests: manifest.New(logger, manifest.Config{
			Repository: cfg.Image.Repository,
			DryRun:     opts.DryRun,
		}, remoteOpts...),
	})

	err = orchestrator.Run(ctx, tok)
	if err != nil {
		logger.Error().Err(err).Str("state", string(orchestrator.State())).Msg("publish run has been aborted")
	}

	if cfg.Metrics.PushgatewayURL != "" {
		pushErr := metrics.Push(cfg.Metrics.PushgatewayURL)
		if pushErr != nil {
			logger.Warn().Err(pushErr).Msg("failed to push metrics")
		}
	}

	return err
}

// debugTransport logs requests and responses to logs.Debug with credentials redacted.
func debugTransport() http.RoundTripper {
	return transport.NewLogger(http.DefaultTransport)
}
