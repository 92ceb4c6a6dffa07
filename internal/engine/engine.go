package engine

import (
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// BuildRequest describes a single per-architecture image build.
type BuildRequest struct {
	// Dockerfile path relative to the build context.
	Dockerfile string

	// Full image reference, e.g. jenkins/jenkins:2.301-arm64.
	Image string

	BuildArgs map[string]*string
}

// daemon is the part of the Docker Engine API the engine relies on.
type daemon interface {
	pullImage(ctx context.Context, name string) (io.ReadCloser, error)
	pushImage(ctx context.Context, name, registryAuth string) (io.ReadCloser, error)
	addImageTag(ctx context.Context, existingImageTag, newImageTag string) error
	removeImageTag(ctx context.Context, tag string) error
	buildImage(ctx context.Context, buildContext io.Reader, opts types.ImageBuildOptions) (io.ReadCloser, error)
	close() error
}

// Engine builds, tags and pushes images through the Docker Engine API.
type Engine struct {
	logger zerolog.Logger
	cfg    Config

	provider daemon
	auth     string
}

func New(logger zerolog.Logger, cfg Config) (*Engine, error) {
	provider, err := newProvider(cfg.DaemonURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Docker engine provider")
	}

	if cfg.ServerAddress == "" {
		cfg.ServerAddress = DockerHubServerAddress
	}
	if cfg.Output == nil {
		cfg.Output = io.Discard
	}

	auth, err := registryAuth(cfg.ServerAddress)
	if err != nil {
		return nil, err
	}

	return &Engine{
		logger:   logger.With().Str("component", "engine").Logger(),
		cfg:      cfg,
		provider: provider,
		auth:     auth,
	}, nil
}

func (e *Engine) Close() error {
	return e.provider.close()
}

// Build builds the image and pushes it unless running in dry-run mode.
// The layer cache is invalidated on real runs only.
func (e *Engine) Build(ctx context.Context, req BuildRequest) error {
	startedAt := time.Now()

	buildContext, err := archive.TarWithOptions(e.cfg.ContextDir, &archive.TarOptions{})
	if err != nil {
		return errors.Wrap(err, "failed to archive build context")
	}
	defer buildContext.Close()

	out, err := e.provider.buildImage(ctx, buildContext, types.ImageBuildOptions{
		Dockerfile: req.Dockerfile,
		Tags:       []string{req.Image},
		BuildArgs:  req.BuildArgs,
		NoCache:    !e.cfg.DryRun,
		Remove:     true,
	})
	if err != nil {
		return errors.Wrapf(err, "docker build of %s failed", req.Image)
	}

	err = e.drain(out)
	if err != nil {
		return errors.Wrapf(err, "docker build of %s failed", req.Image)
	}

	e.logger.Info().
		Str("image", req.Image).
		Str("dockerfile", req.Dockerfile).
		Dur("elapsed_ms", time.Since(startedAt)).
		Msg("image has been built")

	return e.push(ctx, req.Image)
}

// TagAndPush pulls the source reference, tags it as targetRepository:targetTag
// and pushes the new tag unless running in dry-run mode.
func (e *Engine) TagAndPush(ctx context.Context, source, targetRepository, targetTag string) error {
	target := targetRepository + ":" + targetTag

	out, err := e.provider.pullImage(ctx, source)
	if err != nil && e.cfg.DryRun && errdefs.IsNotFound(err) {
		// A dry run never pushes the sources it builds.
		e.logger.Info().Str("source", source).Str("target", target).Msg("dry run: source is not in the registry, retag skipped")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "docker pull %s failed", source)
	}

	// We should read the output to be sure that the image has been pulled.
	err = e.drain(out)
	if err != nil {
		return errors.Wrapf(err, "docker pull %s failed", source)
	}

	err = e.forceTag(ctx, source, target)
	if err != nil {
		e.logger.Warn().Err(err).Str("source", source).Str("target", target).Msg("force tag failed, falling back to plain tag")

		err = e.provider.addImageTag(ctx, source, target)
		if err != nil {
			return errors.Wrapf(err, "docker tag %s %s failed", source, target)
		}
	}

	e.logger.Debug().Str("source", source).Str("target", target).Msg("image has been tagged")

	return e.push(ctx, target)
}

// forceTag drops a stale local target tag before tagging, so the target always points at source.
func (e *Engine) forceTag(ctx context.Context, source, target string) error {
	err := e.provider.removeImageTag(ctx, target)
	if err != nil {
		return errors.Wrap(err, "failed to untag stale image")
	}

	return e.provider.addImageTag(ctx, source, target)
}

func (e *Engine) push(ctx context.Context, name string) error {
	if e.cfg.DryRun {
		e.logger.Info().Str("image", name).Msg("dry run: push skipped")
		return nil
	}

	startedAt := time.Now()

	out, err := e.provider.pushImage(ctx, name, e.auth)
	if err != nil {
		return errors.Wrapf(err, "docker push %s failed", name)
	}

	err = e.drain(out)
	if err != nil {
		return errors.Wrapf(err, "docker push %s failed", name)
	}

	e.logger.Info().Str("image", name).Dur("elapsed_ms", time.Since(startedAt)).Msg("image has been pushed")

	return nil
}

// drain streams the daemon progress messages and returns the first reported error.
func (e *Engine) drain(out io.ReadCloser) error {
	defer out.Close()

	return jsonmessage.DisplayJSONMessagesStream(out, e.cfg.Output, 0, false, nil)
}
