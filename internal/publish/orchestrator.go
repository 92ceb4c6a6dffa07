package publish

import (
	"context"
	"time"

	"github.com/lodthe/multiarch-publisher/internal/engine"
	"github.com/lodthe/multiarch-publisher/internal/metrics"
	"github.com/lodthe/multiarch-publisher/internal/release"
	"github.com/lodthe/multiarch-publisher/internal/upstream"
	"github.com/lodthe/multiarch-publisher/pkg/registry"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	LatestAlias = "latest"
	LTSAlias    = "lts"
)

type VersionSource interface {
	LatestVersions(ctx context.Context) (upstream.Releases, error)
	Checksum(ctx context.Context, version string) (string, error)
}

type PublishChecker interface {
	IsPublished(ctx context.Context, tok registry.Token, tag string) (bool, error)
}

type Builder interface {
	Build(ctx context.Context, req engine.BuildRequest) error
}

type DockerfileRenderer interface {
	Render(variant release.Variant, a release.Architecture) (string, error)
	Cleanup() error
}

type AliasReconciler interface {
	ReconcileAll(ctx context.Context, tok registry.Token, source, target string) (int, error)
}

type ManifestPublisher interface {
	Publish(ctx context.Context, tag string) error
}

type Config struct {
	Repository string
	Variant    release.Variant

	// Names of the build arguments carrying the release version and its checksum.
	VersionArg  string
	ChecksumArg string
}

type Deps struct {
	Versions   VersionSource
	Registry   PublishChecker
	Builder    Builder
	Renderer   DockerfileRenderer
	Reconciler AliasReconciler
	Manifests  ManifestPublisher
}

// Orchestrator drives a single publish run.
//
// It keeps no state between runs: what is published is asked from the registry every time,
// so an interrupted run is finished by simply running again.
type Orchestrator struct {
	logger zerolog.Logger
	cfg    Config
	deps   Deps

	state State
}

func New(logger zerolog.Logger, cfg Config, deps Deps) *Orchestrator {
	return &Orchestrator{
		logger: logger.With().Str("component", "orchestrator").Str("variant", string(cfg.Variant)).Logger(),
		cfg:    cfg,
		deps:   deps,
	}
}

func (o *Orchestrator) enter(state State, v string) {
	o.state = state
	o.logger.Debug().Str("state", string(state)).Str("version", v).Msg("state transition")
}

// Run publishes every missing version and then moves the aliases to the last iterated one.
func (o *Orchestrator) Run(ctx context.Context, tok registry.Token) error {
	o.enter(StateResolvingVersions, "")

	startedAt := time.Now()
	releases, err := o.deps.Versions.LatestVersions(ctx)
	metrics.Pipeline.ResolveVersions(err == nil, startedAt)
	if err != nil {
		return errors.Wrap(err, "failed to resolve upstream versions")
	}

	o.logger.Info().
		Int("count", len(releases.Versions)).
		Str("latest", releases.Latest).
		Msg("upstream versions have been resolved")

	var current string
	for _, v := range releases.Versions {
		err = o.publishVersion(ctx, tok, v)
		if err != nil {
			return err
		}

		current = v
	}
	lts := releases.LTS

	if current == "" {
		o.enter(StateDone, "")
		return o.deps.Renderer.Cleanup()
	}

	// The aliases follow the last iterated version whether it was built by this run or not.
	o.enter(StatePublishingManifests, current)
	err = o.deps.Manifests.Publish(ctx, release.Tag(current, o.cfg.Variant))
	if err != nil {
		return errors.Wrapf(err, "failed to publish manifest list of %s", current)
	}

	o.enter(StateReconcilingAliases, current)
	if o.cfg.Variant != release.Default {
		err = o.updateAlias(ctx, tok, release.Tag(current, o.cfg.Variant), string(o.cfg.Variant))
	} else {
		err = o.updateAlias(ctx, tok, current, LatestAlias)
	}
	if err != nil {
		return err
	}

	if lts != "" {
		err = o.updateAlias(ctx, tok, release.Tag(lts, o.cfg.Variant), release.Tag(LTSAlias, o.cfg.Variant))
		if err != nil {
			return err
		}
	} else {
		o.logger.Info().Msg("no lts version has been observed, lts alias is left untouched")
	}

	o.enter(StateDone, current)

	err = o.deps.Renderer.Cleanup()
	if err != nil {
		return err
	}

	o.logger.Info().Str("version", current).Str("lts", lts).Msg("publish run has been finished")

	return nil
}

func (o *Orchestrator) publishVersion(ctx context.Context, tok registry.Token, v string) error {
	o.enter(StateDecidingPublish, v)

	tag := release.Tag(v, o.cfg.Variant)

	startedAt := time.Now()
	published, err := o.deps.Registry.IsPublished(ctx, tok, tag)
	metrics.Pipeline.PublishCheck(err == nil, v, startedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to check whether %s is published", tag)
	}

	if published {
		o.logger.Info().Str("tag", tag).Msg("already published, skipping")
		return nil
	}

	o.logger.Info().Str("tag", tag).Msg("not published yet")
	o.enter(StateBuilding, v)

	startedAt = time.Now()
	err = o.build(ctx, v, tag)
	metrics.Pipeline.Build(err == nil, v, startedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s", tag)
	}

	return nil
}

func (o *Orchestrator) build(ctx context.Context, v, tag string) error {
	checksum, err := o.deps.Versions.Checksum(ctx, v)
	if err != nil {
		return err
	}

	for _, a := range release.Architectures {
		dockerfile, err := o.deps.Renderer.Render(o.cfg.Variant, a)
		if err != nil {
			return err
		}

		err = o.deps.Builder.Build(ctx, engine.BuildRequest{
			Dockerfile: dockerfile,
			Image:      release.FullImageName(o.cfg.Repository, release.ArchTag(tag, a)),
			BuildArgs: map[string]*string{
				o.cfg.VersionArg:  &v,
				o.cfg.ChecksumArg: &checksum,
			},
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// updateAlias reconciles the per-architecture alias tags and republishes the alias manifest list.
func (o *Orchestrator) updateAlias(ctx context.Context, tok registry.Token, source, alias string) error {
	startedAt := time.Now()
	updated, err := o.deps.Reconciler.ReconcileAll(ctx, tok, source, alias)
	metrics.Pipeline.ReconcileAlias(err == nil, alias, startedAt)
	if err != nil {
		return errors.Wrapf(err, "failed to reconcile %s with %s", alias, source)
	}

	o.logger.Info().Str("alias", alias).Str("source", source).Int("updated", updated).Msg("alias has been reconciled")

	err = o.deps.Manifests.Publish(ctx, alias)
	if err != nil {
		return errors.Wrapf(err, "failed to publish manifest list of %s", alias)
	}

	return nil
}
