package manifest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/lodthe/multiarch-publisher/internal/metrics"
	"github.com/lodthe/multiarch-publisher/internal/release"

	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/empty"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/remote/transport"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// AssemblyError is returned when a manifest list cannot be assembled or pushed.
type AssemblyError struct {
	Tag  string
	Arch release.Architecture
	Err  error
}

func (e *AssemblyError) Error() string {
	if e.Arch != "" {
		return fmt.Sprintf("manifest list %s: member %s: %v", e.Tag, e.Arch, e.Err)
	}

	return fmt.Sprintf("manifest list %s: %v", e.Tag, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}

type Config struct {
	Repository string
	DryRun     bool

	NameOptions []name.Option
}

// Publisher assembles a manifest list from the per-architecture tags of a version.
type Publisher struct {
	logger zerolog.Logger
	cfg    Config
	opts   []remote.Option
}

func New(logger zerolog.Logger, cfg Config, opts ...remote.Option) *Publisher {
	return &Publisher{
		logger: logger.With().Str("component", "manifest").Logger(),
		cfg:    cfg,
		opts:   opts,
	}
}

// Publish creates repository:tag from repository:tag-{arch} for every architecture.
// Every member has to exist already. Nothing is rolled back on failure.
func (p *Publisher) Publish(ctx context.Context, tag string) (err error) {
	startedAt := time.Now()
	defer func() {
		metrics.Pipeline.PublishManifest(err == nil, tag, startedAt)
	}()

	opts := append(append([]remote.Option{}, p.opts...), remote.WithContext(ctx))

	target, err := name.NewTag(release.FullImageName(p.cfg.Repository, tag), p.cfg.NameOptions...)
	if err != nil {
		return &AssemblyError{Tag: tag, Err: err}
	}

	var addenda []mutate.IndexAddendum
	for _, a := range release.Architectures {
		member, err := p.member(tag, a, opts)
		if err != nil && p.cfg.DryRun && isNotFound(err) {
			// Members of a version built by a dry run are never pushed.
			p.logger.Info().Str("tag", tag).Str("arch", string(a)).Msg("dry run: member is not in the registry, skipped")
			continue
		}
		if err != nil {
			return &AssemblyError{Tag: tag, Arch: a, Err: err}
		}

		addenda = append(addenda, member)
	}

	idx := mutate.IndexMediaType(mutate.AppendManifests(empty.Index, addenda...), types.DockerManifestList)

	logger := p.logger.With().
		Str("target", target.String()).
		Str("platforms", release.Platforms(release.Architectures)).
		Str("template", release.FullImageName(p.cfg.Repository, tag+"-ARCH")).
		Logger()

	if p.cfg.DryRun {
		logger.Info().Msg("dry run: manifest list push skipped")
		return nil
	}

	err = remote.WriteIndex(target, idx, opts...)
	if err != nil {
		return &AssemblyError{Tag: tag, Err: err}
	}

	digest, err := idx.Digest()
	if err == nil {
		logger = logger.With().Str("digest", digest.String()).Logger()
	}
	logger.Info().Dur("elapsed_ms", time.Since(startedAt)).Msg("manifest list has been published")

	return nil
}

func (p *Publisher) member(tag string, a release.Architecture, opts []remote.Option) (mutate.IndexAddendum, error) {
	ref, err := name.NewTag(release.FullImageName(p.cfg.Repository, release.ArchTag(tag, a)), p.cfg.NameOptions...)
	if err != nil {
		return mutate.IndexAddendum{}, err
	}

	desc, err := remote.Get(ref, opts...)
	if err != nil {
		return mutate.IndexAddendum{}, err
	}

	img, err := desc.Image()
	if err != nil {
		return mutate.IndexAddendum{}, err
	}

	return mutate.IndexAddendum{
		Add: img,
		Descriptor: v1.Descriptor{
			Platform: &v1.Platform{
				OS:           "linux",
				Architecture: string(a),
			},
		},
	}, nil
}

func isNotFound(err error) bool {
	var terr *transport.Error
	return errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound
}
