package reconcile

import (
	"context"

	"github.com/lodthe/multiarch-publisher/internal/metrics"
	"github.com/lodthe/multiarch-publisher/internal/release"
	"github.com/lodthe/multiarch-publisher/pkg/registry"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type DigestReader interface {
	DigestOf(ctx context.Context, tok registry.Token, tag string) (string, error)
}

type Tagger interface {
	TagAndPush(ctx context.Context, source, targetRepository, targetTag string) error
}

// Reconciler keeps alias tags (latest, lts, variant names) pointed at the content of a versioned tag.
//
// The registry is the only source of truth: two tags are equivalent iff their image config digests
// match, so re-running after a successful update never pushes anything.
type Reconciler struct {
	logger     zerolog.Logger
	repository string

	digests DigestReader
	tagger  Tagger
}

func New(logger zerolog.Logger, repository string, digests DigestReader, tagger Tagger) *Reconciler {
	return &Reconciler{
		logger:     logger.With().Str("component", "reconciler").Logger(),
		repository: repository,
		digests:    digests,
		tagger:     tagger,
	}
}

// Reconcile points target-arch at the content of source-arch if they differ.
// It reports whether a tag-and-push happened.
func (r *Reconciler) Reconcile(ctx context.Context, tok registry.Token, source, target string, a release.Architecture) (bool, error) {
	sourceTag := release.ArchTag(source, a)
	targetTag := release.ArchTag(target, a)

	sourceDigest := r.digestOf(ctx, tok, sourceTag)
	targetDigest := r.digestOf(ctx, tok, targetTag)

	logger := r.logger.With().
		Str("source", sourceTag).
		Str("target", targetTag).
		Str("source_digest", sourceDigest).
		Str("target_digest", targetDigest).
		Logger()

	if sourceDigest != "" && sourceDigest == targetDigest {
		metrics.Aliases.Unchanged(target, string(a))
		logger.Info().Msg("alias already points at the same image")

		return false, nil
	}

	err := r.tagger.TagAndPush(ctx, release.FullImageName(r.repository, sourceTag), r.repository, targetTag)
	if err != nil {
		return false, errors.Wrapf(err, "failed to retag %s as %s", sourceTag, targetTag)
	}

	metrics.Aliases.Updated(target, string(a))
	logger.Info().Msg("alias has been updated")

	return true, nil
}

// ReconcileAll reconciles every published architecture and returns the number of updated tags.
// Architectures are processed sequentially in manifest order.
func (r *Reconciler) ReconcileAll(ctx context.Context, tok registry.Token, source, target string) (int, error) {
	var updated int
	for _, a := range release.Architectures {
		changed, err := r.Reconcile(ctx, tok, source, target, a)
		if err != nil {
			return updated, err
		}

		if changed {
			updated++
		}
	}

	return updated, nil
}

// digestOf returns "" when the digest is unknown: a dry run or a first publish has none.
func (r *Reconciler) digestOf(ctx context.Context, tok registry.Token, tag string) string {
	digest, err := r.digests.DigestOf(ctx, tok, tag)
	if err != nil {
		r.logger.Debug().Err(err).Str("tag", tag).Msg("digest is unknown")
		return ""
	}

	return digest
}
