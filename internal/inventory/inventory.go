package inventory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/lodthe/multiarch-publisher/internal/release"
	"github.com/lodthe/multiarch-publisher/pkg/dockerhub"
	"github.com/lodthe/multiarch-publisher/pkg/version"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const DefaultOS = "linux"

type DockerHubClient interface {
	GetTags(ctx context.Context, repository string) ([]dockerhub.ImageTag, error)
}

type Config struct {
	Repositories []string
	OS           string
}

// Entry is a published tag with the digests of its per-architecture members.
type Entry struct {
	Repository string
	Tag        string
	Digests    map[release.Architecture]string
	PushedAt   time.Time
}

// Collector builds a read-only inventory of the tags published in several repositories.
type Collector struct {
	cfg    Config
	logger zerolog.Logger
	cli    DockerHubClient
}

func New(cfg Config, logger zerolog.Logger, cli DockerHubClient) *Collector {
	if cfg.OS == "" {
		cfg.OS = DefaultOS
	}

	return &Collector{
		cfg:    cfg,
		logger: logger.With().Str("component", "inventory").Logger(),
		cli:    cli,
	}
}

func (c *Collector) normalizeTag(tag string) string {
	return strings.ToLower(tag)
}

// Collect fetches entries from every configured repository.
//
// It spawns a goroutine for each repository. If a tag is present in several repositories,
// the entry of the first repository in the configured order is kept.
// The result is sorted by version in descending order.
func (c *Collector) Collect(ctx context.Context) ([]Entry, error) {
	g, gctx := errgroup.WithContext(ctx)
	entriesByRepo := make([][]Entry, len(c.cfg.Repositories))
	for i := range c.cfg.Repositories {
		i := i

		g.Go(func() error {
			entries, err := c.getEntries(gctx, c.cfg.Repositories[i])
			if err != nil {
				return err
			}

			entriesByRepo[i] = entries

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		c.logger.Err(err).Msg("failed to collect the inventory")
		return nil, err
	}

	var merged []Entry
	seen := make(map[string]struct{})
	for _, entries := range entriesByRepo {
		for _, e := range entries {
			tag := c.normalizeTag(e.Tag)
			if _, exists := seen[tag]; exists {
				continue
			}

			seen[tag] = struct{}{}
			merged = append(merged, e)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return version.Less(merged[j].Tag, merged[i].Tag)
	})

	return merged, nil
}

// getEntries lists the tags of the repository and keeps the members of known architectures.
func (c *Collector) getEntries(ctx context.Context, repository string) ([]Entry, error) {
	c.logger.Debug().Str("repository", repository).Msg("start fetching tags")

	tags, err := c.cli.GetTags(ctx, repository)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get tags from dockerhub")
	}

	entries := make([]Entry, 0, len(tags))
	for _, t := range tags {
		e := Entry{
			Repository: repository,
			Tag:        t.Name,
			Digests:    make(map[release.Architecture]string),
			PushedAt:   t.TagLastPushed,
		}

		for _, img := range t.Images {
			if !strings.EqualFold(img.OS, c.cfg.OS) {
				continue
			}

			a, err := release.ParseArchitecture(strings.ToLower(img.Architecture))
			if err != nil {
				continue
			}

			e.Digests[a] = img.Digest
		}

		entries = append(entries, e)
	}

	c.logger.Debug().Str("repository", repository).Int("count", len(entries)).Msg("tags have been fetched")

	return entries, nil
}
