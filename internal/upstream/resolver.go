package upstream

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/lodthe/multiarch-publisher/pkg/version"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	DefaultIndexURL    = "https://repo.jenkins-ci.org/releases/org/jenkins-ci/main/jenkins-war/maven-metadata.xml"
	DefaultChecksumURL = "https://repo.jenkins-ci.org/releases/org/jenkins-ci/main/jenkins-war/{version}/jenkins-war-{version}.war.sha256"
	DefaultWindow      = 30
)

// ErrUpstreamUnavailable is returned when the release index or a checksum cannot be obtained.
var ErrUpstreamUnavailable = errors.New("upstream is unavailable")

var versionPattern = regexp.MustCompile(`[0-9]+(\.[0-9]+)+`)

type Config struct {
	IndexURL string

	// ChecksumURL is a template, every {version} is replaced with the release version.
	ChecksumURL string

	// Only the Window highest versions are returned. 0 means no limit.
	Window int
}

// Releases is the ordered set of candidate versions.
type Releases struct {
	// Versions are deduplicated and sorted in ascending order.
	Versions []string
	Latest   string

	// LTS is the highest N.N.N version, or "" if there is none.
	LTS string
}

// Resolver reads the upstream release index.
type Resolver struct {
	cfg    Config
	logger zerolog.Logger
	cli    *http.Client
}

func NewResolver(cfg Config, logger zerolog.Logger, httpCli ...*http.Client) *Resolver {
	if cfg.IndexURL == "" {
		cfg.IndexURL = DefaultIndexURL
	}
	if cfg.ChecksumURL == "" {
		cfg.ChecksumURL = DefaultChecksumURL
	}

	r := &Resolver{
		cfg:    cfg,
		logger: logger.With().Str("component", "upstream").Logger(),
		cli:    http.DefaultClient,
	}
	if len(httpCli) == 1 {
		r.cli = httpCli[0]
	}

	return r
}

type mavenMetadata struct {
	Versions []string `xml:"versioning>versions>version"`
}

// LatestVersions fetches the release index and returns the candidate versions.
func (r *Resolver) LatestVersions(ctx context.Context) (Releases, error) {
	body, err := r.get(ctx, r.cfg.IndexURL)
	if err != nil {
		return Releases{}, err
	}

	meta := new(mavenMetadata)
	err = xml.Unmarshal(body, meta)
	if err != nil {
		return Releases{}, errors.Wrapf(ErrUpstreamUnavailable, "failed to parse release index: %v", err)
	}

	var found []string
	for _, raw := range meta.Versions {
		v := versionPattern.FindString(raw)
		if v == "" {
			continue
		}

		found = append(found, v)
	}

	if len(found) == 0 {
		return Releases{}, errors.Wrap(ErrUpstreamUnavailable, "release index contains no versions")
	}

	versions := version.SortUnique(found)
	if r.cfg.Window > 0 && len(versions) > r.cfg.Window {
		versions = versions[len(versions)-r.cfg.Window:]
	}

	releases := Releases{
		Versions: versions,
		Latest:   versions[len(versions)-1],
		LTS:      version.LatestLTS(versions),
	}

	r.logger.Debug().
		Int("count", len(versions)).
		Str("latest", releases.Latest).
		Str("lts", releases.LTS).
		Msg("upstream versions have been resolved")

	return releases, nil
}

// Checksum returns the hex sha256 of the release artifact.
func (r *Resolver) Checksum(ctx context.Context, v string) (string, error) {
	url := strings.ReplaceAll(r.cfg.ChecksumURL, "{version}", v)

	body, err := r.get(ctx, url)
	if err != nil {
		return "", err
	}

	fields := strings.Fields(string(body))
	if len(fields) == 0 {
		return "", errors.Wrapf(ErrUpstreamUnavailable, "checksum file of %s is empty", v)
	}

	return fields[0], nil
}

func (r *Resolver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := r.cli.Do(req)
	if err != nil {
		return nil, errors.Wrapf(ErrUpstreamUnavailable, "GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Wrapf(ErrUpstreamUnavailable, "GET %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(ErrUpstreamUnavailable, "GET %s: body read failed: %v", url, err)
	}

	return body, nil
}
