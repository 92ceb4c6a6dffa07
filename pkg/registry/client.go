package registry

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"go.uber.org/ratelimit"
)

const DockerHubRegistryURL = "https://index.docker.io"
const DefaultMaxRPS = 10

// Token is a bearer token scoped to the repository.
type Token string

var imageMediaTypes = []types.MediaType{
	types.DockerManifestSchema2,
	types.OCIManifestSchema1,
}

var publishMediaTypes = append([]types.MediaType{
	types.DockerManifestList,
	types.OCIImageIndex,
}, imageMediaTypes...)

// Client queries manifests of a single repository through the registry HTTP API.
type Client struct {
	baseURL    string
	repository string
	rl         ratelimit.Limiter

	cli *http.Client
}

func NewClient(baseURL, repository string, maxRPS int, httpCli ...*http.Client) *Client {
	if maxRPS <= 0 {
		maxRPS = DefaultMaxRPS
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		repository: repository,
		rl:         ratelimit.New(maxRPS),
		cli:        http.DefaultClient,
	}
	if len(httpCli) == 1 {
		c.cli = httpCli[0]
	}

	return c
}

func (c *Client) manifestURL(tag string) string {
	return fmt.Sprintf("%s/v2/%s/manifests/%s", c.baseURL, c.repository, tag)
}

// IsPublished checks whether the tag exists.
// 404 is a normal negative answer, any status other than 200 and 404 yields *StatusError.
func (c *Client) IsPublished(ctx context.Context, tok Token, tag string) (bool, error) {
	status, _, err := c.getManifest(ctx, tok, tag, publishMediaTypes)
	if err != nil {
		return false, err
	}

	switch status {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &StatusError{Status: status, Tag: tag}
	}
}

// DigestOf returns the image configuration digest of the tag.
// ErrTagNotFound is returned if the tag does not resolve to an image manifest.
func (c *Client) DigestOf(ctx context.Context, tok Token, tag string) (string, error) {
	status, body, err := c.getManifest(ctx, tok, tag, imageMediaTypes)
	if err != nil {
		return "", err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", errors.Wrap(ErrTagNotFound, tag)
	default:
		return "", &StatusError{Status: status, Tag: tag}
	}

	manifest, err := v1.ParseManifest(bytes.NewReader(body))
	if err != nil {
		zlog.Error().Err(err).Str("tag", tag).Str("body", string(body)).Msg("failed to parse manifest")

		return "", errors.Wrap(err, "manifest unmarshal failed")
	}

	if manifest.Config.Digest.Hex == "" {
		return "", errors.Wrapf(ErrTagNotFound, "%s has no image config", tag)
	}

	return manifest.Config.Digest.String(), nil
}

func (c *Client) getManifest(ctx context.Context, tok Token, tag string, accept []types.MediaType) (int, []byte, error) { // nolint
	c.rl.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.manifestURL(tag), nil)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to create request")
	}

	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+string(tok))
	}
	for _, mt := range accept {
		req.Header.Add("Accept", string(mt))
	}

	resp, err := c.cli.Do(req)
	if err != nil {
		return 0, nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "body read failed")
	}

	return resp.StatusCode, body, nil
}
