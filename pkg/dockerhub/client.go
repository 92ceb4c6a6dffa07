package dockerhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"go.uber.org/ratelimit"
)

const DockerHubURL = "https://hub.docker.com/v2"
const DefaultMaxRPS = 5

const pageSize = 100

type Client struct {
	apiURL string
	rl     ratelimit.Limiter

	cli *http.Client
}

func NewClient(apiURL string, maxRPS int, httpCli ...*http.Client) *Client {
	if maxRPS <= 0 {
		maxRPS = DefaultMaxRPS
	}

	c := &Client{
		apiURL: apiURL,
		rl:     ratelimit.New(maxRPS),
		cli:    http.DefaultClient,
	}
	if len(httpCli) == 1 {
		c.cli = httpCli[0]
	}

	return c
}

// GetTags fetches all tags of the given repository following the pagination links.
func (c *Client) GetTags(ctx context.Context, repository string) ([]ImageTag, error) {
	nextURL := fmt.Sprintf("%s/repositories/%s/tags/?page_size=%d", c.apiURL, repository, pageSize)

	var tags []ImageTag
	for {
		resp, err := c.getTags(ctx, nextURL)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list tags of %s", repository)
		}

		tags = append(tags, resp.Results...)
		if resp.Next == nil || *resp.Next == "" {
			break
		}

		nextURL = *resp.Next
	}

	return tags, nil
}

func (c *Client) getTags(ctx context.Context, url string) (*GetImageTagsResponse, error) { // nolint
	c.rl.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.cli.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "body read failed")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %d", resp.StatusCode)
	}

	response := new(GetImageTagsResponse)
	err = json.Unmarshal(body, response)
	if err != nil {
		zlog.Error().Err(err).Str("url", url).Str("body", string(body)).Msg("failed to decode image tags")

		return nil, errors.Wrap(err, "unmarshal failed")
	}

	return response, nil
}
