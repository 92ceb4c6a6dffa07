package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
)

const DockerHubAuthURL = "https://auth.docker.io/token"
const DockerHubService = "registry.docker.io"

type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

// FetchToken obtains an anonymous pull token for the repository from a token endpoint.
func FetchToken(ctx context.Context, cli *http.Client, authURL, service, repository string) (Token, error) {
	if cli == nil {
		cli = http.DefaultClient
	}

	u, err := url.Parse(authURL)
	if err != nil {
		return "", errors.Wrap(err, "invalid auth url")
	}

	q := u.Query()
	q.Set("service", service)
	q.Set("scope", "repository:"+repository+":pull")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}

	resp, err := cli.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "token request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	response := new(tokenResponse)
	err = json.NewDecoder(resp.Body).Decode(response)
	if err != nil {
		return "", errors.Wrap(err, "unmarshal failed")
	}

	if response.Token != "" {
		return Token(response.Token), nil
	}
	if response.AccessToken != "" {
		return Token(response.AccessToken), nil
	}

	return "", errors.New("token endpoint returned an empty token")
}
