package engine

import (
	"io"

	"github.com/docker/cli/cli/config"
	"github.com/docker/docker/api/types/registry"
	"github.com/pkg/errors"
)

const DockerHubServerAddress = "https://index.docker.io/v1/"

// registryAuth encodes credentials stored by `docker login` into the X-Registry-Auth value.
// Missing credentials produce an anonymous auth value.
func registryAuth(serverAddress string) (string, error) {
	cfg := config.LoadDefaultConfigFile(io.Discard)

	creds, err := cfg.GetAuthConfig(serverAddress)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read credentials of %s", serverAddress)
	}

	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      creds.Username,
		Password:      creds.Password,
		Auth:          creds.Auth,
		ServerAddress: creds.ServerAddress,
		IdentityToken: creds.IdentityToken,
		RegistryToken: creds.RegistryToken,
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode credentials")
	}

	return encoded, nil
}
