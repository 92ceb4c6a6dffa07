package engine

import (
	"context"
	"io"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	dockercli "github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/pkg/errors"
)

// engineProvider simplifies communication with Docker Engine API.
type engineProvider struct {
	cli *dockercli.Client
}

func newProvider(daemonURL *string) (*engineProvider, error) {
	opts := []dockercli.Opt{
		dockercli.FromEnv,
		dockercli.WithAPIVersionNegotiation(),
	}
	if daemonURL != nil {
		opts = append(opts, dockercli.WithHost(*daemonURL))
	}

	cli, err := dockercli.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create docker client")
	}

	return &engineProvider{cli: cli}, nil
}

func (p *engineProvider) close() error {
	return p.cli.Close()
}

func (p *engineProvider) pullImage(ctx context.Context, name string) (io.ReadCloser, error) {
	return p.cli.ImagePull(ctx, name, image.PullOptions{})
}

func (p *engineProvider) pushImage(ctx context.Context, name, registryAuth string) (io.ReadCloser, error) {
	return p.cli.ImagePush(ctx, name, image.PushOptions{
		RegistryAuth: registryAuth,
	})
}

func (p *engineProvider) addImageTag(ctx context.Context, existingImageTag, newImageTag string) error {
	return p.cli.ImageTag(ctx, existingImageTag, newImageTag)
}

// removeImageTag untags the reference. The image itself is kept while other tags point to it.
func (p *engineProvider) removeImageTag(ctx context.Context, tag string) error {
	_, err := p.cli.ImageRemove(ctx, tag, image.RemoveOptions{
		PruneChildren: false,
	})
	if err != nil && errdefs.IsNotFound(err) {
		return nil
	}

	return err
}

// buildImage sends the build context to the daemon.
// Keep in mind that you have to close the returned body.
func (p *engineProvider) buildImage(ctx context.Context, buildContext io.Reader, opts types.ImageBuildOptions) (io.ReadCloser, error) {
	resp, err := p.cli.ImageBuild(ctx, buildContext, opts)
	if err != nil {
		return nil, err
	}

	return resp.Body, nil
}
