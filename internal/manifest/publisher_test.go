package manifest

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lodthe/multiarch-publisher/internal/release"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-containerregistry/pkg/name"
	crregistry "github.com/google/go-containerregistry/pkg/registry"
	"github.com/google/go-containerregistry/pkg/v1/random"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/types"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(crregistry.New())
	t.Cleanup(srv.Close)

	return strings.TrimPrefix(srv.URL, "http://") + "/jenkins/jenkins"
}

func pushMembers(t *testing.T, repository, tag string, archs []release.Architecture) {
	t.Helper()

	for _, a := range archs {
		img, err := random.Image(256, 1)
		require.NoError(t, err)

		ref, err := name.NewTag(release.FullImageName(repository, release.ArchTag(tag, a)))
		require.NoError(t, err)
		require.NoError(t, remote.Write(ref, img))
	}
}

func TestPublish(t *testing.T) {
	repository := newRegistry(t)
	pushMembers(t, repository, "2.301", release.Architectures)

	p := New(zlog.Logger, Config{Repository: repository})
	require.NoError(t, p.Publish(context.Background(), "2.301"))

	ref, err := name.NewTag(repository + ":2.301")
	require.NoError(t, err)

	idx, err := remote.Index(ref)
	require.NoError(t, err)

	manifest, err := idx.IndexManifest()
	require.NoError(t, err)
	assert.Equal(t, types.DockerManifestList, manifest.MediaType)

	var platforms []string
	for _, m := range manifest.Manifests {
		platforms = append(platforms, m.Platform.OS+"/"+m.Platform.Architecture)
	}

	want := []string{"linux/amd64", "linux/arm", "linux/arm64", "linux/s390x"}
	if diff := cmp.Diff(want, platforms); diff != "" {
		t.Errorf("platforms mismatch (-want +got):\n%s", diff)
	}

	// Publishing again converges on the same list.
	require.NoError(t, p.Publish(context.Background(), "2.301"))
}

func TestPublishMissingMember(t *testing.T) {
	repository := newRegistry(t)
	pushMembers(t, repository, "latest", []release.Architecture{release.AMD64, release.ARM, release.S390X})

	err := New(zlog.Logger, Config{Repository: repository}).Publish(context.Background(), "latest")

	var assemblyErr *AssemblyError
	require.True(t, errors.As(err, &assemblyErr), "got %v", err)
	assert.Equal(t, release.ARM64, assemblyErr.Arch)
	assert.Equal(t, "latest", assemblyErr.Tag)

	ref, err := name.NewTag(repository + ":latest")
	require.NoError(t, err)
	_, err = remote.Get(ref)
	assert.Error(t, err, "no manifest list must be written")
}

func TestPublishDryRun(t *testing.T) {
	repository := newRegistry(t)
	pushMembers(t, repository, "lts", release.Architectures)

	err := New(zlog.Logger, Config{Repository: repository, DryRun: true}).Publish(context.Background(), "lts")
	require.NoError(t, err)

	ref, err := name.NewTag(repository + ":lts")
	require.NoError(t, err)
	_, err = remote.Get(ref)
	assert.Error(t, err, "dry run must not write the manifest list")
}

func TestPublishDryRunUnpublishedVersion(t *testing.T) {
	cases := []struct {
		name    string
		members []release.Architecture
	}{
		{name: "no members", members: nil},
		{name: "some members", members: []release.Architecture{release.AMD64, release.S390X}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			repository := newRegistry(t)
			pushMembers(t, repository, "2.301", c.members)

			err := New(zlog.Logger, Config{Repository: repository, DryRun: true}).Publish(context.Background(), "2.301")
			require.NoError(t, err)
		})
	}
}

func TestPublishUsesCallContext(t *testing.T) {
	repository := newRegistry(t)
	pushMembers(t, repository, "2.301", release.Architectures)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(zlog.Logger, Config{Repository: repository}, remote.WithContext(context.Background()))
	assert.Error(t, p.Publish(ctx, "2.301"))
}
