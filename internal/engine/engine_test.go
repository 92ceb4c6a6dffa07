package engine

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/errdefs"
	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type daemonMock struct {
	pullErr   error
	untagErr  error
	tagErrors []error

	calls []string
}

func (m *daemonMock) emptyStream() io.ReadCloser {
	return io.NopCloser(strings.NewReader(""))
}

func (m *daemonMock) pullImage(_ context.Context, name string) (io.ReadCloser, error) {
	m.calls = append(m.calls, "pull "+name)
	if m.pullErr != nil {
		return nil, m.pullErr
	}

	return m.emptyStream(), nil
}

func (m *daemonMock) pushImage(_ context.Context, name, _ string) (io.ReadCloser, error) {
	m.calls = append(m.calls, "push "+name)
	return m.emptyStream(), nil
}

func (m *daemonMock) addImageTag(_ context.Context, existingImageTag, newImageTag string) error {
	m.calls = append(m.calls, "tag "+existingImageTag+" "+newImageTag)
	if len(m.tagErrors) == 0 {
		return nil
	}

	err := m.tagErrors[0]
	m.tagErrors = m.tagErrors[1:]

	return err
}

func (m *daemonMock) removeImageTag(_ context.Context, tag string) error {
	m.calls = append(m.calls, "untag "+tag)
	return m.untagErr
}

func (m *daemonMock) buildImage(_ context.Context, _ io.Reader, opts types.ImageBuildOptions) (io.ReadCloser, error) {
	m.calls = append(m.calls, "build "+opts.Tags[0])
	return m.emptyStream(), nil
}

func (m *daemonMock) close() error {
	return nil
}

func TestTagAndPush(t *testing.T) {
	const (
		source = "jenkins/jenkins:2.301-arm64"
		target = "jenkins/jenkins:latest-arm64"
	)

	cases := []struct {
		name    string
		dryRun  bool
		daemon  *daemonMock
		wantErr bool
		want    []string
	}{
		{
			name:   "force tag",
			daemon: &daemonMock{},
			want: []string{
				"pull " + source,
				"untag " + target,
				"tag " + source + " " + target,
				"push " + target,
			},
		},
		{
			name:   "failed untag falls back to plain tag",
			daemon: &daemonMock{untagErr: errors.New("conflict")},
			want: []string{
				"pull " + source,
				"untag " + target,
				"tag " + source + " " + target,
				"push " + target,
			},
		},
		{
			name:   "failed force tag falls back to plain tag",
			daemon: &daemonMock{tagErrors: []error{errors.New("busy")}},
			want: []string{
				"pull " + source,
				"untag " + target,
				"tag " + source + " " + target,
				"tag " + source + " " + target,
				"push " + target,
			},
		},
		{
			name:    "failed plain tag",
			daemon:  &daemonMock{untagErr: errors.New("conflict"), tagErrors: []error{errors.New("no such image")}},
			wantErr: true,
			want: []string{
				"pull " + source,
				"untag " + target,
				"tag " + source + " " + target,
			},
		},
		{
			name:   "dry run skips push",
			dryRun: true,
			daemon: &daemonMock{},
			want: []string{
				"pull " + source,
				"untag " + target,
				"tag " + source + " " + target,
			},
		},
		{
			name:   "dry run of an unpushed source",
			dryRun: true,
			daemon: &daemonMock{pullErr: errdefs.NotFound(errors.New("manifest unknown"))},
			want:   []string{"pull " + source},
		},
		{
			name:    "missing source",
			daemon:  &daemonMock{pullErr: errdefs.NotFound(errors.New("manifest unknown"))},
			wantErr: true,
			want:    []string{"pull " + source},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := &Engine{
				logger:   zlog.Logger,
				cfg:      Config{DryRun: c.dryRun, Output: io.Discard},
				provider: c.daemon,
			}

			err := e.TagAndPush(context.Background(), source, "jenkins/jenkins", "latest-arm64")
			if c.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			assert.Equal(t, c.want, c.daemon.calls)
		})
	}
}
