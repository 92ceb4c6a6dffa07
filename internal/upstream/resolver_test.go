package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metadata(versions ...string) string {
	b := new(strings.Builder)
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><metadata><groupId>org.jenkins-ci.main</groupId><versioning><versions>`)
	for _, v := range versions {
		fmt.Fprintf(b, "<version>%s</version>", v)
	}
	b.WriteString(`</versions></versioning></metadata>`)

	return b.String()
}

func newServer(t *testing.T, index string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/maven-metadata.xml":
			_, _ = w.Write([]byte(index))
		case r.URL.Path == "/2.301/war.sha256":
			_, _ = w.Write([]byte("4a5b6c7d  jenkins.war\n"))
		case r.URL.Path == "/2.302/war.sha256":
			_, _ = w.Write([]byte("\n"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func newTestResolver(srv *httptest.Server, window int) *Resolver {
	return NewResolver(Config{
		IndexURL:    srv.URL + "/maven-metadata.xml",
		ChecksumURL: srv.URL + "/{version}/war.sha256",
		Window:      window,
	}, zlog.Logger)
}

func TestLatestVersionsNumericOrder(t *testing.T) {
	srv := newServer(t, metadata("8.0.0", "8.10.0", "8.9.0", "8.10.0"))

	releases, err := newTestResolver(srv, 0).LatestVersions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"8.0.0", "8.9.0", "8.10.0"}, releases.Versions)
	assert.Equal(t, "8.10.0", releases.Latest)
	assert.Equal(t, "8.10.0", releases.LTS)
}

func TestLatestVersionsLTS(t *testing.T) {
	srv := newServer(t, metadata("2.300", "2.289.1", "2.301", "1.0-beta"))

	releases, err := newTestResolver(srv, 0).LatestVersions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"1.0", "2.289.1", "2.300", "2.301"}, releases.Versions)
	assert.Equal(t, "2.301", releases.Latest)
	assert.Equal(t, "2.289.1", releases.LTS)
}

func TestLatestVersionsWindow(t *testing.T) {
	srv := newServer(t, metadata("2.1", "2.2", "2.3", "2.4"))

	releases, err := newTestResolver(srv, 2).LatestVersions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"2.3", "2.4"}, releases.Versions)
	assert.Empty(t, releases.LTS)
}

func TestLatestVersionsUnavailable(t *testing.T) {
	cases := []struct {
		name string
		srv  *httptest.Server
		path string
	}{
		{name: "empty index", srv: newServer(t, metadata()), path: "/maven-metadata.xml"},
		{name: "garbage", srv: newServer(t, "not xml at all <"), path: "/maven-metadata.xml"},
		{name: "not found", srv: newServer(t, metadata("2.1")), path: "/missing.xml"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(Config{IndexURL: tc.srv.URL + tc.path}, zlog.Logger)

			_, err := r.LatestVersions(context.Background())
			assert.True(t, errors.Is(err, ErrUpstreamUnavailable), "got %v", err)
		})
	}
}

func TestChecksum(t *testing.T) {
	srv := newServer(t, metadata("2.301"))
	r := newTestResolver(srv, 0)

	sum, err := r.Checksum(context.Background(), "2.301")
	require.NoError(t, err)
	assert.Equal(t, "4a5b6c7d", sum)

	_, err = r.Checksum(context.Background(), "2.302")
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))

	_, err = r.Checksum(context.Background(), "9.9")
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))
}
