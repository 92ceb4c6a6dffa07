package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "publisher.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "jenkins/jenkins", cfg.Image.Repository)
	assert.Equal(t, "https://auth.docker.io/token", cfg.Registry.AuthURL)
	assert.Equal(t, "registry.docker.io", cfg.Registry.Service)
	assert.Equal(t, 10, cfg.Registry.MaxRPS)
	assert.Equal(t, 30, *cfg.Upstream.Window)
	assert.Equal(t, "openjdk:8-jdk", cfg.Build.BaseImage)
	assert.Equal(t, "JENKINS_VERSION", cfg.Build.VersionArg)
	assert.Equal(t, "JENKINS_SHA", cfg.Build.ChecksumArg)
	assert.Equal(t, JSONLogFormat, cfg.Log.Format)
	assert.Equal(t, []string{"jenkins/jenkins"}, cfg.Report.Repositories)
	assert.Nil(t, cfg.Build.DockerHost)
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, `
image:
  repository: jenkins4eval/jenkins
registry:
  token: pre-issued
  max_rps: "3"
upstream:
  window: 0
build:
  base_image: eclipse-temurin:11-jdk
  docker_host: unix:///var/run/docker.sock
log:
  level: debug
  format: pretty
report:
  repositories:
    - jenkins4eval/jenkins
    - jenkins/jenkins
`))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "jenkins4eval/jenkins", cfg.Image.Repository)
	assert.Equal(t, "pre-issued", cfg.Registry.Token)
	assert.Equal(t, 3, cfg.Registry.MaxRPS)
	assert.Equal(t, 0, *cfg.Upstream.Window)
	assert.Equal(t, "eclipse-temurin:11-jdk", cfg.Build.BaseImage)
	require.NotNil(t, cfg.Build.DockerHost)
	assert.Equal(t, "unix:///var/run/docker.sock", *cfg.Build.DockerHost)
	assert.Equal(t, PrettyLogFormat, cfg.Log.Format)
	assert.Equal(t, []string{"jenkins4eval/jenkins", "jenkins/jenkins"}, cfg.Report.Repositories)
}

func TestLoadConfigInvalid(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{name: "unknown log format", content: "log:\n  format: xml\n"},
		{name: "negative window", content: "upstream:\n  window: -1\n"},
		{name: "negative rps", content: "registry:\n  max_rps: -5\n"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Setenv("CONFIG_PATH", writeConfig(t, c.content))

			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}
