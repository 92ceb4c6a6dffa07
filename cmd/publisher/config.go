package main

import (
	"os"

	"github.com/lodthe/multiarch-publisher/internal/baseimage"
	"github.com/lodthe/multiarch-publisher/internal/upstream"
	"github.com/lodthe/multiarch-publisher/pkg/dockerhub"
	"github.com/lodthe/multiarch-publisher/pkg/registry"

	gconfig "github.com/gookit/config/v2"
	gyaml "github.com/gookit/config/v2/yaml"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
)

const DefaultConfigPath = "publisher.yaml"

const (
	DefaultRepository  = "jenkins/jenkins"
	DefaultRegistryURL = "https://index.docker.io"
	DefaultRegistryRPS = 10
	DefaultTemplateDir = "multiarch"
	DefaultVersionArg  = "JENKINS_VERSION"
	DefaultChecksumArg = "JENKINS_SHA"
)

type LogFormat string

const (
	JSONLogFormat   LogFormat = "json"
	PrettyLogFormat LogFormat = "pretty"
)

type Config struct {
	Image    Image    `mapstructure:"image"`
	Registry Registry `mapstructure:"registry"`
	Upstream Upstream `mapstructure:"upstream"`
	Build    Build    `mapstructure:"build"`
	Log      Log      `mapstructure:"log"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Report   Report   `mapstructure:"report"`
}

type Image struct {
	Repository string `mapstructure:"repository"`
}

type Registry struct {
	URL     string `mapstructure:"url"`
	AuthURL string `mapstructure:"auth_url"`
	Service string `mapstructure:"service"`

	// Pre-issued bearer token. An anonymous one is fetched from AuthURL when empty.
	Token string `mapstructure:"token"`

	MaxRPS int `mapstructure:"max_rps"`
}

type Upstream struct {
	IndexURL    string `mapstructure:"index_url"`
	ChecksumURL string `mapstructure:"checksum_url"`
	Window      *int   `mapstructure:"window"`
}

type Build struct {
	BaseImage   string  `mapstructure:"base_image"`
	ContextDir  string  `mapstructure:"context_dir"`
	TemplateDir string  `mapstructure:"template_dir"`
	VersionArg  string  `mapstructure:"version_arg"`
	ChecksumArg string  `mapstructure:"checksum_arg"`
	DockerHost  *string `mapstructure:"docker_host"`
}

type Log struct {
	Level  string    `mapstructure:"level"`
	Format LogFormat `mapstructure:"format"`
}

type Metrics struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
}

type Report struct {
	Repositories []string `mapstructure:"repositories"`
	HubURL       string   `mapstructure:"hub_url"`
}

// LoadConfig reads the config from CONFIG_PATH.
// A missing file at the default path is not an error, defaults are used instead.
func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultConfigPath
	}

	cfg := new(Config)

	_, err := os.Stat(path)
	switch {
	case err == nil:
		err = loadFile(path, cfg)
		if err != nil {
			return nil, err
		}

	case os.IsNotExist(err) && path == DefaultConfigPath:

	default:
		return nil, errors.Wrapf(err, "config %s cannot be read", path)
	}

	err = cfg.validate()
	if err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	c := gconfig.NewWithOptions("publisher",
		gconfig.ParseEnv,
		gconfig.Readonly,
		func(opts *gconfig.Options) {
			opts.DecoderConfig = &mapstructure.DecoderConfig{
				TagName:          "mapstructure",
				WeaklyTypedInput: true,
				DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
			}
		},
	)
	c.AddDriver(gyaml.Driver)

	err := c.LoadFiles(path)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	err = c.BindStruct("", cfg)
	if err != nil {
		return errors.Wrap(err, "config binding failed")
	}

	return nil
}

// validate verifies the loaded config and sets default values for missed fields.
func (c *Config) validate() error {
	if c.Image.Repository == "" {
		c.Image.Repository = DefaultRepository
	}

	if c.Registry.URL == "" {
		c.Registry.URL = DefaultRegistryURL
	}
	if c.Registry.AuthURL == "" {
		c.Registry.AuthURL = registry.DockerHubAuthURL
	}
	if c.Registry.Service == "" {
		c.Registry.Service = registry.DockerHubService
	}
	if c.Registry.MaxRPS < 0 {
		return errors.New("registry.max_rps cannot be negative")
	}
	if c.Registry.MaxRPS == 0 {
		c.Registry.MaxRPS = DefaultRegistryRPS
	}

	if c.Upstream.IndexURL == "" {
		c.Upstream.IndexURL = upstream.DefaultIndexURL
	}
	if c.Upstream.ChecksumURL == "" {
		c.Upstream.ChecksumURL = upstream.DefaultChecksumURL
	}
	if c.Upstream.Window == nil {
		window := upstream.DefaultWindow
		c.Upstream.Window = &window
	}
	if *c.Upstream.Window < 0 {
		return errors.New("upstream.window cannot be negative")
	}

	if c.Build.BaseImage == "" {
		c.Build.BaseImage = baseimage.DefaultBaseImage
	}
	if c.Build.ContextDir == "" {
		c.Build.ContextDir = "."
	}
	if c.Build.TemplateDir == "" {
		c.Build.TemplateDir = DefaultTemplateDir
	}
	if c.Build.VersionArg == "" {
		c.Build.VersionArg = DefaultVersionArg
	}
	if c.Build.ChecksumArg == "" {
		c.Build.ChecksumArg = DefaultChecksumArg
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	switch c.Log.Format {
	case "":
		c.Log.Format = JSONLogFormat
	case JSONLogFormat, PrettyLogFormat:
	default:
		return errors.Errorf("unknown log.format %q", c.Log.Format)
	}

	if len(c.Report.Repositories) == 0 {
		c.Report.Repositories = []string{c.Image.Repository}
	}
	if c.Report.HubURL == "" {
		c.Report.HubURL = dockerhub.DockerHubURL
	}

	return nil
}
