package dockerfile

import (
	"os"
	"path/filepath"

	"github.com/lodthe/multiarch-publisher/internal/baseimage"
	"github.com/lodthe/multiarch-publisher/internal/release"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const DefaultOutputDir = ".multiarch"

type Config struct {
	// Directory with Dockerfile templates: Dockerfile for the default variant
	// and Dockerfile.<variant> for the others.
	TemplateDir string

	// Build context root. Generated Dockerfiles are written under ContextDir/OutputDir.
	ContextDir string
	OutputDir  string
}

// Renderer produces per-architecture Dockerfiles from the variant template.
type Renderer struct {
	cfg      Config
	logger   zerolog.Logger
	resolver *baseimage.Resolver
}

func NewRenderer(cfg Config, logger zerolog.Logger, resolver *baseimage.Resolver) *Renderer {
	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}

	return &Renderer{
		cfg:      cfg,
		logger:   logger.With().Str("component", "dockerfile").Logger(),
		resolver: resolver,
	}
}

func (r *Renderer) templatePath(variant release.Variant) string {
	if variant == release.Default {
		return filepath.Join(r.cfg.TemplateDir, "Dockerfile")
	}

	return filepath.Join(r.cfg.TemplateDir, "Dockerfile."+string(variant))
}

// Render writes the Dockerfile for the given variant and architecture.
// The returned path is relative to the build context.
func (r *Renderer) Render(variant release.Variant, a release.Architecture) (string, error) {
	src := r.templatePath(variant)
	tmpl, err := os.ReadFile(src)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read template %s", src)
	}

	res := r.resolver.Resolve(variant, a)
	content := res.Apply(string(tmpl))

	rel := filepath.Join(r.cfg.OutputDir, "Dockerfile"+variant.Suffix()+"-"+string(a))
	dst := filepath.Join(r.cfg.ContextDir, rel)

	err = os.MkdirAll(filepath.Dir(dst), 0o755)
	if err != nil {
		return "", errors.Wrap(err, "failed to create output directory")
	}

	err = os.WriteFile(dst, []byte(content), 0o644)
	if err != nil {
		return "", errors.Wrapf(err, "failed to write %s", dst)
	}

	r.logger.Debug().
		Str("template", src).
		Str("dockerfile", dst).
		Str("base_image", res.BaseImage).
		Msg("dockerfile has been rendered")

	return rel, nil
}

// Cleanup removes every generated Dockerfile.
func (r *Renderer) Cleanup() error {
	dir := filepath.Join(r.cfg.ContextDir, r.cfg.OutputDir)

	err := os.RemoveAll(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to remove %s", dir)
	}

	r.logger.Debug().Str("dir", dir).Msg("generated dockerfiles have been removed")

	return nil
}
