package baseimage

import (
	"fmt"
	"regexp"

	"github.com/lodthe/multiarch-publisher/internal/release"
)

const DefaultBaseImage = "openjdk:8-jdk"

// Template placeholders understood by the rewrite rules.
const (
	BaseImagePlaceholder = "__BASE_IMAGE__"
	QemuArchPlaceholder  = "__QEMU_ARCH__"
	CrossBuildMarker     = "#CROSS_BUILD "
)

var (
	baseImagePattern        = regexp.MustCompile(regexp.QuoteMeta(BaseImagePlaceholder))
	qemuArchPattern         = regexp.MustCompile(regexp.QuoteMeta(QemuArchPlaceholder))
	crossBuildLinePattern   = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(CrossBuildMarker) + `.*(?:\r?\n|$)`)
	crossBuildMarkerPattern = regexp.MustCompile(`(?m)^` + regexp.QuoteMeta(CrossBuildMarker))
)

// Rule is a single Dockerfile template rewrite.
type Rule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

// Resolution is the outcome of resolving a (variant, architecture) pair.
type Resolution struct {
	BaseImage string
	Rules     []Rule
}

// Apply runs the rewrite rules over the template in order.
func (r Resolution) Apply(template string) string {
	for _, rule := range r.Rules {
		template = rule.Pattern.ReplaceAllLiteralString(template, rule.Replacement)
	}

	return template
}

// Resolver maps a variant and an architecture to a base image and template rewrite rules.
type Resolver struct {
	base string
}

func NewResolver(base string) *Resolver {
	if base == "" {
		base = DefaultBaseImage
	}

	return &Resolver{base: base}
}

// Resolve is total over release.Architectures. Any other architecture is a programming error.
func (r *Resolver) Resolve(variant release.Variant, a release.Architecture) Resolution {
	image := r.baseImage(variant, a)

	rules := []Rule{
		{Name: "base-image", Pattern: baseImagePattern, Replacement: image},
	}

	if a == release.AMD64 {
		// Native build, no emulation layer.
		rules = append(rules, Rule{Name: "strip-cross-build", Pattern: crossBuildLinePattern, Replacement: ""})
	} else {
		rules = append(rules,
			Rule{Name: "qemu-arch", Pattern: qemuArchPattern, Replacement: EmulationArch(a)},
			Rule{Name: "enable-cross-build", Pattern: crossBuildMarkerPattern, Replacement: ""},
		)
	}

	return Resolution{BaseImage: image, Rules: rules}
}

func (r *Resolver) baseImage(variant release.Variant, a release.Architecture) string {
	switch variant {
	case release.Alpine:
		// There is no arm32v7 alpine image upstream, arm32v6 is used instead.
		if a == release.ARM {
			return "arm32v6/" + r.base + "-alpine"
		}

		return VendorPrefix(a) + r.base + "-alpine"

	case release.Slim:
		return VendorPrefix(a) + r.base + "-slim"

	default:
		return VendorPrefix(a) + r.base
	}
}

// VendorPrefix returns the Docker Hub namespace holding base images for the architecture.
func VendorPrefix(a release.Architecture) string {
	switch a {
	case release.AMD64:
		return ""
	case release.ARM:
		return "arm32v7/"
	case release.ARM64:
		return "arm64v8/"
	case release.S390X:
		return "s390x/"
	default:
		panic(fmt.Sprintf("baseimage: unsupported architecture %q", a))
	}
}

// EmulationArch returns the name of the qemu user-mode binary for the architecture.
func EmulationArch(a release.Architecture) string {
	switch a {
	case release.ARM64:
		return "aarch64"
	case release.AMD64, release.ARM, release.S390X:
		return string(a)
	default:
		panic(fmt.Sprintf("baseimage: unsupported architecture %q", a))
	}
}
