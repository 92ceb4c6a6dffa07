package release

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Architecture is a CPU architecture an image is built for.
type Architecture string

const (
	AMD64 Architecture = "amd64"
	ARM   Architecture = "arm"
	ARM64 Architecture = "arm64"
	S390X Architecture = "s390x"
)

// Architectures lists every published architecture in manifest order.
var Architectures = []Architecture{AMD64, ARM, ARM64, S390X}

// Platform returns the os/arch pair of the architecture as used in manifest lists.
func (a Architecture) Platform() string {
	return "linux/" + string(a)
}

// ParseArchitecture validates an architecture name.
func ParseArchitecture(raw string) (Architecture, error) {
	for _, a := range Architectures {
		if string(a) == raw {
			return a, nil
		}
	}

	return "", errors.Errorf("unknown architecture %q", raw)
}

// Platforms renders the comma-joined platform list for the given architectures.
func Platforms(archs []Architecture) string {
	platforms := make([]string, 0, len(archs))
	for _, a := range archs {
		platforms = append(platforms, a.Platform())
	}

	return strings.Join(platforms, ",")
}

// Variant selects a base OS flavor. The empty variant is the default Debian flavor.
type Variant string

const (
	Default Variant = ""
	Alpine  Variant = "alpine"
	Slim    Variant = "slim"
)

// ParseVariant validates a variant name. An empty string yields the default variant.
func ParseVariant(raw string) (Variant, error) {
	switch v := Variant(strings.TrimSpace(raw)); v {
	case Default, Alpine, Slim:
		return v, nil
	default:
		return "", errors.Errorf("unknown variant %q (supported: %s, %s)", raw, Alpine, Slim)
	}
}

// Suffix is the tag suffix of the variant: "", "-alpine" or "-slim".
func (v Variant) Suffix() string {
	if v == Default {
		return ""
	}

	return "-" + string(v)
}

// Tag renders the manifest-list level tag "{version}{variantSuffix}".
func Tag(version string, variant Variant) string {
	return version + variant.Suffix()
}

// ArchTag renders the architecture specific tag "{tag}-{arch}".
func ArchTag(tag string, a Architecture) string {
	return fmt.Sprintf("%s-%s", tag, a)
}

// FullImageName joins the repository and the tag into a pullable reference.
func FullImageName(repository, tag string) string {
	return fmt.Sprintf("%s:%s", repository, tag)
}
