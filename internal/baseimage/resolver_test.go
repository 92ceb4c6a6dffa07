package baseimage

import (
	"testing"

	"github.com/lodthe/multiarch-publisher/internal/release"

	"github.com/stretchr/testify/assert"
)

const template = `FROM __BASE_IMAGE__
#CROSS_BUILD COPY qemu-__QEMU_ARCH__-static /usr/bin/
#CROSS_BUILD RUN [ "cross-build-start" ]
RUN apt-get update
#CROSS_BUILD RUN [ "cross-build-end" ]
`

func TestResolveBaseImage(t *testing.T) {
	r := NewResolver("")

	cases := []struct {
		variant release.Variant
		arch    release.Architecture
		want    string
	}{
		{variant: release.Default, arch: release.AMD64, want: "openjdk:8-jdk"},
		{variant: release.Default, arch: release.ARM, want: "arm32v7/openjdk:8-jdk"},
		{variant: release.Default, arch: release.ARM64, want: "arm64v8/openjdk:8-jdk"},
		{variant: release.Default, arch: release.S390X, want: "s390x/openjdk:8-jdk"},
		{variant: release.Alpine, arch: release.AMD64, want: "openjdk:8-jdk-alpine"},
		{variant: release.Alpine, arch: release.ARM, want: "arm32v6/openjdk:8-jdk-alpine"},
		{variant: release.Alpine, arch: release.ARM64, want: "arm64v8/openjdk:8-jdk-alpine"},
		{variant: release.Slim, arch: release.AMD64, want: "openjdk:8-jdk-slim"},
		{variant: release.Slim, arch: release.ARM, want: "arm32v7/openjdk:8-jdk-slim"},
	}

	for _, tc := range cases {
		got := r.Resolve(tc.variant, tc.arch)
		assert.Equal(t, tc.want, got.BaseImage, "%q/%s", tc.variant, tc.arch)
	}
}

func TestApplyNative(t *testing.T) {
	res := NewResolver("openjdk:11-jdk").Resolve(release.Default, release.AMD64)

	assert.Equal(t, "FROM openjdk:11-jdk\nRUN apt-get update\n", res.Apply(template))
}

func TestApplyEmulated(t *testing.T) {
	res := NewResolver("").Resolve(release.Default, release.ARM64)

	want := `FROM arm64v8/openjdk:8-jdk
COPY qemu-aarch64-static /usr/bin/
RUN [ "cross-build-start" ]
RUN apt-get update
RUN [ "cross-build-end" ]
`
	assert.Equal(t, want, res.Apply(template))
}

func TestEmulationArch(t *testing.T) {
	assert.Equal(t, "aarch64", EmulationArch(release.ARM64))
	assert.Equal(t, "arm", EmulationArch(release.ARM))
	assert.Equal(t, "s390x", EmulationArch(release.S390X))
}
