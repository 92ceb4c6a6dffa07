package engine

import "io"

type Config struct {
	// Docker daemon address. DOCKER_HOST and friends are used when nil.
	DaemonURL *string

	// Directory sent to the daemon as the build context.
	ContextDir string

	// Registry whose `docker login` credentials are used for pushes.
	ServerAddress string

	// Builds reuse the layer cache and nothing is pushed.
	DryRun bool

	// Build and push progress is streamed here. Discarded when nil.
	Output io.Writer
}
