package ports

import "context"

// ImageBuilder defines operations for building container images from source code.
type ImageBuilder interface {
	// BuildImage clones a repository and builds a container image from it.
	// A compose file in the repository takes precedence over a bare
	// Dockerfile when choosing the build context. It returns the reference
	// of the built image or an error carrying the engine's diagnostic.
	BuildImage(ctx context.Context, repoURL string, imageName string) (string, error)
}
