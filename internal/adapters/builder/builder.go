package builder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/go-git/go-git/v5"

	"github.com/devploy/playground-paas/internal/core/domain"
)

// ErrNoBuildInstructions is returned when the cloned repository carries
// neither a compose file with a build section nor a Dockerfile.
var ErrNoBuildInstructions = errors.New("repository has no compose build section or Dockerfile")

// Adapter implements ports.ImageBuilder: clone with go-git, pick a build
// strategy, build with the Docker engine.
type Adapter struct {
	cli *client.Client
}

func NewBuilderAdapter() (*Adapter, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Adapter{cli: cli}, nil
}

// BuildImage clones repoURL and builds an image tagged imageName. A compose
// file takes precedence over a bare Dockerfile when choosing the build
// context. Engine failures carry the engine's error text unchanged.
func (a *Adapter) BuildImage(ctx context.Context, repoURL string, imageName string) (string, error) {
	tmpDir, err := os.MkdirTemp("", "playground-build-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	_, err = git.PlainCloneContext(ctx, tmpDir, false, &git.CloneOptions{
		URL:   normalizeRepoURL(repoURL),
		Depth: 1, // Shallow clone for speed
	})
	if err != nil {
		return "", &domain.RuntimeError{Op: "clone", Diagnostic: err.Error(), Err: err}
	}

	strategy, err := DetectStrategy(tmpDir)
	if err != nil {
		return "", err
	}

	tar, err := archive.TarWithOptions(strategy.ContextDir, &archive.TarOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to create build context: %w", err)
	}

	resp, err := a.cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
		Tags:       []string{imageName},
		Dockerfile: strategy.Dockerfile,
		Remove:     true,
	})
	if err != nil {
		return "", &domain.RuntimeError{Op: "build", Diagnostic: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if err := drainBuildOutput(resp.Body); err != nil {
		return "", err
	}

	return imageName, nil
}

// drainBuildOutput consumes the engine's JSON message stream until EOF. Build
// failures arrive as an "error" message mid-stream, not as an HTTP error.
func drainBuildOutput(body io.Reader) error {
	dec := json.NewDecoder(body)
	for {
		var msg struct {
			Stream string `json:"stream"`
			Error  string `json:"error"`
		}
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read build output: %w", err)
		}
		if msg.Error != "" {
			return &domain.RuntimeError{Op: "build", Diagnostic: msg.Error, Err: errors.New(msg.Error)}
		}
	}
}

// normalizeRepoURL accepts both full clone URLs and owner/name shorthand as
// the catalog reports repositories.
func normalizeRepoURL(repo string) string {
	if strings.Contains(repo, "://") || strings.HasPrefix(repo, "git@") {
		return repo
	}
	repo = strings.TrimPrefix(repo, "github.com/")
	return "https://github.com/" + repo
}
