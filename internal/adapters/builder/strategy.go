package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// composeFileNames in precedence order.
var composeFileNames = []string{
	"docker-compose.yml",
	"docker-compose.yaml",
	"compose.yml",
	"compose.yaml",
}

// Strategy names the build context and Dockerfile (relative to the context)
// chosen for a repository.
type Strategy struct {
	ContextDir string
	Dockerfile string
}

type composeFile struct {
	Services map[string]composeService `yaml:"services"`
}

type composeService struct {
	Build composeBuild `yaml:"build"`
}

// composeBuild accepts both the short string form (`build: ./dir`) and the
// mapping form with context and dockerfile keys.
type composeBuild struct {
	Context    string
	Dockerfile string
}

func (b *composeBuild) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&b.Context)
	}
	var m struct {
		Context    string `yaml:"context"`
		Dockerfile string `yaml:"dockerfile"`
	}
	if err := value.Decode(&m); err != nil {
		return err
	}
	b.Context = m.Context
	b.Dockerfile = m.Dockerfile
	return nil
}

// DetectStrategy picks the build strategy for a checked-out repository. A
// compose file with a buildable service takes precedence over a bare
// Dockerfile in the repository root.
func DetectStrategy(repoDir string) (Strategy, error) {
	for _, name := range composeFileNames {
		path := filepath.Join(repoDir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		var cf composeFile
		if err := yaml.Unmarshal(data, &cf); err != nil {
			return Strategy{}, fmt.Errorf("failed to parse %s: %w", name, err)
		}

		// Service iteration order is stable so repeated deploys of the same
		// repo build the same image.
		names := make([]string, 0, len(cf.Services))
		for svc := range cf.Services {
			names = append(names, svc)
		}
		sort.Strings(names)

		for _, svc := range names {
			build := cf.Services[svc].Build
			if build.Context == "" {
				continue
			}
			ctxDir := filepath.Join(repoDir, filepath.Clean(build.Context))
			dockerfile := build.Dockerfile
			if dockerfile == "" {
				dockerfile = "Dockerfile"
			}
			return Strategy{ContextDir: ctxDir, Dockerfile: dockerfile}, nil
		}
	}

	if _, err := os.Stat(filepath.Join(repoDir, "Dockerfile")); err == nil {
		return Strategy{ContextDir: repoDir, Dockerfile: "Dockerfile"}, nil
	}

	return Strategy{}, ErrNoBuildInstructions
}
