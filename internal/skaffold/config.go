// Package skaffold generates Skaffold configuration for worker images, so a
// baked worker plugs into the same build/deploy toolchain as any other
// containerized service.
package skaffold

import (
	"fmt"

	"github.com/GoogleContainerTools/skaffold/v2/pkg/skaffold/schema/latest"
	"gopkg.in/yaml.v3"

	"github.com/ovenworks/bakery-cli/internal/recipe"
	"github.com/ovenworks/bakery-cli/pkg/xos"
)

const FileName = "skaffold.yaml"

// GenerateConfig creates a Skaffold configuration for the worker recipe. The
// image is a plain Docker artifact built from the generated Dockerfile; a
// "prod" profile switches on pushing.
func GenerateConfig(r *recipe.Recipe, dockerfile string) (*latest.SkaffoldConfig, error) {
	if r == nil {
		return nil, fmt.Errorf("recipe cannot be nil")
	}
	if r.Worker.Name == "" {
		return nil, fmt.Errorf("worker name is required")
	}

	config := &latest.SkaffoldConfig{
		APIVersion: latest.Version,
		Kind:       "Config",
		Metadata: latest.Metadata{
			Name: r.Worker.Name,
		},
		Pipeline: latest.Pipeline{
			Build: latest.BuildConfig{
				Artifacts: []*latest.Artifact{
					CreateDockerArtifact(r, dockerfile),
				},
				TagPolicy: latest.TagPolicy{
					GitTagger: &latest.GitTagger{
						Variant: "AbbrevCommitSha",
					},
				},
				BuildType: latest.BuildType{
					LocalBuild: &latest.LocalBuild{
						Push: boolPtr(false),
					},
				},
			},
		},
		Profiles: []latest.Profile{
			{
				Name: "prod",
				Pipeline: latest.Pipeline{
					Build: latest.BuildConfig{
						Artifacts: []*latest.Artifact{
							CreateDockerArtifact(r, dockerfile),
						},
						BuildType: latest.BuildType{
							LocalBuild: &latest.LocalBuild{
								Push: boolPtr(true),
							},
						},
					},
				},
			},
		},
	}

	return config, nil
}

// CreateDockerArtifact creates the Docker artifact entry for the worker image.
func CreateDockerArtifact(r *recipe.Recipe, dockerfile string) *latest.Artifact {
	return &latest.Artifact{
		ImageName: r.Image.Repository,
		Workspace: ".",
		ArtifactType: latest.ArtifactType{
			DockerArtifact: &latest.DockerArtifact{
				DockerfilePath: dockerfile,
			},
		},
	}
}

// WriteConfig marshals the configuration and writes it atomically.
func WriteConfig(config *latest.SkaffoldConfig, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal skaffold config: %w", err)
	}

	if err := xos.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write skaffold config: %w", err)
	}

	return nil
}

func boolPtr(b bool) *bool {
	return &b
}
