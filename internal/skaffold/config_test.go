package skaffold

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenworks/bakery-cli/internal/recipe"
)

func TestGenerateConfig(t *testing.T) {
	r := recipe.New("flux-worker")
	r.Image.Repository = "registry.example.com/flux-worker"

	config, err := GenerateConfig(r, "Dockerfile")
	require.NoError(t, err)

	assert.Equal(t, "Config", config.Kind)
	assert.Equal(t, "flux-worker", config.Metadata.Name)

	require.Len(t, config.Pipeline.Build.Artifacts, 1)
	artifact := config.Pipeline.Build.Artifacts[0]
	assert.Equal(t, "registry.example.com/flux-worker", artifact.ImageName)
	require.NotNil(t, artifact.DockerArtifact)
	assert.Equal(t, "Dockerfile", artifact.DockerArtifact.DockerfilePath)

	require.NotNil(t, config.Build.TagPolicy.GitTagger)
	assert.Equal(t, "AbbrevCommitSha", config.Build.TagPolicy.GitTagger.Variant)

	require.NotNil(t, config.Build.BuildType.LocalBuild)
	require.NotNil(t, config.Build.BuildType.LocalBuild.Push)
	assert.False(t, *config.Build.BuildType.LocalBuild.Push, "dev loop must not push")
}

func TestGenerateConfigProdProfilePushes(t *testing.T) {
	config, err := GenerateConfig(recipe.New("flux-worker"), "Dockerfile")
	require.NoError(t, err)

	require.Len(t, config.Profiles, 1)
	prod := config.Profiles[0]
	assert.Equal(t, "prod", prod.Name)
	require.NotNil(t, prod.Build.BuildType.LocalBuild)
	require.NotNil(t, prod.Build.BuildType.LocalBuild.Push)
	assert.True(t, *prod.Build.BuildType.LocalBuild.Push)
}

func TestGenerateConfigValidation(t *testing.T) {
	_, err := GenerateConfig(nil, "Dockerfile")
	assert.Error(t, err)

	r := recipe.New("flux-worker")
	r.Worker.Name = ""
	_, err = GenerateConfig(r, "Dockerfile")
	assert.Error(t, err)
}

func TestWriteConfig(t *testing.T) {
	config, err := GenerateConfig(recipe.New("flux-worker"), "Dockerfile")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, WriteConfig(config, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "kind: Config")
	assert.Contains(t, string(data), "name: flux-worker")
	assert.Contains(t, string(data), "dockerfile: Dockerfile")
}
