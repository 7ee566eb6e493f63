package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenworks/bakery-cli/internal/recipe"
)

func testLock() *Lock {
	return &Lock{
		Version: "1",
		Models: []LockModel{
			{
				Name:      "kontext",
				Source:    "black-forest-labs/FLUX.1-kontext-dev-fp8",
				Revision:  "main",
				TargetDir: "/app/huggingface_cache",
				Files: []LockFile{
					{
						Path:   "model_index.json",
						URL:    "https://huggingface.co/black-forest-labs/FLUX.1-kontext-dev-fp8/resolve/main/model_index.json",
						Size:   512,
						SHA256: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
					},
				},
			},
		},
	}
}

func TestLockSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	l := testLock()

	require.NoError(t, l.Save(dir))

	loaded, err := LoadLock(dir)
	require.NoError(t, err)
	assert.Equal(t, l, loaded)
}

func TestLoadLockMissing(t *testing.T) {
	_, err := LoadLock(t.TempDir())
	assert.Error(t, err)
}

func TestDigestStable(t *testing.T) {
	a, err := testLock().Digest()
	require.NoError(t, err)
	b, err := testLock().Digest()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDigestChangesWhenPinChanges(t *testing.T) {
	before, err := testLock().Digest()
	require.NoError(t, err)

	l := testLock()
	l.Models[0].Files[0].SHA256 = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	after, err := l.Digest()
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
}

func TestGetLockedModel(t *testing.T) {
	l := testLock()
	assert.NotNil(t, l.GetModel("kontext"))
	assert.Nil(t, l.GetModel("missing"))
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name  string
		model recipe.Model
		file  string
		want  string
	}{
		{
			name:  "hub id with default revision",
			model: recipe.Model{Source: "org/model"},
			file:  "weights.safetensors",
			want:  "https://huggingface.co/org/model/resolve/main/weights.safetensors",
		},
		{
			name:  "hub id with pinned revision",
			model: recipe.Model{Source: "org/model", Revision: "fp8"},
			file:  "vae/config.json",
			want:  "https://huggingface.co/org/model/resolve/fp8/vae/config.json",
		},
		{
			name:  "http source used as base url",
			model: recipe.Model{Source: "https://models.example.com/flux/"},
			file:  "weights.safetensors",
			want:  "https://models.example.com/flux/weights.safetensors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveURL(tt.model, tt.file))
		})
	}
}
