package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ovenworks/bakery-cli/internal/recipe"
)

func TestImageTag(t *testing.T) {
	r := recipe.New("flux-worker")
	r.Image.Repository = "myorg/flux-worker"

	assert.Equal(t, "myorg/flux-worker:v3", imageTag(r, "v3", t.TempDir()))

	// Outside a git repository the tag falls back to latest.
	assert.Equal(t, "myorg/flux-worker:latest", imageTag(r, "", t.TempDir()))
}

func TestGetGitCommitSHAOutsideRepo(t *testing.T) {
	assert.Empty(t, getGitCommitSHA(t.TempDir()))
}

func TestShortDigest(t *testing.T) {
	assert.Equal(t, "aaaaaaaaaaaa", shortDigest("aaaaaaaaaaaaaaaaaaaaaaaa"))
	assert.Equal(t, "abc", shortDigest("abc"), "short digests must not panic")
	assert.Equal(t, "", shortDigest(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "RUN pip...", truncate("RUN pip install", 10))
}
