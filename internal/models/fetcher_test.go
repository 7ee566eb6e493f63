package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovenworks/bakery-cli/internal/recipe"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func artifactServer(t *testing.T, files map[string][]byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPullModelDownloadsAndPins(t *testing.T) {
	weights := []byte("fake weights")
	config := []byte(`{"dtype": "fp8"}`)
	srv := artifactServer(t, map[string][]byte{
		"/weights.safetensors": weights,
		"/config.json":         config,
	})

	cacheDir := t.TempDir()
	f := NewFetcher(cacheDir, true)

	m := recipe.Model{
		Name:      "kontext",
		Source:    srv.URL,
		TargetDir: "/app/huggingface_cache",
		Files: []recipe.ModelFile{
			{Path: "weights.safetensors", SHA256: sha256Hex(weights)},
			{Path: "config.json"},
		},
	}

	locked, err := f.PullModel(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, "kontext", locked.Name)
	assert.Equal(t, "main", locked.Revision)
	require.Len(t, locked.Files, 2)
	assert.Equal(t, int64(len(weights)), locked.Files[0].Size)
	assert.Equal(t, sha256Hex(weights), locked.Files[0].SHA256)
	assert.Equal(t, sha256Hex(config), locked.Files[1].SHA256)

	got, err := os.ReadFile(filepath.Join(cacheDir, "kontext", "weights.safetensors"))
	require.NoError(t, err)
	assert.Equal(t, weights, got)
}

func TestPullModelReusesCachedFile(t *testing.T) {
	weights := []byte("fake weights")
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(weights)
	}))
	t.Cleanup(srv.Close)

	cacheDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(cacheDir, "kontext"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "kontext", "weights.safetensors"), weights, 0644))

	f := NewFetcher(cacheDir, true)
	m := recipe.Model{
		Name:   "kontext",
		Source: srv.URL,
		Files:  []recipe.ModelFile{{Path: "weights.safetensors", SHA256: sha256Hex(weights)}},
	}

	locked, err := f.PullModel(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 0, requests, "matching cached file must not hit the network")
	assert.Equal(t, sha256Hex(weights), locked.Files[0].SHA256)
}

func TestPullModelRefetchesStaleCachedFile(t *testing.T) {
	fresh := []byte("fresh weights")
	srv := artifactServer(t, map[string][]byte{"/weights.safetensors": fresh})

	cacheDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(cacheDir, "kontext"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "kontext", "weights.safetensors"), []byte("stale"), 0644))

	f := NewFetcher(cacheDir, true)
	m := recipe.Model{
		Name:   "kontext",
		Source: srv.URL,
		Files:  []recipe.ModelFile{{Path: "weights.safetensors", SHA256: sha256Hex(fresh)}},
	}

	locked, err := f.PullModel(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(fresh), locked.Files[0].SHA256)

	got, err := os.ReadFile(filepath.Join(cacheDir, "kontext", "weights.safetensors"))
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
}

func TestPullModelChecksumMismatch(t *testing.T) {
	srv := artifactServer(t, map[string][]byte{"/weights.safetensors": []byte("tampered")})

	cacheDir := t.TempDir()
	f := NewFetcher(cacheDir, true)
	m := recipe.Model{
		Name:   "kontext",
		Source: srv.URL,
		Files: []recipe.ModelFile{{
			Path:   "weights.safetensors",
			SHA256: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		}},
	}

	_, err := f.PullModel(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")

	_, statErr := os.Stat(filepath.Join(cacheDir, "kontext", "weights.safetensors"))
	assert.True(t, os.IsNotExist(statErr), "mismatched download must not stay in the cache")
}

func TestPullModelHTTPError(t *testing.T) {
	srv := artifactServer(t, nil)

	f := NewFetcher(t.TempDir(), true)
	m := recipe.Model{
		Name:   "kontext",
		Source: srv.URL,
		Files:  []recipe.ModelFile{{Path: "missing.bin"}},
	}

	_, err := f.PullModel(context.Background(), m)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}

func TestVerify(t *testing.T) {
	weights := []byte("fake weights")
	cacheDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(cacheDir, "kontext"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "kontext", "weights.safetensors"), weights, 0644))

	lock := &Lock{
		Version: "1",
		Models: []LockModel{{
			Name:  "kontext",
			Files: []LockFile{{Path: "weights.safetensors", SHA256: sha256Hex(weights)}},
		}},
	}

	f := NewFetcher(cacheDir, true)
	assert.NoError(t, f.Verify(lock))

	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "kontext", "weights.safetensors"), []byte("altered"), 0644))
	err := f.Verify(lock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}

func TestVerifyMissingFile(t *testing.T) {
	lock := &Lock{
		Models: []LockModel{{
			Name:  "kontext",
			Files: []LockFile{{Path: "gone.bin", SHA256: "aa"}},
		}},
	}

	f := NewFetcher(t.TempDir(), true)
	assert.Error(t, f.Verify(lock))
}
