// Package models materializes pretrained model artifacts into the local
// cache and pins them in a lockfile.
//
// The lockfile is the cache-invalidation decision for baked models: its
// digest feeds the generated Dockerfile, so a re-pinned artifact invalidates
// the model layer while an unchanged pin keeps it cached. Without a lock the
// layer cache would key on the download script text alone and silently reuse
// stale artifacts.
package models

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ovenworks/bakery-cli/internal/recipe"
	"github.com/ovenworks/bakery-cli/pkg/xos"
)

const LockFileName = "bakery.lock.json"

// DefaultCacheDir is the local model cache, relative to the project root. It
// lives inside the build context so cache-mode builds can COPY from it.
const DefaultCacheDir = ".bakery/models"

// Lock pins every model artifact to resolved URL, size and content hash.
type Lock struct {
	Version string      `json:"version"`
	Models  []LockModel `json:"models"`
}

// LockModel pins one model.
type LockModel struct {
	Name      string     `json:"name"`
	Source    string     `json:"source"`
	Revision  string     `json:"revision"`
	TargetDir string     `json:"targetDir"`
	Files     []LockFile `json:"files"`
}

// LockFile pins one artifact file.
type LockFile struct {
	Path   string `json:"path"`
	URL    string `json:"url"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// LoadLock loads the lockfile from the given project directory.
func LoadLock(dir string) (*Lock, error) {
	path := filepath.Join(dir, LockFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lockfile: %w", err)
	}

	var l Lock
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("failed to parse lockfile: %w", err)
	}

	return &l, nil
}

// Save writes the lockfile atomically.
func (l *Lock) Save(dir string) error {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lockfile: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(dir, LockFileName)
	if err := xos.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}

	return nil
}

// Digest returns a hex digest of the lock content. Marshalling is stable, so
// the digest changes exactly when a pin changes.
func (l *Lock) Digest() (string, error) {
	data, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("failed to marshal lockfile: %w", err)
	}
	return hashBytes(data), nil
}

// GetModel retrieves a locked model by name.
func (l *Lock) GetModel(name string) *LockModel {
	for i := range l.Models {
		if l.Models[i].Name == name {
			return &l.Models[i]
		}
	}
	return nil
}

// ResolveURL resolves the download URL for one file of a model. An http(s)
// source is treated as a base URL; anything else as a hub id resolved the way
// the huggingface CDN lays out revisions.
func ResolveURL(m recipe.Model, filePath string) string {
	rev := m.Revision
	if rev == "" {
		rev = "main"
	}

	if hasURLScheme(m.Source) {
		return joinURL(m.Source, filePath)
	}

	return fmt.Sprintf("https://huggingface.co/%s/resolve/%s/%s", m.Source, rev, filePath)
}

func hasURLScheme(s string) bool {
	return len(s) > 8 && (s[:7] == "http://" || s[:8] == "https://")
}

func joinURL(base, p string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/" + p
}
