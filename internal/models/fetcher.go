package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/ovenworks/bakery-cli/internal/recipe"
	"github.com/ovenworks/bakery-cli/pkg/xos"
)

// Fetcher downloads model artifacts into the local cache. Downloads are
// written atomically: a partial transfer never leaves a truncated file at the
// final path.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	quiet    bool
}

// NewFetcher creates a fetcher writing into cacheDir.
func NewFetcher(cacheDir string, quiet bool) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: 30 * time.Minute,
		},
		cacheDir: cacheDir,
		quiet:    quiet,
	}
}

// CacheDir returns the cache directory.
func (f *Fetcher) CacheDir() string {
	return f.cacheDir
}

// PullModel fetches every file of the model and returns its lock entry.
// Cached files with a matching hash are reused without network access. Any
// failure aborts the whole pull: there are no partial-success semantics.
func (f *Fetcher) PullModel(ctx context.Context, m recipe.Model) (*LockModel, error) {
	rev := m.Revision
	if rev == "" {
		rev = "main"
	}

	locked := &LockModel{
		Name:      m.Name,
		Source:    m.Source,
		Revision:  rev,
		TargetDir: m.TargetDir,
	}

	for _, file := range m.Files {
		entry, err := f.pullFile(ctx, m, file)
		if err != nil {
			return nil, fmt.Errorf("model %q: %w", m.Name, err)
		}
		locked.Files = append(locked.Files, *entry)
	}

	return locked, nil
}

func (f *Fetcher) pullFile(ctx context.Context, m recipe.Model, file recipe.ModelFile) (*LockFile, error) {
	url := ResolveURL(m, file.Path)
	target := filepath.Join(f.cacheDir, m.Name, filepath.FromSlash(file.Path))

	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		sum, err := hashFile(target)
		if err != nil {
			return nil, err
		}
		if file.SHA256 == "" || sum == file.SHA256 {
			return &LockFile{Path: file.Path, URL: url, Size: info.Size(), SHA256: sum}, nil
		}
		// Cached copy no longer matches the expected hash: refetch.
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	size, sum, err := f.download(ctx, url, target)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", file.Path, err)
	}

	if file.SHA256 != "" && sum != file.SHA256 {
		os.Remove(target)
		return nil, fmt.Errorf("checksum mismatch for %s: want %s, got %s", file.Path, file.SHA256, sum)
	}

	return &LockFile{Path: file.Path, URL: url, Size: size, SHA256: sum}, nil
}

func (f *Fetcher) download(ctx context.Context, url, target string) (int64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	hash := sha256.New()
	var reader io.Reader = io.TeeReader(resp.Body, hash)

	if !f.quiet {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(target))
		reader = io.TeeReader(reader, bar)
	}

	counter := &countingReader{r: reader}
	if err := xos.WriteReader(target, counter, 0644); err != nil {
		return 0, "", err
	}

	return counter.n, hex.EncodeToString(hash.Sum(nil)), nil
}

// Verify re-hashes every cached artifact against the lock. A missing or
// altered file is an error.
func (f *Fetcher) Verify(lock *Lock) error {
	for _, m := range lock.Models {
		for _, file := range m.Files {
			target := filepath.Join(f.cacheDir, m.Name, filepath.FromSlash(file.Path))
			sum, err := hashFile(target)
			if err != nil {
				return fmt.Errorf("model %q: %s: %w", m.Name, file.Path, err)
			}
			if sum != file.SHA256 {
				return fmt.Errorf("model %q: %s: checksum mismatch (want %s, got %s)", m.Name, file.Path, file.SHA256, sum)
			}
		}
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func hashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return hex.EncodeToString(hash.Sum(nil)), nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
