package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ovenworks/bakery-cli/internal/recipe"
)

// findProjectRoot walks up from the working directory until it finds a
// bakery.yaml.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, recipe.FileName)); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("not a bakery project (no %s found)", recipe.FileName)
}

// loadProject locates the project root and loads its recipe.
func loadProject() (string, *recipe.Recipe, error) {
	root, err := findProjectRoot()
	if err != nil {
		return "", nil, err
	}

	r, err := recipe.Load(root)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load recipe: %w", err)
	}

	return root, r, nil
}

// getGitCommitSHA returns the current short git commit SHA, or "" outside a
// repository.
func getGitCommitSHA(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--short", "HEAD")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(output))
}

// shortDigest truncates a digest for display. Hand-edited lockfiles may
// carry digests shorter than the display width.
func shortDigest(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// truncate shortens s to at most max characters for single-line display.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// imageTag combines the recipe repository with an explicit or derived tag.
func imageTag(r *recipe.Recipe, explicit, dir string) string {
	tag := explicit
	if tag == "" {
		tag = getGitCommitSHA(dir)
	}
	if tag == "" {
		tag = "latest"
	}
	return fmt.Sprintf("%s:%s", r.Image.Repository, tag)
}
