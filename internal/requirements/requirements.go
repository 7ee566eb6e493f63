// Package requirements parses python dependency manifests.
package requirements

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// Requirement is a single entry of a dependency manifest.
type Requirement struct {
	// Name is the distribution name, lowercased.
	Name string

	// Constraint is the raw version constraint, e.g. "==2.1.0" or ">=0.25,<1".
	Constraint string

	// Marker is the environment marker after ";" if present.
	Marker string

	// Hashes holds any --hash=algo:digest options.
	Hashes []string

	// Line is the original manifest line, trimmed.
	Line string
}

// Manifest is an ordered list of requirements. Order is preserved because
// installers process the file top to bottom.
type Manifest struct {
	Path         string
	Requirements []Requirement
}

var namePattern = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(\[[^\]]*\])?`)

// Parse parses the manifest at path. A missing file is an error: the caller
// must fail before any later build stage runs.
func Parse(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	m := &Manifest{Path: path}
	scanner := bufio.NewScanner(f)

	var pending string
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		// Backslash continuations join onto the next line.
		if strings.HasSuffix(line, "\\") {
			pending += strings.TrimSuffix(line, "\\")
			continue
		}
		line = strings.TrimSpace(pending + line)
		pending = ""

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// Installer options and references to other manifests are passed
		// through to the installer untouched; they are not requirements.
		if strings.HasPrefix(line, "-") {
			continue
		}

		req, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
		}
		m.Requirements = append(m.Requirements, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	// A backslash on the final line still belongs to a requirement.
	if line := strings.TrimSpace(pending); line != "" && !strings.HasPrefix(line, "#") && !strings.HasPrefix(line, "-") {
		req, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", lineNo, err)
		}
		m.Requirements = append(m.Requirements, req)
	}

	return m, nil
}

func parseLine(line string) (Requirement, error) {
	req := Requirement{Line: line}

	rest := line

	// Strip inline comments.
	if idx := strings.Index(rest, " #"); idx >= 0 {
		rest = strings.TrimSpace(rest[:idx])
	}

	// Collect --hash options.
	fields := strings.Fields(rest)
	var kept []string
	for _, f := range fields {
		if strings.HasPrefix(f, "--hash=") {
			req.Hashes = append(req.Hashes, strings.TrimPrefix(f, "--hash="))
			continue
		}
		kept = append(kept, f)
	}
	rest = strings.Join(kept, " ")

	// Split off the environment marker.
	if idx := strings.Index(rest, ";"); idx >= 0 {
		req.Marker = strings.TrimSpace(rest[idx+1:])
		rest = strings.TrimSpace(rest[:idx])
	}

	match := namePattern.FindStringSubmatch(rest)
	if match == nil {
		return req, fmt.Errorf("cannot parse requirement %q", line)
	}

	req.Name = normalize(match[1])
	req.Constraint = strings.TrimSpace(rest[len(match[0]):])

	return req, nil
}

// Has reports whether the manifest lists the given distribution.
func (m *Manifest) Has(name string) bool {
	name = normalize(name)
	for _, r := range m.Requirements {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Names returns the distribution names in manifest order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		names = append(names, r.Name)
	}
	return names
}

// normalize lowercases and collapses separator runs, following the
// distribution-name normalization installers apply.
func normalize(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	lastSep := false
	for _, c := range name {
		if c == '-' || c == '_' || c == '.' {
			if !lastSep {
				b.WriteByte('-')
			}
			lastSep = true
			continue
		}
		lastSep = false
		b.WriteRune(c)
	}
	return b.String()
}
