package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Devliang24/casecraft/internal/spec"
)

// WriteResult reports what the Writer did for one endpoint.
type WriteResult struct {
	Path    string
	Skipped bool
}

// Writer persists validated test cases to the output directory, per
// spec.md §4.9's path template and same/different-fingerprint conflict
// rule.
type Writer struct {
	// Dir is the output root.
	Dir string
	// TagNested nests the artifact under the endpoint's first tag, if any.
	TagNested bool
}

// Path computes the deterministic file path for e: {method}_{path_slug},
// path separators replaced with underscores and braces removed, optionally
// nested under a tag directory.
func (w Writer) Path(e *spec.Endpoint) string {
	slug := slugify(e.Path)
	filename := fmt.Sprintf("%s_%s.json", strings.ToLower(string(e.Method)), slug)

	dir := w.Dir
	if w.TagNested && len(e.Tags) > 0 {
		dir = filepath.Join(dir, slugify(e.Tags[0]))
	}
	return filepath.Join(dir, filename)
}

func slugify(p string) string {
	p = strings.Trim(p, "/")
	p = strings.NewReplacer("/", "_", "{", "", "}", "").Replace(p)
	if p == "" {
		p = "root"
	}
	return p
}

// Write persists cases for e, computing the destination path from Path(e).
// existingFingerprint is the fingerprint recorded for this key in the state
// store (empty if none): when it matches fingerprint, Write short-circuits
// to Skipped without touching disk; otherwise it overwrites, per spec.md
// §4.9.
func (w Writer) Write(e *spec.Endpoint, cases []TestCase, fingerprint, existingFingerprint string) (WriteResult, error) {
	path := w.Path(e)

	if existingFingerprint != "" && existingFingerprint == fingerprint {
		return WriteResult{Path: path, Skipped: true}, nil
	}

	data, err := json.MarshalIndent(cases, "", "  ")
	if err != nil {
		return WriteResult{}, fmt.Errorf("marshal test cases: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return WriteResult{}, fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return WriteResult{}, fmt.Errorf("create temp artifact file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return WriteResult{}, fmt.Errorf("write temp artifact file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return WriteResult{}, fmt.Errorf("close temp artifact file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return WriteResult{}, fmt.Errorf("rename temp artifact file: %w", err)
	}

	return WriteResult{Path: path, Skipped: false}, nil
}
