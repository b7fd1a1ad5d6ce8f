package reproducer

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const manifestFile = "manifest.yaml"

// Manifest records how a reproducer directory came to exist: the seed and
// driver that produced it and the predicate violations that tripped the
// save. The three-file triple alone is enough to replay; the manifest is
// for the human (or supervisor) triaging a directory full of them.
type Manifest struct {
	Seed       uint64              `yaml:"seed"`
	Driver     string              `yaml:"driver"`
	Statements int                 `yaml:"statements"`
	Violations []ManifestViolation `yaml:"violations,omitempty"`
}

// ManifestViolation mirrors depgraph.Violation without importing it, so
// loading a manifest never pulls the analyzer into a caller's build.
type ManifestViolation struct {
	Predicate string `yaml:"predicate"`
	Txns      []int  `yaml:"txns,flow,omitempty"`
	RowID     int64  `yaml:"row_id,omitempty"`
	Detail    string `yaml:"detail,omitempty"`
}

// SaveManifest writes m as dir/manifest.yaml. The triple stays the source
// of truth; a missing or stale manifest never blocks a replay.
func SaveManifest(dir string, m *Manifest) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("reproducer: marshal manifest: %w", err)
	}
	path := filepath.Join(dir, manifestFile)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("reproducer: write %s: %w", path, err)
	}
	return nil
}

// LoadManifest reads dir/manifest.yaml. os.IsNotExist on the returned
// error distinguishes "old directory without a manifest" from corruption.
func LoadManifest(dir string) (*Manifest, error) {
	path := filepath.Join(dir, manifestFile)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("reproducer: parse %s: %w", path, err)
	}
	return &m, nil
}
