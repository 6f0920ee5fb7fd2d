// Package manifest reads the dependency declarations of an npm project.
//
// Only the parts of package.json that affect freshness are decoded: the
// runtime "dependencies" group and the "devDependencies" group, each a map
// of package name to declared version range.
package manifest

import (
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/matzehuels/depcheck/pkg/errors"
)

// Filename is the manifest file name looked up by [Find].
const Filename = "package.json"

// Manifest is the parsed content of a package.json file.
type Manifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`

	// Path is the file the manifest was loaded from, empty for Parse.
	Path string `json:"-"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "manifest %s", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read manifest %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, err
	}
	m.Path = path
	return m, nil
}

// Parse decodes package.json content.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse package.json")
	}
	for name := range m.Dependencies {
		if err := errors.ValidateNpmPackageName(name); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "dependencies")
		}
	}
	for name := range m.DevDependencies {
		if err := errors.ValidateNpmPackageName(name); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "devDependencies")
		}
	}
	return &m, nil
}

// Group returns the runtime dependencies, or the dev dependencies when dev
// is true. The returned map must not be modified.
func (m *Manifest) Group(dev bool) map[string]string {
	if dev {
		return m.DevDependencies
	}
	return m.Dependencies
}

// Names returns the sorted dependency names of a group.
func (m *Manifest) Names(dev bool) []string {
	return slices.Sorted(maps.Keys(m.Group(dev)))
}

// GroupName returns the package.json key of a group.
func GroupName(dev bool) string {
	if dev {
		return "devDependencies"
	}
	return "dependencies"
}

// Find walks up from dir until it finds a package.json and returns its path.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, Filename)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New(errors.ErrCodeFileNotFound, "no %s found", Filename)
		}
		dir = parent
	}
}
