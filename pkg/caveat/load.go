package caveat

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/depcheck/pkg/errors"
)

// DefaultFilename is the caveat file looked up next to package.json.
const DefaultFilename = "dependency-caveats.json"

// Load reads a caveat table. The format follows the file extension:
// .json, .toml, or .yaml/.yml.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "caveats %s", path)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidCaveats, err, "read caveats %s", path)
	}
	return Parse(data, filepath.Ext(path))
}

// LoadOptional is like Load but returns an empty table when path does not exist.
func LoadOptional(path string) (*Table, error) {
	t, err := Load(path)
	if errors.Is(err, errors.ErrCodeFileNotFound) {
		return NewTable(nil), nil
	}
	return t, err
}

// Parse decodes caveat data in the format named by ext (".json", ".toml",
// ".yaml" or ".yml").
func Parse(data []byte, ext string) (*Table, error) {
	entries := make(map[string]Caveat)

	var err error
	switch strings.ToLower(ext) {
	case ".json":
		if len(bytes.TrimSpace(data)) > 0 {
			err = json.Unmarshal(data, &entries)
		}
	case ".toml":
		_, err = toml.Decode(string(data), &entries)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &entries)
	default:
		return nil, errors.New(errors.ErrCodeInvalidCaveats, "unsupported caveat format %q", ext)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidCaveats, err, "parse caveats")
	}

	for name, c := range entries {
		if err := errors.ValidateNpmPackageName(name); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidCaveats, err, "caveat key")
		}
		if c.OverrideVersion == "" && c.CurrentVersion == "" {
			return nil, errors.New(errors.ErrCodeInvalidCaveats, "caveat %q needs overrideVersion or currentVersion", name)
		}
	}
	return &Table{entries: entries}, nil
}
