package caveat

import (
	"bytes"
	"encoding/json"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/depcheck/pkg/errors"
)

// With returns a new table holding t's caveats overlaid with entries.
func (t *Table) With(entries map[string]Caveat) *Table {
	merged := make(map[string]Caveat, t.Len()+len(entries))
	if t != nil {
		maps.Copy(merged, t.entries)
	}
	maps.Copy(merged, entries)
	return &Table{entries: merged}
}

// Marshal encodes the table in the format named by ext.
func (t *Table) Marshal(ext string) ([]byte, error) {
	entries := map[string]Caveat{}
	if t != nil {
		entries = t.entries
	}

	switch strings.ToLower(ext) {
	case ".json":
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(entries); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case ".yaml", ".yml":
		return yaml.Marshal(entries)
	default:
		return nil, errors.New(errors.ErrCodeInvalidCaveats, "unsupported caveat format %q", ext)
	}
}

// Save writes the table to path, picking the format from the extension.
func (t *Table) Save(path string) error {
	data, err := t.Marshal(filepath.Ext(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidCaveats, err, "write caveats %s", path)
	}
	return nil
}
