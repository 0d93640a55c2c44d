// Package backup exports and imports keyboard configurations as YAML or JSON
// files.
package backup

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talos-macropad/go-talos/protocol"
)

// DocumentVersion is the version written to new backups.
const DocumentVersion = 1

// Format is a backup file encoding.
type Format int

// Formats.
const (
	YAML Format = iota
	JSON
)

func (f Format) String() string {
	if f == JSON {
		return "json"
	}
	return "yaml"
}

// FormatFor picks the format from a file extension. Anything but .json is YAML.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return JSON
	}
	return YAML
}

// Document is the top level of a backup file.
type Document struct {
	Version int                     `yaml:"version" json:"version"`
	Config  *protocol.Configuration `yaml:"config" json:"config"`
}

// Encode writes cfg to w.
func Encode(w io.Writer, cfg *protocol.Configuration, format Format) error {
	doc := Document{Version: DocumentVersion, Config: cfg}

	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	default:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	}
}

// Decode reads a backup from r and validates it against the device limits.
func Decode(r io.Reader, format Format) (*protocol.Configuration, error) {
	doc := Document{Config: protocol.NewConfiguration()}

	var err error
	switch format {
	case JSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	default:
		err = yaml.NewDecoder(r).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s backup: %w", format, err)
	}

	if doc.Version == 0 || doc.Version > DocumentVersion {
		return nil, fmt.Errorf("unsupported backup version %d", doc.Version)
	}
	if doc.Config == nil {
		return nil, fmt.Errorf("backup has no config")
	}
	if doc.Config.Version == "" {
		doc.Config.Version = protocol.UnknownVersion
	}
	if err := doc.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backup: %w", err)
	}
	return doc.Config, nil
}

// Save writes cfg to path in the format implied by its extension.
func Save(path string, cfg *protocol.Configuration) error {
	var buf bytes.Buffer
	if err := Encode(&buf, cfg, FormatFor(path)); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Load reads a configuration written by Save.
func Load(path string) (*protocol.Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f, FormatFor(path))
}
