package vectorstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"studyrag/internal/domain"
)

const (
	ManifestFile    = "manifest.json"
	ManifestVersion = 1
)

// Manifest is the backend-independent description of a persisted index.
type Manifest struct {
	Version    int       `json:"version"`
	ID         string    `json:"id"`
	Backend    string    `json:"backend"`
	Metric     string    `json:"metric"`
	Dimension  int       `json:"dimension"`
	Count      int       `json:"count"`
	Embedder   string    `json:"embedder,omitempty"`
	SourceID   string    `json:"source_id,omitempty"`
	Collection string    `json:"collection,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const manifestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "id", "backend", "metric", "dimension", "count", "created_at"],
  "properties": {
    "version":    {"type": "integer", "const": 1},
    "id":         {"type": "string", "minLength": 1},
    "backend":    {"type": "string", "enum": ["memory", "qdrant"]},
    "metric":     {"type": "string", "minLength": 1},
    "dimension":  {"type": "integer", "minimum": 1},
    "count":      {"type": "integer", "minimum": 1},
    "embedder":   {"type": "string"},
    "source_id":  {"type": "string"},
    "collection": {"type": "string"},
    "created_at": {"type": "string", "format": "date-time"}
  },
  "if": {"properties": {"backend": {"const": "qdrant"}}},
  "then": {"required": ["collection"], "properties": {"collection": {"minLength": 1}}}
}`

// ReadManifest loads and validates the manifest in location. Every failure
// wraps domain.ErrPersistence.
func ReadManifest(location string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(location, ManifestFile))
	if err != nil {
		return m, fmt.Errorf("read manifest: %v: %w", err, domain.ErrPersistence)
	}
	res, err := gojsonschema.Validate(gojsonschema.NewStringLoader(manifestSchema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return m, fmt.Errorf("parse manifest %s: %v: %w", location, err, domain.ErrPersistence)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return m, fmt.Errorf("invalid manifest %s: %s: %w", location, strings.Join(msgs, "; "), domain.ErrPersistence)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode manifest %s: %v: %w", location, err, domain.ErrPersistence)
	}
	return m, nil
}

// WriteManifest writes m into dir.
func WriteManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644)
}

// WriteDir fills a temporary sibling of location with write and renames it
// into place, replacing any previous index there. A failed write leaves
// location untouched.
func WriteDir(location string, write func(dir string) error) error {
	parent := filepath.Dir(location)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create %s: %v: %w", parent, err, domain.ErrPersistence)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(location)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp dir: %v: %w", err, domain.ErrPersistence)
	}
	if err := write(tmp); err != nil {
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("write %s: %v: %w", location, err, domain.ErrPersistence)
	}

	var backup string
	if _, err := os.Stat(location); err == nil {
		backup = tmp + ".old"
		if err := os.Rename(location, backup); err != nil {
			_ = os.RemoveAll(tmp)
			return fmt.Errorf("replace %s: %v: %w", location, err, domain.ErrPersistence)
		}
	}
	if err := os.Rename(tmp, location); err != nil {
		if backup != "" {
			_ = os.Rename(backup, location)
		}
		_ = os.RemoveAll(tmp)
		return fmt.Errorf("rename into %s: %v: %w", location, err, domain.ErrPersistence)
	}
	if backup != "" {
		_ = os.RemoveAll(backup)
	}
	return nil
}
