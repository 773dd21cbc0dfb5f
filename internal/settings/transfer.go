package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/ado/internal/models"
)

// Format is a story-type file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFromPath picks a format from a file extension. Unknown extensions
// fall back to YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatYAML, FormatTOML, FormatJSON:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want yaml, toml, or json)", ErrInvalid, s)
	}
}

// storyTypeFile is the top-level document. TOML needs a table at the root,
// so the list is always wrapped.
type storyTypeFile struct {
	StoryTypes []models.StoryType `json:"storyTypes" yaml:"story_types" toml:"story_types"`
}

// EncodeStoryTypes writes sts to w in format f.
func EncodeStoryTypes(w io.Writer, f Format, sts []models.StoryType) error {
	doc := storyTypeFile{StoryTypes: sts}
	switch f {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(doc)
	case FormatJSON:
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

// DecodeStoryTypes reads a story-type file in format f.
func DecodeStoryTypes(r io.Reader, f Format) ([]models.StoryType, error) {
	var doc storyTypeFile
	var err error
	switch f {
	case FormatTOML:
		err = toml.NewDecoder(r).Decode(&doc)
	case FormatJSON:
		err = json.NewDecoder(r).Decode(&doc)
	default:
		err = yaml.NewDecoder(r).Decode(&doc)
		if err == io.EOF {
			err = nil
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalid, f, err)
	}
	return doc.StoryTypes, nil
}

// ImportStoryTypes validates every entry first, then appends them all with
// fresh ids in one write. Nothing is stored if any entry is invalid.
func (s *Store) ImportStoryTypes(ctx context.Context, sts []models.StoryType) ([]models.StoryType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	imported := make([]models.StoryType, 0, len(sts))
	for i, st := range sts {
		st.ID = ""
		st.Tasks = slices.Clone(st.Tasks)
		for j := range st.Tasks {
			st.Tasks[j].ID = ""
		}
		norm, err := s.normalizeStoryType(st)
		if err != nil {
			return nil, fmt.Errorf("story type %d: %w", i+1, err)
		}
		norm.ID = s.newID()
		imported = append(imported, norm)
	}

	next := append(slices.Clone(s.storyTypes), imported...)
	if err := s.save(ctx, KeyStoryTypes, next); err != nil {
		return nil, err
	}
	s.storyTypes = next

	out := make([]models.StoryType, len(imported))
	for i, st := range imported {
		out[i] = cloneStoryType(st)
	}
	return out, nil
}
