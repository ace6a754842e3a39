// Package recordio implements a columnar dataset format for training
// pipelines.
//
// A dataset is a directory holding a _grist.yaml metadata file and one
// or more row-group files. The metadata carries the schema (ordered
// fields with name, dtype and shape) and the row count of every row
// group. Row-group files store one contiguous little-endian chunk per
// column, described by a JSON index at the head of the file.
//
// Writer builds datasets row group by row group; Reader streams rows
// with optional seeded shuffling, multiple epochs, decode workers and a
// per-row transform.
package recordio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/grist-ml/grist/internal/tensor"
)

// MetadataFile is the name of the dataset descriptor inside a dataset
// directory.
const MetadataFile = "_grist.yaml"

// FormatVersion is the current dataset format version.
const FormatVersion = 1

// Field describes one column of the schema.
type Field struct {
	Name  string `yaml:"name"`
	DType string `yaml:"dtype"`
	// Shape of a single row's value. Empty for scalar fields.
	Shape []int `yaml:"shape,flow,omitempty"`
}

// NumElements returns the element count of one row's value.
func (f Field) NumElements() int {
	n := 1
	for _, dim := range f.Shape {
		n *= dim
	}
	return n
}

// DataType resolves the field's dtype name.
func (f Field) DataType() (tensor.DataType, error) {
	dt, ok := tensor.ParseDataType(f.DType)
	if !ok {
		return 0, fmt.Errorf("field %s: unknown dtype %q", f.Name, f.DType)
	}
	return dt, nil
}

// RowGroupRef points at one row-group file of the dataset.
type RowGroupRef struct {
	File string `yaml:"file"`
	Rows int    `yaml:"rows"`
}

// Metadata is the dataset descriptor stored in _grist.yaml.
type Metadata struct {
	Version   int           `yaml:"version"`
	ID        string        `yaml:"id"`
	Fields    []Field       `yaml:"fields"`
	RowGroups []RowGroupRef `yaml:"rowgroups"`
}

// NumRows returns the total row count across all row groups.
func (m *Metadata) NumRows() int {
	n := 0
	for _, rg := range m.RowGroups {
		n += rg.Rows
	}
	return n
}

// Field returns the schema field with the given name.
func (m *Metadata) Field(name string) (Field, bool) {
	for _, f := range m.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Validate checks version, id, schema and row-group entries.
func (m *Metadata) Validate() error {
	if m.Version != FormatVersion {
		return fmt.Errorf("unsupported format version %d (want %d)", m.Version, FormatVersion)
	}
	if _, err := uuid.Parse(m.ID); err != nil {
		return fmt.Errorf("invalid dataset id %q: %w", m.ID, err)
	}
	if len(m.Fields) == 0 {
		return fmt.Errorf("schema has no fields")
	}
	seen := make(map[string]bool, len(m.Fields))
	for _, f := range m.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate schema field %q", f.Name)
		}
		seen[f.Name] = true
		if _, err := f.DataType(); err != nil {
			return err
		}
		for _, dim := range f.Shape {
			if dim <= 0 {
				return fmt.Errorf("field %s: invalid shape %v", f.Name, f.Shape)
			}
		}
	}
	for _, rg := range m.RowGroups {
		if rg.File == "" {
			return fmt.Errorf("row group with empty file name")
		}
		if rg.Rows <= 0 {
			return fmt.Errorf("row group %s: invalid row count %d", rg.File, rg.Rows)
		}
	}
	return nil
}

// LoadMetadata reads and validates the descriptor of the dataset at dir.
func LoadMetadata(dir string) (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("metadata %s: %w", dir, err)
	}
	return &meta, nil
}

// saveMetadata writes the descriptor into dir.
func saveMetadata(dir string, meta *Metadata) error {
	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetadataFile), data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
