package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Brownie44l1/leaf-api/internal/catalog"
)

// LoadMetadata reads and validates a metadata sidecar.
func LoadMetadata(path string) (*Metadata, error) {
	metaFile, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: metadata %s", ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return nil, fmt.Errorf("%w: failed to parse metadata: %v", ErrModelFormat, err)
	}

	if err := metadata.Validate(); err != nil {
		return nil, err
	}
	return &metadata, nil
}

// WriteMetadata validates m and writes it as indented JSON.
func WriteMetadata(path string, m *Metadata) error {
	if err := m.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// Validate checks that the shapes are concrete and that the class list lines
// up with the output vector.
func (m *Metadata) Validate() error {
	if err := validateShape("input", m.InputShape); err != nil {
		return err
	}
	if err := validateShape("output", m.OutputShape); err != nil {
		return err
	}

	if _, err := catalog.New(m.Classes); err != nil {
		return fmt.Errorf("%w: %v", ErrModelFormat, err)
	}

	if m.OutputSize() != len(m.Classes) {
		return fmt.Errorf("%w: output shape %v holds %d scores but %d classes are listed",
			ErrModelFormat, m.OutputShape, m.OutputSize(), len(m.Classes))
	}

	switch m.Layout {
	case "", "nhwc", "nchw":
	default:
		return fmt.Errorf("%w: unknown layout %q", ErrModelFormat, m.Layout)
	}
	return nil
}

// Catalog builds the label catalog the metadata describes.
func (m *Metadata) Catalog() (*catalog.Catalog, error) {
	c, err := catalog.New(m.Classes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelFormat, err)
	}
	return c, nil
}

func validateShape(kind string, shape []int64) error {
	if len(shape) == 0 {
		return fmt.Errorf("%w: %s shape is empty", ErrModelFormat, kind)
	}
	for _, d := range shape {
		if d <= 0 {
			return fmt.Errorf("%w: %s shape %v has a non-positive dimension", ErrModelFormat, kind, shape)
		}
	}
	return nil
}
