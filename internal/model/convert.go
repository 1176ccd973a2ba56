package model

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/leaf-api/internal/catalog"
)

// File names inside a model directory.
const (
	DirModelFile  = "model.onnx"
	DirLabelsFile = "labels.txt"
)

// ConvertOptions describes a directory-to-file conversion.
type ConvertOptions struct {
	// From is a directory holding model.onnx and optionally labels.txt
	From string
	// To is the destination .onnx file; its metadata sidecar is written next to it
	To string
	// Classes is used when the directory has no labels.txt
	Classes []string
	// ImageSize is recorded in the metadata; 0 derives it from the input shape
	ImageSize int

	SharedLibraryPath string
}

// TensorInfo is the part of a model input or output the metadata needs.
type TensorInfo struct {
	Name  string
	Shape []int64
}

// SidecarPath returns the metadata path that belongs to a model file.
func SidecarPath(modelPath string) string {
	return strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".metadata.json"
}

// Convert turns a model directory into a single model file plus metadata sidecar.
// It returns the metadata written.
func Convert(opts ConvertOptions) (*Metadata, error) {
	src := filepath.Join(opts.From, DirModelFile)
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, src)
		}
		return nil, err
	}
	if sameFile(src, opts.To) {
		return nil, fmt.Errorf("destination %s is the source model", opts.To)
	}

	classes, err := readLabels(filepath.Join(opts.From, DirLabelsFile))
	if err != nil {
		return nil, err
	}
	if classes == nil {
		classes = opts.Classes
	}
	if classes == nil {
		classes = catalog.DefaultLabels()
	}

	if err := acquireEnv(opts.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	inputs, outputs, err := ort.GetInputOutputInfo(src)
	releaseEnv()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to inspect model: %v", ErrModelFormat, err)
	}

	var in, out []TensorInfo
	for _, i := range inputs {
		in = append(in, TensorInfo{Name: i.Name, Shape: i.Dimensions})
	}
	for _, o := range outputs {
		out = append(out, TensorInfo{Name: o.Name, Shape: o.Dimensions})
	}

	metadata, err := BuildMetadata(in, out, classes, opts.ImageSize)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(opts.To), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination: %w", err)
	}
	if err := copyFile(src, opts.To); err != nil {
		return nil, err
	}
	if err := WriteMetadata(SidecarPath(opts.To), metadata); err != nil {
		return nil, err
	}
	return metadata, nil
}

// BuildMetadata derives metadata for a single-input single-output image model.
// Dynamic dimensions (<= 0) are pinned to 1.
func BuildMetadata(inputs, outputs []TensorInfo, classes []string, imageSize int) (*Metadata, error) {
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("%w: expected 1 input and 1 output, got %d and %d",
			ErrModelFormat, len(inputs), len(outputs))
	}

	inShape := pinDynamic(inputs[0].Shape)
	outShape := pinDynamic(outputs[0].Shape)

	m := &Metadata{
		InputName:   inputs[0].Name,
		OutputName:  outputs[0].Name,
		InputShape:  inShape,
		OutputShape: outShape,
		Classes:     append([]string(nil), classes...),
		ImageSize:   imageSize,
	}

	if len(inShape) == 4 {
		switch {
		case inShape[3] == 3 || inShape[3] == 1:
			m.Layout = "nhwc"
			if m.ImageSize == 0 {
				m.ImageSize = int(inShape[1])
			}
		case inShape[1] == 3 || inShape[1] == 1:
			m.Layout = "nchw"
			if m.ImageSize == 0 {
				m.ImageSize = int(inShape[2])
			}
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func pinDynamic(shape []int64) []int64 {
	out := make([]int64, len(shape))
	for i, d := range shape {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}

// readLabels returns nil without error when the file does not exist.
func readLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()
	return ParseLabels(f)
}

// ParseLabels reads one label per line, skipping blank lines and # comments.
func ParseLabels(r io.Reader) ([]string, error) {
	var labels []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		labels = append(labels, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	return labels, nil
}

func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}

// copyFile writes src to a temporary file next to dst and renames it into
// place, so dst is either the old file or a complete copy.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open model: %w", err)
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), ".model-*")
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	tmp := out.Name()
	defer os.Remove(tmp)

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy model: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to copy model: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("failed to copy model: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to move model into place: %w", err)
	}
	return nil
}
