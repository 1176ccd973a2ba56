// Package inference turns images into ranked, human-readable class predictions.
//
// A Pipeline is built once around a loaded Engine and a Catalog and keeps no
// per-call state, so one Pipeline may serve concurrent requests as long as the
// Engine allows it.
package inference

import (
	"fmt"
	"image"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Brownie44l1/leaf-api/internal/catalog"
)

// Engine executes a model on one preprocessed batch and returns its raw scores.
type Engine interface {
	Run(input []float32) ([]float32, error)
}

// Config controls preprocessing and ranking.
type Config struct {
	Height        int
	Width         int
	Layout        Layout
	Scale         Scale
	Interpolation string
	// TopK is used when a caller passes k == 0
	TopK int
	// MaxPixels caps width*height of a decoded image
	MaxPixels int
}

// DefaultConfig matches the reference leaf model.
func DefaultConfig() Config {
	return Config{
		Height:        180,
		Width:         180,
		Layout:        LayoutNHWC,
		Scale:         ScaleRaw,
		Interpolation: "bilinear",
		TopK:          3,
		MaxPixels:     DefaultMaxPixels,
	}
}

func (c Config) validate() error {
	if c.Height <= 0 || c.Width <= 0 {
		return fmt.Errorf("%w: image size %dx%d", ErrInvalidArgument, c.Width, c.Height)
	}
	switch c.Layout {
	case LayoutNHWC, LayoutNCHW:
	default:
		return fmt.Errorf("%w: unknown layout %q", ErrInvalidArgument, c.Layout)
	}
	switch c.Scale {
	case ScaleRaw, ScaleUnit:
	default:
		return fmt.Errorf("%w: unknown scale %q", ErrInvalidArgument, c.Scale)
	}
	if _, ok := interpolations[c.Interpolation]; !ok {
		return fmt.Errorf("%w: unknown interpolation %q", ErrInvalidArgument, c.Interpolation)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k %d", ErrInvalidArgument, c.TopK)
	}
	if c.MaxPixels <= 0 {
		return fmt.Errorf("%w: max_pixels %d", ErrInvalidArgument, c.MaxPixels)
	}
	return nil
}

// Pipeline runs preprocess, predict, softmax, rank and format.
type Pipeline struct {
	cfg     Config
	engine  Engine
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewPipeline validates cfg against the catalog. A nil logger discards output.
func NewPipeline(cfg Config, engine Engine, cat *catalog.Catalog, logger *zap.Logger) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", ErrModelUnavailable)
	}
	if cat == nil {
		return nil, fmt.Errorf("%w: nil catalog", ErrInvalidArgument)
	}
	if cfg.TopK > cat.Len() {
		return nil, fmt.Errorf("%w: top_k %d exceeds %d classes", ErrInvalidArgument, cfg.TopK, cat.Len())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, engine: engine, catalog: cat, logger: logger}, nil
}

// Catalog returns the label catalog the pipeline ranks against.
func (p *Pipeline) Catalog() *catalog.Catalog { return p.catalog }

// DefaultK is the k used when callers pass 0.
func (p *Pipeline) DefaultK() int { return p.cfg.TopK }

// InputShape is the shape of the batch handed to the engine.
func (p *Pipeline) InputShape() []int64 {
	h, w := int64(p.cfg.Height), int64(p.cfg.Width)
	if p.cfg.Layout == LayoutNCHW {
		return []int64{1, channels, h, w}
	}
	return []int64{1, h, w, channels}
}

func (p *Pipeline) inputSize() int {
	return channels * p.cfg.Height * p.cfg.Width
}

// Predict classifies the image at imagePath and renders the top k as text,
// one sentence per line.
func (p *Pipeline) Predict(imagePath string, k int) (string, error) {
	result, err := p.Classify(imagePath, k)
	if err != nil {
		return "", err
	}
	return result.Text(), nil
}

// Classify is Predict without the final formatting.
func (p *Pipeline) Classify(imagePath string, k int) (Result, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	defer f.Close()
	return p.ClassifyReader(f, k)
}

// ClassifyReader decodes an image from r and classifies it.
func (p *Pipeline) ClassifyReader(r io.Reader, k int) (Result, error) {
	k, err := p.resolveK(k)
	if err != nil {
		return nil, err
	}

	img, format, err := decodeImage(r, p.cfg.MaxPixels)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("Decoded image",
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	return p.classifyImage(img, k)
}

// ClassifyImage classifies an already decoded image.
func (p *Pipeline) ClassifyImage(img image.Image, k int) (Result, error) {
	k, err := p.resolveK(k)
	if err != nil {
		return nil, err
	}
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	return p.classifyImage(img, k)
}

// ClassifyTensor classifies a batch that is already preprocessed.
func (p *Pipeline) ClassifyTensor(input []float32, k int) (Result, error) {
	k, err := p.resolveK(k)
	if err != nil {
		return nil, err
	}
	if want := p.inputSize(); len(input) != want {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidArgument, want, len(input))
	}
	return p.run(input, k)
}

func (p *Pipeline) classifyImage(img image.Image, k int) (Result, error) {
	input := p.preprocess(img)
	p.logger.Debug("Preprocessed image",
		zap.Int("values", len(input)),
		zap.Int64s("shape", p.InputShape()))
	return p.run(input, k)
}

func (p *Pipeline) run(input []float32, k int) (Result, error) {
	raw, err := p.engine.Run(input)
	if err != nil {
		return nil, unavailable(err)
	}
	if len(raw) != p.catalog.Len() {
		return nil, fmt.Errorf("%w: model returned %d scores for %d classes",
			ErrModelUnavailable, len(raw), p.catalog.Len())
	}

	scores, err := toFloat64(raw)
	if err != nil {
		return nil, err
	}
	return Rank(Softmax(scores), p.catalog, k)
}

// resolveK maps 0 to the configured default and rejects anything outside
// [1, catalog size].
func (p *Pipeline) resolveK(k int) (int, error) {
	if k == 0 {
		k = p.cfg.TopK
	}
	if k < 1 || k > p.catalog.Len() {
		return 0, fmt.Errorf("%w: k=%d must be between 1 and %d", ErrInvalidArgument, k, p.catalog.Len())
	}
	return k, nil
}
