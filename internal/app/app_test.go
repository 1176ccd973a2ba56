package app

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Brownie44l1/leaf-api/internal/catalog"
	"github.com/Brownie44l1/leaf-api/internal/config"
	"github.com/Brownie44l1/leaf-api/internal/inference"
	"github.com/Brownie44l1/leaf-api/internal/model"
)

type zeroEngine struct{}

func (zeroEngine) Run([]float32) ([]float32, error) { return make([]float32, 10), nil }

func leafMetadata() *model.Metadata {
	return &model.Metadata{
		InputShape:  []int64{1, 180, 180, 3},
		OutputShape: []int64{1, 10},
		Classes:     catalog.DefaultLabels(),
		ImageSize:   180,
		Layout:      "nhwc",
	}
}

func TestNewPipeline(t *testing.T) {
	t.Run("matches reference model", func(t *testing.T) {
		p, err := NewPipeline(config.Default(), leafMetadata(), zeroEngine{}, zap.NewNop())
		require.NoError(t, err)

		result, err := p.ClassifyTensor(make([]float32, 180*180*3), 0)
		require.NoError(t, err)
		require.Len(t, result, 3)
		// uniform scores fall back to catalog order
		assert.Equal(t, "bear_oak", result[0].Label)
		assert.InDelta(t, 0.1, result[0].Probability, 1e-9)
	})

	t.Run("catalog comes from metadata", func(t *testing.T) {
		meta := leafMetadata()
		meta.Classes[0] = "red_maple"

		p, err := NewPipeline(config.Default(), meta, zeroEngine{}, nil)
		require.NoError(t, err)
		assert.Equal(t, "red_maple", p.Catalog().Label(0))
	})

	t.Run("layout mismatch", func(t *testing.T) {
		meta := leafMetadata()
		meta.Layout = "nchw"

		_, err := NewPipeline(config.Default(), meta, zeroEngine{}, nil)
		assert.ErrorIs(t, err, model.ErrModelFormat)
	})

	t.Run("size mismatch", func(t *testing.T) {
		cfg := config.Default()
		cfg.Image.Height, cfg.Image.Width = 224, 224

		_, err := NewPipeline(cfg, leafMetadata(), zeroEngine{}, nil)
		assert.ErrorIs(t, err, model.ErrModelFormat)
	})

	t.Run("bad interpolation", func(t *testing.T) {
		cfg := config.Default()
		cfg.Image.Interpolation = "cubic-ish"

		_, err := NewPipeline(cfg, leafMetadata(), zeroEngine{}, nil)
		assert.ErrorIs(t, err, inference.ErrInvalidArgument)
	})
}

func TestLoadPipeline_MissingModel(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Path = filepath.Join(t.TempDir(), "leaf_model.onnx")

	_, _, err := LoadPipeline(cfg, zap.NewNop())

	assert.ErrorIs(t, err, model.ErrModelNotFound)
}

func TestPipelineConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Image.MaxPixels = 1_000_000
	cfg.Inference.TopK = 5

	got := PipelineConfig(cfg)

	assert.Equal(t, 1_000_000, got.MaxPixels)
	assert.Equal(t, 5, got.TopK)
	assert.Equal(t, inference.LayoutNHWC, got.Layout)
}
