package inference

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/leaf-api/internal/catalog"
	"github.com/Brownie44l1/leaf-api/internal/model"
)

type fakeEngine struct {
	mu     sync.Mutex
	scores []float32
	err    error
	inputs [][]float32
}

func (f *fakeEngine) Run(input []float32) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, append([]float32(nil), input...))
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.scores...), nil
}

// logits whose softmax ranks virginia_creeper, fragrant_sumac, bear_oak first
func referenceLogits() []float32 {
	return []float32{2.0, 0.5, -1, -1.5, 3.0, -1.5, -1.5, 4.0, 0.5, 0.5}
}

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// pngHeader is a PNG signature and IHDR chunk declaring a w x h RGB image
// with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 2 // truecolor

	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func writeImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leaf.png")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func newTestPipeline(t *testing.T, engine Engine, mutate func(*Config)) *Pipeline {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Height, cfg.Width = 4, 4
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := NewPipeline(cfg, engine, catalog.Default(), nil)
	require.NoError(t, err)
	return p
}

func TestPipeline_Predict(t *testing.T) {
	engine := &fakeEngine{scores: referenceLogits()}
	p := newTestPipeline(t, engine, nil)
	path := writeImage(t, solidPNG(t, 32, 24, color.RGBA{G: 200, A: 255}))

	t.Run("ranks and formats top three", func(t *testing.T) {
		text, err := p.Predict(path, 3)
		require.NoError(t, err)

		lines := strings.Split(text, "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[0], "This image likely belongs to Virginia Creeper with "))
		assert.True(t, strings.HasPrefix(lines[1], "This image likely belongs to Fragrant Sumac with "))
		assert.True(t, strings.HasPrefix(lines[2], "This image likely belongs to Bear Oak with "))
		for _, line := range lines {
			assert.True(t, strings.HasSuffix(line, "% confidence."))
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		first, err := p.Predict(path, 3)
		require.NoError(t, err)
		second, err := p.Predict(path, 3)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("zero k uses configured default", func(t *testing.T) {
		result, err := p.Classify(path, 0)
		require.NoError(t, err)
		assert.Len(t, result, 3)
	})

	t.Run("k equal to catalog size", func(t *testing.T) {
		result, err := p.Classify(path, 10)
		require.NoError(t, err)
		assert.Len(t, result, 10)

		var sum float64
		for _, s := range result {
			sum += s.Probability
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	})

	t.Run("k greater than catalog size", func(t *testing.T) {
		_, err := p.Predict(path, 11)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("negative k", func(t *testing.T) {
		_, err := p.Predict(path, -2)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestPipeline_InvalidImage(t *testing.T) {
	p := newTestPipeline(t, &fakeEngine{scores: referenceLogits()}, nil)

	t.Run("missing path", func(t *testing.T) {
		_, err := p.Predict(filepath.Join(t.TempDir(), "missing.jpg"), 3)
		assert.ErrorIs(t, err, ErrInvalidImage)
	})

	t.Run("undecodable content", func(t *testing.T) {
		path := writeImage(t, []byte("definitely not an image"))
		_, err := p.Predict(path, 3)
		assert.ErrorIs(t, err, ErrInvalidImage)
	})

	t.Run("declared size over pixel cap", func(t *testing.T) {
		_, err := p.ClassifyReader(bytes.NewReader(pngHeader(100_000, 100_000)), 3)
		assert.ErrorIs(t, err, ErrInvalidImage)
		assert.Contains(t, err.Error(), "exceeds")
	})

	t.Run("nil image", func(t *testing.T) {
		_, err := p.ClassifyImage(nil, 3)
		assert.ErrorIs(t, err, ErrInvalidImage)
	})
}

func TestPipeline_MaxPixels(t *testing.T) {
	engine := &fakeEngine{scores: referenceLogits()}
	p := newTestPipeline(t, engine, func(c *Config) { c.MaxPixels = 100 })

	t.Run("at the cap", func(t *testing.T) {
		_, err := p.ClassifyReader(bytes.NewReader(solidPNG(t, 10, 10, color.White)), 3)
		assert.NoError(t, err)
	})

	t.Run("over the cap", func(t *testing.T) {
		_, err := p.ClassifyReader(bytes.NewReader(solidPNG(t, 11, 10, color.White)), 3)
		assert.ErrorIs(t, err, ErrInvalidImage)
		assert.Contains(t, err.Error(), "11x10")
	})

	t.Run("rejects non-positive cap", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxPixels = 0
		_, err := NewPipeline(cfg, engine, catalog.Default(), nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestPipeline_ModelUnavailable(t *testing.T) {
	data := solidPNG(t, 8, 8, color.White)

	t.Run("engine failure", func(t *testing.T) {
		p := newTestPipeline(t, &fakeEngine{err: errors.New("session exploded")}, nil)
		_, err := p.ClassifyReader(bytes.NewReader(data), 3)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("keeps format cause", func(t *testing.T) {
		p := newTestPipeline(t, &fakeEngine{err: model.ErrModelFormat}, nil)
		_, err := p.ClassifyReader(bytes.NewReader(data), 3)
		assert.ErrorIs(t, err, model.ErrModelFormat)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("wrong output length", func(t *testing.T) {
		p := newTestPipeline(t, &fakeEngine{scores: []float32{1, 2, 3}}, nil)
		_, err := p.ClassifyReader(bytes.NewReader(data), 3)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})
}

func TestPipeline_Preprocess(t *testing.T) {
	data := solidPNG(t, 10, 6, color.RGBA{R: 255, G: 128, B: 0, A: 255})

	t.Run("nhwc raw", func(t *testing.T) {
		engine := &fakeEngine{scores: referenceLogits()}
		p := newTestPipeline(t, engine, nil)

		_, err := p.ClassifyReader(bytes.NewReader(data), 1)
		require.NoError(t, err)

		require.Len(t, engine.inputs, 1)
		in := engine.inputs[0]
		require.Len(t, in, 4*4*3)
		assert.Equal(t, []int64{1, 4, 4, 3}, p.InputShape())
		assert.InDelta(t, 255, in[0], 0.5)
		assert.InDelta(t, 128, in[1], 0.5)
		assert.InDelta(t, 0, in[2], 0.5)
		assert.InDelta(t, 255, in[3], 0.5)
	})

	t.Run("nchw unit", func(t *testing.T) {
		engine := &fakeEngine{scores: referenceLogits()}
		p := newTestPipeline(t, engine, func(c *Config) {
			c.Layout = LayoutNCHW
			c.Scale = ScaleUnit
			c.Interpolation = "lanczos3"
		})

		_, err := p.ClassifyReader(bytes.NewReader(data), 1)
		require.NoError(t, err)

		in := engine.inputs[0]
		assert.Equal(t, []int64{1, 3, 4, 4}, p.InputShape())
		assert.InDelta(t, 1.0, in[0], 0.01)
		assert.InDelta(t, 1.0, in[15], 0.01)
		assert.InDelta(t, 128.0/255.0, in[16], 0.01)
		assert.InDelta(t, 0, in[32], 0.01)
	})
}

func TestPipeline_Transparency(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 255, G: 64, A: 0})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	engine := &fakeEngine{scores: referenceLogits()}
	p := newTestPipeline(t, engine, nil)

	_, err := p.ClassifyReader(&buf, 1)
	require.NoError(t, err)

	// fully transparent pixels keep their color rather than reading as black
	in := engine.inputs[0]
	assert.InDelta(t, 255, in[0], 0.5)
	assert.InDelta(t, 64, in[1], 0.5)
	assert.InDelta(t, 0, in[2], 0.5)
}

func TestPipeline_ClassifyTensor(t *testing.T) {
	engine := &fakeEngine{scores: referenceLogits()}
	p := newTestPipeline(t, engine, nil)

	t.Run("passes tensor through", func(t *testing.T) {
		input := make([]float32, 4*4*3)
		result, err := p.ClassifyTensor(input, 2)
		require.NoError(t, err)
		assert.Len(t, result, 2)
		assert.Equal(t, "virginia_creeper", result[0].Label)
	})

	t.Run("wrong size", func(t *testing.T) {
		_, err := p.ClassifyTensor(make([]float32, 5), 2)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})
}

func TestPipeline_Concurrent(t *testing.T) {
	p := newTestPipeline(t, &fakeEngine{scores: referenceLogits()}, nil)
	data := solidPNG(t, 16, 16, color.Black)

	want, err := p.ClassifyReader(bytes.NewReader(data), 3)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := p.ClassifyReader(bytes.NewReader(data), 3)
			assert.NoError(t, err)
			assert.Equal(t, want, got)
		}()
	}
	wg.Wait()
}

func TestNewPipeline(t *testing.T) {
	engine := &fakeEngine{}

	t.Run("rejects unknown interpolation", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Interpolation = "magic"
		_, err := NewPipeline(cfg, engine, catalog.Default(), nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("rejects top_k above catalog size", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.TopK = 11
		_, err := NewPipeline(cfg, engine, catalog.Default(), nil)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("rejects nil engine", func(t *testing.T) {
		_, err := NewPipeline(DefaultConfig(), nil, catalog.Default(), nil)
		assert.ErrorIs(t, err, ErrModelUnavailable)
	})

	t.Run("reference defaults", func(t *testing.T) {
		p, err := NewPipeline(DefaultConfig(), engine, catalog.Default(), nil)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 180, 180, 3}, p.InputShape())
		assert.Equal(t, 3, p.DefaultK())
	})
}
