package inference

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/nfnt/resize"
)

// Layout is the memory order of the input tensor.
type Layout string

const (
	// LayoutNHWC is [1, H, W, 3], the Keras default.
	LayoutNHWC Layout = "nhwc"
	// LayoutNCHW is [1, 3, H, W].
	LayoutNCHW Layout = "nchw"
)

// Scale selects the pixel value range.
type Scale string

const (
	// ScaleRaw keeps 0..255 values; the model is expected to rescale itself.
	ScaleRaw Scale = "raw"
	// ScaleUnit maps pixels to 0..1.
	ScaleUnit Scale = "unit"
)

var interpolations = map[string]resize.InterpolationFunction{
	"nearest":  resize.NearestNeighbor,
	"bilinear": resize.Bilinear,
	"bicubic":  resize.Bicubic,
	"lanczos3": resize.Lanczos3,
}

const channels = 3

// DefaultMaxPixels bounds the declared size of an image accepted for decoding.
const DefaultMaxPixels = 40_000_000

// decodeImage reads any registered image format. The header is inspected first
// so an image declaring more than maxPixels pixels is rejected before its
// pixel buffer is allocated.
func decodeImage(r io.Reader, maxPixels int) (image.Image, string, error) {
	br := bufio.NewReader(r)
	var header bytes.Buffer

	cfg, _, err := image.DecodeConfig(io.TeeReader(br, &header))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(io.MultiReader(&header, br))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, "", fmt.Errorf("%w: empty image", ErrInvalidImage)
	}
	return img, format, nil
}

// dropAlpha makes every pixel opaque while keeping its straight color, so
// transparent regions keep their color instead of turning black.
func dropAlpha(img image.Image) image.Image {
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return img
	}

	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			c.A = 0xff
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}

// preprocess resizes img and packs it as a single-image batch.
func (p *Pipeline) preprocess(img image.Image) []float32 {
	width, height := p.cfg.Width, p.cfg.Height
	resized := resize.Resize(uint(width), uint(height), dropAlpha(img), interpolations[p.cfg.Interpolation])

	bounds := resized.Bounds()
	div := float32(1.0)
	if p.cfg.Scale == ScaleUnit {
		div = 255.0
	}

	plane := width * height
	inputData := make([]float32, channels*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBAModel.Convert(resized.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
			rv, gv, bv := float32(c.R)/div, float32(c.G)/div, float32(c.B)/div

			pixelIndex := y*width + x
			if p.cfg.Layout == LayoutNCHW {
				inputData[pixelIndex] = rv
				inputData[plane+pixelIndex] = gv
				inputData[2*plane+pixelIndex] = bv
			} else {
				base := pixelIndex * channels
				inputData[base] = rv
				inputData[base+1] = gv
				inputData[base+2] = bv
			}
		}
	}
	return inputData
}
