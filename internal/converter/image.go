package converter

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
)

const (
	defaultMaxImageWidth = 1200
	defaultJPEGQuality   = 85
	defaultMaxPixels     = 100 * 1000 * 1000 // 100 megapixels
)

// ImageOptimizer prepares raster images for embedding in a PDF: anything the
// decoders understand is downscaled to MaxWidth and re-encoded as JPEG, or as
// PNG when it carries transparency.
type ImageOptimizer struct {
	MaxWidth    int
	JPEGQuality int
	MaxPixels   int // Total pixel count limit for decode (width * height)
}

// OptimizedImage holds encoded image data ready for fpdf. Format is "JPG" or "PNG".
type OptimizedImage struct {
	Data   []byte
	Width  int
	Height int
	Format string
}

// NewImageOptimizer creates an image optimizer. Zero values select defaults.
func NewImageOptimizer(maxWidth, quality int) *ImageOptimizer {
	if maxWidth <= 0 {
		maxWidth = defaultMaxImageWidth
	}
	if quality <= 0 {
		quality = defaultJPEGQuality
	}
	if quality > 100 {
		quality = 100
	}
	return &ImageOptimizer{
		MaxWidth:    maxWidth,
		JPEGQuality: quality,
		MaxPixels:   defaultMaxPixels,
	}
}

// Optimize decodes and re-encodes input. It fails for data that cannot be
// decoded or is too large to decode safely.
func (o *ImageOptimizer) Optimize(input []byte) (OptimizedImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(input))
	if err != nil {
		return OptimizedImage{}, fmt.Errorf("image decode failed: %w", err)
	}
	pixels := uint64(cfg.Width) * uint64(cfg.Height)
	if o.MaxPixels > 0 && pixels > uint64(o.MaxPixels) {
		return OptimizedImage{}, fmt.Errorf("image too large to decode: %dx%d (%d pixels)", cfg.Width, cfg.Height, pixels)
	}

	src, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return OptimizedImage{}, fmt.Errorf("image decode failed: %w", err)
	}

	processed := src
	if o.MaxWidth > 0 && src.Bounds().Dx() > o.MaxWidth {
		processed = imaging.Resize(src, o.MaxWidth, 0, imaging.Lanczos)
	}

	out := OptimizedImage{
		Width:  processed.Bounds().Dx(),
		Height: processed.Bounds().Dy(),
	}

	var buf bytes.Buffer
	if hasAlpha(processed) {
		// fpdf rejects interlaced PNGs; the stdlib encoder never interlaces.
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		if err := encoder.Encode(&buf, processed); err != nil {
			return OptimizedImage{}, fmt.Errorf("png encode failed: %w", err)
		}
		out.Format = "PNG"
	} else {
		if err := imaging.Encode(&buf, processed, imaging.JPEG, imaging.JPEGQuality(o.JPEGQuality)); err != nil {
			return OptimizedImage{}, fmt.Errorf("jpeg encode failed: %w", err)
		}
		out.Format = "JPG"
	}
	out.Data = buf.Bytes()
	return out, nil
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			_, _, _, a := img.At(x, y).RGBA()
			if a < 0xFFFF {
				return true
			}
		}
	}
	return false
}
