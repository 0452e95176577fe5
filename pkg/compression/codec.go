package compression

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/adrium/goheif"
	"github.com/chai2010/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

var pngEncoder = png.Encoder{CompressionLevel: png.BestCompression}

// decode reads data as an image. Every failure wraps ErrDecode.
func decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, ErrEmptyInput)
	}

	if IsHEIFMagic(data) {
		img, err := decodeHEIF(data)
		return img, "heif", err
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrDecode, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", ErrDecode, format, err)
	}
	return img, format, nil
}

// decodeHEIF goes through goheif directly; its box parser can panic on
// malformed input, which is reported as a decode failure.
func decodeHEIF(data []byte) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("%w: heif: %v", ErrDecode, r)
		}
	}()

	cfg, err := goheif.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: heif header: %w", ErrDecode, err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	img, err = goheif.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: heif: %w", ErrDecode, err)
	}
	return img, nil
}

// encode rasterizes img in the given format. Quality is in [0,1]; PNG ignores it.
func encode(img image.Image, format Format, q float64) ([]byte, error) {
	b := img.Bounds()
	buf := getBuffer(b.Dx() * b.Dy() / 4)
	defer putBuffer(buf)

	var err error
	switch format {
	case FormatPNG:
		err = pngEncoder.Encode(buf, img)
	case FormatWebP:
		err = webp.Encode(buf, img, &webp.Options{Quality: float32(clampQuality(q) * 100)})
	default:
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: jpegQuality(q)})
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrEncode, format, err)
	}
	if buf.Len() == 0 {
		return nil, ErrEncode
	}
	return detach(buf), nil
}

func clampQuality(q float64) float64 {
	return math.Max(0, math.Min(1, q))
}

// jpegQuality maps [0,1] onto the encoder's 1-100 scale.
func jpegQuality(q float64) int {
	v := int(math.Round(clampQuality(q) * 100))
	if v < 1 {
		return 1
	}
	return v
}
