package compression

import (
	"fmt"
	"math"
	"strings"
)

// Format is an output encoding.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// ContentType returns the MIME type produced by the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// ParseFormat accepts short names ("jpeg", "jpg") and MIME types ("image/webp").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg", "image/jpeg", "image/jpg":
		return FormatJPEG, nil
	case "png", "image/png":
		return FormatPNG, nil
	case "webp", "image/webp":
		return FormatWebP, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// Resampler selects the interpolation used when an image is scaled down.
type Resampler string

const (
	ResampleCatmullRom Resampler = "catmullrom"
	ResampleLanczos    Resampler = "lanczos"
	ResampleBilinear   Resampler = "bilinear"
)

// ParseResampler maps a name onto a Resampler. "" selects CatmullRom.
func ParseResampler(s string) (Resampler, error) {
	switch r := Resampler(strings.ToLower(strings.TrimSpace(s))); r {
	case "":
		return ResampleCatmullRom, nil
	case ResampleCatmullRom, ResampleLanczos, ResampleBilinear:
		return r, nil
	}
	return "", fmt.Errorf("unknown resampler %q", s)
}

// Defaults applied by Compress to unset option fields.
const (
	DefaultMaxSizeKB = 500
	DefaultMaxWidth  = 1200
	DefaultMaxHeight = 1200
	DefaultQuality   = 0.8
	DefaultFormat    = FormatJPEG

	// MaxSizeKBLimit is the largest byte budget a caller may ask for (100 MB).
	MaxSizeKBLimit = 100 * 1024
)

// Options controls a single compression. Zero values mean "use the default".
type Options struct {
	MaxSizeKB int
	MaxWidth  int
	MaxHeight int
	// Quality is the encoder quality for the first attempt, in (0,1].
	Quality   float64
	Format    Format
	Resampler Resampler
}

func (o Options) withDefaults() Options {
	if o.MaxSizeKB <= 0 {
		o.MaxSizeKB = DefaultMaxSizeKB
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = DefaultMaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = DefaultMaxHeight
	}
	if o.Quality <= 0 || o.Quality > 1 {
		o.Quality = DefaultQuality
	}
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	if o.Resampler == "" {
		o.Resampler = ResampleCatmullRom
	}
	return o
}

// TargetBytes is the byte budget described by MaxSizeKB.
func (o Options) TargetBytes() int64 {
	return budgetBytes(o.withDefaults().MaxSizeKB)
}

// budgetBytes converts KB to bytes, saturating instead of overflowing.
func budgetBytes(kb int) int64 {
	if int64(kb) > math.MaxInt64/1024 {
		return math.MaxInt64
	}
	return int64(kb) * 1024
}

// Dimensions is a pixel size.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// DimensionPair holds the size before and after resizing.
type DimensionPair struct {
	Original   Dimensions `json:"original"`
	Compressed Dimensions `json:"compressed"`
}

// Result describes one finished compression.
type Result struct {
	Data             []byte        `json:"-"`
	ContentType      string        `json:"content_type"`
	OriginalSize     int           `json:"original_size"`
	CompressedSize   int           `json:"compressed_size"`
	CompressionRatio float64       `json:"compression_ratio"`
	Quality          float64       `json:"quality"`
	Attempts         int           `json:"attempts"`
	WithinBudget     bool          `json:"within_budget"`
	Dimensions       DimensionPair `json:"dimensions"`
}

// Blob returns the encoded bytes with their content type.
func (r *Result) Blob() Blob {
	return Blob{Data: r.Data, ContentType: r.ContentType}
}

func ratio(original, compressed int) float64 {
	if compressed <= 0 {
		return 0
	}
	return float64(original) / float64(compressed)
}
