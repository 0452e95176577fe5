package compression

import (
	"fmt"
	"image"
)

// Decode limits, checked from the image header before pixels are allocated.
const (
	MaxImageWidth  = 20000
	MaxImageHeight = 20000
	MaxImagePixels = 250_000_000
)

// ValidateConfig checks header dimensions against the decode limits.
func ValidateConfig(cfg image.Config) error {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, cfg.Width, cfg.Height)
	}
	if cfg.Width > MaxImageWidth || cfg.Height > MaxImageHeight {
		return fmt.Errorf("%w: %dx%d (max %dx%d)", ErrImageTooLarge, cfg.Width, cfg.Height, MaxImageWidth, MaxImageHeight)
	}
	// decompression bomb guard
	if int64(cfg.Width)*int64(cfg.Height) > MaxImagePixels {
		return fmt.Errorf("%w: %d pixels (max %d)", ErrImageTooLarge, int64(cfg.Width)*int64(cfg.Height), MaxImagePixels)
	}
	return nil
}

// IsHEIFMagic checks for an ISO base media "ftyp" box with a HEIF brand.
func IsHEIFMagic(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	if string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heim", "heis", "hevc", "hevx", "mif1", "msf1":
		return true
	}
	return false
}
