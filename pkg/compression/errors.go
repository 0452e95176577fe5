package compression

import "errors"

var (
	// ErrDecode is returned when the source bytes cannot be read as an image.
	ErrDecode = errors.New("failed to load image")
	// ErrEncode is returned when the encoder produced no output.
	ErrEncode = errors.New("failed to compress image")

	// ErrEmptyInput is returned for zero-length input
	ErrEmptyInput = errors.New("empty image data")
	// ErrInvalidDimensions is returned when image dimensions are invalid
	ErrInvalidDimensions = errors.New("invalid image dimensions")
	// ErrImageTooLarge is returned when image dimensions exceed limits
	ErrImageTooLarge = errors.New("image dimensions exceed maximum allowed")
	// ErrUnsupportedFormat is returned for an unknown output format name
	ErrUnsupportedFormat = errors.New("unsupported output format")
)
