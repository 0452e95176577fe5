// Package compression shrinks user images under a byte budget before upload.
//
// Resolution is reduced once, up front, to fit the configured bounds. If the
// first encode is still over budget, quality is stepped down from a fixed
// restart value until the output fits or the quality floor is reached. An
// unattainable budget is not an error: the floor encode is returned with
// WithinBudget set to false.
package compression

import (
	"context"
	"errors"

	"github.com/harliandi/go-kycimage/pkg/quality"
)

// CompressFunc is the signature shared by Compress and the worker pool.
type CompressFunc func(ctx context.Context, data []byte, opts Options) (*Result, error)

// Compress decodes data, scales it into the option bounds and re-encodes it,
// reducing quality when the first encode exceeds MaxSizeKB.
func Compress(ctx context.Context, data []byte, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	src, _, err := decode(data)
	if err != nil {
		return nil, err
	}

	b := src.Bounds()
	original := Dimensions{Width: b.Dx(), Height: b.Dy()}
	size := fitWithin(original, opts.MaxWidth, opts.MaxHeight)

	surface := render(src, size, opts.Resampler)
	encodeAt := func(q float64) ([]byte, error) {
		return encode(surface, opts.Format, q)
	}

	out, err := encodeAt(opts.Quality)
	if err != nil {
		return nil, err
	}
	q, attempts := opts.Quality, 1

	target := budgetBytes(opts.MaxSizeKB)
	within := int64(len(out)) <= target
	if !within {
		a, err := quality.ReduceToBudget(ctx, encodeAt, target)
		if err != nil {
			if errors.Is(err, quality.ErrEmptyEncode) {
				return nil, ErrEncode
			}
			return nil, err
		}
		out, q, within = a.Data, a.Quality, a.WithinBudget
		attempts += a.Attempts
	}

	return &Result{
		Data:             out,
		ContentType:      opts.Format.ContentType(),
		OriginalSize:     len(data),
		CompressedSize:   len(out),
		CompressionRatio: ratio(len(data), len(out)),
		Quality:          q,
		Attempts:         attempts,
		WithinBudget:     within,
		Dimensions: DimensionPair{
			Original:   original,
			Compressed: size,
		},
	}, nil
}

// CompressFile runs Compress on the contents of f.
func CompressFile(ctx context.Context, f File, opts Options) (*Result, error) {
	return Compress(ctx, f.Data, opts)
}
