package compression

import (
	"context"
	"log/slog"
	"sync"
)

// Hook wraps the compression steps for an upload flow. A failed compression
// never fails the flow: the original file is handed back and the error is
// kept for display. A Hook may be shared between goroutines; Result and Err
// then describe whichever call finished last.
type Hook struct {
	opts         Options
	autoCompress bool
	showInfo     bool
	compress     CompressFunc
	logger       *slog.Logger

	mu       sync.Mutex
	inflight int
	result   *Result
	err      error
}

// HookOption configures a Hook.
type HookOption func(*Hook)

// WithAutoCompress controls whether files under the size threshold are
// compressed anyway. Defaults to true.
func WithAutoCompress(on bool) HookOption {
	return func(h *Hook) { h.autoCompress = on }
}

// WithCompressionInfo controls the summary log line after each compression.
func WithCompressionInfo(on bool) HookOption {
	return func(h *Hook) { h.showInfo = on }
}

// WithCompressFunc replaces the function that runs the compression.
func WithCompressFunc(fn CompressFunc) HookOption {
	return func(h *Hook) {
		if fn != nil {
			h.compress = fn
		}
	}
}

// WithLogger sets the logger used for summaries and failures.
func WithLogger(l *slog.Logger) HookOption {
	return func(h *Hook) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHook returns a Hook using opts as caller overrides. Unset fields are
// filled from Recommend for each file.
func NewHook(opts Options, options ...HookOption) *Hook {
	h := &Hook{
		opts:         opts,
		autoCompress: true,
		showInfo:     true,
		compress:     Compress,
		logger:       slog.Default(),
	}
	for _, o := range options {
		o(h)
	}
	return h
}

// CompressFile returns the compressed form of f, or f itself when compression
// is skipped or fails.
func (h *Hook) CompressFile(ctx context.Context, f File) File {
	h.mu.Lock()
	h.inflight++
	h.result = nil
	h.err = nil
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.inflight--
		h.mu.Unlock()
	}()

	if !NeedsCompression(f.Size(), h.opts.MaxSizeKB) && !h.autoCompress {
		return f
	}

	opts := h.effectiveOptions(f)
	res, err := h.compress(ctx, f.Data, opts)
	if err != nil {
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		h.logger.Error("image compression failed", "file", f.Name, "size", f.Size(), "error", err)
		return f
	}

	recorded := *res
	recorded.OriginalSize = len(f.Data)
	recorded.CompressionRatio = ratio(recorded.OriginalSize, recorded.CompressedSize)

	h.mu.Lock()
	h.result = &recorded
	h.mu.Unlock()

	if h.showInfo {
		h.logger.Info("image compression completed",
			"file", f.Name,
			"original_size", recorded.OriginalSize,
			"compressed_size", recorded.CompressedSize,
			"reduction_pct", reductionPct(recorded.OriginalSize, recorded.CompressedSize),
			"original_dimensions", recorded.Dimensions.Original.String(),
			"compressed_dimensions", recorded.Dimensions.Compressed.String(),
			"quality", recorded.Quality,
			"within_budget", recorded.WithinBudget,
		)
	}

	return NewCompressedFile(f, res.Blob())
}

func (h *Hook) effectiveOptions(f File) Options {
	rec := RecommendFile(f)
	o := h.opts
	if o.MaxSizeKB <= 0 {
		o.MaxSizeKB = rec.MaxSizeKB
	}
	if o.MaxWidth <= 0 {
		o.MaxWidth = rec.MaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = rec.MaxHeight
	}
	if o.Quality <= 0 || o.Quality > 1 {
		o.Quality = rec.Quality
	}
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	return o
}

// NeedsCompression applies the hook's size threshold to f.
func (h *Hook) NeedsCompression(f File) bool {
	return NeedsCompression(f.Size(), h.opts.MaxSizeKB)
}

// Recommendations returns the recommendation for f.
func (h *Hook) Recommendations(f File) Recommendation {
	return RecommendFile(f)
}

// IsCompressing reports whether any CompressFile call is in progress.
func (h *Hook) IsCompressing() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inflight > 0
}

// Result returns the last successful result, or nil.
func (h *Hook) Result() *Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Err returns the last compression error, or nil.
func (h *Hook) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// ErrorMessage returns the last error text, or "" when there is none.
func (h *Hook) ErrorMessage() string {
	if err := h.Err(); err != nil {
		return err.Error()
	}
	return ""
}

// Reset clears the last result and error. Calls still running keep
// IsCompressing true until they return.
func (h *Hook) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result = nil
	h.err = nil
}

func reductionPct(original, compressed int) float64 {
	if original == 0 {
		return 0
	}
	return (1 - float64(compressed)/float64(original)) * 100
}
