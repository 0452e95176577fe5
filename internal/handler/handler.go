package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/harliandi/go-kycimage/internal/storage"
	"github.com/harliandi/go-kycimage/internal/worker"
	"github.com/harliandi/go-kycimage/pkg/compression"
	"github.com/harliandi/go-kycimage/pkg/metrics"
)

const heifContentType = "image/heic"

// Settings are the server-side defaults applied to every request.
type Settings struct {
	MaxUploadMB  int
	AutoCompress bool
	Format       compression.Format
	Resampler    compression.Resampler
}

// Handler handles HTTP requests for image compression and upload
type Handler struct {
	compress compression.CompressFunc
	uploader storage.Uploader
	settings Settings
	logger   *slog.Logger
}

// New creates a new Handler. compress is normally the worker pool's Submit.
func New(compress compression.CompressFunc, uploader storage.Uploader, settings Settings, logger *slog.Logger) *Handler {
	if settings.MaxUploadMB <= 0 {
		settings.MaxUploadMB = 20
	}
	if settings.Format == "" {
		settings.Format = compression.DefaultFormat
	}
	if settings.Resampler == "" {
		settings.Resampler = compression.ResampleCatmullRom
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		compress: compress,
		uploader: uploader,
		settings: settings,
		logger:   logger,
	}
}

// Compress handles the /compress endpoint
func (h *Handler) Compress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	f, ok := h.readFile(w, r)
	if !ok {
		return
	}
	if !isImage(f.ContentType) {
		writeError(w, http.StatusUnsupportedMediaType, "File is not an image")
		return
	}

	opts, err := h.parseOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.compress(r.Context(), f.Data, opts)
	if err != nil {
		status := statusFor(err)
		h.logger.Error("compression failed", "file", f.Name, "size", f.Size(), "status", status, "error", err)
		writeError(w, status, messageFor(status))
		return
	}

	hdr := w.Header()
	hdr.Set("Content-Type", res.ContentType)
	hdr.Set("Content-Length", strconv.Itoa(len(res.Data)))
	hdr.Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", compression.CompressedName(f.Name)))
	hdr.Set("X-Original-Size", strconv.Itoa(res.OriginalSize))
	hdr.Set("X-Compressed-Size", strconv.Itoa(res.CompressedSize))
	hdr.Set("X-Compression-Ratio", strconv.FormatFloat(res.CompressionRatio, 'f', 2, 64))
	hdr.Set("X-Compression-Quality", strconv.FormatFloat(res.Quality, 'f', 1, 64))
	hdr.Set("X-Original-Dimensions", res.Dimensions.Original.String())
	hdr.Set("X-Compressed-Dimensions", res.Dimensions.Compressed.String())
	hdr.Set("X-Within-Budget", strconv.FormatBool(res.WithinBudget))
	w.WriteHeader(http.StatusOK)
	w.Write(res.Data)
}

// UploadResponse is the body returned by /upload
type UploadResponse struct {
	Path             string  `json:"path"`
	Name             string  `json:"name"`
	ContentType      string  `json:"content_type"`
	OriginalSize     int64   `json:"original_size"`
	StoredSize       int64   `json:"stored_size"`
	Compressed       bool    `json:"compressed"`
	CompressionRatio float64 `json:"compression_ratio,omitempty"`
	CompressionError string  `json:"compression_error,omitempty"`
}

// Upload handles the /upload endpoint. Images go through the compression
// hook first; a failed compression still stores the original.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	f, ok := h.readFile(w, r)
	if !ok {
		return
	}

	opts, err := h.parseOptions(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := UploadResponse{OriginalSize: f.Size()}
	out := f
	if isImage(f.ContentType) {
		hook := compression.NewHook(opts,
			compression.WithAutoCompress(h.settings.AutoCompress),
			compression.WithCompressFunc(h.compress),
			compression.WithLogger(h.logger),
		)
		out = hook.CompressFile(r.Context(), f)
		if res := hook.Result(); res != nil {
			resp.Compressed = true
			resp.CompressionRatio = res.CompressionRatio
		}
		resp.CompressionError = hook.ErrorMessage()
	}

	progress := func(written, total int64) {
		h.logger.Debug("upload progress", "file", out.Name, "written", written, "total", total)
	}
	path, err := h.uploader.Upload(r.Context(), out.Name, out.ContentType, out.Data, progress)
	if err != nil {
		h.logger.Error("upload failed", "file", out.Name, "error", err)
		metrics.RecordUpload("error", resp.Compressed, len(out.Data))
		if errors.Is(err, storage.ErrEmptyName) {
			writeError(w, http.StatusBadRequest, "File name is empty")
			return
		}
		writeError(w, http.StatusInternalServerError, "Upload failed")
		return
	}
	metrics.RecordUpload("success", resp.Compressed, len(out.Data))

	resp.Path = path
	resp.Name = out.Name
	resp.ContentType = out.ContentType
	resp.StoredSize = out.Size()
	writeJSON(w, http.StatusCreated, resp)
}

// RecommendationResponse is the body returned by /recommendations
type RecommendationResponse struct {
	Recommendation   compression.Recommendation `json:"recommendation"`
	NeedsCompression bool                       `json:"needs_compression"`
}

// Recommendations handles the /recommendations endpoint
func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	q := r.URL.Query()
	size, err := strconv.ParseInt(q.Get("size"), 10, 64)
	if err != nil || size < 0 {
		writeError(w, http.StatusBadRequest, "size must be a non-negative byte count")
		return
	}
	maxSizeKB := 0
	if v := q.Get("max_size"); v != "" {
		maxSizeKB, err = strconv.Atoi(v)
		if err != nil || maxSizeKB <= 0 || maxSizeKB > compression.MaxSizeKBLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("max_size must be in [1, %d] KB", compression.MaxSizeKBLimit))
			return
		}
	}

	writeJSON(w, http.StatusOK, RecommendationResponse{
		Recommendation:   compression.Recommend(size),
		NeedsCompression: compression.NeedsCompression(size, maxSizeKB),
	})
}

// Health handles the /health endpoint for readiness and liveness checks
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// readFile pulls the "file" part out of a multipart request. On failure it
// has already written the response.
func (h *Handler) readFile(w http.ResponseWriter, r *http.Request) (compression.File, bool) {
	limit := int64(h.settings.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	if err := r.ParseMultipartForm(limit); err != nil {
		var tooBig *http.MaxBytesError
		switch {
		case errors.Is(err, http.ErrNotMultipart):
			writeError(w, http.StatusBadRequest, "Content-Type must be multipart/form-data")
		case errors.As(err, &tooBig), errors.Is(err, multipart.ErrMessageTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "Request too large")
		default:
			writeError(w, http.StatusBadRequest, "Malformed multipart body")
		}
		return compression.File{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return compression.File{}, false
	}
	defer file.Close()

	if header.Size > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "Request too large")
		return compression.File{}, false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Could not read file")
		return compression.File{}, false
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "File is empty")
		return compression.File{}, false
	}

	return compression.File{
		Name:        header.Filename,
		ContentType: detectContentType(header.Header.Get("Content-Type"), data),
		Data:        data,
		ModTime:     time.Now(),
	}, true
}

// parseOptions reads compression overrides from the query string. Unset
// fields stay zero except format and resampler, which take the server
// defaults.
func (h *Handler) parseOptions(q url.Values) (compression.Options, error) {
	opts := compression.Options{
		Format:    h.settings.Format,
		Resampler: h.settings.Resampler,
	}

	ints := []struct {
		key string
		max int
		dst *int
	}{
		{"max_size", compression.MaxSizeKBLimit, &opts.MaxSizeKB},
		{"max_width", compression.MaxImageWidth, &opts.MaxWidth},
		{"max_height", compression.MaxImageHeight, &opts.MaxHeight},
	}
	for _, p := range ints {
		v := q.Get(p.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > p.max {
			return opts, fmt.Errorf("%s must be an integer in [1, %d]", p.key, p.max)
		}
		*p.dst = n
	}

	if v := q.Get("quality"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 1 {
			return opts, errors.New("quality must be in (0, 1]")
		}
		opts.Quality = f
	}

	if v := q.Get("format"); v != "" {
		f, err := compression.ParseFormat(v)
		if err != nil {
			return opts, err
		}
		opts.Format = f
	}

	if v := q.Get("resampler"); v != "" {
		rs, err := compression.ParseResampler(v)
		if err != nil {
			return opts, err
		}
		opts.Resampler = rs
	}

	return opts, nil
}

// detectContentType trusts the bytes over the client's claim.
func detectContentType(claimed string, data []byte) string {
	if compression.IsHEIFMagic(data) {
		return heifContentType
	}
	sniffed := http.DetectContentType(data)
	if sniffed == "application/octet-stream" && claimed != "" {
		return claimed
	}
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = strings.TrimSpace(sniffed[:i])
	}
	return sniffed
}

func isImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, compression.ErrDecode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, worker.ErrPoolBusy), errors.Is(err, worker.ErrPoolStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func messageFor(status int) string {
	switch status {
	case http.StatusUnprocessableEntity:
		return compression.ErrDecode.Error()
	case http.StatusServiceUnavailable:
		return "Service busy, please try again"
	case http.StatusGatewayTimeout:
		return "Compression timed out"
	default:
		return compression.ErrEncode.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
