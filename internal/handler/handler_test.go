package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/harliandi/go-kycimage/internal/storage"
	"github.com/harliandi/go-kycimage/internal/worker"
	"github.com/harliandi/go-kycimage/pkg/compression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memUploader struct {
	mu    sync.Mutex
	name  string
	mime  string
	data  []byte
	calls int
	err   error
}

func (u *memUploader) Upload(ctx context.Context, name, mimeType string, data []byte, onProgress storage.ProgressFunc) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	if u.err != nil {
		return "", u.err
	}
	u.name, u.mime, u.data = name, mimeType, data
	if onProgress != nil {
		onProgress(int64(len(data)), int64(len(data)))
	}
	return "stored/" + name, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHandler(compress compression.CompressFunc, up storage.Uploader) *Handler {
	if compress == nil {
		compress = compression.Compress
	}
	if up == nil {
		up = &memUploader{}
	}
	return New(compress, up, Settings{MaxUploadMB: 10, AutoCompress: true}, testLogger())
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 255 / w), uint8(y * 255 / h), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, target, filename string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestNew_Defaults(t *testing.T) {
	h := New(compression.Compress, &memUploader{}, Settings{}, nil)
	require.NotNil(t, h)
	assert.Equal(t, 20, h.settings.MaxUploadMB)
	assert.Equal(t, compression.FormatJPEG, h.settings.Format)
	assert.Equal(t, compression.ResampleCatmullRom, h.settings.Resampler)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := newTestHandler(nil, nil)

	tests := []struct {
		name    string
		method  string
		handler http.HandlerFunc
	}{
		{"compress GET", http.MethodGet, h.Compress},
		{"upload GET", http.MethodGet, h.Upload},
		{"recommendations POST", http.MethodPost, h.Recommendations},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(tt.method, "/", nil))
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		})
	}
}

func TestHandler_Compress_NoFile(t *testing.T) {
	h := newTestHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/compress", nil)
	w := httptest.NewRecorder()
	h.Compress(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Compress_NotMultipart(t *testing.T) {
	h := newTestHandler(nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/compress", strings.NewReader("test"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.Compress(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Content-Type must be multipart/form-data", decodeError(t, w))
}

func TestHandler_Compress_EmptyFile(t *testing.T) {
	h := newTestHandler(nil, nil)

	w := httptest.NewRecorder()
	h.Compress(w, multipartRequest(t, "/compress", "empty.jpg", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Compress_NotAnImage(t *testing.T) {
	h := newTestHandler(nil, nil)

	w := httptest.NewRecorder()
	h.Compress(w, multipartRequest(t, "/compress", "notes.txt", []byte("just some text")))

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestHandler_Compress_Success(t *testing.T) {
	h := newTestHandler(nil, nil)
	src := jpegBytes(t, 1600, 1200)

	w := httptest.NewRecorder()
	h.Compress(w, multipartRequest(t, "/compress?max_width=800&max_height=800", "id-card.jpg", src))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, "1600x1200", w.Header().Get("X-Original-Dimensions"))
	assert.Equal(t, "800x600", w.Header().Get("X-Compressed-Dimensions"))
	assert.Equal(t, "true", w.Header().Get("X-Within-Budget"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "id-card_compressed.jpg")

	cfg, format, err := image.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 600, cfg.Height)
}

func TestHandler_Compress_WebP(t *testing.T) {
	h := newTestHandler(nil, nil)

	w := httptest.NewRecorder()
	h.Compress(w, multipartRequest(t, "/compress?format=webp&resampler=bilinear", "selfie.jpg", jpegBytes(t, 300, 200)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "image/webp", w.Header().Get("Content-Type"))
}

func TestHandler_Compress_InvalidOptions(t *testing.T) {
	h := newTestHandler(nil, nil)
	src := jpegBytes(t, 64, 64)

	queries := []string{
		"max_size=0",
		"max_size=102401",
		"max_size=9223372036854775807",
		"max_width=-5",
		"max_width=20001",
		"max_height=abc",
		"quality=1.5",
		"quality=0",
		"format=tiff",
		"resampler=nearest",
	}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Compress(w, multipartRequest(t, "/compress?"+q, "a.jpg", src))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandler_Compress_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"decode", compression.ErrDecode, http.StatusUnprocessableEntity},
		{"wrapped decode", errors.Join(errors.New("jpeg"), compression.ErrDecode), http.StatusUnprocessableEntity},
		{"pool busy", worker.ErrPoolBusy, http.StatusServiceUnavailable},
		{"pool stopped", worker.ErrPoolStopped, http.StatusServiceUnavailable},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"encode", compression.ErrEncode, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fail := func(ctx context.Context, data []byte, opts compression.Options) (*compression.Result, error) {
				return nil, tt.err
			}
			h := newTestHandler(fail, nil)

			w := httptest.NewRecorder()
			h.Compress(w, multipartRequest(t, "/compress", "a.jpg", jpegBytes(t, 32, 32)))

			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestHandler_Compress_CorruptImage(t *testing.T) {
	h := newTestHandler(nil, nil)

	// Valid JPEG signature, garbage after it.
	data := append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0x42}, 64)...)
	w := httptest.NewRecorder()
	h.Compress(w, multipartRequest(t, "/compress", "broken.jpg", data))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "failed to load image", decodeError(t, w))
}

func TestHandler_Compress_TooLarge(t *testing.T) {
	h := New(compression.Compress, &memUploader{}, Settings{MaxUploadMB: 1}, testLogger())

	w := httptest.NewRecorder()
	h.Compress(w, multipartRequest(t, "/compress", "big.jpg", bytes.Repeat([]byte{0xff}, 3<<20)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestHandler_Compress_MalformedMultipart(t *testing.T) {
	h := newTestHandler(nil, nil)

	// The part is never terminated by a closing boundary.
	body := "--xyz\r\n" +
		"Content-Disposition: form-data; name=\"file\"; filename=\"a.jpg\"\r\n" +
		"Content-Type: image/jpeg\r\n\r\n" +
		"\xff\xd8\xff\xe0truncated"
	req := httptest.NewRequest(http.MethodPost, "/compress", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	w := httptest.NewRecorder()
	h.Compress(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Compress_MaxSizeAtLimit(t *testing.T) {
	h := newTestHandler(nil, nil)

	w := httptest.NewRecorder()
	h.Compress(w, multipartRequest(t, "/compress?max_size=102400", "a.jpg", jpegBytes(t, 64, 64)))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "true", w.Header().Get("X-Within-Budget"))
}

func TestHandler_Upload_CompressesAndStores(t *testing.T) {
	up := &memUploader{}
	h := newTestHandler(nil, up)

	w := httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/upload?max_width=400&max_height=400", "passport.jpg", jpegBytes(t, 1200, 800)))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Compressed)
	assert.Empty(t, resp.CompressionError)
	assert.Equal(t, "passport_compressed.jpg", resp.Name)
	assert.Equal(t, "stored/passport_compressed.jpg", resp.Path)
	assert.Equal(t, "image/jpeg", resp.ContentType)
	assert.Equal(t, int64(len(up.data)), resp.StoredSize)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(up.data))
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 266, cfg.Height)
}

func TestHandler_Upload_FallsBackToOriginal(t *testing.T) {
	up := &memUploader{}
	h := newTestHandler(nil, up)

	data := append([]byte{0xff, 0xd8, 0xff, 0xe0}, bytes.Repeat([]byte{0x42}, 64)...)
	w := httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/upload", "broken.jpg", data))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Compressed)
	assert.Contains(t, resp.CompressionError, "failed to load image")
	assert.Equal(t, "broken.jpg", resp.Name)
	assert.Equal(t, data, up.data)
}

func TestHandler_Upload_NonImagePassesThrough(t *testing.T) {
	up := &memUploader{}
	h := newTestHandler(func(ctx context.Context, data []byte, opts compression.Options) (*compression.Result, error) {
		t.Fatal("compress should not be called for non-images")
		return nil, nil
	}, up)

	data := []byte("%PDF-1.4\n%fake document\n")
	w := httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/upload", "statement.pdf", data))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "statement.pdf", up.name)
	assert.Equal(t, "application/pdf", up.mime)
}

func TestHandler_Upload_StorageFailure(t *testing.T) {
	up := &memUploader{err: errors.New("disk full")}
	h := newTestHandler(nil, up)

	w := httptest.NewRecorder()
	h.Upload(w, multipartRequest(t, "/upload", "a.jpg", jpegBytes(t, 32, 32)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Upload failed", decodeError(t, w))
}

func TestHandler_Recommendations(t *testing.T) {
	h := newTestHandler(nil, nil)

	tests := []struct {
		name      string
		query     string
		wantMaxKB int
		wantNeeds bool
	}{
		{"small", "size=204800", 1000, false},
		{"five megabytes", "size=5242880", 500, true},
		{"custom threshold", "size=204800&max_size=100", 1000, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Recommendations(w, httptest.NewRequest(http.MethodGet, "/recommendations?"+tt.query, nil))

			require.Equal(t, http.StatusOK, w.Code)
			var resp RecommendationResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantMaxKB, resp.Recommendation.MaxSizeKB)
			assert.Equal(t, tt.wantNeeds, resp.NeedsCompression)
		})
	}
}

func TestHandler_Recommendations_BadInput(t *testing.T) {
	h := newTestHandler(nil, nil)

	for _, q := range []string{"", "size=abc", "size=-1", "size=10&max_size=0", "size=10&max_size=9223372036854775807"} {
		t.Run(q, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.Recommendations(w, httptest.NewRequest(http.MethodGet, "/recommendations?"+q, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandler_Health(t *testing.T) {
	h := newTestHandler(nil, nil)

	w := httptest.NewRecorder()
	h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name    string
		claimed string
		data    []byte
		want    string
	}{
		{"jpeg sniffed over claim", "application/pdf", []byte{0xff, 0xd8, 0xff, 0xe0, 0, 0}, "image/jpeg"},
		{"heif magic", "", []byte("\x00\x00\x00\x18ftypheic\x00\x00\x00\x00"), "image/heic"},
		{"unknown keeps claim", "image/x-custom", []byte{0x01, 0x02, 0x03}, "image/x-custom"},
		{"text drops charset", "", []byte("hello"), "text/plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detectContentType(tt.claimed, tt.data))
		})
	}
}
