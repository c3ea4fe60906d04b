package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MeKo-Tech/slscan/internal/capture"
	"github.com/MeKo-Tech/slscan/internal/decoder"
	"github.com/MeKo-Tech/slscan/internal/fringe"
	"github.com/MeKo-Tech/slscan/internal/pipeline"
	"github.com/MeKo-Tech/slscan/internal/testutil"
	"github.com/MeKo-Tech/slscan/internal/utils"
	"github.com/MeKo-Tech/slscan/internal/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) DecodeResponse {
	t.Helper()
	var resp DecodeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestHealthHandler(t *testing.T) {
	s := newTestServer(t, testConfig())
	mux := newMux(s)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, version.Version, resp.Version)
	assert.NotEmpty(t, resp.Time)
	assert.Positive(t, resp.Memory.Goroutines)
	assert.Contains(t, resp.Pipelines, "gray")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDecodeHandler_FullMaskJSON(t *testing.T) {
	s := newTestServer(t, testConfig())
	c := generateCapture(t, func(cfg *testutil.CaptureConfig) { cfg.Mask = testutil.MaskFull })

	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, newDecodeRequest(t, captureFiles(t, c, false), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeJSON(t, rec)
	require.True(t, resp.Success)
	res := resp.Result
	require.NotNil(t, res)
	w, h := c.Config.Width, c.Config.Height
	assert.Equal(t, w, res.Width)
	assert.Equal(t, h, res.Height)
	assert.Equal(t, 6, res.Patterns)
	assert.True(t, res.GrayCode)
	assert.Equal(t, capture.MaskFull, res.MaskSource)
	assert.Equal(t, w*h, res.Decode.DecodedPixels)
	require.NotNil(t, res.Fringe)
	assert.Equal(t, (w-1)*h, res.Fringe.Transitions)
	assert.Equal(t, 126, res.Fringe.MaxLevel)
}

func TestDecodeHandler_MaskAndBinaryOverride(t *testing.T) {
	s := newTestServer(t, testConfig())
	c := generateCapture(t, func(cfg *testutil.CaptureConfig) {
		cfg.GrayCode = false
		cfg.Bits = 4
	})

	req := newDecodeRequest(t, captureFiles(t, c, true), map[string]string{"gray_code": "false"})
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decodeJSON(t, rec).Result
	require.NotNil(t, res)
	assert.False(t, res.GrayCode)
	assert.Equal(t, capture.MaskFromFile, res.MaskSource)

	valid := 0
	for _, v := range c.Mask.Pix {
		if v != 0 {
			valid++
		}
	}
	assert.Equal(t, valid, res.Decode.ValidPixels)
	assert.Contains(t, s.pipelines.Info(), "binary")
}

func TestDecodeHandler_Formats(t *testing.T) {
	s := newTestServer(t, testConfig())
	mux := newMux(s)
	c := generateCapture(t, func(cfg *testutil.CaptureConfig) { cfg.Bits = 4 })

	run := func(format string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, newDecodeRequest(t, captureFiles(t, c, true), map[string]string{"format": format}))
		return rec
	}

	for _, format := range []string{"png", "overlay"} {
		t.Run(format, func(t *testing.T) {
			rec := run(format)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
			img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, c.Config.Width, c.Config.Height), img.Bounds())
		})
	}

	t.Run("text", func(t *testing.T) {
		rec := run("text")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Transitions:")
	})

	t.Run("yaml", func(t *testing.T) {
		rec := run("yaml")
		require.Equal(t, http.StatusOK, rec.Code)
		var res pipeline.Result
		require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &res))
		assert.Equal(t, c.Config.Width, res.Width)
		assert.Equal(t, 4, res.Patterns)
	})

	t.Run("unsupported", func(t *testing.T) {
		rec := run("bmp")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decodeJSON(t, rec).Error, "Unsupported format")
	})
}

func TestDecodeHandler_OverlayWithoutFringes(t *testing.T) {
	cfg := testConfig()
	cfg.PipelineConfig.ExtractFringe = false
	s := newTestServer(t, cfg)
	c := generateCapture(t, func(cfg *testutil.CaptureConfig) { cfg.Bits = 3 })

	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, newDecodeRequest(t, captureFiles(t, c, false), map[string]string{"format": "overlay"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeHandler_BadRequests(t *testing.T) {
	s := newTestServer(t, testConfig())
	mux := newMux(s)
	c := generateCapture(t, func(cfg *testutil.CaptureConfig) { cfg.Bits = 2 })
	files := captureFiles(t, c, false)
	small := encodePNG(t, image.NewGray(image.Rect(0, 0, 4, 4)))

	tiny := func(field string, i int) formFile {
		return formFile{field, fmt.Sprintf("%s_%02d.png", field, i), small}
	}
	var tooMany []formFile
	for i := range 16 {
		tooMany = append(tooMany, tiny("positive", i), tiny("inverse", i))
	}

	tests := []struct {
		name    string
		files   []formFile
		fields  map[string]string
		message string
	}{
		{"no positives", files[2:], nil, "No positive pattern images"},
		{"missing inverses", files[:2], nil, "counts differ"},
		{"size mismatch", append(append([]formFile{}, files[:3]...), tiny("inverse", 1)), nil, "differ in size"},
		{"invalid image", []formFile{{"positive", "p.png", []byte("not an image")}, files[2]}, nil, "invalid image"},
		{"bad gray_code", files, map[string]string{"gray_code": "maybe"}, "Invalid gray_code"},
		{"too many patterns", tooMany, nil, "16-bit codeword"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, newDecodeRequest(t, tt.files, tt.fields))
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			resp := decodeJSON(t, rec)
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.message)
		})
	}

	t.Run("not multipart", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/decode", bytes.NewReader([]byte("{}")))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/decode", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestDecodeHandler_UploadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadMB = 1
	s := newTestServer(t, cfg)

	big := formFile{"positive", "big.png", bytes.Repeat([]byte{0x42}, 2*1024*1024)}
	rec := httptest.NewRecorder()
	newMux(s).ServeHTTP(rec, newDecodeRequest(t, []formFile{big}, nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDecodeHandler_Mock(t *testing.T) {
	c := generateCapture(t, func(cfg *testutil.CaptureConfig) { cfg.Bits = 2 })

	t.Run("passes frames and mask", func(t *testing.T) {
		m := &mockPipeline{result: &pipeline.Result{Width: 2, Height: 1, Patterns: 2}}
		rec := httptest.NewRecorder()
		newMux(newMockServer(t, m)).ServeHTTP(rec, newDecodeRequest(t, captureFiles(t, c, true), nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, m.calls)
		assert.Equal(t, 2, m.positives)
		assert.True(t, m.hasMask)
		assert.Equal(t, 2, decodeJSON(t, rec).Result.Width)
	})

	tests := []struct {
		err    error
		status int
	}{
		{&decoder.PreconditionError{Op: "validate", Err: decoder.ErrDimensionMismatch}, http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			m := &mockPipeline{err: tt.err}
			rec := httptest.NewRecorder()
			newMux(newMockServer(t, m)).ServeHTTP(rec, newDecodeRequest(t, captureFiles(t, c, false), nil))
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decodeJSON(t, rec).Error, "Decoding failed")
		})
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("wrap: %w", &decoder.PreconditionError{Op: "validate", Err: decoder.ErrNoPatterns}), http.StatusBadRequest},
		{&fringe.PreconditionError{Op: "validate", Err: fringe.ErrNilImage}, http.StatusBadRequest},
		{&utils.ImageProcessingError{Operation: "validate", Err: errors.New("too large")}, http.StatusBadRequest},
		{capture.ErrFileCount, http.StatusBadRequest},
		{capture.ErrSize, http.StatusBadRequest},
		{capture.ErrNoPatternFiles, http.StatusBadRequest},
		{fmt.Errorf("%w: 9 > 8", pipeline.ErrTooManyPatterns), http.StatusBadRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.status, statusForError(tt.err), tt.err.Error())
	}
}

func TestNewServer_InvalidPipeline(t *testing.T) {
	cfg := testConfig()
	cfg.PipelineConfig.MaxPatterns = 99
	_, err := NewServer(cfg)
	assert.Error(t, err)
}

func TestMetricsEndpoint(t *testing.T) {
	m := &mockPipeline{result: &pipeline.Result{Width: 1, Height: 1}}
	s := newMockServer(t, m)
	mux := newMux(s)
	c := generateCapture(t, func(cfg *testutil.CaptureConfig) { cfg.Bits = 1 })

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, newDecodeRequest(t, captureFiles(t, c, false), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "slscan_decode_requests_total")
	assert.Contains(t, body, "slscan_http_requests_total")
	assert.Contains(t, body, "slscan_upload_size_bytes")
}
