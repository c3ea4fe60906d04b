package server

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MeKo-Tech/slscan/internal/pipeline"
	"github.com/MeKo-Tech/slscan/internal/testutil"
	"github.com/MeKo-Tech/slscan/internal/utils"
	"github.com/stretchr/testify/require"
)

// mockPipeline records calls and returns a canned result.
type mockPipeline struct {
	mu        sync.Mutex
	result    *pipeline.Result
	err       error
	calls     int
	positives int
	hasMask   bool
}

func (m *mockPipeline) ProcessImages(_ context.Context, positives, _ []*image.Gray, mask *image.Gray,
) (*pipeline.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.positives = len(positives)
	m.hasMask = mask != nil
	return m.result, m.err
}

func (m *mockPipeline) Info() map[string]interface{} {
	return map[string]interface{}{"mock": true}
}

func (m *mockPipeline) Close() error { return nil }

func testConfig() Config {
	return Config{
		CORSOrigin:     "*",
		MaxUploadMB:    10,
		TimeoutSec:     30,
		PipelineConfig: pipeline.DefaultConfig(),
	}
}

// newTestServer returns a server backed by real pipelines.
func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// newMockServer returns a server whose pipelines are all m.
func newMockServer(t *testing.T, m *mockPipeline) *Server {
	t.Helper()
	s, err := newServer(testConfig(), func(pipeline.Config) (pipelineInterface, error) { return m, nil })
	require.NoError(t, err)
	return s
}

func newMux(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

func generateCapture(t *testing.T, mutate func(*testutil.CaptureConfig)) *testutil.Capture {
	t.Helper()
	cfg := testutil.DefaultCaptureConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := testutil.GenerateCapture(cfg)
	require.NoError(t, err)
	return c
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, utils.EncodePNG(&buf, img))
	return buf.Bytes()
}

// formFile is one multipart file part.
type formFile struct {
	field string
	name  string
	data  []byte
}

// captureFiles returns the positive, inverse and optional mask parts of c in
// upload order.
func captureFiles(t *testing.T, c *testutil.Capture, withMask bool) []formFile {
	t.Helper()
	var files []formFile
	for i, img := range c.Positives {
		files = append(files, formFile{"positive", fmt.Sprintf("pattern_%02d.png", i), encodePNG(t, img)})
	}
	for i, img := range c.Inverses {
		files = append(files, formFile{"inverse", fmt.Sprintf("inverse_%02d.png", i), encodePNG(t, img)})
	}
	if withMask {
		files = append(files, formFile{"mask", "mask.png", encodePNG(t, c.Mask)})
	}
	return files
}

// newDecodeRequest builds a multipart POST /decode request.
func newDecodeRequest(t *testing.T, files []formFile, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.data)
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/decode", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}
