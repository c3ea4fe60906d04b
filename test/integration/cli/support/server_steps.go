package support

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/slscan/internal/pipeline"
	"github.com/MeKo-Tech/slscan/internal/server"
	"github.com/MeKo-Tech/slscan/internal/testutil"
	"github.com/cucumber/godog"
)

// startServer runs the decode server in-process on an httptest listener.
func (testCtx *TestContext) startServer(cfg server.Config) error {
	s, err := server.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	testCtx.Server = httptest.NewServer(mux)
	return nil
}

// StopServer stops the in-process server if it is running.
func (testCtx *TestContext) StopServer() {
	if testCtx.Server != nil {
		testCtx.Server.Close()
		testCtx.Server = nil
	}
}

func defaultServerConfig() server.Config {
	return server.Config{
		MaxUploadMB:    10,
		TimeoutSec:     30,
		PipelineConfig: pipeline.DefaultConfig(),
	}
}

func (testCtx *TestContext) theDecodeServerIsRunning() error {
	return testCtx.startServer(defaultServerConfig())
}

func (testCtx *TestContext) theDecodeServerIsRunningWithRequestsPerMinute(limit int) error {
	cfg := defaultServerConfig()
	cfg.RateLimit = server.RateLimitConfig{Enabled: true, RequestsPerMinute: limit}
	return testCtx.startServer(cfg)
}

func (testCtx *TestContext) do(req *http.Request) error {
	if testCtx.Server == nil {
		return errors.New("server is not running")
	}
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = map[string]string{}
	for k := range resp.Header {
		testCtx.LastHTTPHeaders[k] = resp.Header.Get(k)
	}
	return nil
}

func (testCtx *TestContext) iGET(path string) error {
	if testCtx.Server == nil {
		return errors.New("server is not running")
	}
	req, err := http.NewRequest(http.MethodGet, testCtx.Server.URL+path, nil)
	if err != nil {
		return err
	}
	return testCtx.do(req)
}

// iUploadTheCapture posts every image of a capture to /decode.
func (testCtx *TestContext) iUploadTheCapture(name, format string) error {
	dir, ok := testCtx.Captures[name]
	if !ok {
		return fmt.Errorf("unknown capture %s", name)
	}
	if testCtx.Server == nil {
		return errors.New("server is not running")
	}
	cfg, err := testutil.ReadCaptureConfig(dir)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	attach := func(field, file string) error {
		data, err := os.ReadFile(filepath.Join(dir, file)) //nolint:gosec // G304: scenario temp path
		if err != nil {
			return err
		}
		w, err := mw.CreateFormFile(field, file)
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}
	for i := range cfg.Bits {
		if err := attach("positive", fmt.Sprintf(testutil.PatternFileFormat, i)); err != nil {
			return err
		}
		if err := attach("inverse", fmt.Sprintf(testutil.InverseFileFormat, i)); err != nil {
			return err
		}
	}
	if err := attach("mask", testutil.MaskFileName); err != nil {
		return err
	}
	_ = mw.WriteField("format", format)
	_ = mw.WriteField("gray_code", fmt.Sprint(cfg.GrayCode))
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, testCtx.Server.URL+"/decode", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return testCtx.do(req)
}

func (testCtx *TestContext) theResponseStatusShouldBe(status int) error {
	if testCtx.LastHTTPStatusCode != status {
		return fmt.Errorf("expected status %d, got %d\nBody: %s",
			status, testCtx.LastHTTPStatusCode, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseFieldShouldBe(field, expected string) error {
	var doc map[string]any
	if err := json.Unmarshal([]byte(testCtx.LastHTTPResponse), &doc); err != nil {
		return fmt.Errorf("response is not JSON: %w\nBody: %s", err, testCtx.LastHTTPResponse)
	}
	return compareField(doc, field, expected)
}

func (testCtx *TestContext) theResponseShouldContain(text string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, text) {
		return fmt.Errorf("response does not contain '%s'\nBody: %s", text, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseHeaderShouldBe(header, expected string) error {
	if actual := testCtx.LastHTTPHeaders[http.CanonicalHeaderKey(header)]; actual != expected {
		return fmt.Errorf("header %s is %q, expected %q", header, actual, expected)
	}
	return nil
}

// RegisterServerSteps registers decode server steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the decode server is running$`, testCtx.theDecodeServerIsRunning)
	sc.Step(`^the decode server is running with a limit of (\d+) requests? per minute$`,
		testCtx.theDecodeServerIsRunningWithRequestsPerMinute)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I upload the capture "([^"]*)" with format "([^"]*)"$`, testCtx.iUploadTheCapture)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseFieldShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
}
