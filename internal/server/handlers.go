package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/slscan/internal/capture"
	"github.com/MeKo-Tech/slscan/internal/common"
	"github.com/MeKo-Tech/slscan/internal/decoder"
	"github.com/MeKo-Tech/slscan/internal/fringe"
	"github.com/MeKo-Tech/slscan/internal/pipeline"
	"github.com/MeKo-Tech/slscan/internal/utils"
	"github.com/MeKo-Tech/slscan/internal/version"
)

// Output formats of POST /decode.
const (
	formatJSON    = "json"
	formatYAML    = "yaml"
	formatText    = "text"
	formatPNG     = "png"
	formatOverlay = "overlay"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Version:   version.Version,
		Time:      time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Memory:    common.GetMemStats(),
		Pipelines: s.pipelines.Info(),
	}
	s.writeJSON(w, http.StatusOK, response)
}

// decodeRequest is a parsed POST /decode upload.
type decodeRequest struct {
	positives []*image.Gray
	inverses  []*image.Gray
	mask      *image.Gray
	grayCode  bool
	format    string
}

// decodeHandler decodes an uploaded pattern stack.
func (s *Server) decodeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, ok := s.parseDecodeRequest(w, r)
	if !ok {
		decodeRequestsTotal.WithLabelValues(sourceHTTP, "error").Inc()
		return
	}

	pl, err := s.pipelines.Get(req.grayCode)
	if err != nil {
		decodeRequestsTotal.WithLabelValues(sourceHTTP, "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Failed to create pipeline: %v", err), http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := pl.ProcessImages(ctx, req.positives, req.inverses, req.mask)
	duration := time.Since(start)
	if err != nil {
		decodeRequestsTotal.WithLabelValues(sourceHTTP, "error").Inc()
		s.writeErrorResponse(w, fmt.Sprintf("Decoding failed: %v", err), statusForError(err))
		return
	}
	recordDecode(sourceHTTP, res, duration)

	s.writeDecodeResponse(w, req.format, res)
}

// parseDecodeRequest reads the multipart form. On failure it writes the
// error response and returns false.
func (s *Server) parseDecodeRequest(w http.ResponseWriter, r *http.Request) (*decodeRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.uploadLimit())
	if err := r.ParseMultipartForm(s.uploadLimit()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			s.writeErrorResponse(w, "Upload too large", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", http.StatusBadRequest)
		}
		return nil, false
	}

	req := &decodeRequest{grayCode: s.pipelines.DefaultGrayCode()}
	req.format = r.FormValue("format")
	if req.format == "" {
		req.format = r.URL.Query().Get("format")
	}
	if req.format == "" {
		req.format = formatJSON
	}
	switch req.format {
	case formatJSON, formatYAML, formatText, formatPNG, formatOverlay:
	default:
		s.writeErrorResponse(w, "Unsupported format: "+req.format, http.StatusBadRequest)
		return nil, false
	}

	if v := r.FormValue("gray_code"); v != "" {
		gray, err := strconv.ParseBool(v)
		if err != nil {
			s.writeErrorResponse(w, "Invalid gray_code value: "+v, http.StatusBadRequest)
			return nil, false
		}
		req.grayCode = gray
	}

	files := r.MultipartForm.File
	if len(files["positive"]) == 0 {
		s.writeErrorResponse(w, "No positive pattern images provided", http.StatusBadRequest)
		return nil, false
	}

	var err error
	if req.positives, err = readUploads(files["positive"]); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if req.inverses, err = readUploads(files["inverse"]); err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	if masks := files["mask"]; len(masks) > 0 {
		imgs, err := readUploads(masks[:1])
		if err != nil {
			s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
			return nil, false
		}
		req.mask = imgs[0]
	}
	return req, true
}

// readUploads decodes uploaded files in form order.
func readUploads(headers []*multipart.FileHeader) ([]*image.Gray, error) {
	out := make([]*image.Gray, 0, len(headers))
	for _, h := range headers {
		uploadSizeBytes.Observe(float64(h.Size))
		f, err := h.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", h.Filename, err)
		}
		img, _, err := utils.DecodeGray(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("invalid image %s: %w", h.Filename, err)
		}
		out = append(out, img)
	}
	return out, nil
}

func (s *Server) writeDecodeResponse(w http.ResponseWriter, format string, res *pipeline.Result) {
	switch format {
	case formatPNG:
		s.writePNG(w, pipeline.RenderCodewords(res.Codewords))
	case formatOverlay:
		if res.Fringes == nil {
			s.writeErrorResponse(w, "Fringe extraction is disabled", http.StatusBadRequest)
			return
		}
		s.writePNG(w, pipeline.RenderFringeOverlay(res.Texture, res.Fringes.Points, res.Fringe.MaxLevel))
	case formatText:
		s.writeFormatted(w, "text/plain; charset=utf-8", pipeline.ToText, res)
	case formatYAML:
		s.writeFormatted(w, "application/yaml", pipeline.ToYAML, res)
	default:
		s.writeJSON(w, http.StatusOK, DecodeResponse{Success: true, Result: res})
	}
}

func (s *Server) writePNG(w http.ResponseWriter, img image.Image) {
	if img == nil {
		s.writeErrorResponse(w, "Rendering failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	if err := utils.EncodePNG(w, img); err != nil {
		slog.Error("Failed to encode PNG response", "error", err)
	}
}

func (s *Server) writeFormatted(w http.ResponseWriter, contentType string,
	format func(*pipeline.Result) (string, error), res *pipeline.Result,
) {
	body, err := format(res)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("Formatting failed: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write([]byte(body)); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}

// statusForError maps pipeline errors to HTTP status codes. Invalid input
// yields 400.
func statusForError(err error) int {
	var (
		decodeErr *decoder.PreconditionError
		fringeErr *fringe.PreconditionError
		imageErr  *utils.ImageProcessingError
	)
	switch {
	case errors.As(err, &decodeErr), errors.As(err, &fringeErr), errors.As(err, &imageErr),
		errors.Is(err, capture.ErrNoPatternFiles),
		errors.Is(err, capture.ErrFileCount),
		errors.Is(err, capture.ErrSize),
		errors.Is(err, pipeline.ErrTooManyPatterns):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, DecodeResponse{Success: false, Error: message})
}
