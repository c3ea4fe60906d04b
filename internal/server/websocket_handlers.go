package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/slscan/internal/codeword"
	"github.com/MeKo-Tech/slscan/internal/pipeline"
	"github.com/MeKo-Tech/slscan/internal/utils"
	"github.com/gorilla/websocket"
)

// Frame roles of a capture session.
const (
	rolePositive = "positive"
	roleInverse  = "inverse"
	roleMask     = "mask"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// CaptureMessage is sent by the client. A session uploads frames one by one
// and then requests a decode:
//
//	{"type":"frame","role":"positive","index":0,"image":"<base64 png>"}
//	{"type":"decode","gray_code":true}
//
// "reset" discards the uploaded frames.
type CaptureMessage struct {
	Type     string `json:"type"`
	Role     string `json:"role,omitempty"`
	Index    int    `json:"index"`
	Image    []byte `json:"image,omitempty"`
	GrayCode *bool  `json:"gray_code,omitempty"`
}

// CaptureReply is sent by the server after every message.
type CaptureReply struct {
	Type      string           `json:"type"` // "ack", "result" or "error"
	Role      string           `json:"role,omitempty"`
	Index     int              `json:"index,omitempty"`
	Positives int              `json:"positives"`
	Inverses  int              `json:"inverses"`
	HasMask   bool             `json:"has_mask"`
	Result    *pipeline.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorType string           `json:"error_type,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

// captureSession collects frames until a decode is requested.
type captureSession struct {
	positives map[int]*image.Gray
	inverses  map[int]*image.Gray
	mask      *image.Gray
}

func newCaptureSession() *captureSession {
	return &captureSession{
		positives: make(map[int]*image.Gray),
		inverses:  make(map[int]*image.Gray),
	}
}

func (cs *captureSession) add(role string, index int, img *image.Gray) error {
	if role != roleMask && (index < 0 || index >= codeword.MaxPatterns) {
		return fmt.Errorf("frame index %d out of range [0, %d)", index, codeword.MaxPatterns)
	}
	switch role {
	case rolePositive:
		cs.positives[index] = img
	case roleInverse:
		cs.inverses[index] = img
	case roleMask:
		cs.mask = img
	default:
		return fmt.Errorf("unknown frame role %q", role)
	}
	return nil
}

// ordered returns the frames of one role by index. Indices must be
// contiguous from zero.
func ordered(role string, frames map[int]*image.Gray) ([]*image.Gray, error) {
	out := make([]*image.Gray, len(frames))
	for i := range out {
		img, ok := frames[i]
		if !ok {
			return nil, fmt.Errorf("%s frame %d missing", role, i)
		}
		out[i] = img
	}
	return out, nil
}

func (cs *captureSession) reset() {
	clear(cs.positives)
	clear(cs.inverses)
	cs.mask = nil
}

func (cs *captureSession) reply(typ string) CaptureReply {
	return CaptureReply{
		Type:      typ,
		Positives: len(cs.positives),
		Inverses:  len(cs.inverses),
		HasMask:   cs.mask != nil,
	}
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.corsOrigin == "*" || origin == "" || origin == s.corsOrigin
		},
	}
}

// captureWebSocketHandler runs a capture session on a WebSocket connection.
func (s *Server) captureWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("Capture session started", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
	slog.Info("Capture session ended", "remote_addr", r.RemoteAddr)
}

// handleWebSocketConnection reads messages until the client goes away.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	conn.SetReadLimit(s.uploadLimit())
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	session := newCaptureSession()
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if messageType == websocket.TextMessage {
			s.handleCaptureMessage(ctx, conn, session, data)
		}
	}
}

// handleCaptureMessage applies one client message to the session and
// writes the reply.
func (s *Server) handleCaptureMessage(ctx context.Context, conn WebSocketConnWriter, session *captureSession, data []byte) {
	var msg CaptureMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.sendWebSocketError(conn, session, "invalid_request", fmt.Sprintf("Failed to parse message: %v", err))
		return
	}

	switch msg.Type {
	case "frame":
		s.handleFrame(conn, session, msg)
	case "decode":
		s.handleSessionDecode(ctx, conn, session, msg)
	case "reset":
		session.reset()
		s.sendWebSocketReply(conn, session.reply("ack"))
	default:
		s.sendWebSocketError(conn, session, "invalid_request", "Unsupported message type: "+msg.Type)
	}
}

func (s *Server) handleFrame(conn WebSocketConnWriter, session *captureSession, msg CaptureMessage) {
	if len(msg.Image) == 0 {
		s.sendWebSocketError(conn, session, "invalid_request", "No image data provided")
		return
	}
	img, _, err := utils.DecodeGray(bytes.NewReader(msg.Image))
	if err != nil {
		s.sendWebSocketError(conn, session, "invalid_image", fmt.Sprintf("Failed to decode image: %v", err))
		return
	}
	if err := session.add(msg.Role, msg.Index, img); err != nil {
		s.sendWebSocketError(conn, session, "invalid_request", err.Error())
		return
	}

	reply := session.reply("ack")
	reply.Role = msg.Role
	reply.Index = msg.Index
	s.sendWebSocketReply(conn, reply)
}

// handleSessionDecode decodes the collected frames and clears the session.
func (s *Server) handleSessionDecode(ctx context.Context, conn WebSocketConnWriter, session *captureSession, msg CaptureMessage) {
	positives, err := ordered(rolePositive, session.positives)
	if err != nil {
		s.sendWebSocketError(conn, session, "invalid_request", err.Error())
		return
	}
	inverses, err := ordered(roleInverse, session.inverses)
	if err != nil {
		s.sendWebSocketError(conn, session, "invalid_request", err.Error())
		return
	}
	if len(positives) == 0 {
		s.sendWebSocketError(conn, session, "invalid_request", "No frames uploaded")
		return
	}
	if len(positives) != len(inverses) {
		s.sendWebSocketError(conn, session, "invalid_request",
			fmt.Sprintf("positive and inverse frame counts differ: %d vs %d", len(positives), len(inverses)))
		return
	}
	s.decodeSession(ctx, conn, session, msg, positives, inverses)
}

func (s *Server) decodeSession(ctx context.Context, conn WebSocketConnWriter, session *captureSession,
	msg CaptureMessage, positives, inverses []*image.Gray,
) {
	gray := s.pipelines.DefaultGrayCode()
	if msg.GrayCode != nil {
		gray = *msg.GrayCode
	}
	pl, err := s.pipelines.Get(gray)
	if err != nil {
		s.sendWebSocketError(conn, session, "processing_error", fmt.Sprintf("Failed to create pipeline: %v", err))
		return
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := pl.ProcessImages(ctx, positives, inverses, session.mask)
	duration := time.Since(start)
	if err != nil {
		decodeRequestsTotal.WithLabelValues(sourceWebSocket, "error").Inc()
		s.sendWebSocketError(conn, session, "processing_error", fmt.Sprintf("Decoding failed: %v", err))
		return
	}
	recordDecode(sourceWebSocket, res, duration)

	reply := session.reply("result")
	reply.Result = res
	reply.RequestID = strconv.FormatInt(start.UnixNano(), 10)
	session.reset()
	s.sendWebSocketReply(conn, reply)
}

// sendWebSocketReply sends a reply message over WebSocket.
func (s *Server) sendWebSocketReply(conn WebSocketConnWriter, reply CaptureReply) {
	data, err := json.Marshal(reply)
	if err != nil {
		slog.Error("Failed to marshal WebSocket reply", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// sendWebSocketError sends an error reply; the session keeps its frames.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, session *captureSession, errorType, message string) {
	reply := session.reply("error")
	reply.Error = message
	reply.ErrorType = errorType
	s.sendWebSocketReply(conn, reply)
}
