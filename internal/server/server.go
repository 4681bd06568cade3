package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiolibrelab/voicenote/internal/audio"
	"github.com/audiolibrelab/voicenote/internal/config"
	"github.com/audiolibrelab/voicenote/internal/packager"
	"github.com/audiolibrelab/voicenote/internal/service"
	"github.com/audiolibrelab/voicenote/internal/transcode"
	"github.com/audiolibrelab/voicenote/internal/upload"
)

// Server exposes the voice note service over HTTP
type Server struct {
	service    service.Service
	configFile string
	port       string
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	service.Status
	Message       string `json:"message,omitempty"`
	ActiveProfile string `json:"active_profile"`
}

// SendRequest is the body of POST /send
type SendRequest struct {
	ConversationID string `json:"conversation_id"`
	Caption        string `json:"caption"`
}

// New creates a new web server instance
func New(svc service.Service, configFile, port string) *Server {
	return &Server{service: svc, configFile: configFile, port: port}
}

// Handler returns the routed API
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(requestLogger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/status", s.handleStatus)
	r.Get("/formats", s.handleFormats)
	r.Route("/recording", func(r chi.Router) {
		r.Post("/start", s.handleStartRecording)
		r.Post("/stop", s.handleStopRecording)
		r.Post("/cancel", s.handleCancelRecording)
	})
	r.Route("/send", func(r chi.Router) {
		r.Post("/", s.handleSend)
		r.Post("/file", s.handleSendFile)
	})
	r.Post("/engine/warmup", s.handleWarmUp)
	r.Route("/profiles", func(r chi.Router) {
		r.Get("/", s.handleProfiles)
		r.Post("/select", s.handleSelectProfile)
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         ":" + s.port,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	localIP := getLocalIP()
	slog.Info("Starting voicenote server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// handleStatus returns the recorder, pending recording and engine state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.service.GetStatus()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:        status,
		Message:       generateStatusMessage(status),
		ActiveProfile: s.service.GetConfig().Profile,
	})
}

func (s *Server) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Formats())
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.service.StartRecording(r.Context()); err != nil {
		s.sendServiceError(w, err, "operation", "start_recording")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Recording started",
	})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.StopRecording()
	if err != nil {
		s.sendServiceError(w, err, "operation", "stop_recording")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":             true,
		"message":             "Recording stopped",
		"file_name":           rec.FileName,
		"mime_type":           rec.MimeType,
		"byte_size":           len(rec.Data),
		"requires_conversion": audio.RequiresConversion(rec.MimeType),
	})
}

func (s *Server) handleCancelRecording(w http.ResponseWriter, r *http.Request) {
	if err := s.service.CancelRecording(); err != nil {
		s.sendServiceError(w, err, "operation", "cancel_recording")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Recording discarded",
	})
}

// handleSend sends the pending recording
func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid JSON body", "operation", "send")
		return
	}
	if req.ConversationID == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "conversation_id is required", "operation", "send")
		return
	}

	res, err := s.service.SendPending(r.Context(), req.ConversationID, req.Caption)
	if err != nil {
		s.sendServiceError(w, err, "operation", "send", "conversation", req.ConversationID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  res,
	})
}

// handleSendFile sends an uploaded audio file (multipart field "file") as a voice note
func (s *Server) handleSendFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, packager.MaxPayloadSize+1<<20)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		s.sendErrorResponse(w, http.StatusRequestEntityTooLarge, "Upload too large or malformed", "error", err)
		return
	}

	conversationID := r.FormValue("conversation_id")
	if conversationID == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "conversation_id is required", "operation", "send_file")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "No file uploaded", "error", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to read uploaded file", "error", err)
		return
	}

	rec := &audio.Recording{
		Data:     data,
		MimeType: uploadedMimeType(header.Header.Get("Content-Type"), header.Filename),
		FileName: filepath.Base(header.Filename),
	}
	res, err := s.service.SendRecording(r.Context(), rec, conversationID, r.FormValue("caption"))
	if err != nil {
		s.sendServiceError(w, err, "operation", "send_file", "file", header.Filename)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"result":  res,
	})
}

func (s *Server) handleWarmUp(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.WarmUp(r.Context())
	if err != nil {
		s.sendServiceError(w, err, "operation", "engine_warmup")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"version":      info.Version,
		"load_time_ms": info.LoadTime.Milliseconds(),
	})
}

// handleProfiles returns available configuration profiles
func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	active, profiles, err := config.ListProfiles(s.configFile)
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list profiles: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active_profile": active,
		"profiles":       profiles,
	})
}

func (s *Server) handleSelectProfile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form")
		return
	}
	profile := r.FormValue("profile")
	if profile == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "profile is required")
		return
	}

	if err := s.service.LoadProfile(profile); err != nil {
		s.sendServiceError(w, err, "profile", profile, "operation", "profile_selection")
		return
	}
	if err := config.UpdateActiveConfig(s.configFile, profile); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to save profile selection to config file: %v", err))
		return
	}

	slog.Info("Profile changed", "profile", profile)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("Profile changed to %s", profile),
		"profile": profile,
	})
}

func generateStatusMessage(status service.Status) string {
	switch {
	case status.State == audio.StateRecording && status.Session != nil:
		return fmt.Sprintf("Recording in progress - %d bytes captured", status.Session.ByteCount)
	case status.State == audio.StateRecording:
		return "Recording in progress"
	case status.Engine.Loading:
		return "Loading audio converter"
	case status.Pending != nil:
		return fmt.Sprintf("Voice note ready to send - %s", status.Pending.FileName)
	}
	return status.LastError
}

// statusCodeFor maps service errors to HTTP status codes
func statusCodeFor(err error) int {
	var terr *transcode.Error
	if errors.As(err, &terr) {
		switch terr.Reason {
		case transcode.ReasonEngineUnavailable:
			return http.StatusServiceUnavailable
		case transcode.ReasonTimeout:
			return http.StatusGatewayTimeout
		default:
			return http.StatusUnprocessableEntity
		}
	}

	switch {
	case errors.Is(err, audio.ErrInvalidState), errors.Is(err, service.ErrNoPendingRecording):
		return http.StatusConflict
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, audio.ErrEmptyRecording), errors.Is(err, packager.ErrEmptyPayload), errors.Is(err, packager.ErrNotVoiceFormat):
		return http.StatusUnprocessableEntity
	case errors.Is(err, packager.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, upload.ErrTransport):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// sendServiceError answers with the user notice for err
func (s *Server) sendServiceError(w http.ResponseWriter, err error, logContext ...interface{}) {
	s.sendErrorResponse(w, statusCodeFor(err), service.Notice(err), append(logContext, "error", err)...)
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// uploadedMimeType prefers the part's content type unless it is generic
func uploadedMimeType(contentType, fileName string) string {
	if contentType != "" && contentType != "application/octet-stream" {
		if _, _, err := mime.ParseMediaType(contentType); err == nil {
			return contentType
		}
	}
	return audio.FormatForFile(fileName).MimeType
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", chimw.GetReqID(r.Context()))
	})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
