// Package http exposes the call engine over HTTP: call lifecycle and tool
// endpoints for the conversational layer, the SMS form webhook, per-call SSE
// diffs, health and Prometheus metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/casefile/api"
	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/internal/runtime"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// Engine is the slice of the call engine the HTTP layer drives.
type Engine interface {
	StartCall(ctx context.Context, callID, ani string) (runtime.Start, error)
	Invoke(ctx context.Context, callID string, tool domain.Tool, args map[string]any) (runtime.Result, error)
	Hangup(ctx context.Context, callID string) (domain.PostCallPayload, error)
	Get(ctx context.Context, callID string) (domain.SessionContext, error)
	DeliverForm(ctx context.Context, callID, token, email string) error
}

// Server implements ServerInterface over the engine.
type Server struct {
	engine  Engine
	streams *StreamManager
	logger  *slog.Logger
	metrics http.Handler
	version string
}

// Ensure Server implements ServerInterface
var _ ServerInterface = (*Server)(nil)

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion is reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// NewHandler creates the HTTP handler for the engine. Requests on the routes
// of api/openapi.yaml are validated against it before they reach the Server.
func NewHandler(engine Engine, opts ...Option) http.Handler {
	s := &Server{
		engine:  engine,
		logger:  logging.NewNop(),
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams = NewStreamManager(s.logger)

	r := chi.NewRouter()
	if router, err := newSpecRouter(); err != nil {
		s.logger.Error("Request validation disabled", "err", err)
	} else {
		r.Use(requestValidator(router, s.rejectRequest))
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(api.Spec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	handler := HandlerWithOptions(s, ChiServerOptions{
		BaseRouter:       r,
		ErrorHandlerFunc: s.rejectRequest,
	})
	return enableCORS(handler)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>casefile API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

// statusFor maps engine errors to HTTP codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrCallNotFound):
		return http.StatusNotFound, "call_not_found"
	case errors.Is(err, domain.ErrCallExists):
		return http.StatusConflict, "call_exists"
	case errors.Is(err, domain.ErrCallTerminated):
		return http.StatusConflict, "call_terminated"
	case errors.Is(err, domain.ErrToolNotAllowed):
		return http.StatusConflict, "tool_not_allowed"
	case errors.Is(err, domain.ErrNoActiveWait):
		return http.StatusConflict, "no_active_wait"
	case errors.Is(err, domain.ErrUnknownTool):
		return http.StatusNotFound, "unknown_tool"
	case errors.Is(err, domain.ErrInvalidAnswer):
		return http.StatusBadRequest, "invalid_answer"
	}
	return http.StatusInternalServerError, "internal"
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "err", err)
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	s.writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Code: "bad_request"})
}

// rejectRequest answers contract violations and unbindable parameters.
func (s *Server) rejectRequest(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Debug("Request rejected", "method", r.Method, "path", r.URL.Path, "err", err)
	s.badRequest(w, err.Error())
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"version":     s.version,
		"api_version": apiVersion,
	})
}

// StartCall handles POST /calls.
func (s *Server) StartCall(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}

	start, err := s.engine.StartCall(r.Context(), body.CallID, body.ANI)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.streams.Publish(start.Context)
	s.writeJSON(w, http.StatusCreated, start)
}

// GetCall handles GET /calls/{callID}.
func (s *Server) GetCall(w http.ResponseWriter, r *http.Request, callID string) {
	sc, err := s.engine.Get(r.Context(), callID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sc)
}

// InvokeTool handles POST /calls/{callID}/tools/{tool}.
func (s *Server) InvokeTool(w http.ResponseWriter, r *http.Request, callID string, name string) {
	tool, err := domain.ParseTool(name)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var body ToolRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.badRequest(w, "invalid request body")
			return
		}
	}
	if body.Args == nil {
		body.Args = map[string]any{}
	}

	res, err := s.engine.Invoke(r.Context(), callID, tool, body.Args)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.streams.Publish(res.Context)
	s.writeJSON(w, http.StatusOK, res)
}

// Hangup handles POST /calls/{callID}/hangup.
func (s *Server) Hangup(w http.ResponseWriter, r *http.Request, callID string) {
	payload, err := s.engine.Hangup(r.Context(), callID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.streams.Publish(payload.SessionContext)
	s.writeJSON(w, http.StatusOK, payload)
}

// SubmitSMSForm accepts JSON or a plain HTML form post.
func (s *Server) SubmitSMSForm(w http.ResponseWriter, r *http.Request) {
	var body FormSubmission
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			s.badRequest(w, "invalid form")
			return
		}
		body = FormSubmission{
			CallID: r.PostForm.Get("call_id"),
			Token:  r.PostForm.Get("token"),
			Email:  r.PostForm.Get("email"),
		}
	} else if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.badRequest(w, "invalid request body")
		return
	}

	if err := s.engine.DeliverForm(r.Context(), body.CallID, body.Token, body.Email); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// SubscribeEvents streams CallDiffs for one call (SSE). Watch narrows the
// stream to diff sections or field names.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request, callID string, params SubscribeEventsParams) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var watch []string
	if params.Watch != nil {
		for _, f := range *params.Watch {
			if f = strings.TrimSpace(f); f != "" {
				watch = append(watch, f)
			}
		}
	}

	ch, cancel := s.streams.Subscribe(callID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()
	s.logger.Info("SSE: Subscribed", "call_id", callID)

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: Client disconnected", "call_id", callID)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !keep(msg, watch) {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
