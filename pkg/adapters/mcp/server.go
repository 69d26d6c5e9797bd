// Package mcp exposes the call engine as a Model Context Protocol server, so an
// LLM voice agent can drive a call through the same closed tool set the HTTP
// adapter offers.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/casefile/internal/logging"
	"github.com/aretw0/casefile/internal/runtime"
	"github.com/aretw0/casefile/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Engine is the slice of the call engine the MCP server drives.
type Engine interface {
	StartCall(ctx context.Context, callID, ani string) (runtime.Start, error)
	Invoke(ctx context.Context, callID string, tool domain.Tool, args map[string]any) (runtime.Result, error)
	Hangup(ctx context.Context, callID string) (domain.PostCallPayload, error)
	Get(ctx context.Context, callID string) (domain.SessionContext, error)
}

// Server wraps the engine and exposes it as an MCP server.
type Server struct {
	engine    Engine
	logger    *slog.Logger
	mcpServer *server.MCPServer
	handlers  map[string]server.ToolHandlerFunc
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, version string, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("casefile-mcp", version),
		handlers:  make(map[string]server.ToolHandlerFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on port until ctx ends.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

var callIDParam = mcp.WithString("call_id", mcp.Required(), mcp.Description("The call being handled"))

// toolParams lists the answer arguments of each step tool.
var toolParams = map[domain.Tool][]mcp.ToolOption{
	domain.ToolConfirmIdentity: {
		mcp.WithBoolean("confirmed", mcp.Required(), mcp.Description("Whether the caller is the person on file")),
		mcp.WithString("caller_name", mcp.Description("The caller's name when they are someone else")),
	},
	domain.ToolProcessEmailConfirmation: {
		mcp.WithBoolean("confirmed", mcp.Required(), mcp.Description("Whether the email on file is still good")),
	},
	domain.ToolProcessSMSConsent: {
		mcp.WithBoolean("consented", mcp.Required(), mcp.Description("Answer after the rate disclosure was read")),
	},
	domain.ToolSubmitSpelledEmail: {
		mcp.WithString("email", mcp.Description("The email as spelled or spoken by the caller")),
		mcp.WithBoolean("confirmed", mcp.Description("The caller's answer to the phonetic readback; omit before the readback")),
	},
	domain.ToolProcessEmailConsent: {
		mcp.WithBoolean("consented", mcp.Required(), mcp.Description("Whether a confirmation email may be sent")),
	},
	domain.ToolProcessAddressConfirmation: {
		mcp.WithString("response", mcp.Required(), mcp.Enum("confirmed", "denied", "declined"),
			mcp.Description("The caller's reaction to the address on file")),
	},
	domain.ToolSubmitAddress: {
		mcp.WithString("address", mcp.Description("The full spoken address")),
		mcp.WithBoolean("confirmed", mcp.Description("Whether the caller confirmed the readback")),
	},
	domain.ToolScheduleFollowUp: {
		mcp.WithString("reason", mcp.Required(), mcp.Description("Why a human must follow up")),
	},
}

var toolDescriptions = map[domain.Tool]string{
	domain.ToolConfirmIdentity:            "Record whether the caller confirmed their identity.",
	domain.ToolProcessEmailConfirmation:   "Record whether the email on file is confirmed.",
	domain.ToolInitiateEmailCollection:    "Start collecting an email: by text message when possible, otherwise by voice.",
	domain.ToolProcessSMSConsent:          "Record the answer to the text-message offer.",
	domain.ToolAwaitSMSForm:               "Wait for the caller to submit the texted form.",
	domain.ToolSubmitSpelledEmail:         "Submit a spelled email, then the answer to its readback.",
	domain.ToolValidateEmail:              "Validate the working email.",
	domain.ToolProcessEmailConsent:        "Record whether a confirmation email may be sent.",
	domain.ToolProcessAddressConfirmation: "Record the caller's reaction to the address on file.",
	domain.ToolSubmitAddress:              "Submit a spoken address, then the answer to its readback.",
	domain.ToolValidateAddress:            "Check the working address for USPS deliverability.",
	domain.ToolScheduleFollowUp:           "Flag the call for human follow-up and wrap up.",
}

func (s *Server) add(tool mcp.Tool, h server.ToolHandlerFunc) {
	s.handlers[tool.Name] = h
	s.mcpServer.AddTool(tool, h)
}

func (s *Server) registerTools() {
	s.add(mcp.NewTool("start_call",
		mcp.WithDescription("Start a call and return the caller file and first step."),
		mcp.WithString("ani", mcp.Required(), mcp.Description("The caller's number in E.164")),
		mcp.WithString("call_id", mcp.Description("Call identifier; generated when omitted")),
	), s.handleStart)

	for _, t := range domain.Tools {
		opts := []mcp.ToolOption{mcp.WithDescription(toolDescriptions[t]), callIDParam}
		opts = append(opts, toolParams[t]...)
		s.add(mcp.NewTool(string(t), opts...), s.stepTool(t))
	}

	s.add(mcp.NewTool("get_call",
		mcp.WithDescription("Return the current context of a call."),
		callIDParam,
	), s.handleGet)

	s.add(mcp.NewTool("hangup",
		mcp.WithDescription("End the call and return the post-call payload."),
		callIDParam,
	), s.handleHangup)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports tool refusals to the model instead of failing the request.
func (s *Server) errorResult(err error) (*mcp.CallToolResult, error) {
	if runtime.IsToolError(err) || errors.Is(err, domain.ErrCallNotFound) || errors.Is(err, domain.ErrCallExists) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Error("MCP tool failed", "err", err)
	return mcp.NewToolResultError(fmt.Sprintf("internal error: %v", err)), nil
}

func (s *Server) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ani, err := req.RequireString("ani")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	start, err := s.engine.StartCall(ctx, req.GetString("call_id", ""), ani)
	if err != nil {
		return s.errorResult(err)
	}
	return jsonResult(start)
}

func (s *Server) stepTool(t domain.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		callID, err := req.RequireString("call_id")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		args := make(map[string]any)
		for k, v := range req.GetArguments() {
			if k != "call_id" {
				args[k] = v
			}
		}

		res, err := s.engine.Invoke(ctx, callID, t, args)
		if err != nil {
			return s.errorResult(err)
		}
		return jsonResult(res.Outcome)
	}
}

func (s *Server) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	callID, err := req.RequireString("call_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sc, err := s.engine.Get(ctx, callID)
	if err != nil {
		return s.errorResult(err)
	}
	return jsonResult(sc)
}

func (s *Server) handleHangup(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	callID, err := req.RequireString("call_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	payload, err := s.engine.Hangup(ctx, callID)
	if err != nil {
		return s.errorResult(err)
	}
	return jsonResult(payload)
}

// stepGraph describes each step with the tool it accepts.
type stepGraph struct {
	Step domain.Step `json:"step"`
	Tool domain.Tool `json:"tool,omitempty"`
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("casefile://steps", "Call steps",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		graph := make([]stepGraph, 0, len(domain.Steps))
		for _, st := range domain.Steps {
			t, _ := st.Tool()
			graph = append(graph, stepGraph{Step: st, Tool: t})
		}
		data, err := json.Marshal(graph)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "casefile://steps",
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}
