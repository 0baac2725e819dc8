// Package mcp serves read-only pricing tools to MCP clients over stdio.
// Tool output is admin-facing and includes costs and margins.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/pario-ai/pricer/pkg/alerts"
	"github.com/pario-ai/pricer/pkg/models"
	"github.com/pario-ai/pricer/pkg/optimizer"
	"github.com/pario-ai/pricer/pkg/quote"
)

// Pricer quotes and optimizes requests.
type Pricer interface {
	Quote(ctx context.Context, modelID string, req models.PriceRequest, thermal *models.ThermalCostFactors) (quote.Quote, error)
	Optimize(ctx context.Context, infos []models.ModelInfo, req models.PriceRequest, oreq optimizer.Request) (optimizer.Decision, error)
}

// RecordLister lists catalog records.
type RecordLister interface {
	List() []models.ModelCostRecord
}

// AlertLister lists alerts.
type AlertLister interface {
	List(f alerts.Filter) []models.EstimatedCostAlert
}

// MarkupSource returns the live markup configuration.
type MarkupSource interface {
	Snapshot() models.MarkupConfig
}

// Deps are the collaborators behind the tools.
type Deps struct {
	Pricer  Pricer
	Catalog RecordLister
	Alerts  AlertLister
	Markup  MarkupSource
	Models  []models.ModelInfo
	Logger  *slog.Logger
}

// Server is a minimal MCP server that communicates over stdio using JSON-RPC 2.0.
type Server struct {
	deps    Deps
	logger  *slog.Logger
	version string
}

// New creates a new MCP Server.
func New(d Deps, version string) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: d, logger: logger.With("component", "mcp"), version: version}
}

// Run reads JSON-RPC requests from r line-by-line and writes responses to w.
// It blocks until r is closed or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, rpcError(nil, CodeParseError, "parse error"))
			continue
		}

		// notifications get no response
		if resp := s.dispatch(ctx, &req); resp != nil {
			s.writeResponse(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return result(req.ID, initializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      serverInfo{Name: "pricer", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "tools/list":
		return result(req.ID, toolsList{Tools: allTools})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return rpcError(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params toolCall
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return rpcError(req.ID, CodeInvalidParams, "invalid params")
	}

	handler, ok := toolHandlers[params.Name]
	if !ok {
		return result(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	s.logger.DebugContext(ctx, "tool call", "tool", params.Name)
	return result(req.ID, handler(ctx, s, params.Arguments))
}

func result(id json.RawMessage, v any) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Result: v}
}

func rpcError(id json.RawMessage, code int, msg string) *Response {
	return &Response{JSONRPC: jsonrpcVersion, ID: id, Error: &RPCError{Code: code, Message: msg}}
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", "error", err)
	}
}
