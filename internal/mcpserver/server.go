// Package mcpserver exposes the dispatch table as MCP tools, one tool per
// request kind.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/internal/dispatch"
	"github.com/tiation/riggerhire/internal/engine"
	"github.com/tiation/riggerhire/pkg/cerr"
)

const (
	argActorID   = "actor_id"
	argActorRole = "actor_role"
)

// NewServer creates an MCP server with a tool for every dispatch kind.
func NewServer(d *dispatch.Dispatcher, version string) *server.MCPServer {
	s := server.NewMCPServer("RiggerHire", version)
	for _, spec := range dispatch.Specs {
		s.AddTool(newTool(spec), handler(d, spec.Kind))
	}
	return s
}

// Serve starts the MCP server on stdio.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

func newTool(spec dispatch.Spec) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(spec.Description),
		mcp.WithString(argActorID, mcp.Description("ID of the calling actor"), mcp.Required()),
		mcp.WithString(argActorRole, mcp.Description("Role of the calling actor (requester|worker)"), mcp.Required()),
	}
	for _, p := range spec.Params {
		popts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			popts = append(popts, mcp.Required())
		}
		switch p.Type {
		case dispatch.Number:
			opts = append(opts, mcp.WithNumber(p.Name, popts...))
		default:
			opts = append(opts, mcp.WithString(p.Name, popts...))
		}
	}
	return mcp.NewTool(string(spec.Kind), opts...)
}

func handler(d *dispatch.Dispatcher, kind dispatch.Kind) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		c := engine.Caller{
			ID:   mcp.ParseString(request, argActorID, ""),
			Role: actor.Role(mcp.ParseString(request, argActorRole, "")),
		}

		args, _ := request.Params.Arguments.(map[string]any)
		payload := make(map[string]any, len(args))
		for k, v := range args {
			if k == argActorID || k == argActorRole {
				continue
			}
			payload[k] = v
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		out, err := d.Dispatch(ctx, dispatch.Request{Kind: kind, Caller: c, Payload: raw})
		if err != nil {
			return toolError(ctx, kind, err), nil
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(data)), nil
	}
}

// toolError reports err to the tool caller. Internal faults are logged and
// reported without their cause.
func toolError(ctx context.Context, kind dispatch.Kind, err error) *mcp.CallToolResult {
	if cerr.IsCode(err, cerr.Internal) {
		slog.ErrorContext(ctx, "tool call failed", "tool", kind, "error", err)
		return mcp.NewToolResultError("[internal] server error")
	}
	return mcp.NewToolResultError(err.Error())
}
