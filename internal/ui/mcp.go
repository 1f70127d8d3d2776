package ui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/resqfreeze/internal/chat"
	"github.com/kalambet/resqfreeze/internal/freshness"
	"github.com/kalambet/resqfreeze/internal/session"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Session Session
	Monitor Dashboard
	// PreferServerLabel mirrors the monitor's label policy for
	// classify_freshness calls that pass a status.
	PreferServerLabel bool
}

// NewMCPServer creates an MCP server exposing the container state and chat.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"resqfreeze",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("resqfreeze: freshness monitoring and a cooking assistant for a smart vegetable container."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("classify_freshness",
			mcp.WithDescription("Classify vegetable freshness from a VOC, temperature and humidity reading."),
			mcp.WithNumber("voc", mcp.Description("VOC reading"), mcp.Required()),
			mcp.WithNumber("temperature", mcp.Description("Temperature in °C"), mcp.Required()),
			mcp.WithNumber("humidity", mcp.Description("Relative humidity in %"), mcp.Required()),
			mcp.WithString("status", mcp.Description("Optional server status label such as mulai_layu")),
		),
		mcpClassify(deps),
	)

	s.AddTool(
		mcp.NewTool("current_status",
			mcp.WithDescription("Return the container's current verdict, sensor snapshot and notification feed."),
		),
		mcpCurrentStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("send_chat_message",
			mcp.WithDescription("Send a message to Chef Sayuran and return the reply."),
			mcp.WithString("message", mcp.Description("Message text"), mcp.Required()),
		),
		mcpSendChat(deps),
	)

	s.AddTool(
		mcp.NewTool("list_notifications",
			mcp.WithDescription("List freshness notifications with relative times and the unread count."),
		),
		mcpListNotifications(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"chat://transcript",
			"Chat Transcript",
			mcp.WithResourceDescription("Current chat transcript and session state as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceTranscript(deps),
	)

	return s
}

func mcpClassify(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		voc, err := req.RequireFloat("voc")
		if err != nil {
			return mcpError("voc is required"), nil
		}
		temp, err := req.RequireFloat("temperature")
		if err != nil {
			return mcpError("temperature is required"), nil
		}
		hum, err := req.RequireFloat("humidity")
		if err != nil {
			return mcpError("humidity is required"), nil
		}

		snap := freshness.Snapshot{VOC: &voc, Temperature: &temp, Humidity: &hum, Status: req.GetString("status", "")}
		v := freshness.Evaluate(snap, deps.PreferServerLabel)

		return mcpJSON(struct {
			freshness.Verdict
			Rule     string `json:"rule"`
			Headline string `json:"headline"`
		}{v, freshness.MatchedRule(&voc, &temp, &hum), v.Headline()})
	}
}

func mcpCurrentStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(deps.Monitor.Status())
	}
}

func mcpSendChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		before := len(deps.Session.View().Messages)
		err = deps.Session.Send(ctx, message)
		switch {
		case errors.Is(err, session.ErrEmptyMessage):
			return mcpError("message is empty"), nil
		case errors.Is(err, session.ErrBusy):
			return mcpError("the assistant is busy; try again shortly"), nil
		case err != nil:
			return mcpError(fmt.Sprintf("send failed: %v", err)), nil
		}

		return mcpJSON(lastBotReply(deps.Session.View().Messages, before))
	}
}

// lastBotReply finds the newest bot message at or after index from.
func lastBotReply(msgs []chat.Message, from int) *chat.Message {
	for i := len(msgs) - 1; i >= 0 && i >= from; i-- {
		if msgs[i].Sender == chat.SenderBot && !msgs[i].Composing {
			return &msgs[i]
		}
	}
	return nil
}

func mcpListNotifications(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcpJSON(deps.Monitor.Feed())
	}
}

func mcpResourceTranscript(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.Session.View())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal transcript: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
