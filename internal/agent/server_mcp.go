package agent

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"credbroker/internal/broker"
)

// MCPServer exposes broker operations as MCP tools over stdio.
type MCPServer struct {
	broker    *broker.Broker
	mcpServer *server.MCPServer
}

// NewMCPServer creates an MCP server bridging AI assistants to the broker.
func NewMCPServer(b *broker.Broker, version string) *MCPServer {
	mcpServer := server.NewMCPServer(
		"credbroker-agent",
		version,
		server.WithToolCapabilities(false),
	)

	ms := &MCPServer{
		broker:    b,
		mcpServer: mcpServer,
	}

	ms.registerTools()

	return ms
}

// Start starts the MCP server using stdio transport. It blocks until the
// stdio connection is closed by the client.
func (m *MCPServer) Start(ctx context.Context) error {
	return server.ServeStdio(m.mcpServer)
}

// registerTools registers all MCP tools.
func (m *MCPServer) registerTools() {
	acquireTool := mcp.NewTool("credential_acquire",
		mcp.WithDescription("Acquire a delegated credential for a user. Returns either a usable credential or an authorization URL the user must visit."),
		mcp.WithString("principal",
			mcp.Required(),
			mcp.Description("Stable identifier of the end user the credential is delegated by"),
		),
		mcp.WithString("correlation_id",
			mcp.Required(),
			mcp.Description("Identifier of the conversation or task requesting the credential"),
		),
		mcp.WithString("scopes",
			mcp.Required(),
			mcp.Description("Space-separated OAuth scopes the credential must cover"),
		),
	)
	m.mcpServer.AddTool(acquireTool, m.handleAcquire)

	completeTool := mcp.NewTool("credential_complete",
		mcp.WithDescription("Complete a pending authorization with the code and state from the provider redirect"),
		mcp.WithString("principal",
			mcp.Required(),
			mcp.Description("Stable identifier of the end user completing the flow"),
		),
		mcp.WithString("code",
			mcp.Description("Authorization code from the redirect (omit on denial)"),
		),
		mcp.WithString("state",
			mcp.Required(),
			mcp.Description("State token from the redirect"),
		),
		mcp.WithString("error",
			mcp.Description("Error parameter from the redirect, e.g. access_denied"),
		),
	)
	m.mcpServer.AddTool(completeTool, m.handleComplete)

	statusTool := mcp.NewTool("auth_status",
		mcp.WithDescription("Report whether a valid delegated credential is stored for a user and scope set. Never touches the network."),
		mcp.WithString("principal",
			mcp.Required(),
			mcp.Description("Stable identifier of the end user"),
		),
		mcp.WithString("scopes",
			mcp.Required(),
			mcp.Description("Space-separated OAuth scopes to check"),
		),
	)
	m.mcpServer.AddTool(statusTool, m.handleStatus)
}
