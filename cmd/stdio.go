package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"credbroker/internal/agent"
	"credbroker/internal/server"
	"credbroker/pkg/logging"
)

// stdioCmd runs the MCP gateway over stdio for AI assistant integration.
// The callback listener runs alongside it so browser redirects complete
// flows started through the credential_acquire tool.
var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Expose the broker as MCP tools over stdio",
	Long: `Runs the broker as an MCP server on stdin/stdout so an AI assistant can
acquire delegated credentials through tool calls.

Exposed tools:
  credential_acquire   Resolve a credential or get an authorization URL
  credential_complete  Finish a flow with redirect parameters
  auth_status          Check stored credential status without network calls

The HTTP callback listener runs in the background so authorization
redirects from the provider complete flows automatically.`,
	Args: cobra.NoArgs,
	RunE: runStdio,
}

func runStdio(cmd *cobra.Command, args []string) error {
	stack, cleanup, err := buildBrokerStack()
	if err != nil {
		return err
	}
	defer cleanup()

	srv := server.NewCallbackServer(
		stack.Broker,
		stack.Config.Server.Host,
		stack.Config.Server.Port,
		stack.Config.Server.CallbackPath,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logging.Error("Stdio", err, "Callback server stopped")
		}
	}()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	mcpServer := agent.NewMCPServer(stack.Broker, GetVersion())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return mcpServer.Start(ctx)
}

func init() {
	rootCmd.AddCommand(stdioCmd)
}
