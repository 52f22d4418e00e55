package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"credbroker/internal/config"
	"credbroker/internal/server"
	"credbroker/pkg/logging"
)

// shutdownGracePeriod bounds how long in-flight callback requests get to
// finish after a termination signal.
const shutdownGracePeriod = 10 * time.Second

// serveCmd defines the serve command structure. It runs the HTTP callback
// listener that receives provider redirects and completes pending flows.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OAuth callback server",
	Long: `Starts the HTTP listener that receives authorization redirects from the
OAuth provider and completes the corresponding pending flows.

The listener address and callback path come from the configuration file
(default: ~/.config/credbroker/config.yaml). The server runs until
interrupted and shuts down gracefully, letting in-flight callbacks finish.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
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

	// Config changes apply to flows started after the reload. The listener
	// address is fixed for the lifetime of the process.
	configPath := rootConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}
	watcher := config.NewWatcher(configPath, func(cfg config.BrokerConfig) {
		logging.Info("Serve", "Configuration reloaded")
	})
	if err := watcher.Start(); err != nil {
		logging.Warn("Serve", "Config watching unavailable: %v", err)
	}
	defer func() { _ = watcher.Stop() }()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logging.Info("Serve", "Received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
