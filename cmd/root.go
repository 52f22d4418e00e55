package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"credbroker/pkg/logging"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthFailed indicates the authorization flow failed.
	ExitCodeAuthFailed = 3
)

// Global flags shared by all commands.
var (
	rootDebug      bool
	rootConfigPath string
)

// rootCmd represents the base command for the credbroker application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "credbroker",
	Short: "Broker user-delegated OAuth credentials for long-running agents",
	Long: `credbroker acquires, stores, and refreshes user-delegated OAuth
credentials on behalf of a conversational agent. When no valid credential
exists it produces an authorization URL for the user; once the provider
redirects back, the resulting tokens are stored and silently refreshed for
all later requests.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := logging.LevelInfo
		if rootDebug {
			level = logging.LevelDebug
		}
		logging.Init(level, os.Stderr)
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the
// application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// It initializes and executes the root command, which in turn handles
// subcommands and flags. This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "credbroker version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(ExitCodeError)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())

	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config-path", "", "Custom configuration directory path (default: ~/.config/credbroker)")
}
