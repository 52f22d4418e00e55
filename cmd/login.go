package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"credbroker/internal/broker"
	"credbroker/internal/server"
)

// Login-specific flags
var (
	loginPrincipal string
	loginScopes    string
	loginQuiet     bool
)

// loginCmd represents the login command. It runs a complete authorization
// flow from the terminal: start the callback listener, print the
// authorization URL, and wait for the browser flow to finish.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Run an authorization flow for a user from the terminal",
	Long: `Acquires a delegated credential for a principal by running the full
browser-based authorization flow.

If a valid or refreshable credential is already stored, no browser
interaction happens. Otherwise the authorization URL is printed; once the
user grants consent in the browser, the provider redirect completes the
flow against the embedded callback listener.

Examples:
  credbroker login --principal alice@example.com --scopes "calendar.read"
  credbroker login --principal alice@example.com --scopes "calendar.read calendar.write"`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVar(&loginPrincipal, "principal", "", "Identifier of the user to acquire a credential for (required)")
	loginCmd.Flags().StringVar(&loginScopes, "scopes", "", "Space-separated OAuth scopes to request (required)")
	loginCmd.Flags().BoolVar(&loginQuiet, "quiet", false, "Suppress progress output")
	_ = loginCmd.MarkFlagRequired("principal")
	_ = loginCmd.MarkFlagRequired("scopes")

	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	scopes := strings.Fields(loginScopes)
	if len(scopes) == 0 {
		return fmt.Errorf("--scopes must contain at least one scope")
	}

	stack, cleanup, err := buildBrokerStack()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	correlationID := uuid.NewString()
	outcome := stack.Broker.Acquire(ctx, loginPrincipal, correlationID, scopes)

	switch outcome.Kind {
	case broker.KindCredentials:
		if !loginQuiet {
			fmt.Printf("Already authorized (expires: %s)\n", outcome.Record.ExpiresAt.Format(time.RFC3339))
		}
		return nil

	case broker.KindFailed:
		return fmt.Errorf("credential acquisition failed: %s", outcome.FailureMessage)
	}

	// The flow needs the browser; run the callback listener while we wait.
	srv := server.NewCallbackServer(
		stack.Broker,
		stack.Config.Server.Host,
		stack.Config.Server.Port,
		stack.Config.Server.CallbackPath,
	)
	go func() { _ = srv.Start() }()
	defer func() { _ = srv.Shutdown(context.Background()) }()

	fmt.Println("Open this URL in your browser to grant access:")
	fmt.Println()
	fmt.Printf("  %s\n", outcome.AuthorizationURL)
	fmt.Println()

	return waitForCredential(ctx, stack, scopes)
}

// waitForCredential polls the store until the callback completes the flow
// or the wait times out.
func waitForCredential(ctx context.Context, stack *brokerStack, scopes []string) error {
	var s *spinner.Spinner
	if !loginQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = " Waiting for authorization to complete..."
		s.Start()
		defer s.Stop()
	}

	deadline := time.Now().Add(DefaultAuthWaitTimeout)
	ticker := time.NewTicker(DefaultAuthPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for authorization; run login again to retry")
		}

		record, err := stack.Broker.Status(ctx, loginPrincipal, scopes)
		if err != nil {
			return fmt.Errorf("failed to check credential status: %w", err)
		}
		if record != nil && !record.IsExpired() {
			if s != nil {
				s.Stop()
			}
			if !loginQuiet {
				fmt.Printf("Authorization complete (expires: %s)\n", record.ExpiresAt.Format(time.RFC3339))
			}
			return nil
		}
	}
}
