package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"credbroker/internal/credstore"
)

// Status-specific flags
var (
	statusPrincipal string
)

// statusCmd represents the status command. It lists stored credentials
// without ever printing token material.
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stored credential status",
	Long: `Lists the delegated credentials currently stored, with expiry and
refresh information. Token values are never displayed.

Examples:
  credbroker status                             # Show all stored credentials
  credbroker status --principal alice@example.com  # Filter by principal`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPrincipal, "principal", "", "Only show credentials for this principal")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	stack, cleanup, err := buildBrokerStack()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	records, err := stack.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	if statusPrincipal != "" {
		filtered := records[:0]
		for _, r := range records {
			if r.Principal == statusPrincipal {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	if len(records) == 0 {
		fmt.Println("No stored credentials.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Principal", "Scopes", "Status", "Expires", "Refresh"})

	for _, r := range records {
		t.AppendRow(table.Row{
			r.Principal,
			strings.Join(r.Scopes, " "),
			statusCell(r),
			expiryCell(r),
			refreshCell(r),
		})
	}

	t.Render()
	return nil
}

func statusCell(r *credstore.Record) string {
	if !r.IsExpired() {
		return text.FgGreen.Sprint("Valid")
	}
	if r.Refreshable() {
		return text.FgYellow.Sprint("Expired (refreshable)")
	}
	return text.FgRed.Sprint("Expired")
}

func expiryCell(r *credstore.Record) string {
	if r.ExpiresAt.IsZero() {
		return "never"
	}
	remaining := time.Until(r.ExpiresAt).Round(time.Second)
	if remaining > 0 {
		return fmt.Sprintf("%s (in %s)", r.ExpiresAt.Format(time.RFC3339), remaining)
	}
	return fmt.Sprintf("%s (%s ago)", r.ExpiresAt.Format(time.RFC3339), -remaining)
}

func refreshCell(r *credstore.Record) string {
	if r.Refreshable() {
		return text.FgGreen.Sprint("Available")
	}
	return text.FgRed.Sprint("None")
}
