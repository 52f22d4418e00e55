package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"credbroker/internal/broker"
	"credbroker/internal/credstore"
)

// credentialView is the JSON shape handed to the assistant for a usable
// credential. The refresh token and client secret never cross this
// boundary; the assistant only ever needs the bearer token.
type credentialView struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Scopes      []string  `json:"scopes,omitempty"`
}

// outcomeView is the JSON shape of a broker outcome returned by the
// credential tools.
type outcomeView struct {
	Kind             broker.Kind     `json:"kind"`
	AuthorizationURL string          `json:"authorization_url,omitempty"`
	State            string          `json:"state,omitempty"`
	Credential       *credentialView `json:"credential,omitempty"`
	FailureCode      string          `json:"failure_code,omitempty"`
	Retryable        bool            `json:"retryable,omitempty"`
	Message          string          `json:"message"`
}

// handleAcquire handles the credential_acquire MCP tool.
func (m *MCPServer) handleAcquire(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	principal, err := request.RequireString("principal")
	if err != nil {
		return mcp.NewToolResultError("principal argument is required"), nil
	}
	correlationID, err := request.RequireString("correlation_id")
	if err != nil {
		return mcp.NewToolResultError("correlation_id argument is required"), nil
	}
	scopesArg, err := request.RequireString("scopes")
	if err != nil {
		return mcp.NewToolResultError("scopes argument is required"), nil
	}
	scopes := strings.Fields(scopesArg)
	if len(scopes) == 0 {
		return mcp.NewToolResultError("scopes must contain at least one scope"), nil
	}

	outcome := m.broker.Acquire(ctx, principal, correlationID, scopes)
	return outcomeResult(outcome)
}

// handleComplete handles the credential_complete MCP tool.
func (m *MCPServer) handleComplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	principal, err := request.RequireString("principal")
	if err != nil {
		return mcp.NewToolResultError("principal argument is required"), nil
	}
	state, err := request.RequireString("state")
	if err != nil {
		return mcp.NewToolResultError("state argument is required"), nil
	}

	cb := broker.Callback{
		Code:  request.GetString("code", ""),
		State: state,
		Error: request.GetString("error", ""),
	}
	if cb.Code == "" && cb.Error == "" {
		return mcp.NewToolResultError("either code or error must be provided"), nil
	}

	outcome := m.broker.Complete(ctx, principal, cb)
	return outcomeResult(outcome)
}

// handleStatus handles the auth_status MCP tool.
func (m *MCPServer) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	principal, err := request.RequireString("principal")
	if err != nil {
		return mcp.NewToolResultError("principal argument is required"), nil
	}
	scopesArg, err := request.RequireString("scopes")
	if err != nil {
		return mcp.NewToolResultError("scopes argument is required"), nil
	}
	scopes := strings.Fields(scopesArg)

	record, err := m.broker.Status(ctx, principal, scopes)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to check credential status: %v", err)), nil
	}

	status := map[string]interface{}{
		"authorized": record != nil && (!record.IsExpired() || record.Refreshable()),
	}
	if record != nil {
		status["expires_at"] = record.ExpiresAt
		status["scopes"] = record.Scopes
		status["refreshable"] = record.Refreshable()
	}

	jsonData, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format status: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

// outcomeResult serializes a broker outcome for the assistant, attaching a
// message it can relay to the user verbatim.
func outcomeResult(outcome *broker.Outcome) (*mcp.CallToolResult, error) {
	view := outcomeView{
		Kind:             outcome.Kind,
		AuthorizationURL: outcome.AuthorizationURL,
		State:            outcome.State,
		FailureCode:      outcome.FailureCode,
		Retryable:        outcome.Retryable,
		Message:          userMessage(outcome),
	}
	if outcome.Record != nil {
		view.Credential = newCredentialView(outcome.Record)
	}

	jsonData, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format outcome: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonData)), nil
}

func newCredentialView(record *credstore.Record) *credentialView {
	return &credentialView{
		AccessToken: record.AccessToken,
		TokenType:   record.TokenType,
		ExpiresAt:   record.ExpiresAt,
		Scopes:      record.Scopes,
	}
}

// userMessage builds the sentence the assistant should relay to the user.
func userMessage(outcome *broker.Outcome) string {
	switch outcome.Kind {
	case broker.KindNeedsAuthorization:
		return "Please visit the authorization URL to grant access, then continue the conversation."
	case broker.KindCredentials:
		return "Credential is ready."
	}

	switch outcome.FailureCode {
	case broker.FailureUserDenied:
		return "The authorization was declined. Say so and offer to try again if the user wants."
	case broker.FailureExpiredState:
		return "The authorization link expired before it was used. Request a new one with credential_acquire."
	case broker.FailureUnknownState:
		return "The authorization link was already used or is not valid. Request a new one with credential_acquire."
	case broker.FailureEndpointUnreachable, broker.FailureExchangeTransient:
		return "The identity provider is temporarily unreachable. Try again shortly."
	default:
		return "The authorization could not be completed."
	}
}
