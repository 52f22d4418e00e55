// Package agent exposes the credential broker to AI assistants as MCP
// tools over stdio. The assistant calls credential_acquire when a task
// needs a delegated credential and relays the resulting authorization URL
// to the user; completion normally arrives through the HTTP callback, but
// credential_complete covers deployments where the assistant receives the
// redirect parameters itself.
package agent
