package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"credbroker/internal/broker"
	"credbroker/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default timeout for writing responses.
	DefaultWriteTimeout = 120 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
)

// CallbackServer receives the provider's authorization redirects and
// completes the corresponding flows through the broker.
type CallbackServer struct {
	broker       *broker.Broker
	host         string
	port         int
	callbackPath string

	httpServer *http.Server
}

// NewCallbackServer creates a callback server bound to host:port serving
// redirects on callbackPath.
func NewCallbackServer(b *broker.Broker, host string, port int, callbackPath string) *CallbackServer {
	return &CallbackServer{
		broker:       b,
		host:         host,
		port:         port,
		callbackPath: callbackPath,
	}
}

// CreateMux builds the HTTP routing for the callback server.
func (s *CallbackServer) CreateMux() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint (unauthenticated)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc(s.callbackPath, s.handleCallback)

	return mux
}

// Start begins serving on the configured address. It blocks until the
// listener fails or Shutdown is called.
func (s *CallbackServer) Start() error {
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.CreateMux(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}

	logging.Info("CallbackServer", "Listening on %s (callback path: %s)", addr, s.callbackPath)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("callback server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *CallbackServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// handleCallback processes one provider redirect. The response is for the
// human in the browser; the credential outcome reaches the agent through
// the broker's store.
func (s *CallbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	query := r.URL.Query()
	cb := broker.Callback{
		Code:             query.Get("code"),
		State:            query.Get("state"),
		Error:            query.Get("error"),
		ErrorDescription: query.Get("error_description"),
	}

	if cb.State == "" {
		http.Error(w, "missing state parameter", http.StatusBadRequest)
		return
	}

	outcome := s.broker.CompleteCallback(r.Context(), cb)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	switch outcome.Kind {
	case broker.KindCredentials:
		w.WriteHeader(http.StatusOK)
		writePage(w, "Authorization complete",
			"You can close this window and return to your conversation.")

	case broker.KindFailed:
		logging.Warn("CallbackServer", "Callback completion failed: %s", outcome.FailureCode)
		w.WriteHeader(callbackStatus(outcome.FailureCode))
		writePage(w, "Authorization failed", callbackMessage(outcome))

	default:
		// Completion never yields NeedsAuthorization.
		w.WriteHeader(http.StatusInternalServerError)
		writePage(w, "Authorization failed", "Unexpected result. Please try again.")
	}
}

// callbackStatus picks the HTTP status for a failed completion. Unknown
// and expired states are client errors; everything else is upstream.
func callbackStatus(failureCode string) int {
	switch failureCode {
	case broker.FailureUnknownState, broker.FailureExpiredState:
		return http.StatusBadRequest
	case broker.FailureUserDenied:
		return http.StatusOK // the user's own decision, not an error page
	default:
		return http.StatusBadGateway
	}
}

// callbackMessage renders a user-facing message for a failed completion.
// Failure details stay in the logs; the browser page never echoes
// provider error bodies.
func callbackMessage(outcome *broker.Outcome) string {
	switch outcome.FailureCode {
	case broker.FailureUserDenied:
		return "You declined the authorization. If this was a mistake, ask your assistant to try again."
	case broker.FailureExpiredState:
		return "This authorization link expired. Ask your assistant for a fresh one."
	case broker.FailureUnknownState:
		return "This authorization link was already used or is not recognized. Ask your assistant for a fresh one."
	default:
		return "Something went wrong completing the authorization. Ask your assistant to try again."
	}
}

// writePage renders the minimal completion page shown in the user's
// browser after the redirect.
func writePage(w http.ResponseWriter, title, message string) {
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>%s</title></head>
<body style="font-family: sans-serif; max-width: 40em; margin: 4em auto;">
<h1>%s</h1>
<p>%s</p>
</body>
</html>
`, title, title, message)
}
