package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout bounds outbound token endpoint calls. Refresh and
// exchange are the only blocking network operations in the broker; neither
// is retried on timeout.
const DefaultHTTPTimeout = 10 * time.Second

// Client performs token endpoint operations for the Authorization Code
// Grant: exchanging an authorization code and refreshing an access token.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures the OAuth client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a new OAuth token endpoint client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ExchangeCode exchanges an authorization code for tokens.
// The redirect URI must exactly match the one used in the authorization
// request; providers reject mismatches.
func (c *Client) ExchangeCode(ctx context.Context, tokenEndpoint, code, redirectURI, clientID, clientSecret string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	return c.doTokenRequest(ctx, tokenEndpoint, data)
}

// Refresh obtains a new access token using a refresh token.
// On invalid_grant the returned error is a *RefreshDeniedError: the refresh
// token is permanently dead and the caller must start a fresh flow. Any
// other rejection keeps its *ExchangeError shape; the stored refresh token
// may still be good (e.g. invalid_client after a rotated client secret).
func (c *Client) Refresh(ctx context.Context, tokenEndpoint, refreshToken, clientID, clientSecret string) (*Token, error) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
	}

	token, err := c.doTokenRequest(ctx, tokenEndpoint, data)
	if err != nil {
		var ex *ExchangeError
		if errors.As(err, &ex) && !ex.Transient && ex.Code == "invalid_grant" {
			return nil, &RefreshDeniedError{Code: ex.Code, Description: ex.Description}
		}
		return nil, err
	}

	return token, nil
}

// doTokenRequest performs a token endpoint request per RFC 6749 §3.2.
func (c *Client) doTokenRequest(ctx context.Context, tokenEndpoint string, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEndpointUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.tokenError(resp.StatusCode, body)
	}

	var token Token
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse token response: %w", err)}
	}

	if token.AccessToken == "" {
		return nil, &ExchangeError{StatusCode: resp.StatusCode, Code: "invalid_response", Description: "access_token missing from response"}
	}

	// Convert relative lifetime to an absolute deadline
	token.SetExpiresAtFromExpiresIn()

	return &token, nil
}

// tokenError maps a non-200 token endpoint response to a typed error.
// 4xx responses carrying an RFC 6749 error body are permanent protocol
// rejections; everything else is treated as transient.
func (c *Client) tokenError(statusCode int, body []byte) error {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		transient := statusCode >= http.StatusInternalServerError
		c.logger.Debug("Token request rejected",
			"status", statusCode,
			"error", errResp.Error)
		return &ExchangeError{
			Code:        errResp.Error,
			Description: errResp.ErrorDescription,
			StatusCode:  statusCode,
			Transient:   transient,
		}
	}

	c.logger.Debug("Token request failed",
		"status", statusCode,
		"body", string(body))
	return &ExchangeError{StatusCode: statusCode, Transient: statusCode >= http.StatusInternalServerError}
}

// AuthorizationURLParams holds the parameters for an authorization request.
type AuthorizationURLParams struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
	State       string

	// OfflineAccess requests a refresh token (access_type=offline).
	OfflineAccess bool

	// ForceConsent forces the consent screen (prompt=consent) so the
	// provider issues a refresh token even on re-consent.
	ForceConsent bool
}

// BuildAuthorizationURL constructs the URL the resource owner must visit to
// grant consent.
func BuildAuthorizationURL(authEndpoint string, params AuthorizationURLParams) (string, error) {
	authURL, err := url.Parse(authEndpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	query := authURL.Query()
	query.Set("response_type", "code")
	query.Set("client_id", params.ClientID)
	query.Set("redirect_uri", params.RedirectURI)
	query.Set("state", params.State)

	if len(params.Scopes) > 0 {
		query.Set("scope", JoinScopes(params.Scopes))
	}

	if params.OfflineAccess {
		query.Set("access_type", "offline")
	}

	if params.ForceConsent {
		query.Set("prompt", "consent")
	}

	authURL.RawQuery = query.Encode()
	return authURL.String(), nil
}
