package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// stateBytes is the number of random bytes for the OAuth state parameter.
// 32 bytes encodes to 43 base64url characters, well above the 128-bit
// minimum the state token must carry to be unguessable.
const stateBytes = 32

// GenerateState generates a random state parameter for an authorization
// request. The state links the provider callback back to the pending
// authorization and provides CSRF protection.
//
// An error here means the entropy source is unavailable; callers must treat
// that as fatal rather than degrade to a weaker generator.
func GenerateState() (string, error) {
	buf := make([]byte, stateBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}
