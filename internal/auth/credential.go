// Package auth holds the static API-key credential used for every request.
package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DefaultDomain is used when the credential does not carry a tenant prefix.
const DefaultDomain = "fridababy"

// Credential is an opaque API key, optionally prefixed with the tenant
// domain ("domain:secret"). It is immutable once parsed.
type Credential struct {
	apiKey string
	domain string
}

// Parse splits an API key of the form "domain:secret" into its parts.
// A bare key keeps its full value as the secret and falls back to
// DefaultDomain for the tenant.
func Parse(apiKey string) Credential {
	c := Credential{apiKey: apiKey, domain: DefaultDomain}
	if i := strings.IndexByte(apiKey, ':'); i > 0 {
		c.domain = apiKey[:i]
	}
	return c
}

// NewCredential binds an API key to an explicit tenant domain, overriding
// any prefix embedded in the key.
func NewCredential(apiKey, domain string) Credential {
	return Credential{apiKey: apiKey, domain: domain}
}

// Domain returns the tenant domain the credential is bound to.
func (c Credential) Domain() string {
	return c.domain
}

// BaseURL returns the tenant's API root, without a version segment.
func (c Credential) BaseURL() string {
	return fmt.Sprintf("https://%s.freshservice.com/api", c.domain)
}

// BasicAuth returns the Authorization header value. The platform expects
// Basic auth with the API key as the username and any password.
func (c Credential) BasicAuth() string {
	encoded := base64.StdEncoding.EncodeToString([]byte(c.apiKey + ":X"))
	return "Basic " + encoded
}
