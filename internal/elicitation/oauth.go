package elicitation

import (
	"context"

	"golang.org/x/oauth2"
)

// OAuthProvider is one named Url-flow provider's authorization-code
// configuration, resolved from mcp.json/config by the caller, driving the
// standard three-legged golang.org/x/oauth2 authorization-code flow.
type OAuthProvider struct {
	Name   string
	Config *oauth2.Config
}

// Exchange swaps an authorization code for a token using the provider's
// configuration, called from internal/server's OAuth callback handler once
// the user completes the redirect.
func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.Config.Exchange(ctx, code)
}
