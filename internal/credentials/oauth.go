package credentials

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// OAuth2Refresher exchanges expired tokens against a standard OAuth2
// token endpoint using the stored refresh token.
type OAuth2Refresher struct {
	Config *oauth2.Config
}

// NewOAuth2Refresher builds a Refresher for the given token endpoint.
func NewOAuth2Refresher(tokenURL, clientID string) *OAuth2Refresher {
	return &OAuth2Refresher{
		Config: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{TokenURL: tokenURL},
		},
	}
}

// Refresh exchanges the expired token for a fresh one.
func (r *OAuth2Refresher) Refresh(ctx context.Context, expired *oauth2.Token) (*oauth2.Token, error) {
	if expired.RefreshToken == "" {
		return nil, fmt.Errorf("credentials: no refresh token available")
	}

	fresh, err := r.Config.TokenSource(ctx, expired).Token()
	if err != nil {
		return nil, fmt.Errorf("credentials: exchanging refresh token: %w", err)
	}

	return fresh, nil
}
