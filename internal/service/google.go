package service

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

const googleIssuer = "https://accounts.google.com"

// googleOIDCVerifier validates Google ID tokens against the discovered
// Google OIDC configuration.
type googleOIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewGoogleVerifier discovers Google's OIDC endpoints and returns a
// verifier bound to the given OAuth client id.
func NewGoogleVerifier(ctx context.Context, clientID string) (GoogleVerifier, error) {
	if clientID == "" {
		return nil, fmt.Errorf("google client id is required")
	}

	provider, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("discover google oidc provider: %w", err)
	}

	return &googleOIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: clientID}),
	}, nil
}

func (g *googleOIDCVerifier) Verify(ctx context.Context, rawIDToken string) (GoogleProfile, error) {
	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return GoogleProfile{}, fmt.Errorf("verify id token: %w", err)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return GoogleProfile{}, fmt.Errorf("decode id token claims: %w", err)
	}

	return GoogleProfile{
		Email:         claims.Email,
		Name:          claims.Name,
		EmailVerified: claims.EmailVerified,
	}, nil
}
