package model

import (
	"context"
	"time"
)

// ProviderGoogle names the Google identity provider.
const ProviderGoogle = "google"

// OAuthLinkStore maps external identities to local users.
type OAuthLinkStore interface {
	Get(ctx context.Context, provider, subject string) (OAuthLink, error)
	Create(ctx context.Context, link OAuthLink) error
}

// OAuthLink ties a provider subject to a user.
type OAuthLink struct {
	Provider  string
	Subject   string
	UserID    int64
	CreatedAt time.Time
}

// ExternalIdentity is the verified content of a provider identity token.
type ExternalIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// IdentityVerifier validates identity tokens issued by an external provider.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (ExternalIdentity, error)
}
