package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/dtroode/identity-server/internal/model"
)

var _ model.IdentityVerifier = (*Verifier)(nil)

var issuers = map[string]struct{}{
	"accounts.google.com":         {},
	"https://accounts.google.com": {},
}

// KeySource resolves signing keys by kid. keyfunc.Keyfunc implements it.
type KeySource interface {
	KeyfuncCtx(ctx context.Context) jwt.Keyfunc
}

// Claims is the subset of a Google ID token the server relies on.
type Claims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified any    `json:"email_verified"`
	Name          string `json:"name"`
}

// Verifier checks Google ID tokens against Google's published JWKS.
type Verifier struct {
	clientID string
	keys     KeySource
	now      func() time.Time
}

// NewVerifier fetches the JWKS at jwksURL and keeps it refreshed in the background
// until ctx is done.
func NewVerifier(ctx context.Context, clientID, jwksURL string) (*Verifier, error) {
	if clientID == "" {
		return nil, errors.New("google client id is required")
	}

	k, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to load google jwks: %w", err)
	}

	return NewVerifierWithKeys(clientID, k), nil
}

// NewVerifierWithKeys creates a Verifier over an existing key source.
func NewVerifierWithKeys(clientID string, keys KeySource) *Verifier {
	return &Verifier{
		clientID: clientID,
		keys:     keys,
		now:      time.Now,
	}
}

// Verify validates signature, audience, issuer and expiry of idToken and
// requires a verified email.
func (v *Verifier) Verify(ctx context.Context, idToken string) (model.ExternalIdentity, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	_, err := parser.ParseWithClaims(idToken, claims, v.keys.KeyfuncCtx(ctx))
	if err != nil {
		// a deadline hit while fetching keys is not the caller's fault
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.ExternalIdentity{}, fmt.Errorf("google token verification aborted: %w", ctxErr)
		}
		return model.ExternalIdentity{}, fmt.Errorf("failed to verify google token: %v: %w", err, model.ErrTokenInvalid)
	}

	if _, ok := issuers[claims.Issuer]; !ok {
		return model.ExternalIdentity{}, fmt.Errorf("unexpected issuer %q: %w", claims.Issuer, model.ErrTokenInvalid)
	}
	if claims.Subject == "" || claims.Email == "" {
		return model.ExternalIdentity{}, fmt.Errorf("token has no subject or email: %w", model.ErrTokenInvalid)
	}
	if !isTrue(claims.EmailVerified) {
		return model.ExternalIdentity{}, fmt.Errorf("google email is not verified: %w", model.ErrTokenInvalid)
	}

	return model.ExternalIdentity{
		Provider:      model.ProviderGoogle,
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: true,
		Name:          claims.Name,
	}, nil
}

// isTrue accepts both the boolean and the legacy string form of email_verified.
func isTrue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	default:
		return false
	}
}
