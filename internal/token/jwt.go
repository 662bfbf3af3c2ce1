package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
)

// Claims represents JWT claims with token class and the public user projection.
type Claims struct {
	jwt.RegisteredClaims
	UUID      uuid.UUID `json:"uuid"`
	Email     string    `json:"email"`
	TokenType string    `json:"typ"`
}

// Config carries per-class secrets and lifetimes.
type Config struct {
	Issuer  string
	Secrets map[model.TokenClass]string
	TTLs    map[model.TokenClass]time.Duration
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

var classes = []model.TokenClass{model.TokenAccess, model.TokenRefresh, model.TokenReset, model.TokenVerify}

var defaultTTLs = map[model.TokenClass]time.Duration{
	model.TokenAccess:  15 * time.Minute,
	model.TokenRefresh: 14 * 24 * time.Hour,
	model.TokenReset:   time.Hour,
	model.TokenVerify:  24 * time.Hour,
}

// Codec signs and verifies HMAC tokens with a distinct secret per class.
type Codec struct {
	issuer  string
	secrets map[model.TokenClass][]byte
	ttls    map[model.TokenClass]time.Duration
	now     func() time.Time
}

// NewCodec validates cfg and builds a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("token issuer is required")
	}

	c := &Codec{
		issuer:  cfg.Issuer,
		secrets: make(map[model.TokenClass][]byte, len(classes)),
		ttls:    make(map[model.TokenClass]time.Duration, len(classes)),
		now:     cfg.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}

	for _, class := range classes {
		secret := cfg.Secrets[class]
		if secret == "" {
			return nil, fmt.Errorf("secret for %s tokens is required", class)
		}
		c.secrets[class] = []byte(secret)

		ttl := cfg.TTLs[class]
		if ttl <= 0 {
			ttl = defaultTTLs[class]
		}
		c.ttls[class] = ttl
	}

	return c, nil
}

// TTL returns the configured lifetime for class.
func (c *Codec) TTL(class model.TokenClass) time.Duration {
	return c.ttls[class]
}

// Issuer returns the issuer stamped on refresh tokens.
func (c *Codec) Issuer() string {
	return c.issuer
}

// Sign creates a token of the given class. Issuer and TokenID of payload are optional.
func (c *Codec) Sign(payload model.Payload, class model.TokenClass, ttl time.Duration) (string, error) {
	secret, ok := c.secrets[class]
	if !ok {
		return "", fmt.Errorf("unknown token class %q", class)
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        payload.TokenID,
			Issuer:    payload.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UUID:      payload.UUID,
		Email:     payload.Email,
		TokenType: string(class),
	})

	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", class, err)
	}

	return tokenString, nil
}

// Verify checks signature, expiry and class of tokenString.
//
// It returns model.ErrTokenExpired for well-signed stale tokens and
// model.ErrTokenInvalid for everything else. Refresh tokens with a foreign
// issuer or without jti yield model.ErrTokenForbidden.
func (c *Codec) Verify(tokenString string, class model.TokenClass) (model.Payload, error) {
	secret, ok := c.secrets[class]
	if !ok {
		return model.Payload{}, fmt.Errorf("unknown token class %q: %w", class, model.ErrTokenInvalid)
	}

	claims, err := c.parse(tokenString, secret)
	if err != nil {
		return model.Payload{}, err
	}

	if claims.TokenType != string(class) {
		return model.Payload{}, fmt.Errorf("token type mismatch %q: %w", claims.TokenType, model.ErrTokenInvalid)
	}
	if claims.UUID == uuid.Nil {
		return model.Payload{}, fmt.Errorf("token has no subject: %w", model.ErrTokenInvalid)
	}

	if class == model.TokenRefresh {
		if claims.Issuer != c.issuer {
			return model.Payload{}, fmt.Errorf("unexpected issuer %q: %w", claims.Issuer, model.ErrTokenForbidden)
		}
		if claims.ID == "" {
			return model.Payload{}, fmt.Errorf("refresh token has no jti: %w", model.ErrTokenForbidden)
		}
	}

	return model.Payload{
		UUID:    claims.UUID,
		Email:   claims.Email,
		Issuer:  claims.Issuer,
		TokenID: claims.ID,
	}, nil
}

func (c *Codec) parse(tokenString string, secret []byte) (*Claims, error) {
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("wrong signing method %v", t.Header["alg"])
		}
		return secret, nil
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tokenString, claims, keyFunc)
	if err == nil {
		return claims, nil
	}
	if !errors.Is(err, jwt.ErrTokenExpired) {
		return nil, fmt.Errorf("failed to parse token: %v: %w", err, model.ErrTokenInvalid)
	}

	// Only a token with a valid signature may be reported as expired.
	signatureOnly := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := signatureOnly.ParseWithClaims(tokenString, &Claims{}, keyFunc); err != nil {
		return nil, fmt.Errorf("failed to parse token: %v: %w", err, model.ErrTokenInvalid)
	}

	return nil, model.ErrTokenExpired
}

// IssueAccess signs a short-lived access token for user.
func (c *Codec) IssueAccess(user model.User) (string, error) {
	return c.Sign(user.Public(), model.TokenAccess, c.ttls[model.TokenAccess])
}

// IssueRefresh signs a refresh token with a fresh jti and returns both.
func (c *Codec) IssueRefresh(user model.User) (string, uuid.UUID, error) {
	jti := uuid.New()
	payload := user.Public()
	payload.Issuer = c.issuer
	payload.TokenID = jti.String()

	token, err := c.Sign(payload, model.TokenRefresh, c.ttls[model.TokenRefresh])
	if err != nil {
		return "", uuid.Nil, err
	}

	return token, jti, nil
}

// IssueOneTime signs a reset or verification token with a fresh jti.
func (c *Codec) IssueOneTime(user model.User, class model.TokenClass) (string, uuid.UUID, error) {
	if class != model.TokenReset && class != model.TokenVerify {
		return "", uuid.Nil, fmt.Errorf("class %q is not a one-time token class", class)
	}

	jti := uuid.New()
	payload := user.Public()
	payload.Issuer = c.issuer
	payload.TokenID = jti.String()

	token, err := c.Sign(payload, class, c.ttls[class])
	if err != nil {
		return "", uuid.Nil, err
	}

	return token, jti, nil
}
