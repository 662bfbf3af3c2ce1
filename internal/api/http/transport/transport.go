// Package transport moves access tokens, refresh tokens and session ids
// between the server and the different kinds of clients.
package transport

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/identity-server/internal/model"
)

const (
	HeaderPlatform     = "client-platform"
	HeaderAuthorize    = "Authorization"
	HeaderRefreshToken = "X-Refresh-Token"
	HeaderSessionID    = "X-Session-Id"
	HeaderCSRFToken    = "X-CSRF-Token"

	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
	CookieSessionID    = "sid"

	bearerPrefix = "Bearer "
)

// Credentials are what a client presents and receives.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	SID          uuid.UUID
}

// FromPair builds Credentials out of a freshly issued token pair.
func FromPair(pair model.TokenPair) Credentials {
	return Credentials{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken, SID: pair.SID}
}

// CredentialTransport reads and writes credentials for one client platform.
type CredentialTransport interface {
	Read(r *http.Request) Credentials
	Write(w http.ResponseWriter, creds Credentials)
	Clear(w http.ResponseWriter)
}

// Resolver picks the transport announced by the client-platform header.
type Resolver struct {
	app        CredentialTransport
	browser    CredentialTransport
	browserDev CredentialTransport
}

// NewResolver creates a Resolver. production enables Secure cookies for
// browsers; refreshTTL bounds cookie lifetime.
func NewResolver(production bool, refreshTTL time.Duration) *Resolver {
	return &Resolver{
		app: headerTransport{},
		browser: cookieTransport{
			secure:   production,
			sameSite: http.SameSiteStrictMode,
			maxAge:   refreshTTL,
		},
		browserDev: cookieTransport{
			secure:   false,
			sameSite: http.SameSiteLaxMode,
			maxAge:   refreshTTL,
		},
	}
}

// Resolve returns the transport for r or BadRequest for a missing or
// unknown platform.
func (p *Resolver) Resolve(r *http.Request) (CredentialTransport, error) {
	platform, err := model.ParsePlatform(r.Header.Get(HeaderPlatform))
	if err != nil {
		return nil, model.NewBadRequest("client-platform header must be app, browser or browser-dev")
	}
	return p.For(platform), nil
}

// For returns the transport of a known platform.
func (p *Resolver) For(platform model.Platform) CredentialTransport {
	switch platform {
	case model.PlatformBrowser:
		return p.browser
	case model.PlatformBrowserDev:
		return p.browserDev
	default:
		return p.app
	}
}

// headerTransport serves native apps through request and response headers.
type headerTransport struct{}

func (headerTransport) Read(r *http.Request) Credentials {
	var creds Credentials
	if auth := r.Header.Get(HeaderAuthorize); strings.HasPrefix(auth, bearerPrefix) {
		creds.AccessToken = strings.TrimSpace(auth[len(bearerPrefix):])
	}
	creds.RefreshToken = r.Header.Get(HeaderRefreshToken)
	creds.SID = parseSID(r.Header.Get(HeaderSessionID))
	return creds
}

func (headerTransport) Write(w http.ResponseWriter, creds Credentials) {
	w.Header().Set(HeaderAuthorize, bearerPrefix+creds.AccessToken)
	w.Header().Set(HeaderRefreshToken, creds.RefreshToken)
	w.Header().Set(HeaderSessionID, creds.SID.String())
}

func (headerTransport) Clear(w http.ResponseWriter) {
	w.Header().Set(HeaderAuthorize, "")
	w.Header().Set(HeaderRefreshToken, "")
	w.Header().Set(HeaderSessionID, "")
}

// cookieTransport serves browsers through httpOnly cookies.
type cookieTransport struct {
	secure   bool
	sameSite http.SameSite
	maxAge   time.Duration
}

func (t cookieTransport) Read(r *http.Request) Credentials {
	var creds Credentials
	if c, err := r.Cookie(CookieAccessToken); err == nil {
		creds.AccessToken = c.Value
	}
	if c, err := r.Cookie(CookieRefreshToken); err == nil {
		creds.RefreshToken = c.Value
	}
	if c, err := r.Cookie(CookieSessionID); err == nil {
		creds.SID = parseSID(c.Value)
	}
	return creds
}

func (t cookieTransport) Write(w http.ResponseWriter, creds Credentials) {
	maxAge := int(t.maxAge.Seconds())
	http.SetCookie(w, t.cookie(CookieAccessToken, creds.AccessToken, maxAge))
	http.SetCookie(w, t.cookie(CookieRefreshToken, creds.RefreshToken, maxAge))
	http.SetCookie(w, t.cookie(CookieSessionID, creds.SID.String(), maxAge))
}

func (t cookieTransport) Clear(w http.ResponseWriter) {
	for _, name := range []string{CookieAccessToken, CookieRefreshToken, CookieSessionID} {
		c := t.cookie(name, "", -1)
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (t cookieTransport) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   t.secure,
		SameSite: t.sameSite,
	}
}

func parseSID(v string) uuid.UUID {
	sid, err := uuid.Parse(strings.TrimSpace(v))
	if err != nil {
		return uuid.Nil
	}
	return sid
}

// ClientIP returns the peer address of r. Forwarding headers are ignored
// because they are client controlled.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
