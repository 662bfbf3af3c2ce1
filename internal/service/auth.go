package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"sync"
	"unicode/utf8"

	"github.com/dtroode/identity-server/internal/logger"
	"github.com/dtroode/identity-server/internal/model"
	"github.com/dtroode/identity-server/internal/password"
)

const maxDisplayNameLength = 100

var errInvalidCredentials = model.NewUnauthorized("invalid email or password")

// Auth implements registration and the login flows.
type Auth struct {
	users        model.UserStore
	links        model.OAuthLinkStore
	tokens       *TokenService
	hasher       *password.Hasher
	limiter      model.RateLimiter
	google       model.IdentityVerifier
	verification *EmailVerification
	tx           model.Transactor
	logger       *logger.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewAuth creates Auth. google may be nil when Google sign-in is disabled.
func NewAuth(
	users model.UserStore,
	links model.OAuthLinkStore,
	tokens *TokenService,
	hasher *password.Hasher,
	limiter model.RateLimiter,
	google model.IdentityVerifier,
	verification *EmailVerification,
	tx model.Transactor,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		users:        users,
		links:        links,
		tokens:       tokens,
		hasher:       hasher,
		limiter:      limiter,
		google:       google,
		verification: verification,
		tx:           tx,
		logger:       logger,
	}
}

// Register creates a password account and mails a verification link.
// Failing to send the link does not fail the registration.
func (a *Auth) Register(ctx context.Context, email, plain, displayName string) (model.User, error) {
	email, err := validateEmail(email)
	if err != nil {
		return model.User{}, err
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return model.User{}, model.NewBadRequest(fmt.Sprintf("display name must be at most %d characters", maxDisplayNameLength))
	}

	hash, err := a.hasher.Hash(plain)
	if errors.Is(err, password.ErrTooShort) {
		return model.User{}, model.NewBadRequest(fmt.Sprintf("password must be at least %d characters", a.hasher.MinLength()))
	}
	if err != nil {
		a.logger.Error("Auth: failed to hash password",
			"email", email,
			"error", err.Error())
		return model.User{}, model.NewServerError(err)
	}

	user, err := a.users.Create(ctx, model.User{
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Active:       true,
		DisplayName:  displayName,
	})
	if errors.Is(err, model.ErrAlreadyExists) {
		return model.User{}, model.NewConflict("email is already taken")
	}
	if err != nil {
		a.logger.Error("Auth: failed to create user",
			"email", email,
			"error", err.Error())
		return model.User{}, model.NewServerError(err)
	}

	a.logger.Info("Auth: user registered",
		"user_id", user.ID,
		"email", user.Email)

	if a.verification != nil {
		if err := a.verification.Send(ctx, user); err != nil {
			a.logger.Warn("Auth: verification email not sent",
				"user_id", user.ID,
				"error", err.Error())
		}
	}

	return user, nil
}

// Login checks email and password and starts a new session. Unknown email,
// wrong password and disabled account all produce the same error.
func (a *Auth) Login(ctx context.Context, email, plain, clientIP string) (model.LoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || plain == "" {
		return model.LoginResult{}, model.NewBadRequest("email and password are required")
	}

	if err := a.limiter.CheckLogin(ctx, email, clientIP); err != nil {
		if errors.Is(err, model.ErrRateLimited) {
			a.logger.Security("Auth: login rate limited",
				"email", email,
				"client_ip", clientIP)
			return model.LoginResult{}, model.NewTooManyRequests("too many login attempts")
		}
		a.logger.Warn("Auth: rate limiter unavailable",
			"error", err.Error())
	}

	user, err := a.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		a.logger.Error("Auth: failed to get user",
			"email", email,
			"error", err.Error())
		return model.LoginResult{}, model.NewServerError(err)
	}

	if err != nil || !user.HasPassword() {
		a.burnVerify(plain)
		a.recordFailure(ctx, email, clientIP)
		return model.LoginResult{}, errInvalidCredentials
	}

	ok, err := a.hasher.Verify(plain, user.PasswordHash)
	if err != nil {
		a.logger.Error("Auth: stored password hash is unreadable",
			"user_id", user.ID,
			"error", err.Error())
		return model.LoginResult{}, model.NewServerError(err)
	}
	if !ok {
		a.recordFailure(ctx, email, clientIP)
		return model.LoginResult{}, errInvalidCredentials
	}
	if !user.Active {
		a.logger.Security("Auth: login to disabled account",
			"user_id", user.ID,
			"client_ip", clientIP)
		return model.LoginResult{}, errInvalidCredentials
	}

	if err := a.limiter.ResetLogin(ctx, email, clientIP); err != nil {
		a.logger.Warn("Auth: failed to reset login attempts",
			"email", email,
			"error", err.Error())
	}

	return a.tokens.Issue(ctx, user, clientIP)
}

// GoogleLogin signs a user in with a Google ID token. The Google subject is
// linked to an existing account with the same email, or a new account
// without a password is provisioned.
func (a *Auth) GoogleLogin(ctx context.Context, idToken, clientIP string) (model.LoginResult, error) {
	if a.google == nil {
		return model.LoginResult{}, model.NewNotFound("google sign-in is not enabled")
	}
	if idToken == "" {
		return model.LoginResult{}, model.NewBadRequest("id token is required")
	}

	identity, err := a.google.Verify(ctx, idToken)
	if errors.Is(err, model.ErrTokenInvalid) {
		a.logger.Security("Auth: invalid google id token",
			"client_ip", clientIP,
			"error", err.Error())
		return model.LoginResult{}, model.NewUnauthorized("invalid google token")
	}
	if err != nil {
		a.logger.Error("Auth: failed to verify google id token",
			"error", err.Error())
		return model.LoginResult{}, model.NewServerError(err)
	}

	var user model.User
	err = a.tx.WithinTx(ctx, func(ctx context.Context) error {
		user, err = a.resolveExternal(ctx, identity)
		return err
	})
	if err != nil {
		a.logger.Error("Auth: failed to resolve google identity",
			"subject", identity.Subject,
			"email", identity.Email,
			"error", err.Error())
		return model.LoginResult{}, wrapServerError(err)
	}

	if !user.Active {
		a.logger.Security("Auth: google login to disabled account",
			"user_id", user.ID,
			"client_ip", clientIP)
		return model.LoginResult{}, model.NewUnauthorized("invalid google token")
	}

	return a.tokens.Issue(ctx, user, clientIP)
}

// resolveExternal must run inside a transaction.
func (a *Auth) resolveExternal(ctx context.Context, identity model.ExternalIdentity) (model.User, error) {
	link, err := a.links.Get(ctx, identity.Provider, identity.Subject)
	if err == nil {
		user, err := a.users.GetByID(ctx, link.UserID)
		if err != nil {
			return model.User{}, fmt.Errorf("failed to get linked user: %w", err)
		}
		return user, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return model.User{}, fmt.Errorf("failed to get oauth link: %w", err)
	}

	email := normalizeEmail(identity.Email)
	user, err := a.users.GetByEmail(ctx, email)
	switch {
	case errors.Is(err, model.ErrNotFound):
		user, err = a.users.Create(ctx, model.User{
			Email:         email,
			Role:          model.RoleUser,
			EmailVerified: true,
			Active:        true,
			DisplayName:   truncateRunes(identity.Name, maxDisplayNameLength),
		})
		if err != nil {
			return model.User{}, fmt.Errorf("failed to create user: %w", err)
		}
		a.logger.Info("Auth: user provisioned from google",
			"user_id", user.ID,
			"email", user.Email)
	case err != nil:
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	case !user.EmailVerified:
		// Nobody proved ownership of this address before, so whoever set the
		// password may not be the mailbox owner. Google's word wins.
		verified, noPassword := true, ""
		user, err = a.users.Update(ctx, user.ID, model.UserUpdate{
			EmailVerified: &verified,
			PasswordHash:  &noPassword,
		})
		if err != nil {
			return model.User{}, fmt.Errorf("failed to take over unverified account: %w", err)
		}
		if err := a.tokens.RevokeAll(ctx, user.ID); err != nil {
			return model.User{}, err
		}
		a.logger.Security("Auth: unverified account claimed through google, password removed",
			"user_id", user.ID,
			"email", user.Email)
	}

	err = a.links.Create(ctx, model.OAuthLink{
		Provider: identity.Provider,
		Subject:  identity.Subject,
		UserID:   user.ID,
	})
	if err != nil {
		return model.User{}, fmt.Errorf("failed to link google account: %w", err)
	}

	return user, nil
}

// burnVerify spends the time of a real verification so that unknown emails
// cannot be told apart by response time.
func (a *Auth) burnVerify(plain string) {
	a.dummyOnce.Do(func() {
		hash, err := a.hasher.Hash("unused-password-placeholder")
		if err != nil {
			a.logger.Error("Auth: failed to prepare dummy hash",
				"error", err.Error())
			return
		}
		a.dummyHash = hash
	})
	if a.dummyHash != "" {
		_, _ = a.hasher.Verify(plain, a.dummyHash)
	}
}

func (a *Auth) recordFailure(ctx context.Context, email, clientIP string) {
	if err := a.limiter.RecordLoginFailure(ctx, email, clientIP); err != nil {
		a.logger.Warn("Auth: failed to record login failure",
			"email", email,
			"error", err.Error())
	}
}

func validateEmail(raw string) (string, error) {
	email := normalizeEmail(raw)
	if email == "" {
		return "", model.NewBadRequest("email is required")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", model.NewBadRequest("invalid email address")
	}

	return email, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
