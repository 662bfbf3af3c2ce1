package service

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/identity-server/internal/mocks"
	"github.com/dtroode/identity-server/internal/model"
	"github.com/dtroode/identity-server/internal/password"
	"github.com/dtroode/identity-server/internal/repository/memory"
	"github.com/dtroode/identity-server/internal/testutil"
	"github.com/dtroode/identity-server/internal/token"
)

const testBaseURL = "https://id.example.com"

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// outbox collects mails passed to a mocks.Mailer.
type outbox struct {
	mu   sync.Mutex
	sent []model.Message
}

func (o *outbox) last(t *testing.T) model.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.sent, "no mail was sent")
	return o.sent[len(o.sent)-1]
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sent)
}

// linkToken extracts the token query parameter from a mailed link.
func linkToken(t *testing.T, msg model.Message) string {
	t.Helper()
	i := strings.Index(msg.Body, testBaseURL)
	require.GreaterOrEqual(t, i, 0, "mail has no link")
	u, err := url.Parse(strings.TrimSpace(msg.Body[i:]))
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

type testEnv struct {
	store    *memory.Store
	clock    *clock
	codec    *token.Codec
	hasher   *password.Hasher
	sessions *SessionManager
	tokens   *TokenService
	verify   *EmailVerification
	reset    *PasswordReset
	auth     *Auth
	account  *Account
	limiter  *mocks.RateLimiter
	mailer   *mocks.Mailer
	google   *mocks.IdentityVerifier
	storage  *mocks.Storage
	outbox   *outbox
}

func newTestHasher(t *testing.T) *password.Hasher {
	t.Helper()
	h, err := password.NewHasher(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   16,
		MinLength:   8,
	})
	require.NoError(t, err)
	return h
}

func newTestCodec(t *testing.T, clk *clock) *token.Codec {
	t.Helper()
	c, err := token.NewCodec(token.Config{
		Issuer: "identity-test",
		Secrets: map[model.TokenClass]string{
			model.TokenAccess:  "access-secret",
			model.TokenRefresh: "refresh-secret",
			model.TokenReset:   "reset-secret",
			model.TokenVerify:  "verify-secret",
		},
		Now: clk.Now,
	})
	require.NoError(t, err)
	return c
}

// newTestEnv wires every service against an in-memory store. The limiter
// allows everything and the mailer records messages unless a test
// overrides the expectations.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:   memory.NewStore(),
		clock:   &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		limiter: &mocks.RateLimiter{},
		mailer:  &mocks.Mailer{},
		google:  &mocks.IdentityVerifier{},
		storage: &mocks.Storage{},
		outbox:  &outbox{},
	}
	log := testutil.MakeNoopLogger()

	env.codec = newTestCodec(t, env.clock)
	env.hasher = newTestHasher(t)

	env.limiter.On("CheckLogin", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	env.limiter.On("RecordLoginFailure", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	env.limiter.On("ResetLogin", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	env.limiter.On("CheckPasswordReset", mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	env.mailer.On("Send", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		env.outbox.mu.Lock()
		env.outbox.sent = append(env.outbox.sent, args.Get(1).(model.Message))
		env.outbox.mu.Unlock()
	}).Return(nil).Maybe()

	users := env.store.Users()
	env.sessions = NewSessionManager(env.store.Sessions(), env.store.Users(), log)
	env.sessions.now = env.clock.Now
	env.tokens = NewTokenService(env.codec, users, env.store.RefreshTokens(), env.sessions, env.store, log)
	env.tokens.now = env.clock.Now
	env.verify = NewEmailVerification(env.codec, users, env.store.OneTimeTokens(), env.tokens, env.mailer, env.store, testBaseURL, log)
	env.reset = NewPasswordReset(env.codec, users, env.store.OneTimeTokens(), env.tokens, env.hasher, env.limiter, env.mailer, env.store, testBaseURL, log)
	env.auth = NewAuth(users, env.store.OAuthLinks(), env.tokens, env.hasher, env.limiter, env.google, env.verify, env.store, log)
	env.account = NewAccount(users, env.tokens, env.hasher, env.storage, env.store, log)

	return env
}

func (e *testEnv) register(t *testing.T, email, plain string) model.User {
	t.Helper()
	user, err := e.auth.Register(context.Background(), email, plain, "")
	require.NoError(t, err)
	return user
}

func (e *testEnv) login(t *testing.T, email, plain string) model.LoginResult {
	t.Helper()
	res, err := e.auth.Login(context.Background(), email, plain, "203.0.113.7")
	require.NoError(t, err)
	return res
}

func (e *testEnv) activeCounts(t *testing.T, userID int64) (int, int) {
	t.Helper()
	ctx := context.Background()
	tokens, err := e.store.RefreshTokens().ActiveCount(ctx, userID)
	require.NoError(t, err)
	sessions, err := e.store.Sessions().ActiveCount(ctx, userID)
	require.NoError(t, err)
	return tokens, sessions
}
