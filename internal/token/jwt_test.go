package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/identity-server/internal/model"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestCodec(t *testing.T) (*Codec, *clock) {
	t.Helper()

	clk := &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c, err := NewCodec(Config{
		Issuer: "identity-test",
		Secrets: map[model.TokenClass]string{
			model.TokenAccess:  "access-secret",
			model.TokenRefresh: "refresh-secret",
			model.TokenReset:   "reset-secret",
			model.TokenVerify:  "verify-secret",
		},
		TTLs: map[model.TokenClass]time.Duration{
			model.TokenAccess:  15 * time.Minute,
			model.TokenRefresh: 14 * 24 * time.Hour,
		},
		Now: clk.Now,
	})
	require.NoError(t, err)

	return c, clk
}

func testUser() model.User {
	return model.User{ID: 7, UUID: uuid.New(), Email: "alice@example.com"}
}

func TestNewCodec_Validation(t *testing.T) {
	_, err := NewCodec(Config{Issuer: "x", Secrets: map[model.TokenClass]string{model.TokenAccess: "a"}})
	require.Error(t, err)

	_, err = NewCodec(Config{Secrets: map[model.TokenClass]string{
		model.TokenAccess: "a", model.TokenRefresh: "b", model.TokenReset: "c", model.TokenVerify: "d",
	}})
	require.Error(t, err)
}

func TestNewCodec_DefaultTTLs(t *testing.T) {
	c, _ := newTestCodec(t)

	assert.Equal(t, time.Hour, c.TTL(model.TokenReset))
	assert.Equal(t, 24*time.Hour, c.TTL(model.TokenVerify))
	assert.Equal(t, 15*time.Minute, c.TTL(model.TokenAccess))
}

func TestCodec_AccessRoundtrip(t *testing.T) {
	c, _ := newTestCodec(t)
	u := testUser()

	access, err := c.IssueAccess(u)
	require.NoError(t, err)

	got, err := c.Verify(access, model.TokenAccess)
	require.NoError(t, err)
	assert.Equal(t, u.UUID, got.UUID)
	assert.Equal(t, u.Email, got.Email)
	assert.Empty(t, got.TokenID)
}

func TestCodec_RefreshRoundtrip(t *testing.T) {
	c, _ := newTestCodec(t)
	u := testUser()

	refresh, jti, err := c.IssueRefresh(u)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, jti)

	got, err := c.Verify(refresh, model.TokenRefresh)
	require.NoError(t, err)
	assert.Equal(t, u.UUID, got.UUID)
	assert.Equal(t, jti.String(), got.TokenID)
	assert.Equal(t, "identity-test", got.Issuer)
}

func TestCodec_OneTimeRoundtrip(t *testing.T) {
	c, _ := newTestCodec(t)
	u := testUser()

	for _, class := range []model.TokenClass{model.TokenReset, model.TokenVerify} {
		tok, jti, err := c.IssueOneTime(u, class)
		require.NoError(t, err)

		got, err := c.Verify(tok, class)
		require.NoError(t, err)
		assert.Equal(t, jti.String(), got.TokenID)
	}

	_, _, err := c.IssueOneTime(u, model.TokenAccess)
	require.Error(t, err)
}

func TestCodec_ClassesAreNotInterchangeable(t *testing.T) {
	c, _ := newTestCodec(t)
	u := testUser()

	access, err := c.IssueAccess(u)
	require.NoError(t, err)
	refresh, _, err := c.IssueRefresh(u)
	require.NoError(t, err)
	reset, _, err := c.IssueOneTime(u, model.TokenReset)
	require.NoError(t, err)

	_, err = c.Verify(access, model.TokenRefresh)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)

	_, err = c.Verify(refresh, model.TokenAccess)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)

	_, err = c.Verify(reset, model.TokenVerify)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestCodec_SameSecretWrongType(t *testing.T) {
	c, _ := newTestCodec(t)
	u := testUser()

	// signed with the access secret but claims to be a refresh token
	forged, err := c.Sign(model.Payload{UUID: u.UUID, Email: u.Email}, model.TokenAccess, time.Minute)
	require.NoError(t, err)
	c.secrets[model.TokenRefresh] = c.secrets[model.TokenAccess]

	_, err = c.Verify(forged, model.TokenRefresh)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestCodec_Expiry(t *testing.T) {
	c, clk := newTestCodec(t)
	u := testUser()

	access, err := c.IssueAccess(u)
	require.NoError(t, err)

	clk.Advance(14 * time.Minute)
	_, err = c.Verify(access, model.TokenAccess)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = c.Verify(access, model.TokenAccess)
	assert.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestCodec_ExpiredWithBadSignatureIsInvalid(t *testing.T) {
	c, clk := newTestCodec(t)
	u := testUser()

	other, err := NewCodec(Config{
		Issuer: "identity-test",
		Secrets: map[model.TokenClass]string{
			model.TokenAccess: "other", model.TokenRefresh: "other",
			model.TokenReset: "other", model.TokenVerify: "other",
		},
		Now: clk.Now,
	})
	require.NoError(t, err)

	access, err := other.IssueAccess(u)
	require.NoError(t, err)

	clk.Advance(time.Hour)
	_, err = c.Verify(access, model.TokenAccess)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestCodec_Tampered(t *testing.T) {
	c, _ := newTestCodec(t)

	access, err := c.IssueAccess(testUser())
	require.NoError(t, err)

	_, err = c.Verify(access+"x", model.TokenAccess)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)

	_, err = c.Verify("not-a-token", model.TokenAccess)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestCodec_RejectsNoneAlgorithm(t *testing.T) {
	c, clk := newTestCodec(t)
	u := testUser()

	tok := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clk.Now().Add(time.Hour))},
		UUID:             u.UUID,
		TokenType:        string(model.TokenAccess),
	})
	s, err := tok.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.Verify(s, model.TokenAccess)
	assert.ErrorIs(t, err, model.ErrTokenInvalid)
}

func TestCodec_RefreshForeignIssuer(t *testing.T) {
	c, _ := newTestCodec(t)
	u := testUser()

	payload := u.Public()
	payload.Issuer = "someone-else"
	payload.TokenID = uuid.NewString()
	tok, err := c.Sign(payload, model.TokenRefresh, time.Hour)
	require.NoError(t, err)

	_, err = c.Verify(tok, model.TokenRefresh)
	assert.ErrorIs(t, err, model.ErrTokenForbidden)
}

func TestCodec_RefreshWithoutJTI(t *testing.T) {
	c, _ := newTestCodec(t)
	u := testUser()

	payload := u.Public()
	payload.Issuer = c.Issuer()
	tok, err := c.Sign(payload, model.TokenRefresh, time.Hour)
	require.NoError(t, err)

	_, err = c.Verify(tok, model.TokenRefresh)
	assert.ErrorIs(t, err, model.ErrTokenForbidden)
}
