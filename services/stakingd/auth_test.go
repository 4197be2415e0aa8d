package stakingd

import (
	"net/http"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestVerifyExtractsScopes(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "farmstake", Audience: "stakingd"}, quietLogger())
	tok, err := IssueToken(TokenRequest{
		Secret:   testSecret,
		Subject:  "treasury",
		Issuer:   "farmstake",
		Audience: "stakingd",
		Scopes:   []string{"staking:admin", "staking:read"},
	})
	require.NoError(t, err)
	got, err := auth.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, "treasury", got.Subject)
	require.True(t, got.HasScope("staking:admin"))
	require.True(t, got.HasScope("staking:read"))
}

func TestVerifyScopeArrayClaim(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret}, quietLogger())
	claims := jwt.MapClaims{
		"sub":   "ops",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"scope": []interface{}{"staking:admin", 7},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	got, err := auth.Verify(tok)
	require.NoError(t, err)
	require.Equal(t, []string{"staking:admin"}, got.Scopes)
}

func TestVerifyRejects(t *testing.T) {
	auth := NewAuthenticator(AuthConfig{HMACSecret: testSecret}, quietLogger())

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ops"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.Verify(noExp)
	require.Error(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.Verify(noSubject)
	require.Error(t, err)

	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "ops", "exp": time.Now().Add(time.Hour).Unix()}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = auth.Verify(wrongAlg)
	require.Error(t, err)

	disabled := NewAuthenticator(AuthConfig{}, quietLogger())
	require.False(t, disabled.Enabled())
	_, err = disabled.Verify("anything")
	require.Error(t, err)
}

func TestIssueTokenValidation(t *testing.T) {
	_, err := IssueToken(TokenRequest{Subject: "ops"})
	require.Error(t, err)
	_, err = IssueToken(TokenRequest{Secret: testSecret})
	require.Error(t, err)
}

func TestExtractBearer(t *testing.T) {
	require.Equal(t, "abc", extractBearer("Bearer abc"))
	require.Equal(t, "abc", extractBearer("bearer  abc "))
	require.Equal(t, "", extractBearer("Basic abc"))
	require.Equal(t, "", extractBearer("abc"))
}

func TestAccountTokensBindSubject(t *testing.T) {
	env := newTestEnv(t)
	env.prepare()
	logger := quietLogger()
	env.handler = NewServer(env.svc, ServerConfig{
		Auth:         NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: env.cfg.Admin.Issuer, Audience: env.cfg.Admin.Audience}, logger),
		BindAccounts: true,
		Logger:       logger,
	}).Handler()
	tokenFor := func(subject string) string {
		tok, err := IssueToken(TokenRequest{
			Secret:   testSecret,
			Subject:  subject,
			Issuer:   env.cfg.Admin.Issuer,
			Audience: env.cfg.Admin.Audience,
			TTL:      time.Hour,
		})
		require.NoError(t, err)
		return tok
	}

	rec := env.do(http.MethodPost, "/v1/pools/1/stake", stakeRequest{Account: accountA, Amount: "10"}, "")
	env.expectError(rec, http.StatusUnauthorized, "unauthenticated")

	rec = env.do(http.MethodPost, "/v1/pools/1/exit", stakeRequest{Account: accountA}, tokenFor(accountB))
	env.expectError(rec, http.StatusForbidden, "account_mismatch")
	rec = env.do(http.MethodPost, "/v1/pools/1/claim", stakeRequest{Account: accountA}, env.admin())
	env.expectError(rec, http.StatusForbidden, "account_mismatch")
	rec = env.do(http.MethodPost, "/v1/assets/approval", approvalRequest{Owner: accountA, Approved: new(bool)}, tokenFor(accountB))
	env.expectError(rec, http.StatusForbidden, "account_mismatch")

	var pos positionResponse
	env.ok(http.MethodPost, "/v1/pools/1/stake", stakeRequest{Account: accountA, Amount: "10"}, tokenFor(accountA), &pos)
	require.Equal(t, "10", pos.Staked)

	// Reads stay public.
	env.ok(http.MethodGet, "/v1/pools/1/accounts/"+accountA, nil, "", &pos)
	require.Equal(t, "10", pos.Staked)
}
