package stakingd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"farmstake/native/staking"
	"farmstake/observability/logging"
)

// AuthConfig configures verification of admin bearer tokens.
type AuthConfig struct {
	HMACSecret string
	Issuer     string
	Audience   string
	ScopeClaim string
	ClockSkew  time.Duration
}

type contextKey string

const contextKeyAuthorization contextKey = "stakingd.authorization"

// Authenticator verifies HS256 bearer tokens and attaches the resulting
// staking.Authorization to the request context. Scope enforcement is left to
// the engine's authorizer.
type Authenticator struct {
	cfg    AuthConfig
	secret []byte
	logger *slog.Logger
}

// NewAuthenticator constructs an authenticator. An empty secret disables
// every route it guards.
func NewAuthenticator(cfg AuthConfig, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScopeClaim == "" {
		cfg.ScopeClaim = "scope"
	}
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
	return &Authenticator{cfg: cfg, secret: []byte(strings.TrimSpace(cfg.HMACSecret)), logger: logger}
}

// Enabled reports whether a secret is configured.
func (a *Authenticator) Enabled() bool { return a != nil && len(a.secret) > 0 }

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Enabled() {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "admin interface disabled", Code: "admin_disabled"})
			return
		}
		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token", Code: "unauthenticated"})
			return
		}
		auth, err := a.Verify(token)
		if err != nil {
			a.logger.Warn("admin token rejected",
				slog.String("route", r.URL.Path),
				logging.MaskField("token", token),
				slog.Any("error", err))
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid token", Code: "unauthenticated"})
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyAuthorization, auth)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify parses and validates a token and returns the authorization it carries.
func (a *Authenticator) Verify(tokenString string) (staking.Authorization, error) {
	if !a.Enabled() {
		return staking.Authorization{}, errors.New("auth secret not configured")
	}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.cfg.ClockSkew),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.cfg.Issuer))
	}
	if a.cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.cfg.Audience))
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return staking.Authorization{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return staking.Authorization{}, errors.New("token invalid")
	}
	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return staking.Authorization{}, errors.New("token missing subject")
	}
	return staking.Authorization{Subject: subject, Scopes: extractScopes(claims, a.cfg.ScopeClaim)}, nil
}

func authorizationFrom(ctx context.Context) staking.Authorization {
	auth, _ := ctx.Value(contextKeyAuthorization).(staking.Authorization)
	return auth
}

func extractScopes(claims jwt.MapClaims, scopeClaim string) []string {
	raw, ok := claims[scopeClaim]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// TokenRequest describes an admin token to mint.
type TokenRequest struct {
	Secret   string
	Subject  string
	Issuer   string
	Audience string
	Scopes   []string
	TTL      time.Duration
	Now      time.Time
}

// IssueToken signs an HS256 admin token accepted by Authenticator.
func IssueToken(req TokenRequest) (string, error) {
	secret := strings.TrimSpace(req.Secret)
	if secret == "" {
		return "", errors.New("token secret required")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return "", errors.New("token subject required")
	}
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := jwt.MapClaims{
		"sub":   req.Subject,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"scope": strings.Join(req.Scopes, " "),
	}
	if req.Issuer != "" {
		claims["iss"] = req.Issuer
	}
	if req.Audience != "" {
		claims["aud"] = req.Audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
