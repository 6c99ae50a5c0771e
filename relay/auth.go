package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrAuthInvalid  = errors.New("invalid credential")
)

// Identity is who the bearer credential belongs to.
type Identity struct {
	Subject string
	Claims  map[string]any
}

type Validator interface {
	Validate(ctx context.Context, token string) (Identity, error)
}

type ValidatorFunc func(ctx context.Context, token string) (Identity, error)

func (f ValidatorFunc) Validate(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}

var credentialParams = []string{"jwt", "access_token", "token"}

// ExtractCredential reads the bearer credential from the query string or
// the Authorization header.
func ExtractCredential(r *http.Request) (string, error) {
	q := r.URL.Query()
	for _, name := range credentialParams {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v, nil
		}
	}

	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			if v := strings.TrimSpace(parts[1]); v != "" {
				return v, nil
			}
		}
	}

	return "", ErrAuthRequired
}

type JWTOption func(*JWTValidator)

func WithAudience(audience string) JWTOption {
	return func(v *JWTValidator) {
		v.audience = audience
	}
}

func WithLeeway(leeway time.Duration) JWTOption {
	return func(v *JWTValidator) {
		v.leeway = leeway
	}
}

// JWTValidator accepts HMAC signed tokens carrying a subject and an expiry.
type JWTValidator struct {
	secret   []byte
	audience string
	leeway   time.Duration
}

func NewJWTValidator(secret []byte, opts ...JWTOption) *JWTValidator {
	v := &JWTValidator{secret: secret}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *JWTValidator) Validate(_ context.Context, token string) (Identity, error) {
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, parserOpts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrAuthInvalid, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrAuthInvalid
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrAuthInvalid)
	}

	return Identity{Subject: sub, Claims: claims}, nil
}

// IssueToken mints an HS256 token for subject, valid for ttl.
func IssueToken(secret []byte, subject, audience string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if audience != "" {
		claims["aud"] = audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
