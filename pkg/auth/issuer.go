// Package auth issues and verifies the short-lived JWTs that authenticate
// this client to a Mapbox MCP server.
//
// The server verifies tokens with a shared symmetric secret, so the
// signing algorithm is fixed at HS256. Claims carry the permission scopes
// granted to the token alongside the standard registered claims.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Defaults used when the corresponding Config field is empty. The server
// validates iss and aud against its own configuration, so these must match
// what the server was deployed with.
const (
	DefaultIssuer   = "mapbox-mcp-server"
	DefaultAudience = "mapbox-mcp-server"
	DefaultSubject  = "pydantic-ai-client"
	DefaultTTL      = time.Hour
)

// DefaultScopes is the permission set granted when the caller requests none.
var DefaultScopes = []string{"mapbox:*"}

// ErrMissingSecret is returned by NewIssuer when no signing secret is
// configured. No valid credential can ever be minted without one, so this
// is fatal and never worth retrying.
var ErrMissingSecret = errors.New("auth: signing secret is required (set JWT_SECRET)")

// Claims are the JWT claims carried by a client credential.
type Claims struct {
	jwt.RegisteredClaims
	Permissions []string `json:"permissions"`
}

// Issuer mints Claims signed with a shared HS256 secret.
type Issuer struct {
	secret   []byte
	issuer   string
	audience string
	subject  string
	ttl      time.Duration
}

// Config configures an Issuer. Secret is required; every other field
// falls back to its Default* constant when empty.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	Subject  string
	TTL      time.Duration
}

// NewIssuer creates an Issuer from cfg.
// It fails with ErrMissingSecret when cfg.Secret is empty.
func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSecret
	}
	i := &Issuer{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		subject:  cfg.Subject,
		ttl:      cfg.TTL,
	}
	if i.issuer == "" {
		i.issuer = DefaultIssuer
	}
	if i.audience == "" {
		i.audience = DefaultAudience
	}
	if i.subject == "" {
		i.subject = DefaultSubject
	}
	if i.ttl == 0 {
		i.ttl = DefaultTTL
	}
	return i, nil
}

// Issue creates a signed token granting the given permission scopes.
// A zero ttl uses the issuer's configured lifetime; nil scopes grant
// DefaultScopes. iat and nbf are both set to the current time.
func (i *Issuer) Issue(scopes []string, ttl time.Duration) (string, error) {
	if scopes == nil {
		scopes = DefaultScopes
	}
	if ttl == 0 {
		ttl = i.ttl
	}

	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   i.subject,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Permissions: scopes,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// AuthorizationHeader issues a token and wraps it as a Bearer header,
// ready to merge into an outbound request's header set.
func (i *Issuer) AuthorizationHeader(scopes []string, ttl time.Duration) (map[string]string, error) {
	token, err := i.Issue(scopes, ttl)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + token}, nil
}

// Verify parses and validates a token minted with the same secret,
// issuer, and audience, returning its claims on success.
func (i *Issuer) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// TTL returns the configured default token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }
