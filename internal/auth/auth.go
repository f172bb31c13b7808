// Package auth validates bearer tokens issued by the workforce identity
// service and exposes the agent claims to handlers.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Config holds signer verification parameters.
type Config struct {
	Secret string
	Issuer string
}

// Claims is the normalized token payload. Subject is the agent id.
type Claims struct {
	Subject   string
	Role      string
	Scopes    map[string]struct{}
	ExpiresAt time.Time
}

// ErrMissingToken is returned when the Authorization header is absent.
var ErrMissingToken = errors.New("missing bearer token")

// ErrInvalidToken wraps parsing/validation errors.
var ErrInvalidToken = errors.New("invalid bearer token")

// Parse validates an HS256 JWT against the shared secret and issuer.
func Parse(token string, cfg Config) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken
	}

	keyFn := func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Secret), nil
	}
	parsed, err := jwt.Parse(token, keyFn,
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return fromMapClaims(mapClaims)
}

func fromMapClaims(mc jwt.MapClaims) (*Claims, error) {
	subject, _ := mc["sub"].(string)
	if subject == "" {
		return nil, ErrInvalidToken
	}

	exp, err := mc.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	role, _ := mc["role"].(string)
	return &Claims{
		Subject:   subject,
		Role:      role,
		Scopes:    scopeSet(mc["scopes"]),
		ExpiresAt: exp.Time,
	}, nil
}

// scopeSet accepts the scope claim as a JSON array or a space-separated
// string, which is how the identity service encodes it depending on flow.
func scopeSet(value interface{}) map[string]struct{} {
	var raw []string
	switch v := value.(type) {
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case []string:
		raw = v
	case string:
		raw = strings.Split(v, " ")
	}

	set := make(map[string]struct{}, len(raw))
	for _, scope := range raw {
		scope = strings.TrimSpace(scope)
		if scope != "" {
			set[scope] = struct{}{}
		}
	}
	return set
}

// HasScope reports whether the claim set includes the scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	_, ok := c.Scopes[scope]
	return ok
}
