package auth

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingToken is returned when no bearer credential was presented.
	ErrMissingToken = errors.New("missing token")
	// ErrInvalidToken is returned for malformed, expired or badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the verified principal behind a token.
type Identity struct {
	Username string
}

// Verifier checks tokens signed with the process-wide secret.
type Verifier struct {
	cfg *JWTConfig
}

// NewVerifier builds a verifier for cfg.
func NewVerifier(cfg *JWTConfig) *Verifier {
	return &Verifier{cfg: cfg}
}

// Verify validates token and extracts the identity it was issued for.
func (v *Verifier) Verify(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	claims, err := ValidateToken(v.cfg, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	username := claims.Username
	if username == "" {
		username = claims.Subject
	}
	if username == "" {
		return Identity{}, fmt.Errorf("%w: no username claim", ErrInvalidToken)
	}
	return Identity{Username: username}, nil
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>" header value.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || scheme != "Bearer" {
		return "", fmt.Errorf("%w: expected Bearer scheme", ErrInvalidToken)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
