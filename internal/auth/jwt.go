package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is what a verified token says about its bearer.
type Identity struct {
	UserRef      string
	DisplayName  string
	Role         string
	Capabilities []string
}

// Verifier turns a bearer token into an identity.
type Verifier interface {
	Verify(token string) (*Identity, error)
}

// Claims is the token payload issued by the identity provider.
type Claims struct {
	Name string   `json:"name,omitempty"`
	Role string   `json:"role,omitempty"`
	Caps []string `json:"caps,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

func (v *JWTVerifier) Verify(tokenStr string) (*Identity, error) {
	var claims Claims
	token, err := v.parser.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{
		UserRef:      claims.Subject,
		DisplayName:  claims.Name,
		Role:         claims.Role,
		Capabilities: claims.Caps,
	}, nil
}

// Sign issues a token for id that expires after ttl. It backs local tooling
// and tests; production tokens come from the identity provider.
func Sign(secret string, id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: id.DisplayName,
		Role: id.Role,
		Caps: id.Capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserRef,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}
