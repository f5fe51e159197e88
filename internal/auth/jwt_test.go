package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func TestJWTVerifierRoundTrip(t *testing.T) {
	tok, err := Sign(testSecret, Identity{
		UserRef:      "auth0|abc",
		DisplayName:  "Ada",
		Role:         "admin",
		Capabilities: []string{CapabilityAdmin},
	}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	id, err := NewJWTVerifier(testSecret).Verify(tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.UserRef != "auth0|abc" {
		t.Errorf("UserRef = %q, want %q", id.UserRef, "auth0|abc")
	}
	if id.DisplayName != "Ada" {
		t.Errorf("DisplayName = %q, want %q", id.DisplayName, "Ada")
	}
	if len(id.Capabilities) != 1 || id.Capabilities[0] != CapabilityAdmin {
		t.Errorf("Capabilities = %v, want [%s]", id.Capabilities, CapabilityAdmin)
	}
}

func TestJWTVerifierRejects(t *testing.T) {
	v := NewJWTVerifier(testSecret)

	wrongSecret, _ := Sign("other-secret", Identity{UserRef: "u"}, time.Hour)
	expired, _ := Sign(testSecret, Identity{UserRef: "u"}, -time.Hour)
	noSubject, _ := Sign(testSecret, Identity{}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "u",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", wrongSecret},
		{"expired", expired},
		{"no subject", noSubject},
		{"alg none", none},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}
