// Package identity resolves the caller's identity from the auth provider's
// JWTs. The provider owns issuance and refresh; this service only verifies.
package identity

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the resolved caller. A nil *Identity means anonymous.
type Identity struct {
	UserID string
	Email  string
}

// Verifier validates tokens issued by the external auth provider.
type Verifier struct {
	secret     []byte
	cookieName string
}

func NewVerifier(secret, cookieName string) *Verifier {
	return &Verifier{secret: []byte(secret), cookieName: cookieName}
}

// FromRequest resolves the caller from the Authorization header or the auth
// cookie. Missing or invalid credentials resolve to anonymous, not an error:
// the gate treats them the same and the app's own handlers enforce auth.
func (v *Verifier) FromRequest(r *http.Request) *Identity {
	token := bearerToken(r)
	if token == "" && v.cookieName != "" {
		if c, err := r.Cookie(v.cookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return nil
	}

	ident, err := v.Verify(token)
	if err != nil {
		return nil
	}
	return ident
}

// Verify parses and validates a token, returning the identity it carries.
func (v *Verifier) Verify(tokenStr string) (*Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("unexpected claims type")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	email, _ := claims["email"].(string)

	return &Identity{UserID: sub, Email: email}, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}
