package account

import (
	"errors"
	"fmt"

	"example.com/blogger/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "blogger"

// SessionClaims is the body of a session token. The JWT ID is the
// server-side session id; Subject is the user id.
type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenProvider signs and verifies HS256 session tokens.
type TokenProvider struct {
	secret []byte
}

func NewTokenProvider(secret []byte) *TokenProvider {
	return &TokenProvider{secret: secret}
}

func (p *TokenProvider) Issue(s models.Session) (string, error) {
	claims := SessionClaims{
		Username: s.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.ID,
			Subject:   s.UserID,
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(s.Created),
			ExpiresAt: jwt.NewNumericDate(s.Expires),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// Parse verifies signature and expiry.
func (p *TokenProvider) Parse(token string) (*SessionClaims, error) {
	return p.parse(token)
}

// ParseIgnoringExpiry verifies only the signature, so expired sessions can
// still be revoked.
func (p *TokenProvider) ParseIgnoringExpiry(token string) (*SessionClaims, error) {
	return p.parse(token, jwt.WithoutClaimsValidation())
}

func (p *TokenProvider) parse(token string, opts ...jwt.ParserOption) (*SessionClaims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if !parsed.Valid || claims.ID == "" || claims.Subject == "" {
		return nil, errors.New("invalid session token claims")
	}
	return claims, nil
}
