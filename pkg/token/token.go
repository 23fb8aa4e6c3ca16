package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenType token_type 值, 其他型別 (refresh) 不能用於連線
const AccessTokenType = "access"

var (
	// ErrInvalidToken malformed, expired or signature mismatch
	ErrInvalidToken = errors.New("invalid token")
	// ErrSubjectMissing token 未帶 user_id
	ErrSubjectMissing = errors.New("token subject missing")
)

// Claims structure for custom claims in JWT
type Claims struct {
	UserID    int64  `json:"user_id"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// Manager sign and validate HS256 access tokens
type Manager struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewManager create token Manager
func NewManager(secret, issuer string, leeway time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
		leeway: leeway,
	}
}

// Generate generates an access token for userID
func (m *Manager) Generate(userID int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:    userID,
		TokenType: AccessTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse parses a JWT and extracts the Claims
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.leeway),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Validate check token and return the subject user id
func (m *Manager) Validate(tokenStr string) (int64, error) {
	claims, err := m.Parse(tokenStr)
	if err != nil {
		return 0, err
	}
	if claims.TokenType != "" && claims.TokenType != AccessTokenType {
		return 0, fmt.Errorf("%w: token_type %q", ErrInvalidToken, claims.TokenType)
	}
	if claims.UserID <= 0 {
		return 0, ErrSubjectMissing
	}
	return claims.UserID, nil
}

// FromAuthorizationHeader strip "Bearer " prefix, 空字串表示沒有帶
func FromAuthorizationHeader(h string) string {
	if len(h) < 7 || !strings.EqualFold(h[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
