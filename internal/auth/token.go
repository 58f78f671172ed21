package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/satymtripathi/microbiology/pkg/types"
)

// SessionClaims is the JWT body of a portal session
type SessionClaims struct {
	Username string `json:"username"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and validates HS256 session tokens
type TokenManager struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenManager creates a token manager
func NewTokenManager(secret, issuer, audience string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Issue signs a new session for user
func (tm *TokenManager) Issue(user *types.User) (*types.AuthToken, *types.UserClaims, error) {
	now := tm.now()
	expires := now.Add(tm.ttl)

	registered := jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   user.ID,
		Issuer:    tm.issuer,
		ExpiresAt: jwt.NewNumericDate(expires),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	if tm.audience != "" {
		registered.Audience = jwt.ClaimStrings{tm.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &SessionClaims{
		Username:         user.Username,
		FullName:         user.FullName,
		Role:             string(user.Role),
		RegisteredClaims: registered,
	})
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to sign token: %w", err)
	}

	claims := &types.UserClaims{
		UserID:    user.ID,
		Username:  user.Username,
		FullName:  user.FullName,
		Role:      user.Role,
		TokenID:   registered.ID,
		ExpiresAt: expires,
	}
	return &types.AuthToken{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int64(tm.ttl.Seconds()),
		IssuedAt:    now,
	}, claims, nil
}

// Validate parses a token and returns its identity. Expiry, issuer,
// audience and signing method are all enforced.
func (tm *TokenManager) Validate(tokenString string) (*types.UserClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
		jwt.WithExpirationRequired(),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}
	if tm.audience != "" {
		opts = append(opts, jwt.WithAudience(tm.audience))
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	role := types.UserRole(claims.Role)
	if claims.Subject == "" || claims.ID == "" || !role.Valid() {
		return nil, errors.New("invalid token claims")
	}

	return &types.UserClaims{
		UserID:    claims.Subject,
		Username:  claims.Username,
		FullName:  claims.FullName,
		Role:      role,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// TTL is the lifetime of issued tokens
func (tm *TokenManager) TTL() time.Duration { return tm.ttl }
