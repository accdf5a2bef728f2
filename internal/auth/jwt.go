// Package auth verifies the bearer tokens issued by the campus identity
// provider. Tokens are HS256 JWTs carrying the user's id, email, display
// name and role.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/erazemk/lostfound/internal/model"
)

// Issuer is the iss claim of every token.
const Issuer = "lostfound"

// TokenExpiry is the default token lifetime.
const TokenExpiry = 24 * time.Hour

// Identity is the authenticated caller.
type Identity struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the identity carries the admin role.
func (id Identity) IsAdmin() bool {
	return id.Role == model.RoleAdmin
}

// User converts the identity into the profile stored in the users table.
func (id Identity) User(now time.Time) *model.User {
	return &model.User{
		ID:          id.UserID,
		Email:       id.Email,
		DisplayName: id.Name,
		StudentID:   model.DeriveStudentID(id.Email, id.Name, id.IsAdmin()),
		IsAdmin:     id.IsAdmin(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Claims represents the JWT claims.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the caller described by the claims.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.Subject, Email: c.Email, Name: c.Name, Role: c.Role}
}

// GenerateToken signs a token for id valid for ttl.
func GenerateToken(secret string, id Identity, ttl time.Duration) (string, error) {
	if id.UserID == "" || id.Email == "" {
		return "", errors.New("user id and email required")
	}
	if !model.ValidRole(id.Role) {
		return "", fmt.Errorf("invalid role %q", id.Role)
	}

	now := time.Now()
	claims := Claims{
		Email: id.Email,
		Name:  id.Name,
		Role:  id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    Issuer,
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a token, returning the caller.
func ValidateToken(secret, tokenStr string) (*Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	id := claims.Identity()
	if id.UserID == "" || id.Email == "" {
		return nil, errors.New("token missing subject or email")
	}
	if !model.ValidRole(id.Role) {
		return nil, fmt.Errorf("token has unknown role %q", id.Role)
	}
	return &id, nil
}
