package models

import "github.com/golang-jwt/jwt/v5"

// Dashboard roles
const (
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

// TokenClaims are the JWT claims for dashboard access tokens
type TokenClaims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}
