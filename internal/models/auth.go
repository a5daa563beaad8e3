package models

import "github.com/golang-jwt/jwt/v5"

// UserRole distinguishes studio staff from students.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleStaff   UserRole = "STAFF"
	RoleStudent UserRole = "STUDENT"
)

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor identifies who triggers an engine operation.
type Actor struct {
	UserID string
	Role   UserRole
}

// IsStaff reports whether the actor may act on behalf of any student.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleStaff
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
