package types

import "time"

// UserRole represents the fixed role a portal user holds
type UserRole string

const (
	RoleDoctor        UserRole = "doctor"
	RoleLabTechnician UserRole = "lab_technician"
	RoleAdmin         UserRole = "admin"
)

// Valid reports whether r is one of the known roles
func (r UserRole) Valid() bool {
	switch r {
	case RoleDoctor, RoleLabTechnician, RoleAdmin:
		return true
	}
	return false
}

// DisplayName is the label shown next to a user's name in the login picker
func (r UserRole) DisplayName() string {
	switch r {
	case RoleDoctor:
		return "Doctor"
	case RoleLabTechnician:
		return "Lab Technician"
	case RoleAdmin:
		return "Admin"
	}
	return string(r)
}

// LandingPath is where a freshly authenticated user is sent
func (r UserRole) LandingPath() string {
	switch r {
	case RoleDoctor:
		return "/doctor/submit"
	case RoleLabTechnician:
		return "/lab/queue"
	}
	return "/dashboard"
}

// User represents a portal user. PIN holds either the plain PIN or its bcrypt
// hash depending on how the deployment is configured.
type User struct {
	ID                string    `json:"id" db:"id"`
	Username          string    `json:"username" db:"username"`
	FullName          string    `json:"full_name" db:"full_name"`
	Role              UserRole  `json:"role" db:"role"`
	PIN               string    `json:"-" db:"pin_code"`
	IsActive          bool      `json:"is_active" db:"is_active"`
	ReadingCentreCode string    `json:"reading_centre_code,omitempty" db:"reading_centre_code"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// UserClaims represents the identity carried by a session token
type UserClaims struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	FullName  string    `json:"full_name"`
	Role      UserRole  `json:"role"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

// Credentials represents user login credentials
type Credentials struct {
	Username string `json:"username" form:"username" binding:"required"`
	PIN      string `json:"pin" form:"pin" binding:"required"`
}

// AuthToken represents authentication token response
type AuthToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
}

// LoginResult is what a successful login hands back to the client
type LoginResult struct {
	Token   *AuthToken  `json:"token"`
	User    *UserClaims `json:"user"`
	Landing string      `json:"landing"`
}

// LoginOption is one entry of the login user picker
type LoginOption struct {
	Username string `json:"username"`
	Label    string `json:"label"`
}

// UserRegistrationRequest is the admin payload for creating a user
type UserRegistrationRequest struct {
	Username          string   `json:"username"`
	FullName          string   `json:"full_name"`
	Role              UserRole `json:"role"`
	PIN               string   `json:"pin"`
	ReadingCentreCode string   `json:"reading_centre_code,omitempty"`
}
