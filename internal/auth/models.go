package auth

import (
	"errors"
	"time"
)

// DefaultStatus is the greeting a new account starts with.
const DefaultStatus = "Merhaba! Mekanda kullanıyorum."

var (
	ErrMissingFields      = errors.New("email, username, password required")
	ErrAccountExists      = errors.New("email or username already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token invalid")
)

type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	FullName      string    `json:"full_name"`
	AvatarURL     string    `json:"avatar_url"`
	Status        string    `json:"status"`
	AllowMessages bool      `json:"allow_messages"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type RegisterRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FullName  string `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
	Status    string `json:"status"`
	// AllowMessages defaults to true when omitted.
	AllowMessages *bool `json:"allow_messages"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Session is what register and login hand back: the account as other
// users see it in venues and chat, plus fresh tokens.
type Session struct {
	User   User          `json:"user"`
	Tokens TokenResponse `json:"tokens"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
