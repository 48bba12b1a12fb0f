package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Identity is an account undergoing email verification. The resend-attempt
// counter and last-sent timestamp pair drive the exponential cooldowns and
// must only be mutated through the verification service.
type Identity struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	Disabled           bool      `json:"disabled"`
	Verified           bool      `json:"verified"`
	CodeHash           string    `json:"-"`
	ResendAttempts     int       `json:"resend_attempts"`
	LastCodeSentAt     int64     `json:"last_code_sent_at"` // epoch millis, 0 = never sent
	ConnectedAccountID string    `json:"connected_account_id,omitempty"`
	Version            int64     `json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Disabled bool   `json:"-"`
}

type LoginRequest struct {
	Identifier string `json:"identifier"` // username or email
	Password   string `json:"password"`
}

type LoginResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	ExpiresIn    int64         `json:"expires_in"`
	Identity     *IdentityInfo `json:"identity"`
}

type IdentityInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

type VerifyRequest struct {
	Username string `json:"username"`
	Code     int64  `json:"code"`
}

type ChangeEmailRequest struct {
	Username string `json:"username"`
	NewEmail string `json:"new_email"`
}

// Verification code bounds: exactly eight digits.
const (
	MinVerificationCode = 10000000
	MaxVerificationCode = 99999999
)

var emailRegex = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

func IsValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

func (r *RegisterRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
}

func (r *RegisterRequest) Validate() error {
	if r.Username == "" {
		return fmt.Errorf("username is required")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	if len(r.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}

func (r *LoginRequest) Normalize() {
	r.Identifier = strings.TrimSpace(r.Identifier)
}

func (r *LoginRequest) Validate() error {
	if r.Identifier == "" {
		return fmt.Errorf("identifier is required")
	}
	if r.Password == "" {
		return fmt.Errorf("password is required")
	}
	return nil
}

// ToInfo strips credential material for API responses.
func (i *Identity) ToInfo() *IdentityInfo {
	return &IdentityInfo{
		ID:       i.ID,
		Username: i.Username,
		Email:    i.Email,
		Verified: i.Verified,
	}
}
