package model

import "time"

// Profile is the backend's authoritative record binding a QR code to an account.
type Profile struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	QRCode    string    `json:"qr_code"`
	CreatedAt time.Time `json:"created_at"`
}

// Account is a backend login.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// VerifyRequest is the verify-qr function payload.
type VerifyRequest struct {
	QRCode string `json:"qr_code"`
}

// VerifyResponse is the verify-qr function answer.
type VerifyResponse struct {
	Valid   bool     `json:"valid"`
	Profile *Profile `json:"profile,omitempty"`
	Reason  string   `json:"reason,omitempty"`
	Message string   `json:"message,omitempty"`
}

// ProfileRequest registers a QR code for the calling account.
type ProfileRequest struct {
	Name   string `json:"name"`
	QRCode string `json:"qr_code"`
}

// Credentials is the signup/login payload.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse carries the bearer credential issued at login.
type SessionResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
