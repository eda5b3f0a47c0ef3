package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

const minPasswordLength = 8

// Claims represents JWT payload. Subject carries the account id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AuthService handles signup, login and bearer token validation.
type AuthService struct {
	store  *Store
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAuthService builds AuthService. An empty secret is rejected.
func NewAuthService(store *Store, secret string, ttl time.Duration) (*AuthService, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthService{store: store, secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Signup creates an account and returns a session for it.
func (a *AuthService) Signup(ctx context.Context, creds model.Credentials) (*model.SessionResponse, error) {
	email := normalizeEmail(creds.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("a valid email is required")
	}
	if len(creds.Password) < minPasswordLength {
		return nil, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	acct, err := a.store.CreateAccount(ctx, email, string(hash))
	if err != nil {
		return nil, err
	}
	return a.issue(acct)
}

// Authenticate validates credentials and returns a session.
func (a *AuthService) Authenticate(ctx context.Context, creds model.Credentials) (*model.SessionResponse, error) {
	acct, err := a.store.AccountByEmail(ctx, creds.Email)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(creds.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return a.issue(acct)
}

// Validate parses a token and returns its claims if valid.
func (a *AuthService) Validate(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (a *AuthService) issue(acct *model.Account) (*model.SessionResponse, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	claims := Claims{
		Email: acct.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, err
	}
	return &model.SessionResponse{Token: signed, UserID: acct.ID, ExpiresAt: expires.UTC().Truncate(time.Second)}, nil
}
