package backend

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Store is the authoritative account and profile table, backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenStore opens (or creates) the database at path.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	s := &Store{db: db, logger: logger.With("component", "profiles")}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	s.logger.Info("profile store ready", "path", path)
	return s, nil
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS profiles (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			name       TEXT NOT NULL,
			qr_code    TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES accounts(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_profiles_user ON profiles(user_id);
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateAccount inserts an account. The email must be unused.
func (s *Store) CreateAccount(ctx context.Context, email, passwordHash string) (*model.Account, error) {
	acct := &model.Account{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		acct.ID, acct.Email, acct.PasswordHash, acct.CreatedAt.Format(time.RFC3339),
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("account %s: %w", acct.Email, ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}
	s.logger.Info("account created", "account", acct.ID)
	return acct, nil
}

// AccountByEmail looks an account up for login.
func (s *Store) AccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	var (
		acct    model.Account
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE email = ?`,
		normalizeEmail(email),
	).Scan(&acct.ID, &acct.Email, &acct.PasswordHash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting account: %w", err)
	}
	acct.CreatedAt = parseTime(created)
	return &acct, nil
}

// CreateProfile binds a QR code to an account.
func (s *Store) CreateProfile(ctx context.Context, userID, name, code string) (*model.Profile, error) {
	p := &model.Profile{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		QRCode:    code,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profiles (id, user_id, name, qr_code, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.QRCode, p.CreatedAt.Format(time.RFC3339),
	)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("profile: %w", ErrDuplicate)
	}
	if err != nil {
		return nil, fmt.Errorf("creating profile: %w", err)
	}
	s.logger.Debug("profile created", "profile", p.ID, "account", userID)
	return p, nil
}

// RevokeProfile deletes the caller's profile for code.
func (s *Store) RevokeProfile(ctx context.Context, userID, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE user_id = ? AND qr_code = ?`, userID, code)
	if err != nil {
		return fmt.Errorf("revoking profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.logger.Debug("profile revoked", "account", userID)
	return nil
}

// FindProfile returns the first profile of userID holding code.
func (s *Store) FindProfile(ctx context.Context, userID, code string) (*model.Profile, error) {
	var (
		p       model.Profile
		created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, qr_code, created_at FROM profiles
		WHERE user_id = ? AND qr_code = ?
		ORDER BY created_at
		LIMIT 1
	`, userID, code).Scan(&p.ID, &p.UserID, &p.Name, &p.QRCode, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding profile: %w", err)
	}
	p.CreatedAt = parseTime(created)
	return &p, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func parseTime(value string) time.Time {
	t, _ := time.Parse(time.RFC3339, value)
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
