package backend

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/gofiber/fiber/v2"
)

const localsAccount = "account"

// Server exposes the verification backend: accounts, profiles and the
// verify-qr function.
type Server struct {
	app    *fiber.App
	store  *Store
	auth   *AuthService
	addr   string
	logger *slog.Logger
}

// NewServer builds the backend HTTP server.
func NewServer(addr string, store *Store, auth *AuthService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	app := fiber.New(fiber.Config{
		AppName:               "qr-alarm-verifier",
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          15 * time.Second,
		DisableStartupMessage: true,
	})
	s := &Server{app: app, store: store, auth: auth, addr: addr, logger: logger.With("component", "verifier")}
	s.registerRoutes()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens and serves HTTP traffic.
func (s *Server) Start() error {
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.handleHealth)

	s.app.Post("/auth/signup", s.handleSignup)
	s.app.Post("/auth/login", s.handleLogin)

	s.app.Post("/profiles", s.requireAuth, s.handleCreateProfile)
	s.app.Post("/profiles/revoke", s.requireAuth, s.handleRevokeProfile)

	s.app.Post("/functions/verify-qr", s.requireAuth, s.handleVerifyQR)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"status": "degraded", "error": err.Error()})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleSignup(c *fiber.Ctx) error {
	var creds model.Credentials
	if err := c.BodyParser(&creds); err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid request body")
	}
	session, err := s.auth.Signup(c.UserContext(), creds)
	if errors.Is(err, ErrDuplicate) {
		return s.fail(c, http.StatusConflict, "email already registered")
	}
	if err != nil {
		return s.fail(c, http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(session)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var creds model.Credentials
	if err := c.BodyParser(&creds); err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid request body")
	}
	session, err := s.auth.Authenticate(c.UserContext(), creds)
	if errors.Is(err, ErrInvalidCredentials) {
		return s.fail(c, http.StatusUnauthorized, err.Error())
	}
	if err != nil {
		s.logger.Error("login failed", "error", err)
		return s.fail(c, http.StatusInternalServerError, "login failed")
	}
	return c.JSON(session)
}

func (s *Server) handleCreateProfile(c *fiber.Ctx) error {
	var req model.ProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid request body")
	}
	req.QRCode = strings.TrimSpace(req.QRCode)
	if req.QRCode == "" {
		return s.fail(c, http.StatusBadRequest, "qr_code is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = req.QRCode
	}
	profile, err := s.store.CreateProfile(c.UserContext(), accountID(c), name, req.QRCode)
	if errors.Is(err, ErrDuplicate) {
		return s.fail(c, http.StatusConflict, "qr_code already registered")
	}
	if err != nil {
		s.logger.Error("create profile failed", "error", err)
		return s.fail(c, http.StatusInternalServerError, "create profile failed")
	}
	return c.Status(http.StatusCreated).JSON(profile)
}

func (s *Server) handleRevokeProfile(c *fiber.Ctx) error {
	var req model.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.QRCode) == "" {
		return s.fail(c, http.StatusBadRequest, "qr_code is required")
	}
	err := s.store.RevokeProfile(c.UserContext(), accountID(c), req.QRCode)
	if errors.Is(err, ErrNotFound) {
		return s.fail(c, http.StatusNotFound, "profile not found")
	}
	if err != nil {
		s.logger.Error("revoke profile failed", "error", err)
		return s.fail(c, http.StatusInternalServerError, "revoke profile failed")
	}
	return c.SendStatus(http.StatusNoContent)
}

// handleVerifyQR answers whether the caller owns a profile for qr_code.
func (s *Server) handleVerifyQR(c *fiber.Ctx) error {
	var req model.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(http.StatusBadRequest).JSON(model.VerifyResponse{Reason: "missing_qr"})
	}
	if req.QRCode == "" {
		return c.Status(http.StatusBadRequest).JSON(model.VerifyResponse{Reason: "missing_qr"})
	}
	profile, err := s.store.FindProfile(c.UserContext(), accountID(c), req.QRCode)
	if errors.Is(err, ErrNotFound) {
		return c.JSON(model.VerifyResponse{Valid: false})
	}
	if err != nil {
		s.logger.Error("verify lookup failed", "error", err)
		return c.Status(http.StatusInternalServerError).JSON(model.VerifyResponse{Reason: "db_error", Message: err.Error()})
	}
	return c.JSON(model.VerifyResponse{Valid: true, Profile: profile})
}

func (s *Server) requireAuth(c *fiber.Ctx) error {
	token := extractBearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		return s.fail(c, http.StatusUnauthorized, "missing bearer token")
	}
	claims, err := s.auth.Validate(token)
	if err != nil {
		return s.fail(c, http.StatusUnauthorized, "session expired")
	}
	c.Locals(localsAccount, claims.Subject)
	return c.Next()
}

func (s *Server) fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}

func accountID(c *fiber.Ctx) string {
	id, _ := c.Locals(localsAccount).(string)
	return id
}

func extractBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
