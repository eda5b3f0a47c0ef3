package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bark-labs/qr-alarm/internal/alarmstore"
	"github.com/bark-labs/qr-alarm/internal/barkclient"
	"github.com/bark-labs/qr-alarm/internal/config"
	"github.com/bark-labs/qr-alarm/internal/identity"
	"github.com/bark-labs/qr-alarm/internal/lifecycle"
	"github.com/bark-labs/qr-alarm/internal/metrics"
	"github.com/bark-labs/qr-alarm/internal/model"
	"github.com/bark-labs/qr-alarm/internal/scan"
	"github.com/bark-labs/qr-alarm/internal/service"
	"github.com/bark-labs/qr-alarm/internal/verify"
	"github.com/bark-labs/qr-alarm/internal/verifyclient"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// Deps are the collaborators the device API drives.
type Deps struct {
	Alarms   *service.AlarmService
	Engine   *lifecycle.Engine
	Identity *identity.Binding
	Decoder  scan.Decoder
	Bark     *barkclient.Client
	Verifier *verifyclient.Client
	Metrics  *metrics.Recorder
	Logger   *slog.Logger
}

// Server wires HTTP handlers.
type Server struct {
	app      *fiber.App
	alarms   *service.AlarmService
	engine   *lifecycle.Engine
	identity *identity.Binding
	decoder  scan.Decoder
	bark     *barkclient.Client
	verifier *verifyclient.Client
	metrics  *metrics.Recorder
	cfg      *config.Config
	logger   *slog.Logger
}

// New builds a server instance.
func New(cfg *config.Config, deps Deps) *Server {
	app := fiber.New(fiber.Config{
		IdleTimeout:           cfg.HTTP.ReadTimeout,
		ReadTimeout:           cfg.HTTP.ReadTimeout,
		WriteTimeout:          cfg.HTTP.WriteTimeout,
		AppName:               "qr-alarm",
		DisableStartupMessage: true,
	})
	if deps.Decoder == nil {
		deps.Decoder = scan.ImageDecoder{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{
		app:      app,
		alarms:   deps.Alarms,
		engine:   deps.Engine,
		identity: deps.Identity,
		decoder:  deps.Decoder,
		bark:     deps.Bark,
		verifier: deps.Verifier,
		metrics:  deps.Metrics,
		cfg:      cfg,
		logger:   deps.Logger.With("component", "http"),
	}
	s.registerRoutes()
	return s
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start listens and serves HTTP traffic.
func (s *Server) Start() error {
	return s.app.Listen(s.cfg.HTTP.Addr)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerRoutes() {
	if s.metrics != nil {
		s.app.Use(s.instrument)
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}
	s.app.Get("/healthz", s.handleHealth)

	s.app.Get("/alarms", s.handleAlarmList)
	s.app.Post("/alarms", s.handleAlarmCreate)
	s.app.Get("/alarms/next", s.handleAlarmNext)
	s.app.Put("/alarms/:id", s.handleAlarmUpdate)
	s.app.Post("/alarms/:id/toggle", s.handleAlarmToggle)
	s.app.Delete("/alarms/:id", s.handleAlarmDelete)

	s.app.Get("/status", s.handleStatus)

	s.app.Get("/identity", s.handleIdentity)
	s.app.Post("/identity", s.handleIdentityGenerate)
	s.app.Get("/identity/qr.png", s.handleIdentityQR)

	s.app.Post("/scan", s.handleScan)
	s.app.Post("/scan/image", s.handleScanImage)

	s.app.Post("/lifecycle/foreground", s.handleForeground)
	s.app.Post("/lifecycle/snooze", s.handleSnooze)
}

func (s *Server) instrument(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		status = http.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}
	}
	s.metrics.RecordRequest(c.Method(), c.Route().Path, status, time.Since(start))
	return err
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()
	health := model.Health{Status: "ok"}
	if s.bark != nil {
		health.Bark = "up"
		if _, err := s.bark.Ping(ctx); err != nil {
			health.Bark = "degraded"
			health.Status = "degraded"
		}
	}
	if s.verifier != nil {
		health.Verifier = "up"
		if err := s.verifier.Ping(ctx); err != nil {
			health.Verifier = "degraded"
			health.Status = "degraded"
		}
	}
	return c.Status(http.StatusOK).JSON(health)
}

func (s *Server) handleAlarmList(c *fiber.Ctx) error {
	return c.JSON(model.Success("ok", s.alarms.List()))
}

func (s *Server) handleAlarmCreate(c *fiber.Ctx) error {
	var in model.AlarmInput
	if err := c.BodyParser(&in); err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid request body")
	}
	alarm, err := s.alarms.Create(c.UserContext(), in)
	if err != nil {
		return s.alarmError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(model.Success("alarm created", alarm))
}

func (s *Server) handleAlarmUpdate(c *fiber.Ctx) error {
	var in model.AlarmInput
	if err := c.BodyParser(&in); err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid request body")
	}
	alarm, err := s.alarms.Update(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return s.alarmError(c, err)
	}
	return c.JSON(model.Success("alarm updated", alarm))
}

func (s *Server) handleAlarmToggle(c *fiber.Ctx) error {
	alarm, err := s.alarms.Toggle(c.UserContext(), c.Params("id"))
	if err != nil {
		return s.alarmError(c, err)
	}
	return c.JSON(model.Success("alarm toggled", alarm))
}

func (s *Server) handleAlarmDelete(c *fiber.Ctx) error {
	if err := s.alarms.Delete(c.UserContext(), c.Params("id")); err != nil {
		return s.alarmError(c, err)
	}
	return c.JSON(model.Success("alarm deleted", nil))
}

func (s *Server) handleAlarmNext(c *fiber.Ctx) error {
	return c.JSON(model.Success("ok", s.alarms.Next()))
}

func (s *Server) alarmError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrAlarmNotFound):
		return s.fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidTime):
		return s.fail(c, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("alarm request failed", "path", c.Path(), "error", err)
		return s.fail(c, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(model.Success("ok", s.engine.Snapshot()))
}

func (s *Server) handleIdentity(c *fiber.Ctx) error {
	token, err := s.identity.Current(c.UserContext())
	if err != nil {
		return s.identityError(c, err)
	}
	return c.JSON(model.Success("ok", fiber.Map{"token": token}))
}

func (s *Server) handleIdentityGenerate(c *fiber.Ctx) error {
	var req struct {
		Name string `json:"name"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return s.fail(c, http.StatusBadRequest, "invalid request body")
		}
	}
	token, err := s.identity.Generate(c.UserContext(), req.Name)
	if err != nil {
		s.logger.Error("generate identity failed", "error", err)
		return s.fail(c, http.StatusBadGateway, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(model.Success("identity generated", fiber.Map{"token": token}))
}

func (s *Server) handleIdentityQR(c *fiber.Ctx) error {
	size, _ := strconv.Atoi(c.Query("size", "256"))
	if size < 64 || size > 2048 {
		size = 256
	}
	png, err := s.identity.Present(c.UserContext(), size)
	if err != nil {
		return s.identityError(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.Send(png)
}

func (s *Server) identityError(c *fiber.Ctx, err error) error {
	if errors.Is(err, identity.ErrIdentityMissing) {
		return s.fail(c, http.StatusNotFound, "no QR identity yet, generate one first")
	}
	if errors.Is(err, alarmstore.ErrStorageUnavailable) {
		return s.fail(c, http.StatusServiceUnavailable, err.Error())
	}
	return s.fail(c, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleScan(c *fiber.Ctx) error {
	var req struct {
		Payload string `json:"payload"`
	}
	if err := c.BodyParser(&req); err != nil {
		return s.fail(c, http.StatusBadRequest, "invalid request body")
	}
	req.Payload = strings.TrimSpace(req.Payload)
	if req.Payload == "" {
		return s.fail(c, http.StatusBadRequest, "payload is required")
	}
	return s.stop(c, req.Payload)
}

func (s *Server) handleScanImage(c *fiber.Ctx) error {
	header, err := c.FormFile("image")
	if err != nil {
		return s.fail(c, http.StatusBadRequest, "image is required")
	}
	f, err := header.Open()
	if err != nil {
		return s.fail(c, http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	payload, err := s.decoder.Decode(f)
	if err != nil {
		if errors.Is(err, scan.ErrDecodeFailure) {
			return s.fail(c, http.StatusUnprocessableEntity, "no QR code found, try a clearer image")
		}
		return s.fail(c, http.StatusBadRequest, err.Error())
	}
	return s.stop(c, payload)
}

func (s *Server) stop(c *fiber.Ctx, payload string) error {
	res, err := s.engine.Stop(c.UserContext(), payload)
	s.recordVerify(res, err)
	switch {
	case errors.Is(err, lifecycle.ErrNoPendingOccurrence):
		return s.fail(c, http.StatusConflict, "no alarm is ringing")
	case errors.Is(err, verify.ErrEmptyPayload):
		return s.fail(c, http.StatusBadRequest, err.Error())
	case err != nil:
		s.logger.Error("stop failed", "error", err)
		return s.fail(c, http.StatusInternalServerError, err.Error())
	}
	if !res.Authorized {
		return c.Status(http.StatusForbidden).JSON(model.BasicResponse{
			Code: model.ErrorCode,
			Msg:  res.Err().Error(),
			Data: res,
		})
	}
	return c.JSON(model.Success("alarm stopped", res))
}

// recordVerify counts every verification that ran, including an authorized
// scan that lost the race against a snooze.
func (s *Server) recordVerify(res verify.Result, err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case res.Authorized || res.Reason != verify.ReasonNone:
		s.metrics.RecordVerify(res)
	case err != nil && !errors.Is(err, lifecycle.ErrNoPendingOccurrence):
		s.metrics.RecordVerifyError()
	}
}

func (s *Server) handleForeground(c *fiber.Ctx) error {
	snoozed := s.engine.Foreground()
	return c.JSON(model.Success("ok", fiber.Map{"snoozed": snoozed}))
}

func (s *Server) handleSnooze(c *fiber.Ctx) error {
	if err := s.engine.Snooze(); err != nil {
		return s.fail(c, http.StatusConflict, "no alarm is ringing")
	}
	return c.JSON(model.Success("alarm snoozed", nil))
}

func (s *Server) fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(model.Error(message))
}
