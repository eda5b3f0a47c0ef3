package verify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bark-labs/qr-alarm/internal/alarmstore"
	"github.com/bark-labs/qr-alarm/internal/model"
)

// Reason explains a rejected scan.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonNoIdentity  Reason = "no_identity"
	ReasonNotMine     Reason = "not_mine"
	ReasonNotFound    Reason = "not_found"
	ReasonUnavailable Reason = "verification_unavailable"
)

var (
	// ErrEmptyPayload is a caller bug: verify needs a decoded payload.
	ErrEmptyPayload = errors.New("empty scan payload")

	ErrIdentityMissing         = alarmstore.ErrIdentityMissing
	ErrScanMismatch            = errors.New("scanned code belongs to someone else")
	ErrProfileNotFound         = errors.New("no authorized profile for this code")
	ErrVerificationUnavailable = errors.New("verification service unavailable")
)

// Result is the outcome of one verification attempt.
type Result struct {
	Authorized bool           `json:"authorized"`
	Reason     Reason         `json:"reason,omitempty"`
	Profile    *model.Profile `json:"profile,omitempty"`
}

// Err maps a rejection onto its sentinel error; nil when authorized.
func (r Result) Err() error {
	if r.Authorized {
		return nil
	}
	switch r.Reason {
	case ReasonNoIdentity:
		return ErrIdentityMissing
	case ReasonNotMine:
		return ErrScanMismatch
	case ReasonNotFound:
		return ErrProfileNotFound
	default:
		return ErrVerificationUnavailable
	}
}

// IdentitySource yields the token bound to this device.
type IdentitySource interface {
	LoadIdentity(ctx context.Context) (string, error)
}

// Confirmer asks the trusted backend about a payload.
type Confirmer interface {
	ConfirmQR(ctx context.Context, code string) (*model.VerifyResponse, error)
}

// Gateway authorizes alarm stops. A payload must equal the bound identity and
// be confirmed by the backend.
type Gateway struct {
	identity  IdentitySource
	confirmer Confirmer
	logger    *slog.Logger
}

// NewGateway wires the local and remote checks.
func NewGateway(identity IdentitySource, confirmer Confirmer, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{identity: identity, confirmer: confirmer, logger: logger.With("component", "verify")}
}

// Verify runs the local match and, only if it passes, the remote confirmation.
func (g *Gateway) Verify(ctx context.Context, payload string) (Result, error) {
	if payload == "" {
		return Result{}, ErrEmptyPayload
	}

	mine, err := g.identity.LoadIdentity(ctx)
	if err != nil {
		if !errors.Is(err, alarmstore.ErrIdentityMissing) {
			g.logger.Warn("identity unreadable", "error", err)
		}
		return Result{Reason: ReasonNoIdentity}, nil
	}
	if payload != mine {
		g.logger.Info("scan rejected", "reason", ReasonNotMine)
		return Result{Reason: ReasonNotMine}, nil
	}

	resp, err := g.confirmer.ConfirmQR(ctx, payload)
	if err != nil {
		g.logger.Warn("remote verification failed", "error", err)
		return Result{Reason: ReasonUnavailable}, nil
	}
	if resp == nil || !resp.Valid {
		g.logger.Info("scan rejected", "reason", ReasonNotFound)
		return Result{Reason: ReasonNotFound}, nil
	}
	return Result{Authorized: true, Profile: resp.Profile}, nil
}
