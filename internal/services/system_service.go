package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/freshbasket/api/internal/domain"
	"github.com/freshbasket/api/internal/repositories"
)

// settingsCacheTTL bounds staleness of the cached pricing configuration.
const settingsCacheTTL = 30 * time.Second

// ErrSystemInvalidInput indicates the caller supplied invalid settings values.
var ErrSystemInvalidInput = errors.New("system service: invalid input")

// ErrSystemUnavailable indicates a backend failure.
var ErrSystemUnavailable = errors.New("system service: unavailable")

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	Settings repositories.SettingsRepository
	Health   repositories.HealthRepository
	Clock    Clock
	Build    BuildInfo
	Logger   func(context.Context, string, map[string]any)
}

type systemService struct {
	settings repositories.SettingsRepository
	health   repositories.HealthRepository
	now      Clock
	build    BuildInfo
	logger   func(context.Context, string, map[string]any)

	mu          sync.Mutex
	cached      domain.SystemSettings
	cachedUntil time.Time
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the utility service providing health reports and
// the singleton storefront settings.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Settings == nil {
		return nil, errors.New("system service: settings repository is required")
	}
	if deps.Health == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &systemService{
		settings: deps.Settings,
		health:   deps.Health,
		now:      func() time.Time { return clock().UTC() },
		build:    build,
		logger:   logger,
	}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, fmt.Errorf("%w: %v", ErrSystemUnavailable, err)
	}

	now := s.now()
	report.GeneratedAt = ensureTimestamp(report.GeneratedAt, now)
	report.Version = chooseFirstNonEmpty(report.Version, s.build.Version)
	report.CommitSHA = chooseFirstNonEmpty(report.CommitSHA, s.build.CommitSHA)
	report.Environment = chooseFirstNonEmpty(report.Environment, s.build.Environment)

	if report.Uptime <= 0 && !s.build.StartedAt.IsZero() {
		report.Uptime = now.Sub(s.build.StartedAt)
	}

	if len(report.Checks) == 0 {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}

	if strings.TrimSpace(report.Status) == "" {
		report.Status = deriveStatus(report.Checks)
	}

	return report, nil
}

// GetSettings returns the storefront configuration, served from a short-lived
// cache so pricing reads do not hit Firestore on every cart recalculation.
func (s *systemService) GetSettings(ctx context.Context) (SystemSettings, error) {
	now := s.now()

	s.mu.Lock()
	if now.Before(s.cachedUntil) {
		cached := s.cached
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	settings, err := s.settings.Get(ctx)
	if err != nil {
		return SystemSettings{}, fmt.Errorf("%w: %v", ErrSystemUnavailable, err)
	}

	s.mu.Lock()
	s.cached = settings
	s.cachedUntil = now.Add(settingsCacheTTL)
	s.mu.Unlock()

	return settings, nil
}

// UpdateSettings replaces the singleton configuration and invalidates the
// local cache. Other instances converge once their cache window expires.
func (s *systemService) UpdateSettings(ctx context.Context, cmd UpdateSettingsCommand) (SystemSettings, error) {
	settings := cmd.Settings
	settings.CurrencyCode = strings.ToLower(strings.TrimSpace(settings.CurrencyCode))

	if settings.DeliveryFeeCents < 0 {
		return SystemSettings{}, fmt.Errorf("%w: delivery fee cannot be negative", ErrSystemInvalidInput)
	}
	if settings.TaxRateBasisPoints < 0 || settings.TaxRateBasisPoints > 10000 {
		return SystemSettings{}, fmt.Errorf("%w: tax rate must be between 0 and 10000 basis points", ErrSystemInvalidInput)
	}
	if settings.MaxLineQuantity <= 0 {
		return SystemSettings{}, fmt.Errorf("%w: max line quantity must be positive", ErrSystemInvalidInput)
	}
	if settings.CurrencyCode == "" {
		return SystemSettings{}, fmt.Errorf("%w: currency code is required", ErrSystemInvalidInput)
	}
	if settings.PaymentTimeout <= 0 {
		return SystemSettings{}, fmt.Errorf("%w: payment timeout must be positive", ErrSystemInvalidInput)
	}

	settings.UpdatedAt = s.now()

	saved, err := s.settings.Save(ctx, settings)
	if err != nil {
		return SystemSettings{}, fmt.Errorf("%w: %v", ErrSystemUnavailable, err)
	}

	s.mu.Lock()
	s.cached = saved
	s.cachedUntil = s.now().Add(settingsCacheTTL)
	s.mu.Unlock()

	s.logger(ctx, "system.settings_updated", map[string]any{
		"actor_id": cmd.ActorID,
		"currency": saved.CurrencyCode,
	})
	return saved, nil
}

func ensureTimestamp(ts time.Time, fallback time.Time) time.Time {
	if ts.IsZero() {
		return fallback
	}
	return ts.UTC()
}

func chooseFirstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func deriveStatus(checks map[string]domain.SystemHealthCheck) string {
	if len(checks) == 0 {
		return domain.HealthStatusOK
	}
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
			continue
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
