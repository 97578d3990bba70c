// Package session holds the state one logical agent session works with:
// the active printer profile and the report settings derived from it.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xelth-com/eckprint/internal/apperr"
	"github.com/xelth-com/eckprint/internal/logger"
	"github.com/xelth-com/eckprint/internal/models"
	"github.com/xelth-com/eckprint/internal/services/profile"
)

// ReportSettings are the fixed parts of every order report request
type ReportSettings struct {
	Path          string
	ParameterName string
}

// ProfileSaver persists a locally edited profile
type ProfileSaver interface {
	Save(ctx context.Context, p models.PrinterProfile) (models.PrinterProfile, error)
}

// LocalSource is the local profile file
type LocalSource interface {
	profile.Source
	ProfileSaver
}

// Session caches the active PrinterProfile. The remote profile wins when
// reachable; the local one is the fallback. Nothing is loaded until first use.
type Session struct {
	local         LocalSource
	remote        profile.Source // optional
	remoteTimeout time.Duration
	report        ReportSettings

	mu       sync.Mutex
	cached   *models.PrinterProfile
	loadedAt time.Time

	log *zap.Logger
}

// New creates a session. remote may be nil.
func New(local LocalSource, remote profile.Source, remoteTimeout time.Duration, report ReportSettings, log *zap.Logger) *Session {
	if remoteTimeout <= 0 {
		remoteTimeout = 15 * time.Second
	}
	return &Session{
		local:         local,
		remote:        remote,
		remoteTimeout: remoteTimeout,
		report:        report,
		log:           logger.OrNop(log).Named("session"),
	}
}

// Profile returns the cached profile, loading it on first use
func (s *Session) Profile(ctx context.Context) (models.PrinterProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != nil {
		return *s.cached, nil
	}
	return s.loadLocked(ctx)
}

// Refresh drops the cache and loads the profile again
func (s *Session) Refresh(ctx context.Context) (models.PrinterProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cached = nil
	return s.loadLocked(ctx)
}

// Invalidate drops the cached profile; the next Profile call reloads it
func (s *Session) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	s.log.Debug("session invalidated")
}

// SaveLocal persists p to the local profile file and invalidates the cache
func (s *Session) SaveLocal(ctx context.Context, p models.PrinterProfile) (models.PrinterProfile, error) {
	saved, err := s.local.Save(ctx, p)
	if err != nil {
		return models.PrinterProfile{}, err
	}
	s.Invalidate()
	return saved, nil
}

// Report returns the report settings of this session
func (s *Session) Report() ReportSettings { return s.report }

// LoadedAt returns when the cached profile was loaded (zero if none)
func (s *Session) LoadedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		return time.Time{}
	}
	return s.loadedAt
}

// OrderReport builds the report request for one order from the active profile
func (s *Session) OrderReport(ctx context.Context, orderNumber string) (models.ReportRequest, error) {
	p, err := s.Profile(ctx)
	if err != nil {
		return models.ReportRequest{}, err
	}
	if !p.HasCredentials() {
		return models.ReportRequest{}, apperr.New(apperr.KindValidation, "printer profile has no report service credentials")
	}
	if s.report.Path == "" {
		return models.ReportRequest{}, apperr.New(apperr.KindValidation, "report path is not configured")
	}
	return models.ReportRequest{
		ReportPath:     s.report.Path,
		ParameterName:  s.report.ParameterName,
		ParameterValue: orderNumber,
		Instance:       p.RemoteInstance,
		Username:       p.RemoteUsername,
		Secret:         p.RemoteSecret,
		OutputFormat:   models.OutputFormatPDF,
	}, nil
}

func (s *Session) loadLocked(ctx context.Context) (models.PrinterProfile, error) {
	var remoteErr error
	if s.remote != nil {
		rctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
		p, err := s.remote.Load(rctx)
		cancel()
		if err == nil {
			s.store(p)
			s.log.Info("using remote printer profile", zap.Object("profile", p))
			return *s.cached, nil
		}
		remoteErr = err
		s.log.Warn("remote printer profile unavailable, falling back to local", zap.Error(err))
	}

	p, err := s.local.Load(ctx)
	if err != nil {
		if apperr.IsNotFound(err) && remoteErr != nil && !apperr.IsNotFound(remoteErr) {
			return models.PrinterProfile{}, remoteErr
		}
		return models.PrinterProfile{}, err
	}
	s.store(p)
	s.log.Info("using local printer profile", zap.Object("profile", p))
	return *s.cached, nil
}

func (s *Session) store(p models.PrinterProfile) {
	p = p.WithDefaults()
	s.cached = &p
	s.loadedAt = time.Now()
}
