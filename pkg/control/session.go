package control

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kubev2v/logdriver-e2e/internal/models"
	srvErrors "github.com/kubev2v/logdriver-e2e/pkg/errors"
)

// Logger is the part of Client a Session drives.
type Logger interface {
	StartLogging(ctx context.Context, file string, options map[string]string) error
	StopLogging(ctx context.Context, file string) error
}

// Session tracks one start/stop pair against the driver.
//
//	idle ──Start──► starting ──ok──► active ──Stop──► stopping ──ok──► idle
//	                   │                                  │
//	                   └──err──► idle        active ◄──err┘
type Session struct {
	client  Logger
	session models.Session

	mu    sync.Mutex
	state models.SessionState
}

func NewSession(client Logger, session models.Session) *Session {
	return &Session{
		client:  client,
		session: session,
		state:   models.SessionStateIdle,
	}
}

func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Info() models.Session {
	return s.session
}

func (s *Session) Start(ctx context.Context) error {
	if !s.transition(models.SessionStateIdle, models.SessionStateStarting) {
		return srvErrors.NewControlError("start", s.session.FilePath, srvErrors.ErrSessionActive)
	}

	if err := s.client.StartLogging(ctx, s.session.FilePath, s.session.Options); err != nil {
		s.set(models.SessionStateIdle)
		return err
	}

	s.set(models.SessionStateActive)
	zap.S().Named("control").Infow("session started", "file", s.session.FilePath, "correlationId", s.session.CorrelationID)
	return nil
}

// Stop is only valid on an active session; anything else fails without a request.
func (s *Session) Stop(ctx context.Context) error {
	if !s.transition(models.SessionStateActive, models.SessionStateStopping) {
		return srvErrors.NewControlError("stop", s.session.FilePath, srvErrors.ErrSessionNotActive)
	}

	if err := s.client.StopLogging(ctx, s.session.FilePath); err != nil {
		s.set(models.SessionStateActive)
		zap.S().Named("control").Errorw("failed to stop session", "file", s.session.FilePath, "error", err)
		return err
	}

	s.set(models.SessionStateIdle)
	zap.S().Named("control").Infow("session stopped", "file", s.session.FilePath, "correlationId", s.session.CorrelationID)
	return nil
}

func (s *Session) transition(from, to models.SessionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return false
	}
	s.state = to
	return true
}

func (s *Session) set(state models.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
