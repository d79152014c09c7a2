package core

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/paneflow/internal/logx"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// Service owns the engine sessions of one host process. Each session is
// independent; nothing is shared across sessions except this registry.
type Service interface {
	// Open registers a new engine session for one PTY.
	Open(ctx context.Context, id schema.SessionID, cfg schema.EngineConfig, deps SessionDeps) (*Session, error)
	// Feed runs one chunk through a registered session.
	Feed(ctx context.Context, id schema.SessionID, chunk []byte) error
	// Flush forces release of a session's buffered synchronized frame.
	Flush(ctx context.Context, id schema.SessionID) error
	// Snapshot returns a session's counters.
	Snapshot(ctx context.Context, id schema.SessionID) (schema.SessionStats, error)
	// Close tears one session down.
	Close(ctx context.Context, id schema.SessionID) error
	// CloseAll tears every session down.
	CloseAll(ctx context.Context)
	// Sessions lists registered session ids.
	Sessions(ctx context.Context) []schema.SessionID
}

// ServiceDeps captures optional dependencies for the session service.
type ServiceDeps struct {
	Sink   EventSink
	Logger pslog.Logger
}

type service struct {
	sink   EventSink
	logger pslog.Logger

	mu       sync.Mutex
	sessions map[schema.SessionID]*Session
}

// NewService constructs the session service.
func NewService(deps ServiceDeps) Service {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &service{
		sink:     deps.Sink,
		logger:   logger,
		sessions: make(map[schema.SessionID]*Session),
	}
}

func (s *service) Open(ctx context.Context, id schema.SessionID, cfg schema.EngineConfig, deps SessionDeps) (*Session, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	log := logx.WithSession(ctx, id)
	if deps.Logger == nil {
		deps.Logger = log
	}
	if deps.Sink == nil {
		deps.Sink = s.sink
	}
	session, err := NewSession(id, cfg, deps)
	if err != nil {
		log.Warn("service session open failed", "err", err)
		return nil, err
	}
	s.mu.Lock()
	if _, exists := s.sessions[id]; exists {
		s.mu.Unlock()
		log.Warn("service session open failed", "err", schema.ErrSessionExists)
		return nil, schema.ErrSessionExists
	}
	s.sessions[id] = session
	s.mu.Unlock()
	s.emitSessionEvent(schema.SessionEvent{SessionID: id, Type: schema.SessionOpened})
	log.Info("service session opened")
	return session, nil
}

func (s *service) Feed(ctx context.Context, id schema.SessionID, chunk []byte) error {
	session, err := s.lookup(id)
	if err != nil {
		return err
	}
	return session.Feed(chunk)
}

func (s *service) Flush(ctx context.Context, id schema.SessionID) error {
	session, err := s.lookup(id)
	if err != nil {
		return err
	}
	session.Flush()
	return nil
}

func (s *service) Snapshot(ctx context.Context, id schema.SessionID) (schema.SessionStats, error) {
	session, err := s.lookup(id)
	if err != nil {
		return schema.SessionStats{}, err
	}
	return session.Stats(), nil
}

func (s *service) Close(ctx context.Context, id schema.SessionID) error {
	s.mu.Lock()
	session := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if session == nil {
		return schema.ErrSessionNotFound
	}
	session.Close()
	s.emitSessionEvent(schema.SessionEvent{SessionID: id, Type: schema.SessionClosed})
	logx.WithSession(ctx, id).Info("service session closed")
	return nil
}

func (s *service) CloseAll(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.sessions = make(map[schema.SessionID]*Session)
	s.mu.Unlock()
	for _, session := range sessions {
		session.Close()
		s.emitSessionEvent(schema.SessionEvent{SessionID: session.ID(), Type: schema.SessionClosed})
	}
	s.logger.Debug("service closed all sessions", "count", len(sessions))
}

func (s *service) Sessions(ctx context.Context) []schema.SessionID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]schema.SessionID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *service) lookup(id schema.SessionID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := s.sessions[id]
	if session == nil {
		return nil, schema.ErrSessionNotFound
	}
	return session, nil
}

func (s *service) emitSessionEvent(event schema.SessionEvent) {
	if s.sink != nil {
		s.sink.OnSessionEvent(event)
	}
}
