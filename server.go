// Package paneflow composes the engine service, pane manager, auth
// store, and SSH attach surface into one host server.
package paneflow

import (
	"context"
	"errors"
	"sync"

	"pkt.systems/paneflow/core"
	"pkt.systems/paneflow/internal/appconfig"
	"pkt.systems/paneflow/internal/auth"
	"pkt.systems/paneflow/internal/eventbus"
	"pkt.systems/paneflow/ptyhost"
	"pkt.systems/paneflow/schema"
	"pkt.systems/paneflow/sshserver"
	"pkt.systems/pslog"
)

// Server composes the engine and attach services.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
	// Panes exposes the pane manager for embedding hosts.
	Panes() *ptyhost.Manager
	// Events exposes the per-session event bus.
	Events() *eventbus.Bus
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	Engine schema.EngineConfig
	Pane   ptyhost.Options
	SSH    sshserver.Config
	Auth   AuthConfig
}

// AuthConfig defines authentication storage settings.
type AuthConfig struct {
	UserFile  string
	SeedUsers []SeedUser
}

// SeedUser seeds an initial user record.
type SeedUser struct {
	Username     string
	PasswordHash string
	TOTPSecret   string
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	Logger pslog.Logger
	// Sink receives engine events in addition to the internal bus.
	Sink core.EventSink
}

// New constructs a paneflow host server.
func New(cfg ServerConfig, deps ServerDeps) (Server, error) {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	normalized, err := schema.NormalizeEngineConfig(cfg.Engine)
	if err != nil {
		return nil, err
	}
	cfg.Engine = normalized

	bus := eventbus.New(logger)
	var sink core.EventSink = bus
	if deps.Sink != nil {
		sink = eventFanout{sinks: []core.EventSink{deps.Sink, bus}}
	}

	service := core.NewService(core.ServiceDeps{Sink: sink, Logger: logger})
	panes := ptyhost.NewManager(service, cfg.Engine, cfg.Pane, logger)

	store, err := auth.NewStore(cfg.Auth.UserFile, toSeedUsers(cfg.Auth.SeedUsers), logger)
	if err != nil {
		return nil, err
	}

	sshSrv := &sshserver.Server{
		Addr:        cfg.SSH.Addr,
		HostKeyPath: cfg.SSH.HostKeyPath,
		Panes:       panes,
		AuthStore:   store,
	}

	return &compositeServer{
		cfg:    cfg,
		sshSrv: sshSrv,
		panes:  panes,
		bus:    bus,
	}, nil
}

type compositeServer struct {
	cfg    ServerConfig
	sshSrv *sshserver.Server
	panes  *ptyhost.Manager
	bus    *eventbus.Bus
	logger pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Panes() *ptyhost.Manager { return s.panes }

func (s *compositeServer) Events() *eventbus.Bus { return s.bus }

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 1)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info("server start", "ssh_addr", s.cfg.SSH.Addr)
	go func() {
		if err := s.sshSrv.ListenAndServe(s.ctx); err != nil {
			log.Error("ssh server failed", "err", err)
			s.errCh <- err
		}
	}()
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	s.panes.CloseAll(context.Background())
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}

func toSeedUsers(users []SeedUser) []appconfig.SeedUser {
	if len(users) == 0 {
		return nil
	}
	out := make([]appconfig.SeedUser, 0, len(users))
	for _, user := range users {
		out = append(out, appconfig.SeedUser{
			Username:     user.Username,
			PasswordHash: user.PasswordHash,
			TOTPSecret:   user.TOTPSecret,
		})
	}
	return out
}
