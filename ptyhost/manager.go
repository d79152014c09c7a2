package ptyhost

import (
	"context"
	"errors"
	"sort"
	"sync"

	"pkt.systems/paneflow/core"
	"pkt.systems/paneflow/internal/logx"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// Pane pairs a hosted child process with its broadcast target.
type Pane struct {
	ID   schema.PaneID
	Host *Host
	Emu  *Broadcast
}

// Manager spawns panes on demand and reaps them when their child exits.
type Manager struct {
	svc  core.Service
	cfg  schema.EngineConfig
	opts Options
	log  pslog.Logger

	mu    sync.Mutex
	panes map[schema.PaneID]*Pane
}

// NewManager constructs a pane manager. opts is the template for every
// spawned pane; logger may be nil.
func NewManager(svc core.Service, cfg schema.EngineConfig, opts Options, logger pslog.Logger) *Manager {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Manager{
		svc:   svc,
		cfg:   cfg,
		opts:  opts,
		log:   logger,
		panes: make(map[schema.PaneID]*Pane),
	}
}

// Pane returns the pane with the given id, spawning it when absent.
func (m *Manager) Pane(ctx context.Context, id schema.PaneID) (*Pane, error) {
	if id == "" {
		return nil, schema.ErrPaneNotFound
	}
	m.mu.Lock()
	if pane, ok := m.panes[id]; ok {
		m.mu.Unlock()
		return pane, nil
	}
	m.mu.Unlock()

	emu := NewBroadcast()
	paneLog := m.log.With("session", schema.SessionID(id)).With("pane", id)
	spawnCtx := logx.ContextWithSessionPaneLogger(ctx, paneLog, schema.SessionID(id), id)
	host, err := Start(spawnCtx, m.svc, schema.SessionID(id), m.cfg, m.opts, core.SessionDeps{Emulator: emu})
	if err != nil {
		// A concurrent attach may have spawned the pane first.
		if errors.Is(err, schema.ErrSessionExists) {
			if existing, lookupErr := m.Lookup(id); lookupErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	pane := &Pane{ID: id, Host: host, Emu: emu}

	m.mu.Lock()
	if existing, ok := m.panes[id]; ok {
		// Lost the race; keep the first pane and discard ours.
		m.mu.Unlock()
		_ = host.Close()
		return existing, nil
	}
	m.panes[id] = pane
	m.mu.Unlock()

	go m.reap(pane)
	m.log.With("pane", id).Info("pane spawned")
	return pane, nil
}

// Lookup returns an existing pane without spawning.
func (m *Manager) Lookup(id schema.PaneID) (*Pane, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pane, ok := m.panes[id]
	if !ok {
		return nil, schema.ErrPaneNotFound
	}
	return pane, nil
}

// Panes lists pane ids in stable order.
func (m *Manager) Panes() []schema.PaneID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]schema.PaneID, 0, len(m.panes))
	for id := range m.panes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close kills a pane's child and removes it.
func (m *Manager) Close(ctx context.Context, id schema.PaneID) error {
	m.mu.Lock()
	pane, ok := m.panes[id]
	delete(m.panes, id)
	m.mu.Unlock()
	if !ok {
		return schema.ErrPaneNotFound
	}
	err := pane.Host.Close()
	logx.WithSessionPane(ctx, schema.SessionID(id), id).Info("pane closed")
	return err
}

// CloseAll tears every pane down.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	panes := make([]*Pane, 0, len(m.panes))
	for _, pane := range m.panes {
		panes = append(panes, pane)
	}
	m.panes = make(map[schema.PaneID]*Pane)
	m.mu.Unlock()
	for _, pane := range panes {
		_ = pane.Host.Close()
	}
	m.log.Debug("pane manager closed all", "count", len(panes))
}

func (m *Manager) reap(pane *Pane) {
	<-pane.Host.Done()
	m.mu.Lock()
	if current, ok := m.panes[pane.ID]; ok && current == pane {
		delete(m.panes, pane.ID)
	}
	m.mu.Unlock()
	m.log.With("pane", pane.ID).Info("pane exited")
}
