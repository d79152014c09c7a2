package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"pkt.systems/paneflow/schema"
)

func TestServiceOpenFeedClose(t *testing.T) {
	ctx := context.Background()
	svc := NewService(ServiceDeps{})

	emu := &stubEmulator{}
	session, err := svc.Open(ctx, "alpha", schema.EngineConfig{}, SessionDeps{Emulator: emu})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var turns []func()
	session.deferFn = func(fn func()) { turns = append(turns, fn) }

	if err := svc.Feed(ctx, "alpha", []byte("hello")); err != nil {
		t.Fatalf("feed: %v", err)
	}
	for len(turns) > 0 {
		fn := turns[0]
		turns = turns[1:]
		fn()
	}
	if got := emu.output(); got != "hello" {
		t.Fatalf("output = %q", got)
	}

	stats, err := svc.Snapshot(ctx, "alpha")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if stats.BytesIn != 5 {
		t.Fatalf("bytes in = %d, want 5", stats.BytesIn)
	}

	if err := svc.Close(ctx, "alpha"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := svc.Feed(ctx, "alpha", []byte("late")); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("feed after close: %v, want ErrSessionNotFound", err)
	}
}

func TestServiceRejectsDuplicateOpen(t *testing.T) {
	ctx := context.Background()
	svc := NewService(ServiceDeps{})
	if _, err := svc.Open(ctx, "dup", schema.EngineConfig{}, SessionDeps{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Open(ctx, "dup", schema.EngineConfig{}, SessionDeps{}); !errors.Is(err, schema.ErrSessionExists) {
		t.Fatalf("duplicate open: %v, want ErrSessionExists", err)
	}
}

func TestServiceUnknownSessionOperations(t *testing.T) {
	ctx := context.Background()
	svc := NewService(ServiceDeps{})
	if err := svc.Feed(ctx, "ghost", []byte("x")); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("feed: %v", err)
	}
	if err := svc.Flush(ctx, "ghost"); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("flush: %v", err)
	}
	if _, err := svc.Snapshot(ctx, "ghost"); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("snapshot: %v", err)
	}
	if err := svc.Close(ctx, "ghost"); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("close: %v", err)
	}
}

func TestServiceSessionsAndCloseAll(t *testing.T) {
	ctx := context.Background()
	svc := NewService(ServiceDeps{})
	for _, id := range []schema.SessionID{"one", "two", "three"} {
		if _, err := svc.Open(ctx, id, schema.EngineConfig{}, SessionDeps{}); err != nil {
			t.Fatalf("open %s: %v", id, err)
		}
	}
	if got := len(svc.Sessions(ctx)); got != 3 {
		t.Fatalf("sessions = %d, want 3", got)
	}
	svc.CloseAll(ctx)
	if got := len(svc.Sessions(ctx)); got != 0 {
		t.Fatalf("sessions after close all = %d, want 0", got)
	}
}

func TestServiceEmitsLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var events []schema.SessionEvent
	sink := &stubSink{onSession: func(event schema.SessionEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	}}
	svc := NewService(ServiceDeps{Sink: sink})

	if _, err := svc.Open(ctx, "lifecycle", schema.EngineConfig{}, SessionDeps{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := svc.Close(ctx, "lifecycle"); err != nil {
		t.Fatalf("close: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].Type != schema.SessionOpened || events[1].Type != schema.SessionClosed {
		t.Fatalf("events = %+v", events)
	}
	if events[0].SessionID != "lifecycle" {
		t.Fatalf("session id = %q", events[0].SessionID)
	}
}

func TestServiceSinkReachesSessions(t *testing.T) {
	ctx := context.Background()
	var mu sync.Mutex
	var queries []schema.QueryEvent
	sink := &stubSink{onQuery: func(event schema.QueryEvent) {
		mu.Lock()
		defer mu.Unlock()
		queries = append(queries, event)
	}}
	svc := NewService(ServiceDeps{Sink: sink})
	session, err := svc.Open(ctx, "wired", schema.EngineConfig{}, SessionDeps{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	session.deferFn = func(fn func()) {}
	if err := svc.Feed(ctx, "wired", []byte("\x1b[5n")); err != nil {
		t.Fatalf("feed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(queries) != 1 || queries[0].Kind != schema.QueryDeviceStatus {
		t.Fatalf("queries = %+v", queries)
	}
}
