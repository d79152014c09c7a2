package logx

import (
	"context"

	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	sessionKey contextKey = iota
	paneKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSession annotates the logger with the session id if present.
func WithSession(ctx context.Context, sessionID schema.SessionID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if sessionID != "" {
		if current, ok := ctx.Value(sessionKey).(schema.SessionID); ok && current == sessionID {
			return log
		}
		log = log.With("session", sessionID)
	}
	return log
}

// WithSessionPane annotates the logger with session and pane identifiers.
func WithSessionPane(ctx context.Context, sessionID schema.SessionID, paneID schema.PaneID) pslog.Logger {
	log := WithSession(ctx, sessionID)
	if paneID != "" {
		if current, ok := ctx.Value(paneKey).(schema.PaneID); ok && current == paneID {
			return log
		}
		log = log.With("pane", paneID)
	}
	return log
}

// WithUser annotates the logger with an attach-surface user when available.
func WithUser(log pslog.Logger, userID schema.UserID) pslog.Logger {
	if userID != "" {
		log = log.With("user", userID)
	}
	return log
}

// ContextWithSession stores the session marker on the context for log de-duplication.
func ContextWithSession(ctx context.Context, sessionID schema.SessionID) context.Context {
	if ctx == nil || sessionID == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, sessionID)
}

// ContextWithPane stores the pane marker on the context for log de-duplication.
func ContextWithPane(ctx context.Context, paneID schema.PaneID) context.Context {
	if ctx == nil || paneID == "" {
		return ctx
	}
	return context.WithValue(ctx, paneKey, paneID)
}

// ContextWithSessionLogger attaches the logger and session marker to the context.
func ContextWithSessionLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSession(ctx, sessionID)
}

// ContextWithSessionPaneLogger attaches the logger and session/pane markers to the context.
func ContextWithSessionPaneLogger(ctx context.Context, log pslog.Logger, sessionID schema.SessionID, paneID schema.PaneID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithPane(ContextWithSession(ctx, sessionID), paneID)
}
