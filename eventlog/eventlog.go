// Package eventlog records key user actions (create/update/delete/login and
// admin operations) into the event_log collection for audit. Logging is
// best-effort: a failure to record an event never fails the action that
// triggered it.
package eventlog

import (
	"context"
	log "log/slog"

	"github.com/emar-delivery/backoffice"
	"github.com/emar-delivery/backoffice/store"
)

// maxEvents caps the event_log collection; older events are dropped from
// the front once exceeded so the file cannot grow without bound.
const maxEvents = 10000

// Logger appends audit events through the record store.
type Logger struct {
	store *store.Store
	user  string
}

// New constructs a Logger. user is the default acting user stamped on
// events when the caller does not supply one.
func New(s *store.Store, user string) *Logger {
	if user == "" {
		user = "admin"
	}
	return &Logger{store: s, user: user}
}

// Event describes one audit entry before it is stored.
type Event struct {
	Action     string            `json:"action"`
	EntityType string            `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	User       string            `json:"user"`
	Details    backoffice.Record `json:"details"`
}

// Log appends the event to the audit trail and trims the trail to the most
// recent maxEvents entries. Returns false when the event could not be
// stored; the error is logged, never propagated.
func (l *Logger) Log(ctx context.Context, ev Event) bool {
	if ev.User == "" {
		ev.User = l.user
	}
	if ev.Details == nil {
		ev.Details = backoffice.Record{}
	}
	rec := backoffice.Record{
		"action":      ev.Action,
		"entity_type": ev.EntityType,
		"entity_id":   ev.EntityID,
		"user":        ev.User,
		"details":     ev.Details,
		"timestamp":   backoffice.TimestampNow(),
	}
	if _, err := l.store.Create(ctx, store.EventLog, rec); err != nil {
		log.Warn("event not logged", "action", ev.Action, "error", err.Error())
		return false
	}
	l.trim(ctx)
	return true
}

// LogCreate records a create action on an entity.
func (l *Logger) LogCreate(ctx context.Context, entityType, entityID string, details backoffice.Record) bool {
	return l.Log(ctx, Event{Action: "create", EntityType: entityType, EntityID: entityID, Details: details})
}

// LogUpdate records an update action on an entity.
func (l *Logger) LogUpdate(ctx context.Context, entityType, entityID string, details backoffice.Record) bool {
	return l.Log(ctx, Event{Action: "update", EntityType: entityType, EntityID: entityID, Details: details})
}

// LogDelete records a delete action on an entity.
func (l *Logger) LogDelete(ctx context.Context, entityType, entityID string, details backoffice.Record) bool {
	return l.Log(ctx, Event{Action: "delete", EntityType: entityType, EntityID: entityID, Details: details})
}

// Recent returns the most recent n events, newest last.
func (l *Logger) Recent(ctx context.Context, n int) []backoffice.Record {
	events := l.store.ReadAll(ctx, store.EventLog)
	if n <= 0 || n >= len(events) {
		return events
	}
	return events[len(events)-n:]
}

func (l *Logger) trim(ctx context.Context) {
	events := l.store.ReadAll(ctx, store.EventLog)
	if len(events) <= maxEvents {
		return
	}
	excess := events[:len(events)-maxEvents]
	for _, ev := range excess {
		if _, err := l.store.Delete(ctx, store.EventLog, ev.ID()); err != nil {
			log.Warn("event log trim failed", "error", err.Error())
			return
		}
	}
}
