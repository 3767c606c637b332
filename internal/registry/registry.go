// Package registry hosts confirmation flows by session id. It owns their
// lifecycle, serializes access per session and writes every change through to
// the workspace store.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/kakunin/internal/concurrency"
	"github.com/harunnryd/kakunin/internal/confirm"
	"github.com/harunnryd/kakunin/internal/dialog"
	kakuninErrors "github.com/harunnryd/kakunin/internal/errors"
	"github.com/harunnryd/kakunin/internal/logger"
	"github.com/harunnryd/kakunin/internal/store"

	"github.com/oklog/ulid/v2"
)

// Store is the persistence the registry writes through to. *store.Worker
// satisfies it.
type Store interface {
	SaveSession(meta store.SessionMeta) error
	ListSessions() ([]store.SessionMeta, error)
	DeleteSession(id string) error
	SaveSnapshot(sessionID string, data []byte) error
	LoadSnapshot(sessionID string) ([]byte, error)
	AppendTranscript(sessionID string, entries ...store.TranscriptEntry) error
}

// FlowFactory builds an empty flow for a new or restored session.
type FlowFactory func() *confirm.Flow

type Registry struct {
	newFlow  FlowFactory
	store    Store
	locks    *concurrency.SessionLocks
	now      func() time.Time
	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	meta store.SessionMeta
	flow *confirm.Flow

	// transcript bookkeeping: turns already appended, and the timestamp of
	// the first turn so a restarted dialog is detected.
	persistedTurns int
	firstTurn      time.Time
}

type Option func(*Registry)

// WithStore enables write-through persistence.
func WithStore(s Store) Option {
	return func(r *Registry) { r.store = s }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func New(newFlow FlowFactory, opts ...Option) *Registry {
	r := &Registry{
		newFlow:  newFlow,
		locks:    concurrency.NewSessionLocks(),
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load restores every indexed session from the store. Sessions whose snapshot
// cannot be read are skipped with a warning.
func (r *Registry) Load(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	metas, err := r.store.ListSessions()
	if err != nil {
		return kakuninErrors.Wrap(err, "list stored sessions")
	}

	log := logger.FromContext(ctx)
	loaded := 0
	for _, meta := range metas {
		flow := r.newFlow()
		data, err := r.store.LoadSnapshot(meta.ID)
		switch {
		case kakuninErrors.IsCategory(err, kakuninErrors.ErrNotFound):
		case err != nil:
			log.Warn("Skipping session, snapshot unreadable", "session", meta.ID, "error", err)
			continue
		default:
			var snap dialog.Snapshot
			if err := json.Unmarshal(data, &snap); err != nil {
				log.Warn("Skipping session, snapshot corrupt", "session", meta.ID, "error", err)
				continue
			}
			if err := flow.Restore(snap); err != nil {
				log.Warn("Skipping session, snapshot invalid", "session", meta.ID, "error", err)
				continue
			}
		}

		e := &entry{meta: meta, flow: flow}
		turns := flow.History()
		e.persistedTurns = len(turns)
		if len(turns) > 0 {
			e.firstTurn = turns[0].Timestamp
		}

		r.mu.Lock()
		r.sessions[meta.ID] = e
		r.mu.Unlock()
		loaded++
	}
	log.Info("Sessions restored", "count", loaded)
	return nil
}

// Create registers a new idle session.
func (r *Registry) Create(ctx context.Context, title string) (store.SessionMeta, error) {
	now := r.now()
	meta := store.SessionMeta{
		ID:        ulid.Make().String(),
		Title:     strings.TrimSpace(title),
		State:     string(dialog.StateIdle),
		CreatedAt: now,
		UpdatedAt: now,
	}
	e := &entry{meta: meta, flow: r.newFlow()}

	if r.store != nil {
		if err := r.store.SaveSession(meta); err != nil {
			return store.SessionMeta{}, kakuninErrors.Wrap(err, "save session")
		}
	}

	r.mu.Lock()
	r.sessions[meta.ID] = e
	r.mu.Unlock()

	logger.FromContext(ctx).Info("Session created", "session", meta.ID)
	return meta, nil
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, kakuninErrors.NotFound(fmt.Sprintf("session %s", id))
	}
	return e, nil
}

func (r *Registry) Get(id string) (store.SessionMeta, error) {
	e, err := r.lookup(id)
	if err != nil {
		return store.SessionMeta{}, err
	}
	var meta store.SessionMeta
	r.locks.With(id, func() error {
		meta = e.meta
		return nil
	})
	return meta, nil
}

// List returns every session, most recently updated first.
func (r *Registry) List() []store.SessionMeta {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	out := make([]store.SessionMeta, 0, len(ids))
	for _, id := range ids {
		if meta, err := r.Get(id); err == nil {
			out = append(out, meta)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (r *Registry) Delete(ctx context.Context, id string) error {
	if _, err := r.lookup(id); err != nil {
		return err
	}
	return r.locks.With(id, func() error {
		r.mu.Lock()
		delete(r.sessions, id)
		r.mu.Unlock()

		if r.store != nil {
			if err := r.store.DeleteSession(id); err != nil && !kakuninErrors.IsCategory(err, kakuninErrors.ErrNotFound) {
				return kakuninErrors.Wrap(err, "delete session")
			}
		}
		logger.FromContext(ctx).Info("Session deleted", "session", id)
		return nil
	})
}

// With runs fn against the session's flow while holding the session lock and
// persists the result afterwards when fn changed the dialog. Reads leave the
// index and UpdatedAt alone. A panic in fn is returned as an internal error.
func (r *Registry) With(ctx context.Context, id string, fn func(*confirm.Flow) error) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}

	return r.locks.With(id, func() error {
		r.mu.RLock()
		_, live := r.sessions[id]
		r.mu.RUnlock()
		if !live {
			return kakuninErrors.NotFound(fmt.Sprintf("session %s", id))
		}

		before := revisionOf(e.flow)
		runErr := concurrency.Safe(func() error { return fn(e.flow) })
		if errors.Is(runErr, concurrency.ErrPanic) {
			runErr = kakuninErrors.WrapWithCategory(runErr, "session handler", kakuninErrors.ErrInternal)
		}

		if revisionOf(e.flow) != before {
			r.sync(ctx, id, e)
		}
		return runErr
	})
}

// revision identifies a dialog's mutable state. Every mutating flow operation
// logs a turn or moves a counter, and a restart changes the first turn.
type revision struct {
	summary   dialog.Summary
	firstTurn time.Time
}

func revisionOf(f *confirm.Flow) revision {
	rev := revision{summary: f.Status().DialogSummary}
	if turns := f.History(); len(turns) > 0 {
		rev.firstTurn = turns[0].Timestamp
	}
	return rev
}

// sync refreshes the index entry and writes snapshot and new turns through to
// the store. Persistence failures are logged; the in-memory session stays
// authoritative.
func (r *Registry) sync(ctx context.Context, id string, e *entry) {
	log := logger.FromContext(ctx).With("session", id)

	status := e.flow.Status()
	e.meta.State = string(status.State)
	e.meta.UpdatedAt = r.now()
	if e.meta.Title == "" {
		if summary, ok := status.Requirement["summary"].(string); ok {
			e.meta.Title = summary
		}
	}
	if pt, ok := status.Requirement["project_type"].(string); ok && pt != "" {
		if e.meta.Metadata == nil {
			e.meta.Metadata = map[string]string{}
		}
		e.meta.Metadata["project_type"] = pt
	}

	turns := e.flow.History()
	if len(turns) == 0 || !turns[0].Timestamp.Equal(e.firstTurn) || len(turns) < e.persistedTurns {
		e.persistedTurns = 0
	}
	if len(turns) > 0 {
		e.firstTurn = turns[0].Timestamp
	}
	fresh := turns[e.persistedTurns:]

	if r.store == nil {
		e.persistedTurns = len(turns)
		return
	}

	if err := r.store.SaveSession(e.meta); err != nil {
		log.Error("Failed to save session index", "error", err)
	}

	data, err := json.Marshal(e.flow.Snapshot())
	if err != nil {
		log.Error("Failed to encode snapshot", "error", err)
	} else if err := r.store.SaveSnapshot(id, data); err != nil {
		log.Error("Failed to save snapshot", "error", err)
	}

	if len(fresh) == 0 {
		return
	}
	entries := make([]store.TranscriptEntry, len(fresh))
	for i, t := range fresh {
		entries[i] = store.TranscriptEntry{
			Timestamp:      t.Timestamp,
			Turn:           t.ID,
			UserInput:      t.UserInput,
			SystemResponse: t.SystemResponse,
			StateBefore:    string(t.StateBefore),
			StateAfter:     string(t.StateAfter),
			Metadata:       t.Metadata,
		}
	}
	if err := r.store.AppendTranscript(id, entries...); err != nil {
		log.Error("Failed to append transcript", "error", err)
		return
	}
	e.persistedTurns = len(turns)
	slog.Debug("Transcript appended", "session", id, "turns", len(entries))
}
