package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	stdatomic "sync/atomic"
	"time"

	"github.com/harunnryd/kakunin/internal/config"
	kakuninErrors "github.com/harunnryd/kakunin/internal/errors"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"
)

// ErrStopped is returned for requests made after the worker stopped.
var ErrStopped = kakuninErrors.Internal("store worker stopped")

type Operation int

const (
	OpAppendTranscript Operation = iota
	OpReadTranscript
	OpGetSession
	OpSaveSession
	OpListSessions
	OpDeleteSession
	OpSaveSnapshot
	OpLoadSnapshot
)

type Request struct {
	Op       Operation
	Payload  interface{}
	Result   chan error
	Response chan interface{}
}

type AppendTranscriptPayload struct {
	SessionID string
	Entries   []TranscriptEntry
}

type ReadTranscriptPayload struct {
	SessionID string
	Limit     int // 0 = all
}

type SessionIDPayload struct {
	SessionID string
}

type SaveSessionPayload struct {
	Session SessionMeta
}

type SaveSnapshotPayload struct {
	SessionID string
	Data      []byte
}

// Worker owns every write to a workspace. Requests are served one at a time
// by a single goroutine, and the workspace file lock keeps other processes out.
type Worker struct {
	workspaceID              string
	basePath                 string
	inbox                    chan Request
	fileLock                 *FileLock
	quit                     chan struct{}
	stopOnce                 sync.Once
	wg                       sync.WaitGroup
	sessionIndex             *SessionIndex
	running                  stdatomic.Bool
	transcriptRotateMaxBytes int64
}

type RuntimeConfig struct {
	LockTimeout              time.Duration
	LockRetry                time.Duration
	LockMaxRetry             int
	InboxSize                int
	TranscriptRotateMaxBytes int64
}

// RuntimeConfigFrom resolves the store section of the config.
func RuntimeConfigFrom(cfg config.StoreConfig) (RuntimeConfig, error) {
	lockTimeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("parse store lock timeout: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return RuntimeConfig{}, fmt.Errorf("parse store lock retry: %w", err)
	}
	return RuntimeConfig{
		LockTimeout:              lockTimeout,
		LockRetry:                lockRetry,
		LockMaxRetry:             cfg.LockMaxRetry,
		InboxSize:                cfg.InboxSize,
		TranscriptRotateMaxBytes: cfg.TranscriptRotateMaxBytes,
	}, nil
}

func NewWorker(workspaceID string, workspaceRootPath string, runtimeCfg RuntimeConfig) (*Worker, error) {
	basePath, err := GetWorkspacePath(workspaceID, workspaceRootPath)
	if err != nil {
		return nil, err
	}

	sessionsDir := filepath.Join(basePath, "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create dir %s: %w", sessionsDir, err)
	}

	if runtimeCfg.LockTimeout <= 0 || runtimeCfg.LockRetry <= 0 {
		defaults, err := RuntimeConfigFrom(config.StoreConfig{})
		if err != nil {
			return nil, err
		}
		if runtimeCfg.LockTimeout <= 0 {
			runtimeCfg.LockTimeout = defaults.LockTimeout
		}
		if runtimeCfg.LockRetry <= 0 {
			runtimeCfg.LockRetry = defaults.LockRetry
		}
	}
	if runtimeCfg.LockMaxRetry <= 0 {
		runtimeCfg.LockMaxRetry = config.DefaultStoreLockMaxRetry
	}
	if runtimeCfg.InboxSize <= 0 {
		runtimeCfg.InboxSize = config.DefaultStoreInboxSize
	}
	if runtimeCfg.TranscriptRotateMaxBytes <= 0 {
		runtimeCfg.TranscriptRotateMaxBytes = config.DefaultStoreTranscriptRotateMaxBytes
	}

	fileLock, err := NewFileLock(workspaceID, basePath, &FileLockConfig{
		LockTimeout:  runtimeCfg.LockTimeout,
		LockRetry:    runtimeCfg.LockRetry,
		LockMaxRetry: runtimeCfg.LockMaxRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	sessionIndex := &SessionIndex{Sessions: make(map[string]SessionMeta)}
	if data, err := os.ReadFile(indexPath(basePath)); err == nil {
		if err := json.Unmarshal(data, sessionIndex); err != nil {
			slog.Warn("Failed to parse session index, starting fresh", "error", err)
		}
		if sessionIndex.Sessions == nil {
			sessionIndex.Sessions = make(map[string]SessionMeta)
		}
	}

	return &Worker{
		workspaceID:              workspaceID,
		basePath:                 basePath,
		inbox:                    make(chan Request, runtimeCfg.InboxSize),
		fileLock:                 fileLock,
		quit:                     make(chan struct{}),
		sessionIndex:             sessionIndex,
		transcriptRotateMaxBytes: runtimeCfg.TranscriptRotateMaxBytes,
	}, nil
}

func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

func (w *Worker) loop() {
	slog.Info("StoreWorker started", "workspace", w.workspaceID, "sessions", len(w.sessionIndex.Sessions))
	w.running.Store(true)
	defer func() {
		w.running.Store(false)
		w.wg.Done()
	}()

	for {
		select {
		case req := <-w.inbox:
			err := w.handle(req)
			if req.Result != nil {
				req.Result <- err
			}
		case <-w.quit:
			slog.Info("StoreWorker stopping")
			return
		}
	}
}

func (w *Worker) handle(req Request) error {
	switch req.Op {
	case OpAppendTranscript:
		p, ok := req.Payload.(AppendTranscriptPayload)
		if !ok {
			return fmt.Errorf("invalid payload for AppendTranscript")
		}
		return w.appendTranscript(p.SessionID, p.Entries)
	case OpReadTranscript:
		p, ok := req.Payload.(ReadTranscriptPayload)
		if !ok {
			return fmt.Errorf("invalid payload for ReadTranscript")
		}
		entries, err := w.readTranscript(p.SessionID, p.Limit)
		respond(req, entries)
		return err
	case OpGetSession:
		p, ok := req.Payload.(SessionIDPayload)
		if !ok {
			return fmt.Errorf("invalid payload for GetSession")
		}
		sess, ok := w.sessionIndex.Sessions[p.SessionID]
		if !ok {
			respond(req, nil)
			return kakuninErrors.NotFound(fmt.Sprintf("session %s", p.SessionID))
		}
		respond(req, &sess)
		return nil
	case OpSaveSession:
		p, ok := req.Payload.(SaveSessionPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SaveSession")
		}
		w.sessionIndex.Sessions[p.Session.ID] = p.Session
		return w.saveSessionIndex()
	case OpListSessions:
		respond(req, w.listSessions())
		return nil
	case OpDeleteSession:
		p, ok := req.Payload.(SessionIDPayload)
		if !ok {
			return fmt.Errorf("invalid payload for DeleteSession")
		}
		return w.deleteSession(p.SessionID)
	case OpSaveSnapshot:
		p, ok := req.Payload.(SaveSnapshotPayload)
		if !ok {
			return fmt.Errorf("invalid payload for SaveSnapshot")
		}
		return atomic.WriteFile(snapshotPath(w.basePath, p.SessionID), bytes.NewReader(p.Data))
	case OpLoadSnapshot:
		p, ok := req.Payload.(SessionIDPayload)
		if !ok {
			return fmt.Errorf("invalid payload for LoadSnapshot")
		}
		data, err := os.ReadFile(snapshotPath(w.basePath, p.SessionID))
		if os.IsNotExist(err) {
			respond(req, nil)
			return kakuninErrors.NotFound(fmt.Sprintf("snapshot for session %s", p.SessionID))
		}
		respond(req, data)
		return err
	default:
		return fmt.Errorf("unknown operation: %d", req.Op)
	}
}

func respond(req Request, v interface{}) {
	if req.Response != nil {
		req.Response <- v
	}
}

func (w *Worker) listSessions() []SessionMeta {
	out := make([]SessionMeta, 0, len(w.sessionIndex.Sessions))
	for _, meta := range w.sessionIndex.Sessions {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

func (w *Worker) readTranscript(sessionID string, limit int) ([]TranscriptEntry, error) {
	f, err := os.Open(transcriptPath(w.basePath, sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return []TranscriptEntry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	entries := []TranscriptEntry{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var entry TranscriptEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			slog.Warn("Skipping malformed transcript line", "session", sessionID, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:], nil
	}
	return entries, nil
}

func (w *Worker) saveSessionIndex() error {
	data, err := json.MarshalIndent(w.sessionIndex, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(indexPath(w.basePath), bytes.NewReader(data))
}

func (w *Worker) appendTranscript(sessionID string, entries []TranscriptEntry) error {
	if len(entries) == 0 {
		return nil
	}
	path := transcriptPath(w.basePath, sessionID)

	if err := w.checkAndRotate(sessionID, path); err != nil {
		slog.Warn("Failed to rotate transcript", "session", sessionID, "error", err)
	}

	var buf bytes.Buffer
	for _, entry := range entries {
		if entry.ID == "" {
			entry.ID = ulid.Make().String()
		}
		line, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(buf.Bytes()); err != nil {
		return err
	}
	return f.Sync()
}

func (w *Worker) deleteSession(sessionID string) error {
	if _, ok := w.sessionIndex.Sessions[sessionID]; !ok {
		return kakuninErrors.NotFound(fmt.Sprintf("session %s", sessionID))
	}

	paths := []string{snapshotPath(w.basePath, sessionID), transcriptPath(w.basePath, sessionID)}
	backups, _ := filepath.Glob(transcriptPath(w.basePath, sessionID) + ".*.bak")
	for _, path := range append(paths, backups...) {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	delete(w.sessionIndex.Sessions, sessionID)
	return w.saveSessionIndex()
}

func (w *Worker) checkAndRotate(sessionID, path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if info.Size() < w.transcriptRotateMaxBytes {
		return nil
	}

	slog.Info("Rotating transcript", "session", sessionID, "size", info.Size())

	timestamp := time.Now().Format("20060102150405.000000000")
	backupPath := fmt.Sprintf("%s.%s.bak", path, timestamp)

	if err := os.Rename(path, backupPath); err != nil {
		return fmt.Errorf("failed to rename: %w", err)
	}
	return nil
}

// Public API for other components

func (w *Worker) do(op Operation, payload interface{}) error {
	return w.submit(Request{Op: op, Payload: payload, Result: make(chan error, 1)})
}

func (w *Worker) query(op Operation, payload interface{}) (interface{}, error) {
	resp := make(chan interface{}, 1)
	err := w.submit(Request{Op: op, Payload: payload, Result: make(chan error, 1), Response: resp})
	var val interface{}
	select {
	case val = <-resp:
	default:
	}
	return val, err
}

// submit hands req to the loop and waits for its result. Once quit is closed
// it waits for the loop to drain, so a request the loop already took still
// reports its own result.
func (w *Worker) submit(req Request) error {
	select {
	case <-w.quit:
		return ErrStopped
	default:
	}

	select {
	case w.inbox <- req:
	case <-w.quit:
		return ErrStopped
	}

	select {
	case err := <-req.Result:
		return err
	case <-w.quit:
		w.wg.Wait()
		select {
		case err := <-req.Result:
			return err
		default:
			return ErrStopped
		}
	}
}

func (w *Worker) AppendTranscript(sessionID string, entries ...TranscriptEntry) error {
	return w.do(OpAppendTranscript, AppendTranscriptPayload{SessionID: sessionID, Entries: entries})
}

func (w *Worker) ReadTranscript(sessionID string, limit int) ([]TranscriptEntry, error) {
	val, err := w.query(OpReadTranscript, ReadTranscriptPayload{SessionID: sessionID, Limit: limit})
	if err != nil {
		return nil, err
	}
	return val.([]TranscriptEntry), nil
}

// GetSession returns the indexed metadata or an ErrNotFound error.
func (w *Worker) GetSession(id string) (*SessionMeta, error) {
	val, err := w.query(OpGetSession, SessionIDPayload{SessionID: id})
	if err != nil {
		return nil, err
	}
	return val.(*SessionMeta), nil
}

func (w *Worker) SaveSession(session SessionMeta) error {
	return w.do(OpSaveSession, SaveSessionPayload{Session: session})
}

// ListSessions returns the indexed sessions, most recently updated first.
func (w *Worker) ListSessions() ([]SessionMeta, error) {
	val, err := w.query(OpListSessions, nil)
	if err != nil {
		return nil, err
	}
	return val.([]SessionMeta), nil
}

// DeleteSession removes the session from the index along with its snapshot
// and transcripts.
func (w *Worker) DeleteSession(id string) error {
	return w.do(OpDeleteSession, SessionIDPayload{SessionID: id})
}

func (w *Worker) SaveSnapshot(sessionID string, data []byte) error {
	return w.do(OpSaveSnapshot, SaveSnapshotPayload{SessionID: sessionID, Data: data})
}

func (w *Worker) LoadSnapshot(sessionID string) ([]byte, error) {
	val, err := w.query(OpLoadSnapshot, SessionIDPayload{SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

func (w *Worker) Stop() {
	slog.Info("StoreWorker Stop called", "workspace", w.workspaceID, "lock_held", w.fileLock.IsLocked())

	w.stopOnce.Do(func() {
		close(w.quit)
		w.wg.Wait()

		if w.fileLock.IsLocked() {
			w.fileLock.Unlock()
		}
	})
}

func (w *Worker) IsLockHeld() bool {
	return w.fileLock.IsLocked()
}

func (w *Worker) IsRunning() bool {
	return w.fileLock.IsLocked() && w.running.Load()
}
