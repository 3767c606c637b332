package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harunnryd/kakunin/internal/config"
	kakuninErrors "github.com/harunnryd/kakunin/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T, root string, cfg RuntimeConfig) *Worker {
	t.Helper()
	w, err := NewWorker("test-ws", root, cfg)
	require.NoError(t, err)
	w.Start()
	t.Cleanup(w.Stop)
	return w
}

func TestWorker_SessionIndex(t *testing.T) {
	w := newTestWorker(t, t.TempDir(), RuntimeConfig{})

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, w.SaveSession(SessionMeta{ID: "a", Title: "first", State: "confirming", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, w.SaveSession(SessionMeta{ID: "b", Title: "second", State: "idle", CreatedAt: now, UpdatedAt: now.Add(time.Minute)}))

	got, err := w.GetSession("a")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)

	_, err = w.GetSession("missing")
	assert.True(t, kakuninErrors.IsCategory(err, kakuninErrors.ErrNotFound))

	list, err := w.ListSessions()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "a", list[1].ID)
}

func TestWorker_IndexSurvivesRestart(t *testing.T) {
	root := t.TempDir()
	w, err := NewWorker("test-ws", root, RuntimeConfig{})
	require.NoError(t, err)
	w.Start()
	require.NoError(t, w.SaveSession(SessionMeta{ID: "a", Title: "kept"}))
	require.NoError(t, w.SaveSnapshot("a", []byte(`{"state":"confirming"}`)))
	w.Stop()
	assert.False(t, w.IsLockHeld())

	w2 := newTestWorker(t, root, RuntimeConfig{})
	got, err := w2.GetSession("a")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Title)

	data, err := w2.LoadSnapshot("a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"confirming"}`, string(data))
}

func TestWorker_SecondWorkerIsLockedOut(t *testing.T) {
	root := t.TempDir()
	newTestWorker(t, root, RuntimeConfig{})

	_, err := NewWorker("test-ws", root, RuntimeConfig{
		LockTimeout:  100 * time.Millisecond,
		LockRetry:    10 * time.Millisecond,
		LockMaxRetry: 5,
	})
	assert.Error(t, err)
}

func TestWorker_Snapshot(t *testing.T) {
	w := newTestWorker(t, t.TempDir(), RuntimeConfig{})

	_, err := w.LoadSnapshot("nope")
	assert.True(t, kakuninErrors.IsCategory(err, kakuninErrors.ErrNotFound))

	require.NoError(t, w.SaveSnapshot("s1", []byte(`{"v":1}`)))
	require.NoError(t, w.SaveSnapshot("s1", []byte(`{"v":2}`)))
	data, err := w.LoadSnapshot("s1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(data))
}

func TestWorker_Transcript(t *testing.T) {
	w := newTestWorker(t, t.TempDir(), RuntimeConfig{})

	entries, err := w.ReadTranscript("s1", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, w.AppendTranscript("s1",
		TranscriptEntry{Turn: 1, UserInput: "build a todo api", StateBefore: "parsing", StateAfter: "confirming"},
		TranscriptEntry{Turn: 2, UserInput: "yes", StateBefore: "confirming", StateAfter: "confirming"},
	))
	require.NoError(t, w.AppendTranscript("s1", TranscriptEntry{Turn: 3, UserInput: "Both"}))

	entries, err = w.ReadTranscript("s1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "build a todo api", entries[0].UserInput)
	assert.NotEmpty(t, entries[0].ID)

	last, err := w.ReadTranscript("s1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, 2, last[0].Turn)
	assert.Equal(t, 3, last[1].Turn)
}

func TestWorker_DeleteSession(t *testing.T) {
	w := newTestWorker(t, t.TempDir(), RuntimeConfig{})

	require.NoError(t, w.SaveSession(SessionMeta{ID: "s1"}))
	require.NoError(t, w.SaveSnapshot("s1", []byte(`{}`)))
	require.NoError(t, w.AppendTranscript("s1", TranscriptEntry{Turn: 1}))

	require.NoError(t, w.DeleteSession("s1"))
	assert.NoFileExists(t, snapshotPath(w.basePath, "s1"))
	assert.NoFileExists(t, transcriptPath(w.basePath, "s1"))

	_, err := w.GetSession("s1")
	assert.True(t, kakuninErrors.IsCategory(err, kakuninErrors.ErrNotFound))

	err = w.DeleteSession("s1")
	assert.True(t, kakuninErrors.IsCategory(err, kakuninErrors.ErrNotFound))
}

func TestWorker_TranscriptRotation(t *testing.T) {
	w := newTestWorker(t, t.TempDir(), RuntimeConfig{TranscriptRotateMaxBytes: 512})

	big := TranscriptEntry{Turn: 1, SystemResponse: strings.Repeat("x", 400)}
	for i := 0; i < 3; i++ {
		require.NoError(t, w.AppendTranscript("rot", big))
	}

	path := transcriptPath(w.basePath, "rot")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(2*512))

	backups, err := filepath.Glob(path + ".*.bak")
	require.NoError(t, err)
	assert.NotEmpty(t, backups)
}

func TestRuntimeConfigFrom(t *testing.T) {
	cfg, err := RuntimeConfigFrom(storeConfigForTest("2s", "50ms"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, 50*time.Millisecond, cfg.LockRetry)

	_, err = RuntimeConfigFrom(storeConfigForTest("soon", ""))
	assert.Error(t, err)
}

func storeConfigForTest(timeout, retry string) config.StoreConfig {
	return config.StoreConfig{LockTimeout: timeout, LockRetry: retry}
}

func TestWorker_RequestsAfterStopFail(t *testing.T) {
	w := newTestWorker(t, t.TempDir(), RuntimeConfig{})
	require.NoError(t, w.SaveSession(SessionMeta{ID: "a", Title: "first"}))

	w.Stop()
	assert.False(t, w.IsLockHeld())

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.ErrorIs(t, w.SaveSession(SessionMeta{ID: "b"}), ErrStopped)
		_, err := w.GetSession("a")
		assert.ErrorIs(t, err, ErrStopped)
		_, err = w.ListSessions()
		assert.True(t, kakuninErrors.IsCategory(err, kakuninErrors.ErrInternal))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("request after Stop blocked")
	}
}
