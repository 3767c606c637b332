package store

import "time"

// --- Session Index (sessions/index.json) ---

type SessionMeta struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	State     string            `json:"state"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	Metadata  map[string]string `json:"metadata,omitempty"` // e.g. "project_type": "api"
}

type SessionIndex struct {
	Sessions map[string]SessionMeta `json:"sessions"`
}

// --- Snapshot (sessions/<id>.json) ---
// Raw JSON of the dialog snapshot; the store does not interpret it.

// --- Transcript (sessions/<id>.jsonl) ---

// TranscriptEntry is one dialog turn as appended to the transcript.
type TranscriptEntry struct {
	ID             string         `json:"id"` // ULID
	Timestamp      time.Time      `json:"ts"`
	Turn           int            `json:"turn"`
	UserInput      string         `json:"user_input"`
	SystemResponse string         `json:"system_response"`
	StateBefore    string         `json:"state_before"`
	StateAfter     string         `json:"state_after"`
	Metadata       map[string]any `json:"meta,omitempty"`
}
