package dialog

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// ChangeRecord is one audited mutation of the working requirement.
type ChangeRecord struct {
	ID        string    `json:"id"`
	Field     string    `json:"field"`
	OldValue  any       `json:"old_value"`
	NewValue  any       `json:"new_value"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeLedger is the append-only audit trail of requirement edits.
type ChangeLedger struct {
	records []ChangeRecord
	newID   func() string
	now     func() time.Time
}

func NewChangeLedger() *ChangeLedger {
	return &ChangeLedger{
		newID: func() string { return ulid.Make().String() },
		now:   time.Now,
	}
}

// Record appends a change. It never fails and never merges with earlier records.
func (l *ChangeLedger) Record(field string, oldValue, newValue any, reason string) ChangeRecord {
	rec := ChangeRecord{
		ID:        l.newID(),
		Field:     field,
		OldValue:  deepCopy(oldValue),
		NewValue:  deepCopy(newValue),
		Reason:    reason,
		Timestamp: l.now(),
	}
	l.records = append(l.records, rec)
	return rec
}

// History returns the records in creation order.
func (l *ChangeLedger) History() []ChangeRecord {
	out := make([]ChangeRecord, len(l.records))
	for i, rec := range l.records {
		rec.OldValue = deepCopy(rec.OldValue)
		rec.NewValue = deepCopy(rec.NewValue)
		out[i] = rec
	}
	return out
}

func (l *ChangeLedger) Len() int {
	return len(l.records)
}

func (l *ChangeLedger) Clear() {
	l.records = nil
}
