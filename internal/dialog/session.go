package dialog

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Turn is one logged exchange of the dialog.
type Turn struct {
	ID             int            `json:"id"`
	UserInput      string         `json:"user_input"`
	SystemResponse string         `json:"system_response"`
	StateBefore    State          `json:"state_before"`
	StateAfter     State          `json:"state_after"`
	Timestamp      time.Time      `json:"timestamp"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Summary is a compact read of the session counters.
type Summary struct {
	State         State `json:"state"`
	TurnCount     int   `json:"turn_count"`
	QuestionCount int   `json:"question_count"`
	AnsweredCount int   `json:"answered_count"`
	ChangeCount   int   `json:"change_count"`
	IsApproved    bool  `json:"is_approved"`
	IsCancelled   bool  `json:"is_cancelled"`
}

// Session owns one confirmation dialog: its state machine, turn log, question
// queue, change ledger and working requirement. A Session is single-writer;
// hosts that share one across goroutines must serialize access.
type Session struct {
	machine     *StateMachine
	questions   *QuestionQueue
	changes     *ChangeLedger
	turns       []Turn
	requirement Requirement
	now         func() time.Time
}

type Option func(*Session)

// WithClock overrides the time source used for turns and change records.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
			s.changes.now = now
		}
	}
}

// WithIDGenerator overrides the id source for questions and change records.
func WithIDGenerator(newID func() string) Option {
	return func(s *Session) {
		if newID != nil {
			s.questions.newID = newID
			s.changes.newID = newID
		}
	}
}

func NewSession(opts ...Option) *Session {
	s := &Session{
		machine:     NewStateMachine(),
		questions:   NewQuestionQueue(),
		changes:     NewChangeLedger(),
		requirement: Requirement{},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartDialog wipes every component, seeds the working requirement with a copy
// of initial and moves to parsing.
func (s *Session) StartDialog(initial map[string]any) bool {
	s.machine.Reset()
	s.questions.Clear()
	s.changes.Clear()
	s.turns = nil
	s.requirement = Requirement(deepCopyMap(initial))
	return s.machine.Transition(StateParsing)
}

func (s *Session) State() State {
	return s.machine.State()
}

func (s *Session) CanTransition(target State) bool {
	return s.machine.CanTransition(target)
}

// AddTurn appends a turn at the current state.
func (s *Session) AddTurn(input, response string, metadata map[string]any) Turn {
	current := s.machine.State()
	turn := Turn{
		ID:             len(s.turns) + 1,
		UserInput:      input,
		SystemResponse: response,
		StateBefore:    current,
		StateAfter:     current,
		Timestamp:      s.now(),
	}
	if metadata != nil {
		turn.Metadata = deepCopyMap(metadata)
	}
	s.turns = append(s.turns, turn)
	return turn
}

// TransitionState moves the state machine and, on success, stamps the new
// state onto the most recent turn.
func (s *Session) TransitionState(target State) bool {
	if !s.machine.Transition(target) {
		return false
	}
	if n := len(s.turns); n > 0 {
		s.turns[n-1].StateAfter = target
	}
	return true
}

// AddTurnAndTransition logs a turn and moves to target as one step. When the
// move is illegal nothing is logged and false is returned.
func (s *Session) AddTurnAndTransition(input, response string, metadata map[string]any, target State) (Turn, bool) {
	if !s.machine.CanTransition(target) {
		return Turn{}, false
	}
	s.AddTurn(input, response, metadata)
	s.TransitionState(target)
	return s.turns[len(s.turns)-1], true
}

// Get reads a dotted path from the working requirement.
func (s *Session) Get(path string) any {
	return s.requirement.Get(path)
}

// Set writes a dotted path without recording a change. Prefer UpdateRequirement.
func (s *Session) Set(path string, value any) {
	s.requirement.Set(path, value)
}

// UpdateRequirement writes value at path and records the change. There is no
// schema validation and the update always succeeds.
func (s *Session) UpdateRequirement(path string, value any, reason string) ChangeRecord {
	old := s.requirement.Get(path)
	s.requirement.Set(path, value)
	return s.changes.Record(path, old, s.requirement.Get(path), reason)
}

func (s *Session) AddQuestion(spec QuestionSpec) Question {
	return s.questions.Add(spec)
}

func (s *Session) AnswerQuestion(id string, value any) bool {
	return s.questions.Answer(id, value)
}

func (s *Session) NextQuestion() (Question, bool) {
	return s.questions.NextUnanswered()
}

func (s *Session) Question(id string) (Question, bool) {
	return s.questions.Get(id)
}

func (s *Session) UnansweredRequired() []Question {
	return s.questions.UnansweredRequired()
}

func (s *Session) Questions() []Question {
	return s.questions.All()
}

// Approve moves to approved once every required question has an answer.
func (s *Session) Approve() bool {
	if len(s.questions.UnansweredRequired()) > 0 {
		return false
	}
	return s.TransitionState(StateApproved)
}

// Cancel moves to cancelled. A non-empty reason is logged as a turn first.
// When cancelling is not allowed from the current state nothing is logged.
func (s *Session) Cancel(reason string) bool {
	if !s.machine.CanTransition(StateCancelled) {
		return false
	}
	if reason == "" {
		return s.machine.Transition(StateCancelled)
	}
	_, ok := s.AddTurnAndTransition("", fmt.Sprintf("dialog cancelled: %s", reason), nil, StateCancelled)
	return ok
}

func (s *Session) Summary() Summary {
	state := s.machine.State()
	return Summary{
		State:         state,
		TurnCount:     len(s.turns),
		QuestionCount: s.questions.Len(),
		AnsweredCount: s.questions.AnsweredCount(),
		ChangeCount:   s.changes.Len(),
		IsApproved:    state == StateApproved,
		IsCancelled:   state == StateCancelled,
	}
}

// Requirement returns a deep copy of the working requirement.
func (s *Session) Requirement() Requirement {
	return s.requirement.Clone()
}

func (s *Session) Changes() []ChangeRecord {
	return s.changes.History()
}

func (s *Session) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	for i, t := range s.turns {
		if t.Metadata != nil {
			t.Metadata = deepCopyMap(t.Metadata)
		}
		out[i] = t
	}
	return out
}

func (s *Session) StateHistory() []State {
	return s.machine.History()
}

// Snapshot is the serializable form of a session.
type Snapshot struct {
	State        State          `json:"state"`
	StateHistory []State        `json:"state_history"`
	Requirement  map[string]any `json:"requirement"`
	Turns        []Turn         `json:"turns"`
	Questions    []Question     `json:"questions"`
	Changes      []ChangeRecord `json:"changes"`
}

func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		State:        s.machine.State(),
		StateHistory: s.machine.History(),
		Requirement:  deepCopyMap(s.requirement),
		Turns:        s.Turns(),
		Questions:    s.questions.All(),
		Changes:      s.changes.History(),
	}
}

// RestoreSession rebuilds a session from a snapshot.
func RestoreSession(snap Snapshot, opts ...Option) (*Session, error) {
	if !snap.State.Valid() {
		return nil, fmt.Errorf("restore session: unknown state %q", snap.State)
	}
	for _, st := range snap.StateHistory {
		if !st.Valid() {
			return nil, fmt.Errorf("restore session: unknown state %q in history", st)
		}
	}
	for i, t := range snap.Turns {
		if t.ID != i+1 {
			return nil, fmt.Errorf("restore session: turn %d has id %d", i+1, t.ID)
		}
	}

	s := NewSession(opts...)
	s.machine = restoreStateMachine(snap.State, snap.StateHistory)
	if snap.Requirement != nil {
		s.requirement = Requirement(deepCopyMap(snap.Requirement))
	}
	s.turns = make([]Turn, 0, len(snap.Turns))
	for _, t := range snap.Turns {
		if t.Metadata != nil {
			t.Metadata = deepCopyMap(t.Metadata)
		}
		s.turns = append(s.turns, t)
	}
	for _, q := range snap.Questions {
		if q.ID == "" {
			q.ID = ulid.Make().String()
		}
		cp := q.clone()
		s.questions.questions = append(s.questions.questions, &cp)
	}
	for _, c := range snap.Changes {
		c.OldValue = deepCopy(c.OldValue)
		c.NewValue = deepCopy(c.NewValue)
		s.changes.records = append(s.changes.records, c)
	}
	return s, nil
}
