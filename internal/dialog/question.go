package dialog

import (
	"github.com/oklog/ulid/v2"
)

// QuestionType controls how a question is presented and what answer shape it expects.
type QuestionType string

const (
	QuestionConfirm     QuestionType = "confirm"
	QuestionChoice      QuestionType = "choice"
	QuestionMultiSelect QuestionType = "multi_select"
	QuestionText        QuestionType = "text"
	QuestionNumber      QuestionType = "number"
)

// QuestionKind tags a synthesized question with the side effect its answer has
// on the working requirement. Ad-hoc questions carry an empty kind.
type QuestionKind string

const (
	KindProjectTypeConfirm  QuestionKind = "project_type_confirm"
	KindTechStackConfirm    QuestionKind = "tech_stack_confirm"
	KindFeatureScopeConfirm QuestionKind = "feature_scope_confirm"
	KindDatabaseChoice      QuestionKind = "database_choice"
	KindDeploymentChoice    QuestionKind = "deployment_choice"
	KindClarificationText   QuestionKind = "clarification_text"
)

// QuestionSpec describes a question to be added to the queue.
type QuestionSpec struct {
	Kind     QuestionKind
	Prompt   string
	Type     QuestionType
	Options  []string
	Default  any
	Required bool
}

type Question struct {
	ID       string       `json:"id"`
	Kind     QuestionKind `json:"kind,omitempty"`
	Prompt   string       `json:"prompt"`
	Type     QuestionType `json:"type"`
	Options  []string     `json:"options,omitempty"`
	Default  any          `json:"default,omitempty"`
	Required bool         `json:"required"`
	Answer   any          `json:"answer,omitempty"`
	Answered bool         `json:"answered"`
}

func (q Question) clone() Question {
	if q.Options != nil {
		opts := make([]string, len(q.Options))
		copy(opts, q.Options)
		q.Options = opts
	}
	q.Default = deepCopy(q.Default)
	q.Answer = deepCopy(q.Answer)
	return q
}

// QuestionQueue holds the ordered questions of one dialog together with their
// answer status. Insertion order is presentation order; questions are never removed
// except by Clear on a dialog restart.
type QuestionQueue struct {
	questions []*Question
	newID     func() string
}

func NewQuestionQueue() *QuestionQueue {
	return &QuestionQueue{newID: func() string { return ulid.Make().String() }}
}

// Add appends a question with a fresh id and returns a copy of it.
func (q *QuestionQueue) Add(spec QuestionSpec) Question {
	question := Question{
		ID:       q.newID(),
		Kind:     spec.Kind,
		Prompt:   spec.Prompt,
		Type:     spec.Type,
		Options:  spec.Options,
		Default:  spec.Default,
		Required: spec.Required,
	}
	question = question.clone()
	q.questions = append(q.questions, &question)
	return question.clone()
}

// NextUnanswered returns the first required question without an answer.
// Optional questions are never surfaced here.
func (q *QuestionQueue) NextUnanswered() (Question, bool) {
	for _, question := range q.questions {
		if question.Required && !question.Answered {
			return question.clone(), true
		}
	}
	return Question{}, false
}

// UnansweredRequired lists every required question still waiting for an answer.
func (q *QuestionQueue) UnansweredRequired() []Question {
	var out []Question
	for _, question := range q.questions {
		if question.Required && !question.Answered {
			out = append(out, question.clone())
		}
	}
	return out
}

// Answer records value for the question with the given id. Answering twice
// overwrites the previous value. Unknown ids return false without mutation.
func (q *QuestionQueue) Answer(id string, value any) bool {
	for _, question := range q.questions {
		if question.ID == id {
			question.Answer = deepCopy(value)
			question.Answered = true
			return true
		}
	}
	return false
}

func (q *QuestionQueue) Get(id string) (Question, bool) {
	for _, question := range q.questions {
		if question.ID == id {
			return question.clone(), true
		}
	}
	return Question{}, false
}

func (q *QuestionQueue) All() []Question {
	out := make([]Question, 0, len(q.questions))
	for _, question := range q.questions {
		out = append(out, question.clone())
	}
	return out
}

func (q *QuestionQueue) Len() int {
	return len(q.questions)
}

func (q *QuestionQueue) AnsweredCount() int {
	n := 0
	for _, question := range q.questions {
		if question.Answered {
			n++
		}
	}
	return n
}

func (q *QuestionQueue) Clear() {
	q.questions = nil
}
