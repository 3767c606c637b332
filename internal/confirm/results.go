package confirm

import (
	"github.com/harunnryd/kakunin/internal/dialog"
)

const (
	NextActionConfirmQuestions = "confirm_questions"
	NextActionApproveOrModify  = "approve_or_modify"
)

// Outcome is embedded in every flow result. Err carries the categorized error
// for hosts that map failures with errors.Is; it is not serialized.
type Outcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

func failed(err error) Outcome {
	return Outcome{Success: false, Error: err.Error(), Err: err}
}

var succeeded = Outcome{Success: true}

// QuestionView is the caller-facing shape of a pending question.
type QuestionView struct {
	ID       string              `json:"id"`
	Question string              `json:"question"`
	Kind     dialog.QuestionKind `json:"kind,omitempty"`
	Type     dialog.QuestionType `json:"type"`
	Options  []string            `json:"options,omitempty"`
	Default  any                 `json:"default,omitempty"`
	Required bool                `json:"required"`
	Answered bool                `json:"answered"`
	Answer   any                 `json:"answer,omitempty"`
}

func viewOf(q dialog.Question) *QuestionView {
	return &QuestionView{
		ID:       q.ID,
		Question: q.Prompt,
		Kind:     q.Kind,
		Type:     q.Type,
		Options:  q.Options,
		Default:  q.Default,
		Required: q.Required,
		Answered: q.Answered,
		Answer:   q.Answer,
	}
}

type StartResult struct {
	Outcome
	State          dialog.State `json:"state,omitempty"`
	Summary        string       `json:"summary,omitempty"`
	ProjectType    string       `json:"project_type,omitempty"`
	Features       []string     `json:"features,omitempty"`
	NextAction     string       `json:"next_action,omitempty"`
	QuestionsCount int          `json:"questions_count"`
}

type AnswerResult struct {
	Outcome
	State        dialog.State    `json:"state"`
	NextQuestion *QuestionView   `json:"next_question,omitempty"`
	Message      string          `json:"message,omitempty"`
	NextAction   string          `json:"next_action,omitempty"`
	Summary      *dialog.Summary `json:"summary,omitempty"`
}

type ApproveResult struct {
	Outcome
	State               dialog.State          `json:"state"`
	Requirement         map[string]any        `json:"requirement,omitempty"`
	ChangeHistory       []dialog.ChangeRecord `json:"change_history,omitempty"`
	DialogSummary       *dialog.Summary       `json:"dialog_summary,omitempty"`
	UnansweredQuestions []string              `json:"unanswered_questions,omitempty"`
}

type ModifyResult struct {
	Outcome
	State       dialog.State         `json:"state"`
	Message     string               `json:"message,omitempty"`
	Requirement map[string]any       `json:"requirement,omitempty"`
	Change      *dialog.ChangeRecord `json:"change,omitempty"`
}

type CancelResult struct {
	Outcome
	State  dialog.State `json:"state"`
	Reason string       `json:"reason,omitempty"`
}

type StatusResult struct {
	State           dialog.State   `json:"state"`
	Requirement     map[string]any `json:"requirement"`
	DialogSummary   dialog.Summary `json:"dialog_summary"`
	UnansweredCount int            `json:"unanswered_count"`
	ChangesCount    int            `json:"changes_count"`
}
