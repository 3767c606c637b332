// Package confirm drives one requirement-confirmation dialog: it asks the
// parser for a structured requirement, synthesizes the confirmation questions
// and gates approval on every required answer.
package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/harunnryd/kakunin/internal/dialog"
	kakuninErrors "github.com/harunnryd/kakunin/internal/errors"
	"github.com/harunnryd/kakunin/internal/logger"
	"github.com/harunnryd/kakunin/internal/parser"
)

// Flow composes a parser with one dialog session. It is single-writer: hosts
// that share a Flow between goroutines must serialize calls.
type Flow struct {
	parser      parser.Parser
	session     *dialog.Session
	sessionOpts []dialog.Option
}

type Option func(*Flow)

// WithSessionOptions forwards options to every session the flow creates.
func WithSessionOptions(opts ...dialog.Option) Option {
	return func(f *Flow) {
		f.sessionOpts = append(f.sessionOpts, opts...)
	}
}

func NewFlow(p parser.Parser, opts ...Option) *Flow {
	f := &Flow{parser: p}
	for _, opt := range opts {
		opt(f)
	}
	f.session = dialog.NewSession(f.sessionOpts...)
	return f
}

func (f *Flow) State() dialog.State {
	return f.session.State()
}

// Start parses raw and opens a new dialog over the result. A parser failure
// leaves the current session untouched.
func (f *Flow) Start(ctx context.Context, raw string) StartResult {
	log := logger.FromContext(ctx)

	if strings.TrimSpace(raw) == "" {
		return StartResult{Outcome: failed(kakuninErrors.InvalidInput("requirement text is empty")), State: f.session.State()}
	}

	res, err := f.parse(ctx, raw)
	if err != nil {
		log.Warn("Requirement parse failed", "error", err)
		return StartResult{Outcome: failed(err), State: f.session.State()}
	}

	initial := map[string]any{
		"raw_text":     raw,
		"summary":      res.Summary,
		"project_type": res.ProjectType,
		"features":     res.Features,
		"constraints":  res.Constraints,
	}
	if res.SuggestedTechStack != nil {
		initial["tech_stack"] = res.SuggestedTechStack.Map()
	}

	if !f.session.StartDialog(initial) {
		err := kakuninErrors.Internal("dialog could not enter parsing")
		return StartResult{Outcome: failed(err), State: f.session.State()}
	}
	f.session.AddTurnAndTransition(raw, "Requirement parsed: "+res.Summary, nil, dialog.StateConfirming)

	for _, spec := range synthesizeQuestions(res) {
		f.session.AddQuestion(spec)
	}
	pending := len(f.session.UnansweredRequired())

	log.Info("Dialog started", "project_type", res.ProjectType, "features", len(res.Features), "questions", pending)
	return StartResult{
		Outcome:        succeeded,
		State:          f.session.State(),
		Summary:        res.Summary,
		ProjectType:    res.ProjectType,
		Features:       append([]string(nil), res.Features...),
		NextAction:     NextActionConfirmQuestions,
		QuestionsCount: pending,
	}
}

// parse calls the parser and converts every failure, including a panic, into
// an upstream parse error.
func (f *Flow) parse(ctx context.Context, raw string) (res *parser.Result, err error) {
	if f.parser == nil {
		return nil, kakuninErrors.UpstreamParse("no requirement parser configured")
	}
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = kakuninErrors.UpstreamParse(fmt.Sprintf("parser panicked: %v", r))
		}
	}()

	res, err = f.parser.Parse(ctx, raw)
	if err != nil {
		if kakuninErrors.IsCategory(err, kakuninErrors.ErrUpstreamParse) {
			return nil, err
		}
		return nil, &upstreamError{err: err}
	}
	if res == nil {
		return nil, kakuninErrors.UpstreamParse("parser returned no result")
	}
	res.Normalize()
	return res, nil
}

// CurrentQuestion returns the first unanswered required question, or nil.
func (f *Flow) CurrentQuestion() *QuestionView {
	q, ok := f.session.NextQuestion()
	if !ok {
		return nil
	}
	return viewOf(q)
}

// Questions lists every question of the dialog, optional ones included.
func (f *Flow) Questions() []QuestionView {
	qs := f.session.Questions()
	out := make([]QuestionView, len(qs))
	for i, q := range qs {
		out[i] = *viewOf(q)
	}
	return out
}

// Answer answers the current question.
func (f *Flow) Answer(value any) AnswerResult {
	q, ok := f.session.NextQuestion()
	if !ok {
		err := kakuninErrors.NoCurrentQuestion(fmt.Sprintf("no pending question in state %s", f.session.State()))
		return AnswerResult{Outcome: failed(err), State: f.session.State()}
	}
	return f.answer(q, value)
}

// AnswerQuestion answers a question by id, which is how optional questions
// get answered.
func (f *Flow) AnswerQuestion(id string, value any) AnswerResult {
	q, ok := f.session.Question(id)
	if !ok {
		err := kakuninErrors.UnknownQuestion(fmt.Sprintf("question %q not found", id))
		return AnswerResult{Outcome: failed(err), State: f.session.State()}
	}
	return f.answer(q, value)
}

func (f *Flow) answer(q dialog.Question, value any) AnswerResult {
	state := f.session.State()
	if !state.Active() {
		err := kakuninErrors.IllegalTransition(fmt.Sprintf("cannot answer questions in state %s", state))
		return AnswerResult{Outcome: failed(err), State: state}
	}

	f.session.AnswerQuestion(q.ID, value)
	target := applyAnswer(f.session, q, value)

	remaining := f.session.UnansweredRequired()
	if len(remaining) == 0 && f.session.State() != dialog.StateRefining {
		target = dialog.StateRefining
	}

	input := formatAnswer(value)
	response := "Recorded answer: " + truncate(q.Prompt, 30)
	metadata := map[string]any{"question_id": q.ID, "kind": string(q.Kind)}
	if target != "" && f.session.CanTransition(target) {
		f.session.AddTurnAndTransition(input, response, metadata, target)
	} else {
		f.session.AddTurn(input, response, metadata)
	}

	slog.Debug("Question answered", "question", q.ID, "kind", q.Kind, "remaining", len(remaining), "state", f.session.State())

	if len(remaining) == 0 {
		summary := f.session.Summary()
		return AnswerResult{
			Outcome:    succeeded,
			State:      f.session.State(),
			Message:    "All required questions answered, review the requirement then approve or modify it",
			NextAction: NextActionApproveOrModify,
			Summary:    &summary,
		}
	}
	return AnswerResult{
		Outcome:      succeeded,
		State:        f.session.State(),
		NextQuestion: viewOf(remaining[0]),
	}
}

// Approve confirms the requirement once every required question is answered.
func (f *Flow) Approve() ApproveResult {
	if unanswered := f.session.UnansweredRequired(); len(unanswered) > 0 {
		prompts := make([]string, len(unanswered))
		for i, q := range unanswered {
			prompts[i] = q.Prompt
		}
		err := kakuninErrors.ApprovalBlocked(fmt.Sprintf("%d required questions unanswered", len(prompts)))
		return ApproveResult{Outcome: failed(err), State: f.session.State(), UnansweredQuestions: prompts}
	}

	state := f.session.State()
	if !f.session.CanTransition(dialog.StateApproved) {
		err := kakuninErrors.IllegalTransition(fmt.Sprintf("cannot approve from state %s", state))
		return ApproveResult{Outcome: failed(err), State: state}
	}

	f.session.AddTurn("approve", "Requirement confirmed, ready for code generation", nil)
	f.session.Approve()

	summary := f.session.Summary()
	slog.Info("Requirement approved", "turns", summary.TurnCount, "changes", summary.ChangeCount)
	return ApproveResult{
		Outcome:       succeeded,
		State:         f.session.State(),
		Requirement:   f.session.Requirement(),
		ChangeHistory: f.session.Changes(),
		DialogSummary: &summary,
	}
}

// Modify rewrites one requirement field outside the question flow. It never
// moves the state machine and always reports refining.
func (f *Flow) Modify(field string, value any, reason string) ModifyResult {
	state := f.session.State()
	if strings.TrimSpace(field) == "" {
		return ModifyResult{Outcome: failed(kakuninErrors.InvalidInput("field is required")), State: state}
	}
	if !state.Active() {
		err := kakuninErrors.IllegalTransition(fmt.Sprintf("cannot modify the requirement in state %s", state))
		return ModifyResult{Outcome: failed(err), State: state}
	}

	change := f.session.UpdateRequirement(field, value, reason)
	f.session.AddTurn(
		fmt.Sprintf("modify %s to %s", field, formatAnswer(value)),
		"Updated: "+field,
		map[string]any{"change_id": change.ID},
	)

	return ModifyResult{
		Outcome:     succeeded,
		State:       dialog.StateRefining,
		Message:     fmt.Sprintf("Updated %s", field),
		Requirement: f.session.Requirement(),
		Change:      &change,
	}
}

func (f *Flow) Cancel(reason string) CancelResult {
	state := f.session.State()
	if !f.session.Cancel(reason) {
		err := kakuninErrors.IllegalTransition(fmt.Sprintf("cannot cancel from state %s", state))
		return CancelResult{Outcome: failed(err), State: state}
	}
	slog.Info("Dialog cancelled", "reason", reason)
	return CancelResult{Outcome: succeeded, State: f.session.State(), Reason: reason}
}

func (f *Flow) Status() StatusResult {
	summary := f.session.Summary()
	return StatusResult{
		State:           summary.State,
		Requirement:     f.session.Requirement(),
		DialogSummary:   summary,
		UnansweredCount: len(f.session.UnansweredRequired()),
		ChangesCount:    summary.ChangeCount,
	}
}

func (f *Flow) History() []dialog.Turn {
	return f.session.Turns()
}

func (f *Flow) Changes() []dialog.ChangeRecord {
	return f.session.Changes()
}

// FinalRequirement returns the approved requirement, or nil before approval.
func (f *Flow) FinalRequirement() map[string]any {
	if f.session.State() != dialog.StateApproved {
		return nil
	}
	return f.session.Requirement()
}

func (f *Flow) Snapshot() dialog.Snapshot {
	return f.session.Snapshot()
}

// Restore replaces the session with one rebuilt from snap.
func (f *Flow) Restore(snap dialog.Snapshot) error {
	s, err := dialog.RestoreSession(snap, f.sessionOpts...)
	if err != nil {
		return kakuninErrors.WrapWithCategory(err, "restore dialog", kakuninErrors.ErrInvalidInput)
	}
	f.session = s
	return nil
}
