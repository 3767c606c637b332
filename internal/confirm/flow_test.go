package confirm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/harunnryd/kakunin/internal/dialog"
	kakuninErrors "github.com/harunnryd/kakunin/internal/errors"
	"github.com/harunnryd/kakunin/internal/parser"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockParser struct {
	mock.Mock
}

func (m *MockParser) Parse(ctx context.Context, raw string) (*parser.Result, error) {
	args := m.Called(ctx, raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*parser.Result), args.Error(1)
}

type panicParser struct{}

func (panicParser) Parse(context.Context, string) (*parser.Result, error) {
	panic("upstream exploded")
}

func todoAPIResult() *parser.Result {
	return &parser.Result{
		Summary:     "todo api",
		ProjectType: "api",
		Features:    []string{"todo"},
	}
}

func newTestFlow(t *testing.T, res *parser.Result) (*Flow, *MockParser) {
	t.Helper()
	p := new(MockParser)
	p.On("Parse", mock.Anything, mock.Anything).Return(res, nil)

	n := 0
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f := NewFlow(p, WithSessionOptions(
		dialog.WithClock(func() time.Time { return base }),
		dialog.WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	))
	return f, p
}

func startedFlow(t *testing.T) *Flow {
	t.Helper()
	f, _ := newTestFlow(t, todoAPIResult())
	res := f.Start(context.Background(), "build a todo api")
	require.True(t, res.Success, res.Error)
	return f
}

func TestStart_SynthesizesQuestions(t *testing.T) {
	f := startedFlow(t)

	qs := f.Questions()
	require.Len(t, qs, 3)
	assert.Equal(t, dialog.KindProjectTypeConfirm, qs[0].Kind)
	assert.Equal(t, dialog.KindDatabaseChoice, qs[1].Kind)
	assert.Equal(t, dialog.KindDeploymentChoice, qs[2].Kind)
	for _, q := range qs {
		assert.True(t, q.Required)
	}

	assert.Equal(t, dialog.StateConfirming, f.State())
	status := f.Status()
	assert.Equal(t, 3, status.UnansweredCount)
	assert.Equal(t, "build a todo api", status.Requirement["raw_text"])
	assert.Equal(t, []string{"todo"}, status.Requirement["features"])
	assert.NotContains(t, status.Requirement, "tech_stack")
}

func TestStart_ResultPayload(t *testing.T) {
	f, _ := newTestFlow(t, todoAPIResult())
	res := f.Start(context.Background(), "build a todo api")

	assert.True(t, res.Success)
	assert.Equal(t, dialog.StateConfirming, res.State)
	assert.Equal(t, "todo api", res.Summary)
	assert.Equal(t, "api", res.ProjectType)
	assert.Equal(t, []string{"todo"}, res.Features)
	assert.Equal(t, NextActionConfirmQuestions, res.NextAction)
	assert.Equal(t, 3, res.QuestionsCount)

	history := f.History()
	require.Len(t, history, 1)
	assert.Equal(t, "build a todo api", history[0].UserInput)
	assert.Equal(t, dialog.StateParsing, history[0].StateBefore)
	assert.Equal(t, dialog.StateConfirming, history[0].StateAfter)
}

func TestStart_FullBattery(t *testing.T) {
	f, _ := newTestFlow(t, &parser.Result{
		Summary:                "shop",
		ProjectType:            "web",
		Features:               []string{"cart", "checkout"},
		SuggestedTechStack:     &parser.TechStack{Runtime: "nodejs", Frontend: "react", Backend: "express", Database: "postgresql"},
		ClarificationQuestions: []string{"Payment provider?", "Guest checkout?"},
	})
	res := f.Start(context.Background(), "an online shop")
	require.True(t, res.Success)
	assert.Equal(t, 5, res.QuestionsCount)

	qs := f.Questions()
	kinds := make([]dialog.QuestionKind, len(qs))
	for i, q := range qs {
		kinds[i] = q.Kind
	}
	assert.Equal(t, []dialog.QuestionKind{
		dialog.KindProjectTypeConfirm,
		dialog.KindTechStackConfirm,
		dialog.KindFeatureScopeConfirm,
		dialog.KindDatabaseChoice,
		dialog.KindDeploymentChoice,
		dialog.KindClarificationText,
		dialog.KindClarificationText,
	}, kinds)
	assert.False(t, qs[5].Required)
	assert.Contains(t, qs[2].Question, "1. cart")
	assert.Contains(t, qs[2].Question, "2. checkout")
	assert.Equal(t, map[string]any{"runtime": "nodejs", "frontend": "react", "backend": "express", "database": "postgresql"}, f.Status().Requirement["tech_stack"])
}

func TestStart_NoDatabaseQuestionForCLI(t *testing.T) {
	f, _ := newTestFlow(t, &parser.Result{Summary: "tool", ProjectType: "cli", Features: []string{"x"}})
	res := f.Start(context.Background(), "a cli")
	require.True(t, res.Success)
	assert.Equal(t, 2, res.QuestionsCount)
}

func TestStart_ParserFailureLeavesSessionUntouched(t *testing.T) {
	f := startedFlow(t)
	before := f.Snapshot()

	p := new(MockParser)
	p.On("Parse", mock.Anything, "again").Return(nil, errors.New("model unavailable"))
	f.parser = p

	res := f.Start(context.Background(), "again")
	assert.False(t, res.Success)
	assert.Equal(t, "model unavailable", res.Error)
	assert.True(t, kakuninErrors.IsCategory(res.Err, kakuninErrors.ErrUpstreamParse))
	assert.Equal(t, before, f.Snapshot())
}

func TestStart_ParserPanicIsUpstreamParse(t *testing.T) {
	f := NewFlow(panicParser{})
	res := f.Start(context.Background(), "anything")
	assert.False(t, res.Success)
	assert.True(t, kakuninErrors.IsCategory(res.Err, kakuninErrors.ErrUpstreamParse))
	assert.Contains(t, res.Error, "upstream exploded")
	assert.Equal(t, dialog.StateIdle, f.State())
	assert.Empty(t, f.History())
}

func TestStart_EmptyInput(t *testing.T) {
	f, p := newTestFlow(t, todoAPIResult())
	res := f.Start(context.Background(), "  ")
	assert.True(t, kakuninErrors.IsCategory(res.Err, kakuninErrors.ErrInvalidInput))
	p.AssertNotCalled(t, "Parse", mock.Anything, mock.Anything)
}

func TestCurrentQuestion_Idempotent(t *testing.T) {
	f := startedFlow(t)
	first := f.CurrentQuestion()
	require.NotNil(t, first)
	assert.Equal(t, first, f.CurrentQuestion())
	assert.Equal(t, dialog.QuestionConfirm, first.Type)
	assert.Equal(t, true, first.Default)
}

func TestAnswer_AllRequiredMovesToRefining(t *testing.T) {
	f := startedFlow(t)

	r1 := f.Answer(true)
	require.True(t, r1.Success)
	require.NotNil(t, r1.NextQuestion)
	assert.Equal(t, dialog.KindDatabaseChoice, r1.NextQuestion.Kind)
	assert.Equal(t, dialog.StateConfirming, r1.State)

	r2 := f.Answer("PostgreSQL (production)")
	require.True(t, r2.Success)
	require.NotNil(t, r2.NextQuestion)
	assert.Equal(t, dialog.KindDeploymentChoice, r2.NextQuestion.Kind)

	r3 := f.Answer("Run locally")
	require.True(t, r3.Success)
	assert.Equal(t, dialog.StateRefining, r3.State)
	assert.Nil(t, r3.NextQuestion)
	assert.Equal(t, NextActionApproveOrModify, r3.NextAction)
	require.NotNil(t, r3.Summary)
	assert.Equal(t, 3, r3.Summary.AnsweredCount)

	req := f.Status().Requirement
	assert.Equal(t, "postgresql", req["database_type"])
	assert.Equal(t, "local", req["deployment_type"])

	turns := f.History()
	require.Len(t, turns, 4)
	last := turns[3]
	assert.Equal(t, "Run locally", last.UserInput)
	assert.Equal(t, dialog.StateConfirming, last.StateBefore)
	assert.Equal(t, dialog.StateRefining, last.StateAfter)
}

func TestAnswer_NoCurrentQuestion(t *testing.T) {
	f := NewFlow(new(MockParser))
	res := f.Answer("x")
	assert.False(t, res.Success)
	assert.Equal(t, dialog.StateIdle, res.State)
	assert.True(t, kakuninErrors.IsCategory(res.Err, kakuninErrors.ErrNoCurrentQuestion))
}

func TestAnswer_UnknownChoiceFallsBack(t *testing.T) {
	f := startedFlow(t)
	f.Answer(true)
	f.Answer("Oracle")
	f.Answer("somewhere")

	req := f.Status().Requirement
	assert.Equal(t, "sqlite", req["database_type"])
	assert.Equal(t, "docker", req["deployment_type"])
}

func TestAnswer_ProjectTypeRejectionMovesToClarifying(t *testing.T) {
	f := startedFlow(t)
	res := f.Answer("no")
	require.True(t, res.Success)
	assert.Equal(t, dialog.StateClarifying, res.State)
	assert.Equal(t, false, f.Status().Requirement["project_type_confirmed"])

	f.Answer("SQLite (lightweight)")
	final := f.Answer("Both")
	assert.Equal(t, dialog.StateRefining, final.State)
	assert.Equal(t, "both", f.Status().Requirement["deployment_type"])
}

func TestAnswer_RejectionFlags(t *testing.T) {
	f, _ := newTestFlow(t, &parser.Result{
		Summary:            "svc",
		ProjectType:        "service",
		Features:           []string{"a", "b"},
		SuggestedTechStack: &parser.TechStack{Runtime: "go"},
	})
	require.True(t, f.Start(context.Background(), "svc").Success)

	f.Answer(true)
	f.Answer(false)
	f.Answer("n")

	req := f.Status().Requirement
	assert.Equal(t, false, req["tech_stack_confirmed"])
	assert.Equal(t, false, req["all_features_required"])
	assert.NotContains(t, req, "project_type_confirmed")
}

func TestAnswerQuestion_ReanswerRestoresConfirmation(t *testing.T) {
	tests := []struct {
		kind dialog.QuestionKind
		flag string
	}{
		{dialog.KindProjectTypeConfirm, "project_type_confirmed"},
		{dialog.KindTechStackConfirm, "tech_stack_confirmed"},
		{dialog.KindFeatureScopeConfirm, "all_features_required"},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			f, _ := newTestFlow(t, &parser.Result{
				Summary:            "svc",
				ProjectType:        "api",
				Features:           []string{"a", "b"},
				SuggestedTechStack: &parser.TechStack{Runtime: "go"},
			})
			require.True(t, f.Start(context.Background(), "svc").Success)

			var id string
			for _, q := range f.Questions() {
				if q.Kind == tt.kind {
					id = q.ID
				}
			}
			require.NotEmpty(t, id)

			require.True(t, f.AnswerQuestion(id, false).Success)
			assert.Equal(t, false, f.Status().Requirement[tt.flag])

			require.True(t, f.AnswerQuestion(id, true).Success)
			assert.Equal(t, true, f.Status().Requirement[tt.flag])

			changes := f.Changes()
			require.Len(t, changes, 2)
			assert.Equal(t, false, changes[1].OldValue)
			assert.Equal(t, true, changes[1].NewValue)
		})
	}
}

func TestAnswerQuestion_FirstAcceptanceWritesNothing(t *testing.T) {
	f := startedFlow(t)
	id := f.CurrentQuestion().ID

	require.True(t, f.AnswerQuestion(id, true).Success)
	assert.NotContains(t, f.Status().Requirement, "project_type_confirmed")
	assert.Empty(t, f.Changes())
}

func TestAnswerQuestion_OptionalDoesNotAffectRequired(t *testing.T) {
	f, _ := newTestFlow(t, &parser.Result{
		Summary:                "x",
		ProjectType:            "cli",
		ClarificationQuestions: []string{"Which shell?"},
	})
	require.True(t, f.Start(context.Background(), "x").Success)

	before := f.CurrentQuestion()
	optional := f.Questions()[2]
	require.False(t, optional.Required)

	res := f.AnswerQuestion(optional.ID, "zsh")
	require.True(t, res.Success)
	assert.Equal(t, before, f.CurrentQuestion())
	assert.Equal(t, "zsh", f.Status().Requirement["clarifications"].(map[string]any)[optional.ID])
}

func TestAnswerQuestion_UnknownID(t *testing.T) {
	f := startedFlow(t)
	before := f.Snapshot()

	res := f.AnswerQuestion("missing", "x")
	assert.False(t, res.Success)
	assert.True(t, kakuninErrors.IsCategory(res.Err, kakuninErrors.ErrUnknownQuestion))
	assert.Equal(t, before, f.Snapshot())
}

func TestApprove_BlockedUntilAnswered(t *testing.T) {
	f := startedFlow(t)

	res := f.Approve()
	assert.False(t, res.Success)
	assert.True(t, kakuninErrors.IsCategory(res.Err, kakuninErrors.ErrApprovalBlocked))
	assert.Len(t, res.UnansweredQuestions, 3)
	assert.Equal(t, dialog.StateConfirming, f.State())
	assert.Len(t, f.History(), 1)
}

func TestApprove_Success(t *testing.T) {
	f := startedFlow(t)
	f.Answer(true)
	f.Answer("MongoDB (document)")
	f.Answer("Docker container deployment")

	res := f.Approve()
	require.True(t, res.Success, res.Error)
	assert.Equal(t, dialog.StateApproved, res.State)
	assert.Equal(t, "mongodb", res.Requirement["database_type"])
	require.NotNil(t, res.DialogSummary)
	assert.True(t, res.DialogSummary.IsApproved)

	fields := map[string]any{}
	for _, c := range res.ChangeHistory {
		fields[c.Field] = c.NewValue
	}
	assert.Equal(t, "mongodb", fields["database_type"])
	assert.Equal(t, "docker", fields["deployment_type"])

	turns := f.History()
	last := turns[len(turns)-1]
	assert.Equal(t, "approve", last.UserInput)
	assert.Equal(t, dialog.StateRefining, last.StateBefore)
	assert.Equal(t, dialog.StateApproved, last.StateAfter)
	assert.Equal(t, res.Requirement, f.FinalRequirement())
}

func TestApprove_TwiceIsIllegal(t *testing.T) {
	f := startedFlow(t)
	f.Answer(true)
	f.Answer("SQLite (lightweight)")
	f.Answer("Both")
	require.True(t, f.Approve().Success)
	turns := len(f.History())

	res := f.Approve()
	assert.False(t, res.Success)
	assert.True(t, kakuninErrors.IsCategory(res.Err, kakuninErrors.ErrIllegalTransition))
	assert.Len(t, f.History(), turns)
}

func TestCancel_FromConfirming(t *testing.T) {
	f := startedFlow(t)
	res := f.Cancel("user changed mind")

	require.True(t, res.Success)
	assert.Equal(t, dialog.StateCancelled, res.State)
	assert.Equal(t, "user changed mind", res.Reason)

	turns := f.History()
	require.Len(t, turns, 2)
	assert.Contains(t, turns[1].SystemResponse, "user changed mind")
	assert.Equal(t, dialog.StateCancelled, turns[1].StateAfter)
	assert.Nil(t, f.FinalRequirement())
}

func TestCancel_EmptyReasonLogsNothing(t *testing.T) {
	f := startedFlow(t)
	res := f.Cancel("")
	require.True(t, res.Success)
	assert.Equal(t, dialog.StateCancelled, f.State())
	assert.Len(t, f.History(), 1)
}

func TestCancel_FromIdleFails(t *testing.T) {
	f := NewFlow(new(MockParser))
	res := f.Cancel("nope")
	assert.False(t, res.Success)
	assert.True(t, kakuninErrors.IsCategory(res.Err, kakuninErrors.ErrIllegalTransition))
	assert.Empty(t, f.History())
}

func TestModify_RecordsChange(t *testing.T) {
	f := startedFlow(t)
	res := f.Modify("features", []string{"todo", "auth"}, "added auth")

	require.True(t, res.Success)
	assert.Equal(t, dialog.StateRefining, res.State)
	assert.Equal(t, dialog.StateConfirming, f.State())
	assert.Equal(t, []string{"todo", "auth"}, res.Requirement["features"])

	changes := f.Changes()
	require.Len(t, changes, 1)
	assert.Equal(t, "features", changes[0].Field)
	assert.Equal(t, []string{"todo"}, changes[0].OldValue)
	assert.Equal(t, []string{"todo", "auth"}, changes[0].NewValue)
	assert.Equal(t, "added auth", changes[0].Reason)

	turns := f.History()
	assert.Equal(t, "Updated: features", turns[len(turns)-1].SystemResponse)
}

func TestModify_NestedField(t *testing.T) {
	f := startedFlow(t)
	res := f.Modify("tech_stack.runtime", "go", "prefer go")
	require.True(t, res.Success)
	assert.Equal(t, map[string]any{"runtime": "go"}, res.Requirement["tech_stack"])
	assert.Nil(t, res.Change.OldValue)
}

func TestModify_Rejected(t *testing.T) {
	f := NewFlow(new(MockParser))
	res := f.Modify("features", "x", "")
	assert.True(t, kakuninErrors.IsCategory(res.Err, kakuninErrors.ErrIllegalTransition))

	started := startedFlow(t)
	res = started.Modify(" ", "x", "")
	assert.True(t, kakuninErrors.IsCategory(res.Err, kakuninErrors.ErrInvalidInput))
	assert.Empty(t, started.Changes())
}

func TestRestart_ResetsEverything(t *testing.T) {
	f := startedFlow(t)
	f.Answer(true)
	f.Modify("x", 1, "")
	f.Cancel("stop")

	res := f.Start(context.Background(), "build a todo api")
	require.True(t, res.Success)
	assert.Len(t, f.History(), 1)
	assert.Empty(t, f.Changes())
	assert.Len(t, f.Questions(), 3)
	assert.Equal(t, []dialog.State{dialog.StateIdle, dialog.StateParsing, dialog.StateConfirming}, f.Snapshot().StateHistory)
}

func TestSnapshotRestore(t *testing.T) {
	f := startedFlow(t)
	f.Answer(true)

	restored := NewFlow(new(MockParser))
	require.NoError(t, restored.Restore(f.Snapshot()))
	assert.Equal(t, f.Status(), restored.Status())
	assert.Equal(t, f.CurrentQuestion(), restored.CurrentQuestion())

	err := restored.Restore(dialog.Snapshot{State: "bogus"})
	assert.True(t, kakuninErrors.IsCategory(err, kakuninErrors.ErrInvalidInput))
}
