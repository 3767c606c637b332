package dialog

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestQueue() *QuestionQueue {
	q := NewQuestionQueue()
	q.newID = sequentialIDs("q")
	return q
}

func TestQuestionQueue_AddPreservesOrderAndAssignsIDs(t *testing.T) {
	q := newTestQueue()
	a := q.Add(QuestionSpec{Prompt: "first", Type: QuestionConfirm, Required: true})
	b := q.Add(QuestionSpec{Prompt: "second", Type: QuestionText})

	assert.NotEqual(t, a.ID, b.ID)
	all := q.All()
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Prompt)
	assert.Equal(t, "second", all[1].Prompt)
	assert.False(t, all[0].Answered)
}

func TestQuestionQueue_NextUnansweredSkipsOptional(t *testing.T) {
	q := newTestQueue()
	optional := q.Add(QuestionSpec{Prompt: "optional", Type: QuestionText})
	required := q.Add(QuestionSpec{Prompt: "required", Type: QuestionConfirm, Required: true})

	next, ok := q.NextUnanswered()
	require.True(t, ok)
	assert.Equal(t, required.ID, next.ID)

	require.True(t, q.Answer(optional.ID, "whatever"))
	again, ok := q.NextUnanswered()
	require.True(t, ok)
	assert.Equal(t, next.ID, again.ID)
	assert.Len(t, q.UnansweredRequired(), 1)

	require.True(t, q.Answer(required.ID, true))
	_, ok = q.NextUnanswered()
	assert.False(t, ok)
	assert.Empty(t, q.UnansweredRequired())
	assert.Equal(t, 2, q.AnsweredCount())
}

func TestQuestionQueue_AnswerLastWriteWins(t *testing.T) {
	q := newTestQueue()
	question := q.Add(QuestionSpec{Prompt: "db", Type: QuestionChoice, Options: []string{"a", "b"}, Required: true})

	assert.True(t, q.Answer(question.ID, "a"))
	assert.True(t, q.Answer(question.ID, "b"))
	got, ok := q.Get(question.ID)
	require.True(t, ok)
	assert.Equal(t, "b", got.Answer)
	assert.True(t, got.Answered)
}

func TestQuestionQueue_AnswerUnknownIDMutatesNothing(t *testing.T) {
	q := newTestQueue()
	q.Add(QuestionSpec{Prompt: "x", Type: QuestionConfirm, Required: true})
	before := q.All()

	assert.False(t, q.Answer("missing", true))
	assert.Equal(t, before, q.All())
}

func TestQuestionQueue_ReturnedQuestionsAreCopies(t *testing.T) {
	q := newTestQueue()
	added := q.Add(QuestionSpec{Prompt: "pick", Type: QuestionChoice, Options: []string{"a"}, Required: true})
	added.Options[0] = "mutated"

	got, _ := q.Get(added.ID)
	assert.Equal(t, []string{"a"}, got.Options)
}
