package confirm

import (
	"fmt"
	"strings"

	"github.com/harunnryd/kakunin/internal/dialog"
	kakuninErrors "github.com/harunnryd/kakunin/internal/errors"
)

const answerReason = "user answer"

// isRejection reports whether a confirm answer declines the question.
func isRejection(answer any) bool {
	switch v := answer.(type) {
	case bool:
		return !v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "no", "n", "false":
			return true
		}
	}
	return false
}

// applyAnswer writes the side effect of an answer into the working
// requirement. It returns the state the dialog should move to, or "" to stay.
func applyAnswer(s *dialog.Session, q dialog.Question, answer any) dialog.State {
	switch q.Kind {
	case dialog.KindProjectTypeConfirm:
		if !recordConfirmation(s, "project_type_confirmed", answer) && s.State() == dialog.StateConfirming {
			return dialog.StateClarifying
		}
	case dialog.KindTechStackConfirm:
		recordConfirmation(s, "tech_stack_confirmed", answer)
	case dialog.KindFeatureScopeConfirm:
		recordConfirmation(s, "all_features_required", answer)
	case dialog.KindDatabaseChoice:
		s.UpdateRequirement("database_type", resolveChoice(databaseChoices, answer), answerReason)
	case dialog.KindDeploymentChoice:
		s.UpdateRequirement("deployment_type", resolveChoice(deploymentChoices, answer), answerReason)
	case dialog.KindClarificationText:
		s.UpdateRequirement("clarifications."+q.ID, answer, answerReason)
	}
	return ""
}

// recordConfirmation writes false to path on a rejection. An acceptance only
// writes when an earlier answer left the flag false, so re-answering keeps
// the requirement in line with the question. It reports whether the answer
// was accepted.
func recordConfirmation(s *dialog.Session, path string, answer any) bool {
	if isRejection(answer) {
		s.UpdateRequirement(path, false, answerReason)
		return false
	}
	if v, ok := s.Get(path).(bool); ok && !v {
		s.UpdateRequirement(path, true, answerReason)
	}
	return true
}

func formatAnswer(answer any) string {
	switch v := answer.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "yes"
		}
		return "no"
	case []string:
		return strings.Join(v, ", ")
	}
	return fmt.Sprint(answer)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// upstreamError keeps a parser failure's text as is while categorizing it as
// an upstream parse failure.
type upstreamError struct {
	err error
}

func (e *upstreamError) Error() string { return e.err.Error() }

func (e *upstreamError) Unwrap() []error {
	return []error{e.err, kakuninErrors.ErrUpstreamParse}
}
