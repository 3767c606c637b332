package confirm

import (
	"fmt"
	"strings"

	"github.com/harunnryd/kakunin/internal/dialog"
	"github.com/harunnryd/kakunin/internal/parser"
)

type choice struct {
	Label string
	ID    string
}

var (
	databaseChoices = []choice{
		{Label: "SQLite (lightweight)", ID: "sqlite"},
		{Label: "PostgreSQL (production)", ID: "postgresql"},
		{Label: "MongoDB (document)", ID: "mongodb"},
		{Label: "MySQL (traditional)", ID: "mysql"},
	}
	deploymentChoices = []choice{
		{Label: "Docker container deployment", ID: "docker"},
		{Label: "Run locally", ID: "local"},
		{Label: "Both", ID: "both"},
	}
)

func labels(choices []choice) []string {
	out := make([]string, len(choices))
	for i, c := range choices {
		out[i] = c.Label
	}
	return out
}

// resolveChoice maps an answer onto a canonical id. Labels and ids match
// case-insensitively; anything else resolves to the first choice.
func resolveChoice(choices []choice, answer any) string {
	value := strings.ToLower(strings.TrimSpace(fmt.Sprint(answer)))
	for _, c := range choices {
		if value == strings.ToLower(c.Label) || value == c.ID {
			return c.ID
		}
	}
	return choices[0].ID
}

func needsDatabase(projectType string) bool {
	switch projectType {
	case "web", "api":
		return true
	}
	return false
}

// synthesizeQuestions returns the confirmation battery for a parsed
// requirement in presentation order.
func synthesizeQuestions(res *parser.Result) []dialog.QuestionSpec {
	specs := []dialog.QuestionSpec{{
		Kind:     dialog.KindProjectTypeConfirm,
		Prompt:   fmt.Sprintf("Detected project type '%s', is that correct?", res.ProjectType),
		Type:     dialog.QuestionConfirm,
		Default:  true,
		Required: true,
	}}

	if res.SuggestedTechStack != nil {
		specs = append(specs, dialog.QuestionSpec{
			Kind:     dialog.KindTechStackConfirm,
			Prompt:   fmt.Sprintf("Suggested %s tech stack, accept?", res.SuggestedTechStack.Runtime),
			Type:     dialog.QuestionConfirm,
			Default:  true,
			Required: true,
		})
	}

	if len(res.Features) > 1 {
		var b strings.Builder
		b.WriteString("Are all of the following features required?")
		for i, feature := range res.Features {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, feature)
		}
		specs = append(specs, dialog.QuestionSpec{
			Kind:     dialog.KindFeatureScopeConfirm,
			Prompt:   b.String(),
			Type:     dialog.QuestionConfirm,
			Default:  true,
			Required: true,
		})
	}

	if needsDatabase(res.ProjectType) {
		specs = append(specs, dialog.QuestionSpec{
			Kind:     dialog.KindDatabaseChoice,
			Prompt:   "Choose a database:",
			Type:     dialog.QuestionChoice,
			Options:  labels(databaseChoices),
			Default:  databaseChoices[0].Label,
			Required: true,
		})
	}

	specs = append(specs, dialog.QuestionSpec{
		Kind:     dialog.KindDeploymentChoice,
		Prompt:   "Choose a deployment method:",
		Type:     dialog.QuestionChoice,
		Options:  labels(deploymentChoices),
		Default:  deploymentChoices[0].Label,
		Required: true,
	})

	for _, q := range res.ClarificationQuestions {
		specs = append(specs, dialog.QuestionSpec{
			Kind:     dialog.KindClarificationText,
			Prompt:   q,
			Type:     dialog.QuestionText,
			Required: false,
		})
	}
	return specs
}
