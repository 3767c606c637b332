// Package parser turns a free-text requirement into the structured result the
// confirmation dialog starts from. Parsing itself is delegated to an LLM
// (through the model router) or to an external command such as `claude --print`.
package parser

import (
	"context"
	"strings"
)

// Parser is the requirement-parsing collaborator. Implementations may be slow
// and may fail; callers treat every error as an upstream parse failure.
type Parser interface {
	Parse(ctx context.Context, raw string) (*Result, error)
}

type TechStack struct {
	Runtime  string `json:"runtime"`
	Frontend string `json:"frontend"`
	Backend  string `json:"backend"`
	Database string `json:"database"`
}

// Map renders the stack the way it is stored in the working requirement.
func (t TechStack) Map() map[string]any {
	return map[string]any{
		"runtime":  t.Runtime,
		"frontend": t.Frontend,
		"backend":  t.Backend,
		"database": t.Database,
	}
}

type Result struct {
	Summary                string     `json:"summary"`
	ProjectType            string     `json:"project_type"`
	Features               []string   `json:"features"`
	Constraints            []string   `json:"constraints"`
	SuggestedTechStack     *TechStack `json:"suggested_tech_stack,omitempty"`
	ClarificationQuestions []string   `json:"clarification_questions"`
}

const (
	DefaultProjectType = "unknown"
	DefaultRuntime     = "python"
	DefaultFrontend    = "none"
	DefaultBackend     = "fastapi"
	DefaultDatabase    = "sqlite"
)

var (
	runtimeAliases = map[string]string{
		"python": "python",
		"nodejs": "nodejs",
		"node":   "nodejs",
		"go":     "go",
		"rust":   "rust",
		"java":   "java",
	}
	frontendAliases = map[string]string{
		"react":  "react",
		"vue":    "vue",
		"svelte": "svelte",
		"nextjs": "nextjs",
		"nuxt":   "nuxt",
		"none":   "none",
	}
	backendAliases = map[string]string{
		"fastapi": "fastapi",
		"django":  "django",
		"flask":   "flask",
		"express": "express",
		"nestjs":  "nestjs",
		"gin":     "gin",
		"none":    "none",
	}
	databaseAliases = map[string]string{
		"postgresql": "postgresql",
		"postgres":   "postgresql",
		"mysql":      "mysql",
		"mongodb":    "mongodb",
		"sqlite":     "sqlite",
		"redis":      "redis",
		"none":       "none",
	}
)

// NormalizeTechStack maps aliases onto canonical ids. Unknown or empty values
// take the defaults.
func NormalizeTechStack(t TechStack) TechStack {
	return TechStack{
		Runtime:  lookupAlias(runtimeAliases, t.Runtime, DefaultRuntime),
		Frontend: lookupAlias(frontendAliases, t.Frontend, DefaultFrontend),
		Backend:  lookupAlias(backendAliases, t.Backend, DefaultBackend),
		Database: lookupAlias(databaseAliases, t.Database, DefaultDatabase),
	}
}

func lookupAlias(table map[string]string, value, fallback string) string {
	if id, ok := table[strings.ToLower(strings.TrimSpace(value))]; ok {
		return id
	}
	return fallback
}

// Normalize trims the result and applies defaults in place.
func (r *Result) Normalize() {
	r.Summary = strings.TrimSpace(r.Summary)
	r.ProjectType = strings.ToLower(strings.TrimSpace(r.ProjectType))
	if r.ProjectType == "" {
		r.ProjectType = DefaultProjectType
	}
	r.Features = compactStrings(r.Features)
	r.Constraints = compactStrings(r.Constraints)
	r.ClarificationQuestions = compactStrings(r.ClarificationQuestions)
	if r.SuggestedTechStack != nil {
		stack := NormalizeTechStack(*r.SuggestedTechStack)
		r.SuggestedTechStack = &stack
	}
}

func compactStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if clean := strings.TrimSpace(s); clean != "" {
			out = append(out, clean)
		}
	}
	return out
}
