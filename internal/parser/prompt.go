package parser

import "fmt"

const outputSchema = `{
  "summary": "one-sentence summary",
  "project_type": "web | api | cli | mobile | library | ...",
  "features": ["core feature", "..."],
  "constraints": ["constraint", "..."],
  "suggested_tech_stack": {
    "runtime": "python | nodejs | go | rust | java",
    "frontend": "react | vue | svelte | nextjs | nuxt | none",
    "backend": "fastapi | django | flask | express | nestjs | gin | none",
    "database": "postgresql | mysql | mongodb | sqlite | redis | none"
  },
  "questions": ["question to confirm with the user", "..."]
}`

// BuildPrompt renders the instruction sent to the parsing collaborator.
func BuildPrompt(raw string) string {
	return fmt.Sprintf(`Analyze the following user requirement and reply with a structured JSON result.

Requirement:
%s

Reply with exactly this JSON structure and nothing else:
%s

If the requirement cannot be analyzed, reply with {"error": "<reason>"}.`, raw, outputSchema)
}
