package runtime

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/harunnryd/kakunin/internal/confirm"
	"github.com/harunnryd/kakunin/internal/dialog"

	"github.com/charmbracelet/huh"
)

// ErrAborted is returned by a Prompter when the user backs out (Ctrl-C, Esc).
var ErrAborted = errors.New("prompt aborted")

// Prompter collects input for the terminal dialog.
type Prompter interface {
	Requirement() (string, error)
	Ask(q confirm.QuestionView) (any, error)
	Command() (string, error)
}

// HuhPrompter renders each question type as the matching huh field.
type HuhPrompter struct {
	theme *huh.Theme
}

func NewHuhPrompter() *HuhPrompter {
	return &HuhPrompter{theme: huh.ThemeCharm()}
}

func (p *HuhPrompter) run(field huh.Field) error {
	err := huh.NewForm(huh.NewGroup(field)).WithTheme(p.theme).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrAborted
	}
	return err
}

func (p *HuhPrompter) Requirement() (string, error) {
	var text string
	field := huh.NewText().
		Title("Describe what you want to build").
		Placeholder("e.g., A REST API for a todo list with user accounts").
		CharLimit(5000).
		Value(&text).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("requirement is required")
			}
			return nil
		})
	if err := p.run(field); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (p *HuhPrompter) Ask(q confirm.QuestionView) (any, error) {
	description := ""
	if !q.Required {
		description = "Optional, leave empty to skip"
	}

	switch q.Type {
	case dialog.QuestionConfirm:
		v, _ := q.Default.(bool)
		if q.Default == nil {
			v = true
		}
		field := huh.NewConfirm().
			Title(q.Question).
			Description(description).
			Affirmative("Yes").
			Negative("No").
			Value(&v)
		if err := p.run(field); err != nil {
			return nil, err
		}
		return v, nil

	case dialog.QuestionChoice:
		v, _ := q.Default.(string)
		if v == "" && len(q.Options) > 0 {
			v = q.Options[0]
		}
		field := huh.NewSelect[string]().
			Title(q.Question).
			Description(description).
			Options(huh.NewOptions(q.Options...)...).
			Value(&v)
		if err := p.run(field); err != nil {
			return nil, err
		}
		return v, nil

	case dialog.QuestionMultiSelect:
		var v []string
		field := huh.NewMultiSelect[string]().
			Title(q.Question).
			Description(description).
			Options(huh.NewOptions(q.Options...)...).
			Value(&v)
		if err := p.run(field); err != nil {
			return nil, err
		}
		return v, nil

	case dialog.QuestionNumber:
		var raw string
		field := huh.NewInput().
			Title(q.Question).
			Description(description).
			Value(&raw).
			Validate(func(s string) error {
				if strings.TrimSpace(s) == "" && !q.Required {
					return nil
				}
				if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
					return fmt.Errorf("enter a number")
				}
				return nil
			})
		if err := p.run(field); err != nil {
			return nil, err
		}
		if strings.TrimSpace(raw) == "" {
			return "", nil
		}
		n, _ := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		return n, nil

	default:
		var v string
		if s, ok := q.Default.(string); ok {
			v = s
		}
		field := huh.NewInput().
			Title(q.Question).
			Description(description).
			Value(&v).
			Validate(func(s string) error {
				if q.Required && strings.TrimSpace(s) == "" {
					return fmt.Errorf("an answer is required")
				}
				return nil
			})
		if err := p.run(field); err != nil {
			return nil, err
		}
		return strings.TrimSpace(v), nil
	}
}

func (p *HuhPrompter) Command() (string, error) {
	var line string
	field := huh.NewInput().
		Title("kakunin").
		Description("approve · modify <field> <value> [reason] · answer <id> <value> · status · history · questions · cancel [reason] · quit").
		Prompt("> ").
		Value(&line)
	if err := p.run(field); err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
