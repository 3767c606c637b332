// Package render formats dialog data for the terminal.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/harunnryd/kakunin/internal/confirm"
	"github.com/harunnryd/kakunin/internal/dialog"
	"github.com/harunnryd/kakunin/internal/store"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

type TableFormatter struct {
	headerStyle  lipgloss.Style
	keyStyle     lipgloss.Style
	cellStyle    lipgloss.Style
	oddRowStyle  lipgloss.Style
	evenRowStyle lipgloss.Style
	borderStyle  lipgloss.Style
}

func NewTableFormatter() *TableFormatter {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")
	lightGray := lipgloss.Color("241")

	return &TableFormatter{
		headerStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Align(lipgloss.Center).
			Padding(0, 1),
		keyStyle: lipgloss.NewStyle().
			Foreground(purple).
			Bold(true).
			Padding(0, 1),
		cellStyle: lipgloss.NewStyle().
			Padding(0, 1),
		oddRowStyle: lipgloss.NewStyle().
			Foreground(gray).
			Padding(0, 1),
		evenRowStyle: lipgloss.NewStyle().
			Foreground(lightGray).
			Padding(0, 1),
		borderStyle: lipgloss.NewStyle().
			Foreground(purple),
	}
}

func (f *TableFormatter) grid(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return f.headerStyle
			case row%2 == 0:
				return f.evenRowStyle
			default:
				return f.oddRowStyle
			}
		}).
		Headers(headers...)
}

func (f *TableFormatter) keyValue() *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(f.borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return f.keyStyle
			}
			return f.cellStyle
		})
}

func (f *TableFormatter) FormatSessions(sessions []store.SessionMeta) string {
	if len(sessions) == 0 {
		return "No sessions found"
	}

	t := f.grid("ID", "State", "Title", "Type", "Updated")
	for _, s := range sessions {
		t.Row(
			s.ID,
			s.State,
			truncateString(s.Title, 40),
			s.Metadata["project_type"],
			s.UpdatedAt.Local().Format(time.DateTime),
		)
	}
	return t.String()
}

func (f *TableFormatter) FormatSession(meta store.SessionMeta) string {
	t := f.keyValue()
	t.Row("ID", meta.ID)
	t.Row("Title", meta.Title)
	t.Row("State", meta.State)
	t.Row("Created", meta.CreatedAt.Local().Format(time.DateTime))
	t.Row("Updated", meta.UpdatedAt.Local().Format(time.DateTime))
	for _, k := range sortedKeys(meta.Metadata) {
		t.Row(k, meta.Metadata[k])
	}
	return t.String()
}

func (f *TableFormatter) FormatStatus(status confirm.StatusResult) string {
	t := f.keyValue()
	t.Row("State", string(status.State))
	t.Row("Turns", fmt.Sprint(status.DialogSummary.TurnCount))
	t.Row("Questions", fmt.Sprintf("%d/%d answered", status.DialogSummary.AnsweredCount, status.DialogSummary.QuestionCount))
	t.Row("Unanswered", fmt.Sprint(status.UnansweredCount))
	t.Row("Changes", fmt.Sprint(status.ChangesCount))
	for _, k := range sortedKeys(status.Requirement) {
		t.Row(k, truncateString(FormatValue(status.Requirement[k]), 60))
	}
	return t.String()
}

func (f *TableFormatter) FormatTurns(turns []dialog.Turn) string {
	if len(turns) == 0 {
		return "No turns recorded"
	}

	t := f.grid("#", "Input", "Response", "Transition")
	for _, turn := range turns {
		t.Row(
			fmt.Sprint(turn.ID),
			truncateString(turn.UserInput, 30),
			truncateString(turn.SystemResponse, 50),
			fmt.Sprintf("%s → %s", turn.StateBefore, turn.StateAfter),
		)
	}
	return t.String()
}

func (f *TableFormatter) FormatChanges(changes []dialog.ChangeRecord) string {
	if len(changes) == 0 {
		return "No changes recorded"
	}

	t := f.grid("Field", "Old", "New", "Reason")
	for _, c := range changes {
		t.Row(
			c.Field,
			truncateString(FormatValue(c.OldValue), 25),
			truncateString(FormatValue(c.NewValue), 25),
			truncateString(c.Reason, 30),
		)
	}
	return t.String()
}

func (f *TableFormatter) FormatQuestions(questions []confirm.QuestionView) string {
	if len(questions) == 0 {
		return "No questions"
	}

	t := f.grid("ID", "Question", "Type", "Required", "Answer")
	for _, q := range questions {
		answer := "-"
		if q.Answered {
			answer = FormatValue(q.Answer)
		}
		required := "no"
		if q.Required {
			required = "yes"
		}
		t.Row(
			q.ID,
			truncateString(q.Question, 45),
			string(q.Type),
			required,
			truncateString(answer, 25),
		)
	}
	return t.String()
}

// FormatValue renders a requirement value on one line.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "<nil>"
	case string:
		return val
	case []string:
		return strings.Join(val, ", ")
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = FormatValue(item)
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		parts := make([]string, 0, len(val))
		for _, k := range sortedKeys(val) {
			parts = append(parts, k+"="+FormatValue(val[k]))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprint(val)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
