package render

import (
	"charm.land/lipgloss/v2"
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

func Title(s string) string   { return titleStyle.Render(s) }
func Success(s string) string { return successStyle.Render("✓ " + s) }
func Warn(s string) string    { return warnStyle.Render("! " + s) }
func Error(s string) string   { return errorStyle.Render("✗ " + s) }
func Muted(s string) string   { return mutedStyle.Render(s) }
