package utils

import (
	"github.com/charmbracelet/lipgloss"
)

// For branch & project names.
func Aqua(str string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Render(str)
}

// For paths & filenames.
func Bold(str string) string {
	return lipgloss.NewStyle().Bold(true).Render(str)
}

func Blue(str string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Render(str)
}

func Yellow(str string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Render(str)
}

func Red(str string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render(str)
}

func Green(str string) string {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(str)
}
