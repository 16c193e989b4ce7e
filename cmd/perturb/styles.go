package main

import "github.com/charmbracelet/lipgloss"

var (
	colorTitle = lipgloss.Color("#2CD7C7")
	colorMuted = lipgloss.Color("#5F7D87")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorTitle)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
)
