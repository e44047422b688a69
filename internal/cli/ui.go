package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// DisplayWelcomeBanner shows the welcome banner
func DisplayWelcomeBanner(out io.Writer) {
	welcomeStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#7C3AED")).
		Bold(true).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(lipgloss.Color("#7C3AED")).
		Padding(0, 4).
		Align(lipgloss.Center)

	taglineStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#3B82F6")).
		Italic(true).
		MarginBottom(1)

	fmt.Fprintln(out, welcomeStyle.Render("ANALYST COUNCIL\nvalue · growth · macro · quant · momentum"))
	fmt.Fprintln(out, taglineStyle.Render("Five AI investment experts analyse in parallel; a chair delivers the verdict."))
}
