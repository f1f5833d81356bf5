package ui

import (
	"github.com/charmbracelet/glamour"
)

// RenderMarkdown renders markdown for the terminal using glamour.
func RenderMarkdown(content string, wordWrap int) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}
