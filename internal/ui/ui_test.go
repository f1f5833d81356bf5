package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer InitLogger()

	tests := []struct {
		in   string
		want log.Level
	}{
		{"debug", log.DebugLevel},
		{"INFO", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"error", log.ErrorLevel},
		{"nonsense", log.InfoLevel},
	}
	for _, tt := range tests {
		SetLevel(tt.in)
		assert.Equal(t, tt.want, log.GetLevel(), tt.in)
	}

	SetDebug(true)
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	SetDebug(false)
	assert.Equal(t, log.InfoLevel, log.GetLevel())
}

func TestHorizontalRule(t *testing.T) {
	assert.Contains(t, HorizontalRule(5), "─────")
}

func TestTable(t *testing.T) {
	out := Table([]string{"NAME", "POINTS"}, [][]string{
		{"notes", "3"},
		{"a-much-longer-name", "120"},
	})
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[2], "a-much-longer-name")
	// columns line up
	assert.Equal(t, strings.Index(lines[1], "3"), strings.Index(lines[2], "120"))
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("# Title\n\nsome *text*", 80)
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "text")
}
