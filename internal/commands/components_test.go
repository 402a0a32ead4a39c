package commands

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCustomID(t *testing.T) {
	tests := []struct {
		id       string
		expected string
		ok       bool
	}{
		{"music:skip", "skip", true},
		{"music:loop", "loop", true},
		{"music:play", "", false},
		{"music:", "", false},
		{"skip", "", false},
		{"other:skip", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := ParseCustomID(tt.id)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestControlsRow(t *testing.T) {
	rows := ControlsRow()
	require.Len(t, rows, 1)
	row, ok := rows[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 5)

	var ids []string
	for _, c := range row.Components {
		button, ok := c.(discordgo.Button)
		require.True(t, ok)
		command, known := ParseCustomID(button.CustomID)
		assert.True(t, known, button.CustomID)
		ids = append(ids, command)
	}
	assert.Equal(t, []string{"skip", "pause", "resume", "loop", "stop"}, ids)
}
