package cmd

import (
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamgarcia4/rendezvous/barrier"
	"github.com/adamgarcia4/rendezvous/logger"
	"github.com/adamgarcia4/rendezvous/node"
)

type stopRecorder struct {
	calls int
	err   error
}

func (s *stopRecorder) stop() error {
	s.calls++
	return s.err
}

func testModel(t *testing.T, nodes int, stop *stopRecorder) model {
	t.Helper()
	var ns []*node.Node
	for i := 0; i < nodes; i++ {
		n, err := node.New(node.DefaultConfig())
		require.NoError(t, err)
		ns = append(ns, n)
	}
	m := initialModel(ns, nil, stop.stop)
	m.logBuffer = logger.NewLogBuffer(50)
	return m
}

func press(m model, key string) (model, tea.Cmd) {
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)})
	return next.(model), cmd
}

func update(m model, msg tea.Msg) (model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(model), cmd
}

func TestQuitWaitsForRuns(t *testing.T) {
	stop := &stopRecorder{}
	m := testModel(t, 1, stop)

	m, cmd := press(m, "q")
	assert.True(t, m.quitting)
	assert.Nil(t, cmd, "sockets stay open until the runs return")
	assert.Error(t, m.ctx.Err(), "runs are cancelled")

	m, cmd = press(m, "q")
	assert.Nil(t, cmd)

	m, cmd = update(m, runFinishedMsg{results: map[string]barrier.State{"a": barrier.StateTimedOut}})
	require.NotNil(t, cmd)
	assert.True(t, m.finished)

	msg := cmd()
	assert.Equal(t, 1, stop.calls)
	_, cmd = update(m, msg)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestQuitAfterRunsFinished(t *testing.T) {
	stop := &stopRecorder{err: errors.New("close udp: boom")}
	m := testModel(t, 1, stop)

	m, cmd := update(m, runFinishedMsg{results: map[string]barrier.State{"a": barrier.StateComplete}})
	assert.Nil(t, cmd)
	assert.NoError(t, m.err)

	m, cmd = press(m, "q")
	require.NotNil(t, cmd)
	m, cmd = update(m, cmd())
	assert.Equal(t, 1, stop.calls)
	assert.EqualError(t, m.err, "close udp: boom")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestRunErrorIsShown(t *testing.T) {
	m := testModel(t, 1, &stopRecorder{})

	m, _ = update(m, runFinishedMsg{err: errors.New("node-1: node not started")})
	assert.EqualError(t, m.err, "node-1: node not started")
}

func TestUpdateKeys(t *testing.T) {
	tests := []struct {
		name       string
		keys       []string
		wantSel    int
		wantScroll int
	}{
		{"right", []string{"l"}, 1, 0},
		{"right stops at last node", []string{"l", "l", "l", "l"}, 2, 0},
		{"left stops at first node", []string{"h", "h"}, 0, 0},
		{"scroll up", []string{"k", "k"}, 0, 2},
		{"scroll up is bounded", []string{"k", "k", "k", "k", "k", "k", "k"}, 0, 5},
		{"scroll back down", []string{"k", "k", "j"}, 0, 1},
		{"clear resets scroll", []string{"k", "k", "c"}, 0, 0},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			m := testModel(t, 3, &stopRecorder{})
			for i := 0; i < logCount+5; i++ {
				m.logBuffer.Append(logger.LogEntry{Timestamp: time.Now(), Level: "INFO", NodeID: "n", Message: "line"})
			}

			for _, k := range test.keys {
				m, _ = press(m, k)
			}
			assert.Equal(t, test.wantSel, m.selected)
			assert.Equal(t, test.wantScroll, m.logScroll)
		})
	}
}

func TestClearEmptiesLogPane(t *testing.T) {
	m := testModel(t, 1, &stopRecorder{})
	m.logBuffer.Append(logger.LogEntry{Timestamp: time.Now(), Level: "INFO", NodeID: "n", Message: "READY"})

	m, _ = press(m, "c")
	assert.Empty(t, m.logBuffer.GetAll())
	assert.Contains(t, m.renderLogs(), "(no logs yet)")
}
