package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRestoreEmpty(t *testing.T) {
	h := NewHistory(NewState(Rules{}))
	_, ok := h.Restore()
	assert.False(t, ok)
	assert.Equal(t, 1, h.Len())
}

func TestHistoryRoundTrip(t *testing.T) {
	s0 := NewState(Rules{})
	h := NewHistory(s0)

	s1 := play(t, s0, StartP1)
	h.Save(s1)

	got, ok := h.Restore()
	require.True(t, ok)
	assert.Equal(t, s0, got)
}

func TestHistoryRewindOneAction(t *testing.T) {
	s := NewState(Rules{})
	h := NewHistory(s)

	s = play(t, s, StartP1)
	h.Save(s)
	afterFirst := s.Clone()

	s = play(t, s, c(5, 3))
	h.Save(s)

	got, ok := h.Restore()
	require.True(t, ok)
	assert.Equal(t, afterFirst, got)
	assert.Equal(t, PhaseMove, got.Phase)
	require.NotNil(t, got.Selected)

	got, ok = h.Restore()
	require.True(t, ok)
	assert.Equal(t, NewState(Rules{}), got)

	_, ok = h.Restore()
	assert.False(t, ok)
}

func TestHistorySnapshotsAreIndependent(t *testing.T) {
	s := play(t, NewState(Rules{}), StartP1)
	h := NewHistory(NewState(Rules{}))
	h.Save(s)

	s.Board.Set(c(3, 3), CellBarrier)
	*s.Selected = c(1, 1)
	h.Save(NewState(Rules{}))

	got, ok := h.Restore()
	require.True(t, ok)
	assert.Equal(t, CellEmpty, got.Board.At(c(3, 3)))
	assert.Equal(t, StartP1, *got.Selected)
}

func TestHistoryReset(t *testing.T) {
	h := NewHistory(NewState(Rules{}))
	h.Save(play(t, NewState(Rules{}), StartP1))
	h.Reset(NewState(Rules{TimeLimitSec: 5}))

	assert.Equal(t, 1, h.Len())
	_, ok := h.Restore()
	assert.False(t, ok)
}
