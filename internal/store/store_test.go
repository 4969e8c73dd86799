package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/abluka/internal/engine"
)

func ptr[T any](v T) *T { return &v }

func newRecord(code string) Record {
	return Record{
		Code:          code,
		Player1:       &PlayerSlot{Ready: true, Connected: true, Name: "Ada"},
		CurrentPlayer: engine.P1,
		CreatedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMergeKeepsSiblingFields(t *testing.T) {
	rec := newRecord("ABC123")

	merged := rec.Merge(Patch{Player1: &SlotPatch{Ready: ptr(false)}})
	require.NotNil(t, merged.Player1)
	assert.False(t, merged.Player1.Ready)
	assert.True(t, merged.Player1.Connected)
	assert.Equal(t, "Ada", merged.Player1.Name)
	assert.True(t, rec.Player1.Ready, "merge does not alias the source")

	merged = merged.Merge(Patch{Player2: &SlotPatch{Connected: ptr(true)}})
	require.NotNil(t, merged.Player2)
	assert.Equal(t, PlayerSlot{Connected: true}, *merged.Player2)
	assert.Equal(t, "Ada", merged.Player1.Name)
}

func TestMergeGameFields(t *testing.T) {
	s := engine.NewState(engine.Rules{})
	now := time.Now().UTC()

	merged := newRecord("ABC123").Merge(Patch{
		BoardState:    &s.Board,
		Phase:         ptr(engine.PhaseBlock),
		CurrentPlayer: ptr(engine.P2),
		PawnPositions: &s.Pawns,
		Scores:        &engine.Scores{P1: 2},
		GameOver:      ptr(true),
		Winner:        ptr(engine.P1),
		Reason:        ptr(engine.ReasonBlockade),
		UpdatedBy:     ptr("player1"),
		LastUpdate:    &now,
	})

	assert.Equal(t, s.Board, *merged.BoardState)
	assert.Equal(t, engine.PhaseBlock, merged.Phase)
	assert.Equal(t, engine.P2, merged.CurrentPlayer)
	assert.Equal(t, 2, merged.Scores.P1)
	assert.True(t, merged.GameOver)
	assert.False(t, merged.GameStarted)
	assert.Equal(t, "player1", merged.UpdatedBy)
	assert.Equal(t, "Ada", merged.Player1.Name)
	assert.Nil(t, merged.Player2)

	s.Board.Set(engine.Coord{Row: 3, Col: 3}, engine.CellBarrier)
	assert.Equal(t, engine.CellEmpty, merged.BoardState.At(engine.Coord{Row: 3, Col: 3}))
}

// storeContract runs the same behaviour checks against any backend.
func storeContract(t *testing.T, s Store, code string) {
	ctx := context.Background()

	_, err := s.Get(ctx, code)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Create(ctx, newRecord(code)))
	require.ErrorIs(t, s.Create(ctx, newRecord(code)), ErrExists)

	got, err := s.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, code, got.Code)
	assert.Nil(t, got.Player2)

	merged, err := s.Update(ctx, code, Patch{Player2: &SlotPatch{Connected: ptr(true)}})
	require.NoError(t, err)
	require.NotNil(t, merged.Player2)
	assert.False(t, merged.Player2.Ready)
	assert.True(t, merged.Player2.Connected)

	merged, err = s.Update(ctx, code, Patch{Player2: &SlotPatch{Name: ptr("Bo")}})
	require.NoError(t, err)
	assert.True(t, merged.Player2.Connected)
	assert.Equal(t, "Bo", merged.Player2.Name)

	got, err = s.Get(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "Bo", got.Player2.Name)
	assert.Equal(t, "Ada", got.Player1.Name)

	_, err = s.Update(ctx, "NOPE00", Patch{GameOver: ptr(true)})
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, code))
	require.ErrorIs(t, s.Delete(ctx, code), ErrNotFound)
	_, err = s.Get(ctx, code)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemory(t *testing.T) {
	storeContract(t, NewMemory(), "ABC123")
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Create(ctx, newRecord("ABC123")))

	got, err := m.Get(ctx, "ABC123")
	require.NoError(t, err)
	got.Player1.Name = "changed"

	again, err := m.Get(ctx, "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.Player1.Name)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("ABLUKA_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("ABLUKA_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pg, err := OpenPostgres(ctx, dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })

	code := fmt.Sprintf("T%05d", time.Now().UnixNano()%100000)
	storeContract(t, pg, code)
}
