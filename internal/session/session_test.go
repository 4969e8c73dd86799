package session

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/abluka/internal/engine"
	"github.com/DoyleJ11/abluka/internal/hub"
	"github.com/DoyleJ11/abluka/internal/store"
)

func newHub(t *testing.T) *hub.Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return hub.NewHub(ctx, store.NewMemory(), zaptest.NewLogger(t))
}

func newAdapter(t *testing.T, r Remote) *Adapter {
	t.Helper()
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	a := New(r, zaptest.NewLogger(t), mock)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = a.Close(ctx)
	})
	return a
}

func recvEvent(t *testing.T, a *Adapter) Event {
	t.Helper()
	select {
	case ev := <-a.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for session event")
		return Event{}
	}
}

func recvNoEvent(t *testing.T, a *Adapter, within time.Duration) {
	t.Helper()
	select {
	case ev := <-a.Events():
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(within):
	}
}

func flush(t *testing.T, a *Adapter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Flush(ctx))
}

// pair returns a host and a guest adapter sharing one session.
func pair(t *testing.T) (*hub.Hub, *Adapter, *Adapter, string) {
	t.Helper()
	h := newHub(t)
	host := newAdapter(t, h)
	guest := newAdapter(t, h)
	ctx := context.Background()

	code, err := host.CreateSession(ctx)
	require.NoError(t, err)
	require.NoError(t, guest.JoinSession(ctx, code))

	// guest sees the current record, host sees the guest arrive
	require.Equal(t, EvtRemoteState, recvEvent(t, guest).Type)
	joined := recvEvent(t, host)
	require.Equal(t, EvtRemoteState, joined.Type)
	require.NotNil(t, joined.Record.Player2)
	return h, host, guest, code
}

func TestRole(t *testing.T) {
	assert.Equal(t, engine.P1, RolePlayer1.Piece())
	assert.Equal(t, engine.P2, RolePlayer2.Piece())
	assert.True(t, RolePlayer2.IsLocalTurn(engine.P2))
	assert.False(t, RolePlayer2.IsLocalTurn(engine.P1))
	assert.False(t, RoleNone.IsLocalTurn(engine.P1))
}

func TestGenerateCode(t *testing.T) {
	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		require.Regexp(t, pattern, code)
	}
}

func TestCreateAndJoin(t *testing.T) {
	h, host, guest, code := pair(t)

	assert.Equal(t, RolePlayer1, host.Role())
	assert.Equal(t, RolePlayer2, guest.Role())
	assert.Equal(t, code, guest.Code())

	rec, err := h.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, store.PlayerSlot{Ready: true, Connected: true}, *rec.Player1)
	assert.Equal(t, store.PlayerSlot{Ready: false, Connected: true}, *rec.Player2)
	assert.Equal(t, engine.P1, rec.CurrentPlayer)
	assert.False(t, rec.GameStarted)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), rec.CreatedAt)

	_, err = host.CreateSession(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyOnline)
	assert.ErrorIs(t, guest.JoinSession(context.Background(), code), ErrAlreadyOnline)
}

func TestJoinMissingSession(t *testing.T) {
	a := newAdapter(t, newHub(t))
	assert.ErrorIs(t, a.JoinSession(context.Background(), "NOPE00"), ErrSessionNotFound)
	assert.False(t, a.Online())
}

func TestJoinWithoutHost(t *testing.T) {
	h := newHub(t)
	require.NoError(t, h.Create(context.Background(), store.Record{Code: "EMPTY0"}))

	a := newAdapter(t, h)
	assert.ErrorIs(t, a.JoinSession(context.Background(), "EMPTY0"), ErrSessionNotFound)
}

type slowRemote struct{ Remote }

func (slowRemote) Get(ctx context.Context, _ string) (store.Record, error) {
	<-ctx.Done()
	return store.Record{}, ctx.Err()
}

func TestJoinTimeout(t *testing.T) {
	a := newAdapter(t, slowRemote{newHub(t)})
	a.joinTimeout = 20 * time.Millisecond

	assert.ErrorIs(t, a.JoinSession(context.Background(), "ABC123"), ErrJoinTimeout)
}

type collidingRemote struct {
	Remote
	fails int
}

func (c *collidingRemote) Create(ctx context.Context, rec store.Record) error {
	if c.fails > 0 {
		c.fails--
		return store.ErrExists
	}
	return c.Remote.Create(ctx, rec)
}

func TestCreateRetriesOnCollision(t *testing.T) {
	r := &collidingRemote{Remote: newHub(t), fails: 2}
	a := newAdapter(t, r)

	code, err := a.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.Zero(t, r.fails)

	r2 := &collidingRemote{Remote: newHub(t), fails: createAttempts}
	_, err = newAdapter(t, r2).CreateSession(context.Background())
	assert.ErrorIs(t, err, store.ErrExists)
}

func TestPublishStateReachesOpponentOnly(t *testing.T) {
	_, host, guest, _ := pair(t)

	s := engine.NewState(engine.Rules{})
	for _, at := range []engine.Coord{engine.StartP1, {Row: 5, Col: 3}, {Row: 4, Col: 3}} {
		_, s, _ = engine.Apply(s, engine.Command{Type: engine.CmdClick, Cell: at})
	}
	host.PublishState(s)
	flush(t, host)

	ev := recvEvent(t, guest)
	require.Equal(t, EvtRemoteState, ev.Type)
	assert.Equal(t, string(RolePlayer1), ev.Record.UpdatedBy)
	require.NotNil(t, ev.Record.LastUpdate)

	remote, ok := StateFromRecord(ev.Record)
	require.True(t, ok)
	assert.Equal(t, engine.RemoteOf(s), remote)

	recvNoEvent(t, host, 50*time.Millisecond)
}

func TestPublishStart(t *testing.T) {
	h, host, guest, code := pair(t)

	host.PublishStart(engine.NewState(engine.Rules{}))
	flush(t, host)

	ev := recvEvent(t, guest)
	assert.True(t, ev.Record.GameStarted)
	assert.NotNil(t, ev.Record.GameStartedAt)

	rec, err := h.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, engine.P1, rec.CurrentPlayer)
	assert.True(t, rec.Player2.Connected, "player slots untouched")
}

func TestSlotUpdatesMerge(t *testing.T) {
	h, host, guest, code := pair(t)

	guest.SetLocalName("Bo")
	guest.SetLocalReady(true)
	flush(t, guest)
	host.SetLocalName("Ada")
	flush(t, host)

	rec, err := h.Get(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, store.PlayerSlot{Ready: true, Connected: true, Name: "Ada"}, *rec.Player1)
	assert.Equal(t, store.PlayerSlot{Ready: true, Connected: true, Name: "Bo"}, *rec.Player2)

	p1, p2 := Names(rec)
	assert.Equal(t, "Ada", p1)
	assert.Equal(t, "Bo", p2)
}

func TestLeaveSessionNotifiesOpponent(t *testing.T) {
	h, host, guest, code := pair(t)

	require.NoError(t, host.LeaveSession(context.Background()))
	assert.False(t, host.Online())

	ev := recvEvent(t, guest)
	assert.Equal(t, EvtSessionDeleted, ev.Type)
	require.Eventually(t, func() bool { return !guest.Online() }, time.Second, 10*time.Millisecond)

	_, err := h.Get(context.Background(), code)
	assert.ErrorIs(t, err, store.ErrNotFound)
	recvNoEvent(t, host, 50*time.Millisecond)

	// publishing offline is a quiet no-op
	guest.PublishState(engine.NewState(engine.Rules{}))
	flush(t, guest)
}

func TestStateFromRecord(t *testing.T) {
	_, ok := StateFromRecord(store.Record{Code: "ABC123"})
	assert.False(t, ok)

	s := engine.NewState(engine.Rules{})
	rec := store.Record{BoardState: &s.Board, CurrentPlayer: engine.P2}
	remote, ok := StateFromRecord(rec)
	require.True(t, ok)
	assert.Equal(t, s.Pawns, remote.Pawns, "positions recovered from the board")
	assert.Equal(t, engine.PhaseMove, remote.Phase)
	assert.Equal(t, engine.P2, remote.Turn)

	broken := engine.NewEmptyBoard()
	_, ok = StateFromRecord(store.Record{BoardState: &broken})
	assert.False(t, ok)

	stale := engine.Positions{P1: engine.Coord{Row: 3, Col: 3}, P2: engine.Coord{Row: 1, Col: 1}}
	rec = store.Record{BoardState: &s.Board, PawnPositions: &stale}
	remote, ok = StateFromRecord(rec)
	require.True(t, ok)
	assert.Equal(t, s.Pawns, remote.Pawns, "board wins over a stale position cache")
}
