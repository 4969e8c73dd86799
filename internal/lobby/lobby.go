package lobby

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/DoyleJ11/abluka/internal/engine"
	"github.com/DoyleJ11/abluka/internal/prefs"
)

var ErrNotYourTurn = errors.New("not your turn")
var ErrRewindOnline = errors.New("rewind is disabled in online play")
var ErrNothingToRewind = errors.New("nothing to rewind")
var ErrWaitingForOpponent = errors.New("waiting for the opponent")

// Publisher receives local state changes while the game is online.
type Publisher interface {
	PublishState(engine.State)
	PublishStart(engine.State)
	SetLocalName(name string)
	SetLocalReady(ready bool)
}

type Msg interface{ isLobbyMsg() }

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

// Click is a board click. Reply is optional and must be buffered.
type Click struct {
	Cell  engine.Coord
	Reply chan error
}

func (Click) isLobbyMsg() {}

type Rewind struct{ Reply chan error }

func (Rewind) isLobbyMsg() {}

type NewRound struct{}

func (NewRound) isLobbyMsg() {}

type NewSession struct{}

func (NewSession) isLobbyMsg() {}

type SetTimeLimit struct{ Seconds int }

func (SetTimeLimit) isLobbyMsg() {}

type SetName struct {
	Player engine.Player
	Name   string
}

func (SetName) isLobbyMsg() {}

// GoOnline binds the lobby to a session. Both sides wait with the clock
// stopped: the host until the guest reports ready, the guest until the host
// publishes the start of a round.
type GoOnline struct {
	Player    engine.Player
	Publisher Publisher
	Host      bool
}

func (GoOnline) isLobbyMsg() {}

// RemoteUpdate carries the opponent's published state. Empty names are
// left unchanged.
type RemoteUpdate struct {
	Remote engine.Remote
	Names  Names
	// SeatsOnly marks a record without a board; only names and readiness
	// are read from it.
	SeatsOnly  bool
	GuestReady bool
	// RoundStarted is the record's gameStartedAt. A guest starts a new round
	// whenever it changes, and on the first board it sees.
	RoundStarted time.Time
}

func (RemoteUpdate) isLobbyMsg() {}

// Ready tells the host that the guest is set to play.
type Ready struct{}

func (Ready) isLobbyMsg() {}

type SessionDeleted struct{}

func (SessionDeleted) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type tick struct{ gen int }

func (tick) isLobbyMsg() {}

type Names struct {
	P1 string `json:"p1"`
	P2 string `json:"p2"`
}

func (n Names) Of(p engine.Player) string {
	if p == engine.P2 {
		return n.P2
	}
	return n.P1
}

func (n *Names) Set(p engine.Player, name string) {
	if p == engine.P2 {
		n.P2 = name
		return
	}
	n.P1 = name
}

// Export fields
type Snapshot struct {
	Version     int            `json:"version"`
	State       engine.State   `json:"state"`
	Events      []engine.Event `json:"events,omitempty"`
	Status      string         `json:"status"`
	Names       Names          `json:"names"`
	Online      bool           `json:"online"`
	Waiting     bool           `json:"waiting,omitempty"`
	LocalPlayer engine.Player  `json:"local_player,omitempty"`
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
	History    int
	Online     bool
	Waiting    bool
	ClockOn    bool
}

type Options struct {
	Clock  clock.Clock
	Logger *zap.Logger
	// Prefs persists display names; optional.
	Prefs *prefs.Store
	Names Names
	Rules engine.Rules
}

type Lobby struct {
	inbox   chan Msg
	state   engine.State
	history *engine.History
	version int
	clients map[string]chan Snapshot
	names   Names
	notice  string

	local engine.Player
	pub   Publisher
	host  bool
	// waiting holds an online game before its first round: no clicks, no clock.
	waiting bool
	ready   bool
	round   time.Time

	clock     clock.Clock
	timerGen  int
	stopTimer func()

	prefs  *prefs.Store
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, opts Options) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	names := opts.Names
	for _, p := range []engine.Player{engine.P1, engine.P2} {
		names.Set(p, prefs.DisplayName(p, names.Of(p)))
	}

	initial := engine.NewState(opts.Rules)
	l := &Lobby{
		inbox:   make(chan Msg, 64), // Small buffer
		state:   initial,
		history: engine.NewHistory(initial),
		clients: make(map[string]chan Snapshot),
		names:   names,
		clock:   opts.Clock,
		prefs:   opts.Prefs,
		log:     opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}

	// the ticker exists before the loop runs so a mock clock can be advanced
	// as soon as NewLobby returns
	l.startTimer()
	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				select {
				case msg.Outbox <- l.snapshot(nil):
					l.clients[msg.ClientID] = msg.Outbox
				default:
					l.log.Warn("client outbox full on join", zap.String("client", msg.ClientID))
					close(msg.Outbox)
				}

			case Leave:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}

			case Click:
				reply(msg.Reply, l.click(msg.Cell))

			case Rewind:
				reply(msg.Reply, l.rewind())

			case NewRound:
				l.newRound(engine.Command{Type: engine.CmdNewRound})

			case NewSession:
				l.newRound(engine.Command{Type: engine.CmdNewSession})

			case Ready:
				l.setReady()

			case SetTimeLimit:
				l.setTimeLimit(msg.Seconds)

			case SetName:
				l.setName(msg.Player, msg.Name)

			case GoOnline:
				l.goOnline(msg)

			case RemoteUpdate:
				l.applyRemote(msg)

			case SessionDeleted:
				l.sessionDeleted()

			case tick:
				if msg.gen != l.timerGen {
					break // stale fire from a cancelled countdown
				}
				l.tick()

			case GetState:
				// test-only: reflect internal state without data races
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					State:      l.state,
					History:    l.history.Len(),
					Online:     l.pub != nil,
					Waiting:    l.waiting,
					ClockOn:    l.stopTimer != nil,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) click(at engine.Coord) error {
	if l.waiting {
		return ErrWaitingForOpponent
	}
	if l.pub != nil && l.state.Turn != l.local && !l.state.GameOver {
		return ErrNotYourTurn
	}

	events, next, err := engine.Apply(l.state, engine.Command{Type: engine.CmdClick, Cell: at})
	if err != nil {
		if engine.ContainsEvent(events, engine.EvtIllegalMoveAttempted) {
			l.notice = "That move is not legal."
			l.commit(l.state, events)
		}
		l.log.Debug("click ignored", zap.Stringer("cell", at), zap.Error(err))
		return err
	}

	l.notice = ""
	l.commit(next, events)
	l.history.Save(l.state)
	if l.state.GameOver {
		l.cancelTimer()
	}
	l.publish()
	return nil
}

func (l *Lobby) rewind() error {
	if l.pub != nil {
		return ErrRewindOnline
	}
	restored, ok := l.history.Restore()
	if !ok {
		return ErrNothingToRewind
	}

	l.notice = ""
	l.commit(restored, []engine.Event{{Type: engine.EvtRewound}})
	l.restartTimer()
	return nil
}

func (l *Lobby) startRound(cmd engine.Command) {
	events, next, err := engine.Apply(l.state, cmd)
	if err != nil {
		l.log.Warn("round start failed", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		return
	}
	l.notice = ""
	l.history.Reset(next)
	l.commit(next, events)
	l.restartTimer()
}

// newRound starts a round on request. Online only the host starts rounds and
// the guest learns of them from the published start.
func (l *Lobby) newRound(cmd engine.Command) {
	if l.pub == nil {
		l.startRound(cmd)
		return
	}
	if !l.host {
		l.notice = "Only the host can start a new round."
		l.commit(l.state, nil)
		return
	}
	if l.waiting {
		return
	}
	l.startRound(cmd)
	l.pub.PublishStart(l.state)
}

func (l *Lobby) setReady() {
	if l.pub == nil || l.host || l.ready {
		return
	}
	l.ready = true
	l.pub.SetLocalReady(true)
	l.commit(l.state, nil)
}

func (l *Lobby) setTimeLimit(seconds int) {
	events, next, err := engine.Apply(l.state, engine.Command{Type: engine.CmdSetTimeLimit, Seconds: seconds})
	if err != nil {
		l.log.Debug("time limit rejected", zap.Int("seconds", seconds), zap.Error(err))
		return
	}
	l.commit(next, events)
	l.history.Save(l.state)
	l.restartTimer()
}

func (l *Lobby) setName(p engine.Player, raw string) {
	if !p.Valid() {
		return
	}
	name := prefs.DisplayName(p, raw)
	l.names.Set(p, name)
	if l.prefs != nil {
		l.prefs.SetPlayerName(p, name)
	}
	if l.pub != nil && p == l.local {
		l.pub.SetLocalName(name)
	}
	l.commit(l.state, nil)
}

func (l *Lobby) goOnline(msg GoOnline) {
	l.pub = msg.Publisher
	l.local = msg.Player
	l.host = msg.Host
	l.ready = msg.Host
	l.round = time.Time{}
	l.waiting = true
	l.startRound(engine.Command{Type: engine.CmdNewSession})
	l.log.Info("online", zap.String("player", string(msg.Player)), zap.Bool("host", msg.Host))
}

// guestReady starts the first online round on the host.
func (l *Lobby) guestReady() {
	l.waiting = false
	l.startRound(engine.Command{Type: engine.CmdNewSession})
	l.pub.PublishStart(l.state)
	l.log.Info("guest ready, round started")
}

func (l *Lobby) applyRemote(msg RemoteUpdate) {
	for _, p := range []engine.Player{engine.P1, engine.P2} {
		if n := msg.Names.Of(p); n != "" {
			l.names.Set(p, prefs.DisplayName(p, n))
		}
	}

	if l.host && l.waiting && msg.GuestReady {
		l.guestReady()
		return
	}
	if msg.SeatsOnly || (l.host && l.waiting) {
		l.commit(l.state, nil)
		return
	}

	next := engine.ApplyRemote(l.state, msg.Remote)
	events := []engine.Event{{Type: engine.EvtRemoteStateApplied, Player: next.Turn}}

	newRound := !msg.RoundStarted.IsZero() && !msg.RoundStarted.Equal(l.round)
	if !l.host && (l.waiting || newRound) {
		l.round = msg.RoundStarted
		l.waiting = false
		limit := next.Rules.TimeLimitSec
		next.Remaining = engine.Remaining{P1: limit, P2: limit}
		next.Selected = nil
		events = append([]engine.Event{{Type: engine.EvtRoundStarted}}, events...)
		if next.GameOver {
			events = append(events, engine.Event{Type: engine.EvtGameOver, Player: next.Winner, Reason: next.Reason})
		}

		l.notice = ""
		l.history.Reset(next)
		l.commit(next, events)
		l.restartTimer()
		return
	}

	if next.GameOver && !l.state.GameOver {
		events = append(events, engine.Event{Type: engine.EvtGameOver, Player: next.Winner, Reason: next.Reason})
	}

	l.notice = ""
	l.commit(next, events)
	l.history.Save(l.state)
	if l.state.GameOver {
		l.cancelTimer()
	}
}

func (l *Lobby) sessionDeleted() {
	l.pub = nil
	l.local = ""
	l.host, l.waiting, l.ready = false, false, false
	l.cancelTimer()

	next := l.state.Clone()
	next.GameOver = true
	next.Selected = nil
	l.notice = "The session was closed."
	l.commit(next, []engine.Event{{Type: engine.EvtSessionDeleted}})
	l.log.Info("session deleted")
}

func (l *Lobby) tick() {
	if l.pub != nil && l.state.Turn != l.local {
		l.tickOpponent()
		return
	}

	events, next, err := engine.Apply(l.state, engine.Command{Type: engine.CmdTick})
	if err != nil {
		l.cancelTimer()
		return
	}
	l.commit(next, events)
	if l.state.GameOver {
		l.history.Save(l.state)
		l.cancelTimer()
		l.publish()
	}
}

// tickOpponent runs down the opponent's clock for display only. Their own
// client decides and publishes the timeout.
func (l *Lobby) tickOpponent() {
	if l.state.GameOver {
		return
	}
	p := l.state.Turn
	left := l.state.Remaining.Of(p)
	if left <= 0 {
		return
	}
	next := l.state.Clone()
	next.Remaining.Set(p, left-1)
	l.commit(next, []engine.Event{{Type: engine.EvtClockTicked, Player: p, Remaining: left - 1}})
}

func (l *Lobby) commit(next engine.State, events []engine.Event) {
	l.state = next
	l.version++
	l.broadcast(l.snapshot(events))
}

func (l *Lobby) publish() {
	if l.pub != nil {
		l.pub.PublishState(l.state)
	}
}

func (l *Lobby) snapshot(events []engine.Event) Snapshot {
	status := l.notice
	switch {
	case status != "":
	case l.waiting && l.host:
		status = "Waiting for the opponent to get ready."
	case l.waiting && l.ready:
		status = "Waiting for the host to start the game."
	case l.waiting:
		status = "Get ready to start the game."
	default:
		status = engine.StatusLine(l.state, l.names.Of)
	}
	return Snapshot{
		Version:     l.version,
		State:       l.state.Clone(),
		Events:      events,
		Status:      status,
		Names:       l.names,
		Online:      l.pub != nil,
		Waiting:     l.waiting,
		LocalPlayer: l.local,
	}
}

func (l *Lobby) restartTimer() {
	l.cancelTimer()
	l.startTimer()
}

// startTimer runs a one-second ticker that feeds tick messages tagged with
// the current generation into the inbox.
func (l *Lobby) startTimer() {
	if !l.state.Rules.Timed() || l.state.GameOver || l.waiting {
		return
	}

	l.timerGen++
	gen := l.timerGen
	t := l.clock.Ticker(time.Second)
	done := make(chan struct{})
	l.stopTimer = func() {
		t.Stop()
		close(done)
	}

	go func() {
		for {
			select {
			case <-t.C:
				select {
				case l.inbox <- tick{gen: gen}:
				case <-done:
					return
				case <-l.ctx.Done():
					return
				}
			case <-done:
				return
			case <-l.ctx.Done():
				return
			}
		}
	}()
}

func (l *Lobby) cancelTimer() {
	if l.stopTimer != nil {
		l.stopTimer()
		l.stopTimer = nil
	}
	l.timerGen++
}

func (l *Lobby) shutdown() {
	l.cancelTimer()
	for id, ch := range l.clients {
		close(ch) // Tell client no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(snap Snapshot) {
	for id, ch := range l.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(l.clients, id)
		}
	}
}

func reply(ch chan error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

// Expose the inbox so tests or the client can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby has stopped.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }
