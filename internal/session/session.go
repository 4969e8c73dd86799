// Package session keeps a local game in step with a shared session record.
// Local changes go out as partial updates without blocking the caller;
// remote changes come back on the Events channel.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/DoyleJ11/abluka/internal/engine"
	"github.com/DoyleJ11/abluka/internal/store"
)

var ErrSessionNotFound = errors.New("session not found")
var ErrJoinTimeout = errors.New("join timed out")
var ErrAlreadyOnline = errors.New("already in a session")

const JoinTimeout = 5 * time.Second

const (
	codeLength      = 6
	createAttempts  = 5
	publishTimeout  = 10 * time.Second
	outboundBacklog = 64
)

// Remote is the shared data store: the hub in-process or the HTTP client.
type Remote interface {
	Create(ctx context.Context, rec store.Record) error
	Get(ctx context.Context, code string) (store.Record, error)
	Update(ctx context.Context, code string, p store.Patch) (store.Record, error)
	Delete(ctx context.Context, code string) error
	Subscribe(ctx context.Context, code string) (<-chan store.Change, error)
}

type Role string

const (
	RoleNone    Role = ""
	RolePlayer1 Role = "player1"
	RolePlayer2 Role = "player2"
)

// Piece is the pawn the role plays.
func (r Role) Piece() engine.Player {
	switch r {
	case RolePlayer1:
		return engine.P1
	case RolePlayer2:
		return engine.P2
	}
	return ""
}

func (r Role) IsLocalTurn(current engine.Player) bool {
	return r != RoleNone && r.Piece() == current
}

type EventType string

const (
	EvtRemoteState    EventType = "RemoteState"
	EvtSessionDeleted EventType = "SessionDeleted"
)

type Event struct {
	Type   EventType
	Record store.Record
}

type job struct {
	what string
	run  func(ctx context.Context) error
}

type Adapter struct {
	remote Remote
	log    *zap.Logger
	clock  clock.Clock

	joinTimeout time.Duration
	events      chan Event
	outbound    chan job

	mu     sync.Mutex
	code   string
	role   Role
	cancel context.CancelFunc

	done chan struct{}
	wg   sync.WaitGroup
}

func New(remote Remote, log *zap.Logger, clk clock.Clock) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.New()
	}
	a := &Adapter{
		remote:      remote,
		log:         log,
		clock:       clk,
		joinTimeout: JoinTimeout,
		events:      make(chan Event, 32),
		outbound:    make(chan job, outboundBacklog),
		done:        make(chan struct{}),
	}
	a.wg.Add(1)
	go a.sender()
	return a
}

// Events delivers remote changes made by the other side.
func (a *Adapter) Events() <-chan Event { return a.events }

func (a *Adapter) Code() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.code
}

func (a *Adapter) Role() Role {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.role
}

func (a *Adapter) Online() bool { return a.Role() != RoleNone }

// CreateSession opens a new session as player1.
func (a *Adapter) CreateSession(ctx context.Context) (string, error) {
	if a.Online() {
		return "", ErrAlreadyOnline
	}

	var code string
	for attempt := 0; ; attempt++ {
		c, err := GenerateCode()
		if err != nil {
			return "", err
		}
		err = a.remote.Create(ctx, store.Record{
			Code:          c,
			Player1:       &store.PlayerSlot{Ready: true, Connected: true},
			CurrentPlayer: engine.P1,
			UpdatedBy:     string(RolePlayer1),
			CreatedAt:     a.clock.Now().UTC(),
		})
		if err == nil {
			code = c
			break
		}
		if !errors.Is(err, store.ErrExists) || attempt+1 >= createAttempts {
			return "", fmt.Errorf("create session: %w", err)
		}
		a.log.Debug("collision on code, regenerating", zap.String("code", c))
	}

	if err := a.goOnline(code, RolePlayer1); err != nil {
		return "", err
	}
	a.log.Info("session created", zap.String("code", code))
	return code, nil
}

// JoinSession takes the player2 seat of an existing session.
func (a *Adapter) JoinSession(ctx context.Context, code string) error {
	if a.Online() {
		return ErrAlreadyOnline
	}

	joinCtx, cancel := context.WithTimeout(ctx, a.joinTimeout)
	defer cancel()

	rec, err := a.remote.Get(joinCtx, code)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ErrJoinTimeout
	case err != nil:
		return fmt.Errorf("join session: %w", err)
	}
	if rec.Player1 == nil {
		return ErrSessionNotFound
	}

	ready, connected := false, true
	rec, err = a.remote.Update(joinCtx, code, store.Patch{
		Player2:   &store.SlotPatch{Ready: &ready, Connected: &connected},
		UpdatedBy: roleRef(RolePlayer2),
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrSessionNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return ErrJoinTimeout
	case err != nil:
		return fmt.Errorf("join session: %w", err)
	}

	if err := a.goOnline(code, RolePlayer2); err != nil {
		return err
	}

	// the host may have published long before we subscribed
	a.emit(context.Background(), Event{Type: EvtRemoteState, Record: rec})
	a.log.Info("session joined", zap.String("code", code))
	return nil
}

func (a *Adapter) goOnline(code string, role Role) error {
	sessCtx, cancel := context.WithCancel(context.Background())
	changes, err := a.remote.Subscribe(sessCtx, code)
	if err != nil {
		cancel()
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("subscribe: %w", err)
	}

	a.mu.Lock()
	a.code, a.role, a.cancel = code, role, cancel
	a.mu.Unlock()

	a.wg.Add(1)
	go a.pump(sessCtx, code, role, changes)
	return nil
}

// pump forwards changes written by the other side.
func (a *Adapter) pump(ctx context.Context, code string, role Role, changes <-chan store.Change) {
	defer a.wg.Done()
	for ch := range changes {
		if ctx.Err() != nil {
			continue
		}
		if ch.Deleted {
			a.offline(code)
			a.emit(context.Background(), Event{Type: EvtSessionDeleted, Record: ch.Record})
			continue
		}
		if ch.Record.UpdatedBy == string(role) {
			continue
		}
		a.emit(ctx, Event{Type: EvtRemoteState, Record: ch.Record})
	}

	if ctx.Err() != nil {
		return
	}
	// the feed ended without a delete; a vanished record still counts as one
	getCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if _, err := a.remote.Get(getCtx, code); errors.Is(err, store.ErrNotFound) {
		a.offline(code)
		a.emit(context.Background(), Event{Type: EvtSessionDeleted, Record: store.Record{Code: code}})
		return
	}
	a.log.Warn("session feed ended", zap.String("code", code))
}

func (a *Adapter) emit(ctx context.Context, ev Event) {
	select {
	case a.events <- ev:
	case <-ctx.Done():
	case <-a.done:
	}
}

func (a *Adapter) offline(code string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.code != code {
		return
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.code, a.role, a.cancel = "", RoleNone, nil
}

// PublishState sends the shared part of s.
func (a *Adapter) PublishState(s engine.State) {
	now := a.clock.Now().UTC()
	a.enqueue("publish state", func(role Role) store.Patch {
		board, pawns, scores := s.Board, s.Pawns, s.Scores
		phase, turn, over := s.Phase, s.Turn, s.GameOver
		winner, reason := s.Winner, s.Reason
		return store.Patch{
			BoardState:    &board,
			Phase:         &phase,
			CurrentPlayer: &turn,
			PawnPositions: &pawns,
			Scores:        &scores,
			GameOver:      &over,
			Winner:        &winner,
			Reason:        &reason,
			UpdatedBy:     roleRef(role),
			LastUpdate:    &now,
		}
	})
}

// PublishStart marks the game as started with s as its first position.
func (a *Adapter) PublishStart(s engine.State) {
	now := a.clock.Now().UTC()
	a.enqueue("publish start", func(role Role) store.Patch {
		board, pawns, scores := s.Board, s.Pawns, s.Scores
		phase, started, over := engine.PhaseMove, true, false
		first := engine.P1
		return store.Patch{
			BoardState:    &board,
			PawnPositions: &pawns,
			Phase:         &phase,
			Scores:        &scores,
			GameOver:      &over,
			GameStarted:   &started,
			CurrentPlayer: &first,
			UpdatedBy:     roleRef(role),
			GameStartedAt: &now,
		}
	})
}

func (a *Adapter) SetLocalReady(ready bool) {
	a.enqueue("set ready", func(role Role) store.Patch {
		return slotPatch(role, &store.SlotPatch{Ready: &ready})
	})
}

func (a *Adapter) SetLocalName(name string) {
	a.enqueue("set name", func(role Role) store.Patch {
		return slotPatch(role, &store.SlotPatch{Name: &name})
	})
}

// LeaveSession deletes the session and goes back offline.
func (a *Adapter) LeaveSession(ctx context.Context) error {
	a.mu.Lock()
	code := a.code
	if a.cancel != nil {
		a.cancel()
	}
	a.code, a.role, a.cancel = "", RoleNone, nil
	a.mu.Unlock()

	if code == "" {
		return nil
	}
	if err := a.remote.Delete(ctx, code); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("leave session: %w", err)
	}
	a.log.Info("session left", zap.String("code", code))
	return nil
}

// Flush waits until every queued update has been sent.
func (a *Adapter) Flush(ctx context.Context) error {
	sent := make(chan struct{})
	select {
	case a.outbound <- job{what: "flush", run: func(context.Context) error { close(sent); return nil }}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-sent:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the sender and waits for background work to finish.
func (a *Adapter) Close(ctx context.Context) error {
	err := a.LeaveSession(ctx)
	close(a.done)
	a.wg.Wait()
	return err
}

// enqueue hands a partial update to the sender. Offline calls are no-ops
// and a full backlog drops the update; neither reaches the caller.
func (a *Adapter) enqueue(what string, build func(Role) store.Patch) {
	a.mu.Lock()
	code, role := a.code, a.role
	a.mu.Unlock()
	if role == RoleNone {
		return
	}

	p := build(role)
	j := job{what: what, run: func(ctx context.Context) error {
		_, err := a.remote.Update(ctx, code, p)
		return err
	}}
	select {
	case a.outbound <- j:
	default:
		a.log.Warn("update dropped, backlog full", zap.String("op", what), zap.String("code", code))
	}
}

// sender runs queued updates one at a time so they land in order.
func (a *Adapter) sender() {
	defer a.wg.Done()
	for {
		select {
		case j := <-a.outbound:
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			if err := j.run(ctx); err != nil {
				a.log.Warn("session update failed", zap.String("op", j.what), zap.Error(err))
			}
			cancel()
		case <-a.done:
			return
		}
	}
}

func slotPatch(role Role, slot *store.SlotPatch) store.Patch {
	p := store.Patch{UpdatedBy: roleRef(role)}
	if role == RolePlayer2 {
		p.Player2 = slot
	} else {
		p.Player1 = slot
	}
	return p
}

func roleRef(r Role) *string {
	s := string(r)
	return &s
}

// GenerateCode returns a random six character session code from A-Z0-9.
func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// StateFromRecord extracts the shared game state. It reports false when the
// record carries no usable board yet or the board is missing a pawn.
func StateFromRecord(rec store.Record) (engine.Remote, bool) {
	if rec.BoardState == nil {
		return engine.Remote{}, false
	}
	b := *rec.BoardState

	// the board is authoritative; pawnPositions is only a cache of it
	var pawns engine.Positions
	for _, p := range []engine.Player{engine.P1, engine.P2} {
		at, ok := b.FindPawn(p)
		if !ok {
			return engine.Remote{}, false
		}
		pawns.Set(p, at)
	}

	turn := rec.CurrentPlayer
	if !turn.Valid() {
		turn = engine.P1
	}
	phase := rec.Phase
	if phase != engine.PhaseBlock {
		phase = engine.PhaseMove
	}

	return engine.Remote{
		Board:    b,
		Pawns:    pawns,
		Turn:     turn,
		Phase:    phase,
		Scores:   rec.Scores,
		GameOver: rec.GameOver,
		Winner:   rec.Winner,
		Reason:   rec.Reason,
	}, true
}

// Names returns the display names stored in the player slots; missing ones
// are empty.
func Names(rec store.Record) (p1, p2 string) {
	if rec.Player1 != nil {
		p1 = rec.Player1.Name
	}
	if rec.Player2 != nil {
		p2 = rec.Player2.Name
	}
	return p1, p2
}
