package engine

import (
	"errors"
)

var ErrGameOver = errors.New("game is over")
var ErrOutOfBounds = errors.New("cell out of bounds")
var ErrBarrier = errors.New("cell holds a barrier")
var ErrIllegalMove = errors.New("illegal move")
var ErrIllegalBlock = errors.New("illegal block")
var ErrNoSelection = errors.New("no pawn selected")
var ErrNoClock = errors.New("no countdown running")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseMove  Phase = "move"
	PhaseBlock Phase = "block"
)

type Reason string

const (
	ReasonBlockade Reason = "blockade"
	ReasonTimeout  Reason = "timeout"
)

type Scores struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

func (s Scores) Of(p Player) int {
	if p == P2 {
		return s.P2
	}
	return s.P1
}

func (s *Scores) Add(p Player, n int) {
	if p == P2 {
		s.P2 += n
		return
	}
	s.P1 += n
}

// Remaining holds seconds left on each player's clock.
type Remaining struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

func (r Remaining) Of(p Player) int {
	if p == P2 {
		return r.P2
	}
	return r.P1
}

func (r *Remaining) Set(p Player, v int) {
	if p == P2 {
		r.P2 = v
		return
	}
	r.P1 = v
}

type Rules struct {
	// TimeLimitSec is the per-player countdown; 0 means unlimited.
	TimeLimitSec int `json:"time_limit_sec"`
}

func (r Rules) Timed() bool { return r.TimeLimitSec > 0 }

type State struct {
	Board     Board     `json:"board"`
	Pawns     Positions `json:"pawns"`
	Turn      Player    `json:"turn"`
	Phase     Phase     `json:"phase"`
	Selected  *Coord    `json:"selected,omitempty"`
	GameOver  bool      `json:"game_over"`
	Winner    Player    `json:"winner,omitempty"`
	Reason    Reason    `json:"reason,omitempty"`
	Scores    Scores    `json:"scores"`
	Remaining Remaining `json:"remaining"`
	Rules     Rules     `json:"rules"`
}

type CommandType string

const (
	CmdClick        CommandType = "Click"
	CmdStartTurn    CommandType = "StartTurn"
	CmdTick         CommandType = "Tick"
	CmdNewRound     CommandType = "NewRound"
	CmdNewSession   CommandType = "NewSession"
	CmdSetTimeLimit CommandType = "SetTimeLimit"
)

/*
	CmdClick (own pawn)        -> EvtPawnSelected | EvtSelectionCleared
	CmdClick (legal target)    -> EvtPawnMoved -> EvtPhaseChanged
	CmdClick (illegal target)  -> EvtIllegalMoveAttempted (+ ErrIllegalMove)
	CmdClick (block phase)     -> EvtBarrierPlaced -> EvtPhaseChanged -> EvtTurnStarted, or EvtGameOver
	CmdTick                    -> EvtClockTicked, and EvtGameOver once the clock runs out
	CmdNewRound / NewSession   -> EvtRoundStarted -> EvtTurnStarted
*/

type Command struct {
	Type    CommandType
	Cell    Coord
	Seconds int
}

type EventType string

const (
	EvtRoundStarted         EventType = "RoundStarted"
	EvtTurnStarted          EventType = "TurnStarted"
	EvtPawnSelected         EventType = "PawnSelected"
	EvtSelectionCleared     EventType = "SelectionCleared"
	EvtPawnMoved            EventType = "PawnMoved"
	EvtBarrierPlaced        EventType = "BarrierPlaced"
	EvtPhaseChanged         EventType = "PhaseChanged"
	EvtIllegalMoveAttempted EventType = "IllegalMoveAttempted"
	EvtClockTicked          EventType = "ClockTicked"
	EvtGameOver             EventType = "GameOver"
	EvtRemoteStateApplied   EventType = "RemoteStateApplied"
	EvtSessionDeleted       EventType = "SessionDeleted"
	EvtRewound              EventType = "Rewound"
)

type Event struct {
	Type      EventType `json:"type"`
	Player    Player    `json:"player,omitempty"`
	From      *Coord    `json:"from,omitempty"`
	Cell      *Coord    `json:"cell,omitempty"`
	Phase     Phase     `json:"phase,omitempty"`
	Reason    Reason    `json:"reason,omitempty"`
	Remaining int       `json:"remaining,omitempty"`
}

// Apply runs one command against s. On error the returned state is s itself;
// validation errors may still carry events (an illegal target reports
// EvtIllegalMoveAttempted) so callers can surface a status message.
func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdClick:
		return click(s, cmd.Cell)

	case CmdStartTurn:
		if s.GameOver {
			return nil, s, ErrGameOver
		}
		next := s.Clone()
		return startTurn(&next), next, nil

	case CmdTick:
		return tick(s)

	case CmdNewRound:
		next := NewRound(s)
		events := []Event{{Type: EvtRoundStarted}}
		events = append(events, startTurn(&next)...)
		return events, next, nil

	case CmdNewSession:
		cleared := s.Clone()
		cleared.Scores = Scores{}
		next := NewRound(cleared)
		events := []Event{{Type: EvtRoundStarted}}
		events = append(events, startTurn(&next)...)
		return events, next, nil

	case CmdSetTimeLimit:
		if cmd.Seconds < 0 {
			return nil, s, ErrUnsupportedCommand
		}
		next := s.Clone()
		next.Rules.TimeLimitSec = cmd.Seconds
		next.Remaining = Remaining{P1: cmd.Seconds, P2: cmd.Seconds}
		return nil, next, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func click(s State, at Coord) ([]Event, State, error) {
	if s.GameOver {
		return nil, s, ErrGameOver
	}
	if !InBounds(at.Row, at.Col) {
		return nil, s, ErrOutOfBounds
	}

	cell := s.Board.At(at)
	if cell == CellBarrier {
		return nil, s, ErrBarrier
	}

	switch s.Phase {
	case PhaseMove:
		return clickMove(s, at, cell)
	case PhaseBlock:
		return clickBlock(s, at, cell)
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func clickMove(s State, at Coord, cell Cell) ([]Event, State, error) {
	if cell == PawnCell(s.Turn) {
		next := s.Clone()
		if s.Selected != nil && *s.Selected == at {
			next.Selected = nil
			return []Event{{Type: EvtSelectionCleared, Player: s.Turn, Cell: ptr(at)}}, next, nil
		}
		next.Selected = ptr(at)
		return []Event{{Type: EvtPawnSelected, Player: s.Turn, Cell: ptr(at)}}, next, nil
	}

	if s.Selected == nil {
		return nil, s, ErrNoSelection
	}

	from := *s.Selected
	if !isLegalMove(s.Board, from, at, s.Turn) {
		return []Event{{Type: EvtIllegalMoveAttempted, Player: s.Turn, From: ptr(from), Cell: ptr(at)}}, s, ErrIllegalMove
	}

	next := s.Clone()
	next.Board.Set(from, CellEmpty)
	next.Board.Set(at, PawnCell(s.Turn))
	next.Pawns.Set(s.Turn, at)
	next.Selected = nil
	next.Phase = PhaseBlock

	events := []Event{
		{Type: EvtPawnMoved, Player: s.Turn, From: ptr(from), Cell: ptr(at)},
		{Type: EvtPhaseChanged, Player: s.Turn, Phase: PhaseBlock},
	}
	return events, next, nil
}

func clickBlock(s State, at Coord, cell Cell) ([]Event, State, error) {
	if cell != CellEmpty {
		return nil, s, ErrIllegalBlock
	}

	next := s.Clone()
	next.Board.Set(at, CellBarrier)

	events := []Event{{Type: EvtBarrierPlaced, Player: s.Turn, Cell: ptr(at)}}
	events = append(events, endTurnAfterBlock(&next)...)
	return events, next, nil
}

func tick(s State) ([]Event, State, error) {
	if s.GameOver || !s.Rules.Timed() {
		return nil, s, ErrNoClock
	}

	next := s.Clone()
	p := next.Turn
	if next.Remaining.Of(p) <= 0 {
		return lose(&next, p, ReasonTimeout), next, nil
	}

	left := max(0, next.Remaining.Of(p)-1)
	next.Remaining.Set(p, left)
	events := []Event{{Type: EvtClockTicked, Player: p, Remaining: left}}
	if left == 0 {
		events = append(events, lose(&next, p, ReasonTimeout)...)
	}
	return events, next, nil
}

func ptr(c Coord) *Coord { return &c }
