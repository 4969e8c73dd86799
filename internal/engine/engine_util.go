package engine

import "fmt"

// NewState returns a fresh round with zero scores and p1 to move.
func NewState(rules Rules) State {
	return NewRound(State{Rules: rules})
}

// NewRound resets board, pawns, turn and clocks but keeps scores and rules.
func NewRound(prev State) State {
	b := NewEmptyBoard()
	pawns := PlacePawns(&b)
	return State{
		Board:     b,
		Pawns:     pawns,
		Turn:      P1,
		Phase:     PhaseMove,
		Scores:    prev.Scores,
		Rules:     prev.Rules,
		Remaining: Remaining{P1: prev.Rules.TimeLimitSec, P2: prev.Rules.TimeLimitSec},
	}
}

// Clone deep-copies s; the board is an array so only the selection needs care.
func (s State) Clone() State {
	out := s
	if s.Selected != nil {
		sel := *s.Selected
		out.Selected = &sel
	}
	return out
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Remote is the subset of State carried by a session record. Clocks, rules
// and selection stay local.
type Remote struct {
	Board    Board
	Pawns    Positions
	Turn     Player
	Phase    Phase
	Scores   Scores
	GameOver bool
	Winner   Player
	Reason   Reason
}

// ApplyRemote replaces the shared part of s with r wholesale. A local
// selection survives only if it still points at the active player's pawn in
// the move phase.
func ApplyRemote(s State, r Remote) State {
	next := s.Clone()
	next.Board = r.Board
	next.Pawns = r.Pawns
	next.Turn = r.Turn
	next.Phase = r.Phase
	next.Scores = r.Scores
	next.GameOver = r.GameOver
	next.Winner = ""
	next.Reason = ""
	if r.GameOver {
		next.Winner = r.Winner
		next.Reason = r.Reason
		if !next.Winner.Valid() {
			// the loser is the player left on turn
			next.Winner = r.Turn.Opponent()
		}
	}

	if next.Selected != nil {
		sel := *next.Selected
		if next.GameOver || next.Phase != PhaseMove || next.Board.At(sel) != PawnCell(next.Turn) {
			next.Selected = nil
		}
	}
	return next
}

// RemoteOf extracts the shared part of s.
func RemoteOf(s State) Remote {
	return Remote{
		Board:    s.Board,
		Pawns:    s.Pawns,
		Turn:     s.Turn,
		Phase:    s.Phase,
		Scores:   s.Scores,
		GameOver: s.GameOver,
		Winner:   s.Winner,
		Reason:   s.Reason,
	}
}

// StatusLine renders the one-line prompt shown under the board. name maps a
// player to its display name.
func StatusLine(s State, name func(Player) string) string {
	if s.GameOver {
		switch s.Reason {
		case ReasonTimeout:
			return fmt.Sprintf("Time is up. %s wins.", name(s.Winner))
		case ReasonBlockade:
			return fmt.Sprintf("%s wins by blockade.", name(s.Winner))
		}
		return "Game over."
	}

	switch s.Phase {
	case PhaseBlock:
		return fmt.Sprintf("%s: place a barrier on an empty square (%d placed).", name(s.Turn), s.Board.CountBarriers())
	default:
		if s.Selected != nil {
			return fmt.Sprintf("%s: choose the target square.", name(s.Turn))
		}
		return fmt.Sprintf("%s: select your pawn and move.", name(s.Turn))
	}
}
