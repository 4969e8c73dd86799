package engine

// startTurn checks the active player for a blockade before they may act.
func startTurn(s *State) []Event {
	if !PlayerHasMoves(*s, s.Turn) {
		return lose(s, s.Turn, ReasonBlockade)
	}
	s.Phase = PhaseMove
	s.Selected = nil
	return []Event{{Type: EvtTurnStarted, Player: s.Turn}}
}

// endTurnAfterBlock runs once a barrier is down. The blocking player is
// checked first: walling yourself in loses even if the opponent is stuck too.
func endTurnAfterBlock(s *State) []Event {
	if !PlayerHasMoves(*s, s.Turn) {
		return lose(s, s.Turn, ReasonBlockade)
	}

	s.Turn = s.Turn.Opponent()
	if !PlayerHasMoves(*s, s.Turn) {
		return lose(s, s.Turn, ReasonBlockade)
	}

	s.Phase = PhaseMove
	s.Selected = nil
	return []Event{
		{Type: EvtPhaseChanged, Player: s.Turn, Phase: PhaseMove},
		{Type: EvtTurnStarted, Player: s.Turn},
	}
}

func lose(s *State, loser Player, reason Reason) []Event {
	winner := loser.Opponent()
	s.GameOver = true
	s.Winner = winner
	s.Reason = reason
	s.Selected = nil
	s.Scores.Add(winner, 1)
	return []Event{{Type: EvtGameOver, Player: winner, Reason: reason}}
}
