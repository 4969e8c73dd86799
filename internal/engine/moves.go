package engine

// Directions lists the eight one-step offsets, orthogonal before diagonal.
// LegalMoves returns destinations in this order.
var Directions = [8]Coord{
	{Row: -1, Col: 0},
	{Row: 1, Col: 0},
	{Row: 0, Col: -1},
	{Row: 0, Col: 1},
	{Row: -1, Col: -1},
	{Row: -1, Col: 1},
	{Row: 1, Col: -1},
	{Row: 1, Col: 1},
}

// LegalMoves returns the empty in-bounds neighbours of from. It returns nil
// when from does not hold the player's pawn.
func LegalMoves(b Board, from Coord, p Player) []Coord {
	if !InBounds(from.Row, from.Col) || b.At(from) != PawnCell(p) {
		return nil
	}

	moves := make([]Coord, 0, len(Directions))
	for _, d := range Directions {
		to := from.Add(d)
		if !InBounds(to.Row, to.Col) {
			continue
		}
		if b.At(to) != CellEmpty {
			continue
		}
		moves = append(moves, to)
	}
	return moves
}

func isLegalMove(b Board, from, to Coord, p Player) bool {
	for _, m := range LegalMoves(b, from, p) {
		if m == to {
			return true
		}
	}
	return false
}

// PlayerHasMoves is the blockade test: can the player's pawn step anywhere
// from its cached position.
func PlayerHasMoves(s State, p Player) bool {
	return len(LegalMoves(s.Board, s.Pawns.Of(p), p)) > 0
}
