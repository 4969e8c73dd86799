package engine

import "fmt"

const BoardSize = 7

type Player string

const (
	P1 Player = "p1"
	P2 Player = "p2"
)

func (p Player) Opponent() Player {
	if p == P1 {
		return P2
	}
	return P1
}

func (p Player) Valid() bool { return p == P1 || p == P2 }

// Cell is the content of one square. Pawn cells are spelled with the owning
// player's id so boards serialize the same way the session records store them.
type Cell string

const (
	CellEmpty   Cell = "empty"
	CellBarrier Cell = "barrier"
	CellP1      Cell = Cell(P1)
	CellP2      Cell = Cell(P2)
)

func PawnCell(p Player) Cell { return Cell(p) }

// Pawn reports which player's pawn occupies the cell, if any.
func (c Cell) Pawn() (Player, bool) {
	switch c {
	case CellP1:
		return P1, true
	case CellP2:
		return P2, true
	}
	return "", false
}

type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }

func (c Coord) Add(d Coord) Coord { return Coord{Row: c.Row + d.Row, Col: c.Col + d.Col} }

// Board is a value type: assigning it copies every cell.
type Board [BoardSize][BoardSize]Cell

// Positions caches where each pawn stands.
type Positions struct {
	P1 Coord `json:"p1"`
	P2 Coord `json:"p2"`
}

func (ps Positions) Of(p Player) Coord {
	if p == P2 {
		return ps.P2
	}
	return ps.P1
}

func (ps *Positions) Set(p Player, c Coord) {
	if p == P2 {
		ps.P2 = c
		return
	}
	ps.P1 = c
}

var (
	StartP1 = Coord{Row: 6, Col: 3}
	StartP2 = Coord{Row: 0, Col: 3}
)

func NewEmptyBoard() Board {
	var b Board
	for r := range b {
		for c := range b[r] {
			b[r][c] = CellEmpty
		}
	}
	return b
}

// PlacePawns puts both pawns on their mirrored start cells and returns the
// matching position cache.
func PlacePawns(b *Board) Positions {
	ps := Positions{P1: StartP1, P2: StartP2}
	b.Set(ps.P1, CellP1)
	b.Set(ps.P2, CellP2)
	return ps
}

func InBounds(row, col int) bool {
	return row >= 0 && row < BoardSize && col >= 0 && col < BoardSize
}

// At returns the cell content, or CellBarrier for coordinates off the board
// so edge squares behave like walls.
func (b *Board) At(c Coord) Cell {
	if !InBounds(c.Row, c.Col) {
		return CellBarrier
	}
	return b[c.Row][c.Col]
}

func (b *Board) Set(c Coord, v Cell) {
	b[c.Row][c.Col] = v
}

func (b *Board) CountBarriers() int {
	n := 0
	for r := range b {
		for c := range b[r] {
			if b[r][c] == CellBarrier {
				n++
			}
		}
	}
	return n
}

// FindPawn scans the grid for the player's pawn.
func (b *Board) FindPawn(p Player) (Coord, bool) {
	for r := range b {
		for c := range b[r] {
			if b[r][c] == PawnCell(p) {
				return Coord{Row: r, Col: c}, true
			}
		}
	}
	return Coord{}, false
}
