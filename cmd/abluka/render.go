package main

import (
	"fmt"
	"strings"

	"github.com/DoyleJ11/abluka/internal/engine"
	"github.com/DoyleJ11/abluka/internal/lobby"
)

// render draws the board with legal targets of the selected pawn marked.
func render(snap lobby.Snapshot) string {
	s := snap.State
	targets := map[engine.Coord]bool{}
	if s.Selected != nil {
		for _, to := range engine.LegalMoves(s.Board, *s.Selected, s.Turn) {
			targets[to] = true
		}
	}

	var b strings.Builder
	b.WriteString("\n   ")
	for c := 0; c < engine.BoardSize; c++ {
		fmt.Fprintf(&b, " %d", c)
	}
	b.WriteByte('\n')

	for r := 0; r < engine.BoardSize; r++ {
		fmt.Fprintf(&b, " %d ", r)
		for c := 0; c < engine.BoardSize; c++ {
			at := engine.Coord{Row: r, Col: c}
			b.WriteByte(' ')
			b.WriteByte(glyph(s.Board.At(at), targets[at], s.Selected != nil && *s.Selected == at))
		}
		b.WriteByte('\n')
	}

	fmt.Fprintf(&b, "%s %d - %d %s", snap.Names.P1, s.Scores.P1, s.Scores.P2, snap.Names.P2)
	if s.Rules.Timed() {
		fmt.Fprintf(&b, "   clock %s / %s", clockText(s.Remaining.P1), clockText(s.Remaining.P2))
	}
	b.WriteByte('\n')
	b.WriteString(snap.Status)
	b.WriteByte('\n')
	return b.String()
}

func glyph(c engine.Cell, target, selected bool) byte {
	switch {
	case selected:
		return '*'
	case target:
		return 'o'
	}
	switch c {
	case engine.CellBarrier:
		return '#'
	case engine.CellP1:
		return '1'
	case engine.CellP2:
		return '2'
	}
	return '.'
}

func clockText(secs int) string {
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}
