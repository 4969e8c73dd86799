package store

import (
	"time"

	"github.com/DoyleJ11/abluka/internal/engine"
)

// PlayerSlot is one seat in a session.
type PlayerSlot struct {
	Ready     bool   `json:"ready"`
	Connected bool   `json:"connected"`
	Name      string `json:"name,omitempty"`
}

// Record is the shared state of one online session, keyed by its code.
type Record struct {
	Code          string            `json:"code"`
	Player1       *PlayerSlot       `json:"player1"`
	Player2       *PlayerSlot       `json:"player2"`
	BoardState    *engine.Board     `json:"boardState,omitempty"`
	Phase         engine.Phase      `json:"phase,omitempty"`
	CurrentPlayer engine.Player     `json:"currentPlayer"`
	PawnPositions *engine.Positions `json:"pawnPositions,omitempty"`
	Scores        engine.Scores     `json:"scores"`
	GameOver      bool              `json:"gameOver"`
	GameStarted   bool              `json:"gameStarted"`
	Winner        engine.Player     `json:"winner,omitempty"`
	Reason        engine.Reason     `json:"reason,omitempty"`
	UpdatedBy     string            `json:"updatedBy,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	LastUpdate    *time.Time        `json:"lastUpdate,omitempty"`
	GameStartedAt *time.Time        `json:"gameStartedAt,omitempty"`
}

// SlotPatch updates a player slot field by field.
type SlotPatch struct {
	Ready     *bool   `json:"ready,omitempty"`
	Connected *bool   `json:"connected,omitempty"`
	Name      *string `json:"name,omitempty"`
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Player1       *SlotPatch        `json:"player1,omitempty"`
	Player2       *SlotPatch        `json:"player2,omitempty"`
	BoardState    *engine.Board     `json:"boardState,omitempty"`
	Phase         *engine.Phase     `json:"phase,omitempty"`
	CurrentPlayer *engine.Player    `json:"currentPlayer,omitempty"`
	PawnPositions *engine.Positions `json:"pawnPositions,omitempty"`
	Scores        *engine.Scores    `json:"scores,omitempty"`
	GameOver      *bool             `json:"gameOver,omitempty"`
	GameStarted   *bool             `json:"gameStarted,omitempty"`
	Winner        *engine.Player    `json:"winner,omitempty"`
	Reason        *engine.Reason    `json:"reason,omitempty"`
	UpdatedBy     *string           `json:"updatedBy,omitempty"`
	LastUpdate    *time.Time        `json:"lastUpdate,omitempty"`
	GameStartedAt *time.Time        `json:"gameStartedAt,omitempty"`
}

// Change is what subscribers of a code receive.
type Change struct {
	Record  Record `json:"record"`
	Deleted bool   `json:"deleted"`
}

// Clone deep-copies r so callers never share pointers with the store.
func (r Record) Clone() Record {
	out := r
	if r.Player1 != nil {
		p := *r.Player1
		out.Player1 = &p
	}
	if r.Player2 != nil {
		p := *r.Player2
		out.Player2 = &p
	}
	if r.BoardState != nil {
		b := *r.BoardState
		out.BoardState = &b
	}
	if r.PawnPositions != nil {
		p := *r.PawnPositions
		out.PawnPositions = &p
	}
	out.LastUpdate = cloneTime(r.LastUpdate)
	out.GameStartedAt = cloneTime(r.GameStartedAt)
	return out
}

// Merge returns r with every present field of p applied.
func (r Record) Merge(p Patch) Record {
	out := r.Clone()
	out.Player1 = mergeSlot(out.Player1, p.Player1)
	out.Player2 = mergeSlot(out.Player2, p.Player2)
	if p.BoardState != nil {
		b := *p.BoardState
		out.BoardState = &b
	}
	if p.Phase != nil {
		out.Phase = *p.Phase
	}
	if p.CurrentPlayer != nil {
		out.CurrentPlayer = *p.CurrentPlayer
	}
	if p.PawnPositions != nil {
		ps := *p.PawnPositions
		out.PawnPositions = &ps
	}
	if p.Scores != nil {
		out.Scores = *p.Scores
	}
	if p.GameOver != nil {
		out.GameOver = *p.GameOver
	}
	if p.GameStarted != nil {
		out.GameStarted = *p.GameStarted
	}
	if p.Winner != nil {
		out.Winner = *p.Winner
	}
	if p.Reason != nil {
		out.Reason = *p.Reason
	}
	if p.UpdatedBy != nil {
		out.UpdatedBy = *p.UpdatedBy
	}
	if p.LastUpdate != nil {
		out.LastUpdate = cloneTime(p.LastUpdate)
	}
	if p.GameStartedAt != nil {
		out.GameStartedAt = cloneTime(p.GameStartedAt)
	}
	return out
}

func mergeSlot(slot *PlayerSlot, p *SlotPatch) *PlayerSlot {
	if p == nil {
		return slot
	}
	out := PlayerSlot{}
	if slot != nil {
		out = *slot
	}
	if p.Ready != nil {
		out.Ready = *p.Ready
	}
	if p.Connected != nil {
		out.Connected = *p.Connected
	}
	if p.Name != nil {
		out.Name = *p.Name
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (c Change) Clone() Change {
	return Change{Record: c.Record.Clone(), Deleted: c.Deleted}
}
