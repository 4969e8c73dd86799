package types

import "github.com/DoyleJ11/abluka/internal/store"

const (
	MsgSessionState   = "SessionState"
	MsgSessionDeleted = "SessionDeleted"
	MsgError          = "Error"
)

// ServerMessage is one frame of the websocket change feed.
type ServerMessage struct {
	Type   string        `json:"type"` // "SessionState" | "SessionDeleted" | "Error"
	Record *store.Record `json:"record,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type CreateSessionResponse struct {
	Code   string       `json:"code"`
	Record store.Record `json:"record"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
