// Package realtime is the publish/subscribe layer between browsers and the
// dashboard's event handlers.
//
// WIRE FORMAT:
// Every websocket text frame, in either direction, is one JSON envelope:
//
//	{"event": "getstate", "data": {"country": "canada"}}
//
// "data" is optional and its shape depends on the event.
//
// The package is split the usual way for a hub: envelope.go (wire types),
// router.go (event name → handler), client.go (one connection and its pumps)
// and hub.go (the set of connections and audience routing).
package realtime

import (
	"encoding/json"
	"errors"

	"github.com/sakif/covid-dashboard/internal/apperror"
)

// ErrorEvent is the event name used to report a failed inbound event.
const ErrorEvent = "error"

// Envelope is an inbound frame. Data is kept raw so each handler can decode
// its own payload type.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// outbound is a frame sent to clients.
type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Audience selects who receives a reply.
type Audience int

const (
	// Self is the connection that sent the event.
	Self Audience = iota
	// Others is every connection except the sender.
	Others
	// All is every connection, the sender included.
	All
)

func (a Audience) String() string {
	switch a {
	case Self:
		return "self"
	case Others:
		return "others"
	case All:
		return "all"
	default:
		return "unknown"
	}
}

// Session is the per-connection state handed to every handler. It is only
// touched from the connection's read loop, which runs handlers one at a time.
type Session struct {
	ID    string // opaque connection id
	Email string // set by a successful login, empty before that
}

// Reply is what a handler wants sent and to whom. A zero Reply sends nothing.
type Reply struct {
	Event    string
	Data     any
	Audience Audience
}

// ErrorPayload is the data of an "error" event.
type ErrorPayload struct {
	Event   string `json:"event"`   // the inbound event that failed
	Error   string `json:"error"`   // machine-readable code, see apperror.Code
	Message string `json:"message"` // safe to show to the user
}

// NewErrorPayload builds the error event for a failed inbound event. Only
// AppError messages reach the client; anything else is replaced with a
// generic text so driver or upstream details stay in the logs.
func NewErrorPayload(event string, err error) ErrorPayload {
	code := apperror.Code(err)

	var appErr *apperror.AppError
	msg := "an internal error occurred"
	switch {
	case errors.As(err, &appErr):
		msg = appErr.Message
	case code == "upstream_error":
		msg = "an upstream service failed"
	}

	return ErrorPayload{Event: event, Error: code, Message: msg}
}
