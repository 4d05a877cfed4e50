package tournament

import "battlearena/internal/message"

// Error is an expected, user-facing failure. It carries the message to relay to the requester.
type Error struct {
	Msg message.Message
}

func newError(id string, kv ...string) *Error {
	return &Error{Msg: message.New(id, kv...)}
}

func (e *Error) Error() string {
	return e.Msg.ID
}
