package events

import "errors"

var (
	ErrStreamUnsupported = errors.New("events: bus does not support streaming")
	ErrBusClosed         = errors.New("events: bus closed")
)
