package engine

import "errors"

var (
	// ErrIllegalMove rejects a transition the state machine does not allow.
	// State is left unchanged.
	ErrIllegalMove = errors.New("illegal move")

	// ErrProtocolViolation rejects a replicated action whose actor is not the
	// expected one for that action type.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrSessionTerminal rejects any action after the session has finished.
	// It also matches ErrIllegalMove under errors.Is.
	ErrSessionTerminal error = &terminalError{}

	// ErrContentUnavailable marks a draw that fell back to generic content.
	ErrContentUnavailable = errors.New("content unavailable")
)

type terminalError struct{}

func (*terminalError) Error() string { return "session finished" }

func (*terminalError) Is(target error) bool { return target == ErrIllegalMove }
