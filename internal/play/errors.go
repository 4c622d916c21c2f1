package play

import (
	"errors"
	"fmt"
)

// Sentinels wrapped by PlayerStateError.
var (
	ErrPosition   = errors.New("position unresolvable")
	ErrNotStarted = errors.New("game has not started yet")
	ErrEnded      = errors.New("game has ended")
	ErrNotJoined  = errors.New("player has not joined")
)

// PlayerStateError reports a player state the engine cannot work from.
type PlayerStateError struct {
	Player string
	Msg    string
	Err    error
}

func (e *PlayerStateError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("player %s: %v", e.Player, e.Err)
	}
	return fmt.Sprintf("player %s: %s: %v", e.Player, e.Msg, e.Err)
}

func (e *PlayerStateError) Unwrap() error {
	return e.Err
}

// PlayerIllegalMoveError reports a move outside the legal set.
type PlayerIllegalMoveError struct {
	Player string
	From   string
	To     string
}

func (e *PlayerIllegalMoveError) Error() string {
	return fmt.Sprintf("player %s cannot move from %s to %s", e.Player, e.From, e.To)
}
