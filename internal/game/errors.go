package game

import (
	"errors"
	"fmt"
)

// Sentinels wrapped by GameStateError.
var (
	ErrNotAcyclic    = errors.New("graph is not acyclic")
	ErrNoStart       = errors.New("start not set")
	ErrDuplicate     = errors.New("already exists")
	ErrDangling      = errors.New("dangling reference")
	ErrNotOwner      = errors.New("not the owner")
	ErrNotFound      = errors.New("not found")
	ErrStartHasItems = errors.New("dialog start has items")
)

// GameStateError reports a structural violation of a game or dialog graph.
type GameStateError struct {
	Op  string
	Msg string
	Err error
}

func (e *GameStateError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *GameStateError) Unwrap() error {
	return e.Err
}

// StateError builds a GameStateError; msg is formatted with args.
func StateError(op string, err error, msg string, args ...any) *GameStateError {
	return &GameStateError{Op: op, Msg: fmt.Sprintf(msg, args...), Err: err}
}
