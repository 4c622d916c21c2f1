// Package task holds the tasks players solve to unlock destinations and the
// answer-matching rules for each task kind.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Kind names the answer policy a task was authored with.
type Kind string

const (
	KindText           Kind = "text"
	KindDate           Kind = "date"
	KindChoice         Kind = "choice"
	KindMultipleChoice Kind = "multiple_choice"
	KindUpload         Kind = "upload"
)

// Defaults applied by New.
const (
	DefaultRatio  = 90
	DefaultDays   = 1
	DefaultOffset = 0.01
)

// Task is a gate that belongs to exactly one Waypoint or Interaction.
type Task struct {
	ID          uuid.UUID
	Kind        Kind
	Description string
	Text        string
	Media       []byte

	// Solution is nil, string, time.Time, int, float64, bool or []string.
	Solution any

	// Ratio is the minimum fuzzy partial ratio (0-100) for string answers.
	Ratio int
	// Days is the tolerance for date answers.
	Days int
	// Offset is the tolerance for float answers.
	Offset float64

	// Destination is the waypoint unlocked on success (uuid.Nil when unset).
	Destination uuid.UUID
	Items       []string

	MoneyLimit         float64
	TimeLimit          float64
	BudgetModification float64
}

// New creates a task with a fresh id and default tolerances.
func New(description, text string, solution any) *Task {
	return &Task{
		ID:          uuid.New(),
		Kind:        KindFor(solution),
		Description: description,
		Text:        text,
		Solution:    solution,
		Ratio:       DefaultRatio,
		Days:        DefaultDays,
		Offset:      DefaultOffset,
	}
}

// KindFor infers the authoring kind from a solution value.
func KindFor(solution any) Kind {
	switch solution.(type) {
	case time.Time:
		return KindDate
	case []string:
		return KindMultipleChoice
	case int, bool, float64:
		return KindChoice
	default:
		return KindText
	}
}

// HasDestination reports whether solving t unlocks a waypoint.
func (t *Task) HasDestination() bool {
	return t.Destination != uuid.Nil
}

// HasSolution reports whether t actually gates anything.
func (t *Task) HasSolution() bool {
	return t.Solution != nil
}

func (t *Task) String() string {
	return t.Description
}
