package task

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"time"

	"github.com/agext/levenshtein"
)

// ErrUnsupportedAnswer is wrapped by SolverError.
var ErrUnsupportedAnswer = errors.New("unsupported answer type")

// SolverError reports an answer whose type no comparator handles.
type SolverError struct {
	Task   string
	Answer any
}

func (e *SolverError) Error() string {
	return fmt.Sprintf("task %s: %v: %T", e.Task, ErrUnsupportedAnswer, e.Answer)
}

func (e *SolverError) Unwrap() error {
	return ErrUnsupportedAnswer
}

// Solver matches answers against task solutions. Zero tolerances on a task
// fall back to the solver's.
type Solver struct {
	Ratio  int
	Days   int
	Offset float64
}

// DefaultSolver uses the package defaults.
var DefaultSolver = Solver{Ratio: DefaultRatio, Days: DefaultDays, Offset: DefaultOffset}

// Solve reports whether answer satisfies t using DefaultSolver.
func Solve(t *Task, answer any) (bool, error) {
	return DefaultSolver.Solve(t, answer)
}

// Solve reports whether answer satisfies t.
//   - no solution: always solved
//   - no answer: not solved
//   - answer type differs from the solution type: not solved
func (s Solver) Solve(t *Task, answer any) (bool, error) {
	if t == nil || t.Solution == nil {
		return true, nil
	}
	if answer == nil {
		return false, nil
	}
	if reflect.TypeOf(answer) != reflect.TypeOf(t.Solution) {
		return false, nil
	}

	switch solution := t.Solution.(type) {
	case string:
		return PartialRatio(answer.(string), solution) >= s.ratio(t), nil
	case time.Time:
		diff := answer.(time.Time).Sub(solution)
		if diff < 0 {
			diff = -diff
		}
		return diff <= time.Duration(s.days(t))*24*time.Hour, nil
	case []string:
		got := slices.Clone(answer.([]string))
		want := slices.Clone(solution)
		slices.Sort(got)
		slices.Sort(want)
		return slices.Equal(got, want), nil
	case int:
		return answer.(int) == solution, nil
	case bool:
		return answer.(bool) == solution, nil
	case float64:
		return math.Abs(answer.(float64)-solution) <= s.offset(t), nil
	}
	return false, &SolverError{Task: t.ID.String(), Answer: answer}
}

func (s Solver) ratio(t *Task) int {
	if t.Ratio > 0 {
		return t.Ratio
	}
	if s.Ratio > 0 {
		return s.Ratio
	}
	return DefaultRatio
}

func (s Solver) days(t *Task) int {
	if t.Days > 0 {
		return t.Days
	}
	if s.Days > 0 {
		return s.Days
	}
	return DefaultDays
}

func (s Solver) offset(t *Task) float64 {
	if t.Offset > 0 {
		return t.Offset
	}
	if s.Offset > 0 {
		return s.Offset
	}
	return DefaultOffset
}

var ratioParams = levenshtein.NewParams().SubCost(2)

// Ratio returns the 0-100 similarity of a and b, where a substitution costs
// as much as a deletion plus an insertion.
func Ratio(a, b string) int {
	return int(math.Round(100 * ratio([]rune(a), []rune(b))))
}

// PartialRatio returns the best Ratio of the shorter string against every
// equally long window of the longer one.
func PartialRatio(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}
	shorter, longer := ra, rb
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}
	best := 0.0
	for i := 0; i+len(shorter) <= len(longer); i++ {
		r := ratio(shorter, longer[i:i+len(shorter)])
		if r > best {
			best = r
		}
		if best >= 0.995 {
			return 100
		}
	}
	return int(math.Round(100 * best))
}

func ratio(a, b []rune) float64 {
	total := len(a) + len(b)
	if total == 0 {
		return 1
	}
	dist := levenshtein.Distance(string(a), string(b), ratioParams)
	return float64(total-dist) / float64(total)
}
