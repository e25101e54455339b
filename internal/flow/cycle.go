package flow

import (
	"time"

	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/pkg/models"
)

// Shape of a daily flow
type Shape int

const (
	ShapeBranch Shape = iota
	ShapeLinear
)

// DefaultAutoProceedDelay is the pause before an auto_proceed sub-step
// moves on by itself
const DefaultAutoProceedDelay = 3 * time.Second

// Cycle binds a stage to its daily flow and to the milestone after the
// last day.
type Cycle struct {
	Name  string
	Stage int
	Shape Shape
	// DefaultLength applies when the content defines no daily practices
	DefaultLength int

	NextStage int
	EntryStep int

	StartAction string
	NextAction  string
	PrevAction  string

	// Milestone stores the date of the one-shot push that follows the cycle
	Milestone func(u *models.User, date string)
}

// Cycles known to the engine
var (
	Witness = Cycle{
		Name:          "Свидетель",
		Stage:         3,
		Shape:         ShapeBranch,
		DefaultLength: 4,
		NextStage:     4,
		EntryStep:     12,
		StartAction:   "start_daily_substep",
		NextAction:    "next_daily_substep",
		PrevAction:    "prev_daily_substep",
		Milestone:     func(u *models.User, date string) { u.Stage4ReminderDate = date },
	}

	Maturity = Cycle{
		Name:          "До беби-лифа",
		Stage:         5,
		Shape:         ShapeLinear,
		DefaultLength: 7,
		NextStage:     6,
		EntryStep:     24,
		StartAction:   "stage5_start_substep",
		NextAction:    "stage5_next_substep",
		PrevAction:    "stage5_prev_substep",
		Milestone:     func(u *models.User, date string) { u.Stage6ReminderDate = date },
	}

	cycles = []Cycle{Witness, Maturity}
)

// ForStage returns the cycle run by the stage
func ForStage(stage int) (Cycle, bool) {
	for _, c := range cycles {
		if c.Stage == stage {
			return c, true
		}
	}
	return Cycle{}, false
}

// ForAction returns the cycle that owns a sub-step action token. The
// check-in choices belong to the branch cycle.
func ForAction(action string) (Cycle, bool) {
	for _, c := range cycles {
		switch action {
		case c.StartAction, c.NextAction, c.PrevAction:
			return c, true
		}
	}
	if action == ChoiceA || action == ChoiceB {
		return Witness, true
	}
	return Cycle{}, false
}

// Length is the number of days in the cycle for the given content
func (c Cycle) Length(tree *content.Tree) int {
	if stage, ok := tree.Stage(c.Stage); ok {
		if n := stage.CycleLength(); n > 0 {
			return n
		}
	}
	return c.DefaultLength
}
