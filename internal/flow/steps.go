// Package flow drives the sub-steps of a single day inside a daily cycle.
// Transitions are declared as tables and validated through a finite state
// machine; the engine functions are pure and return the next user record.
package flow

// BranchStep is a sub-step of the branching daily flow
type BranchStep string

const (
	BranchIntro      BranchStep = "intro"
	BranchPractice   BranchStep = "practice"
	BranchPractice2  BranchStep = "practice2"
	BranchCheckin    BranchStep = "checkin"
	BranchResponseA  BranchStep = "response_A"
	BranchResponseB  BranchStep = "response_B"
	BranchCompletion BranchStep = "completion"
)

// LinearStep is a sub-step of the linear daily flow
type LinearStep string

const (
	LinearIntro       LinearStep = "intro"
	LinearTimer       LinearStep = "timer"
	LinearAffirmation LinearStep = "affirmation"
	LinearWatering    LinearStep = "watering"
)

// Choice tokens accepted at the check-in
const (
	ChoiceA = "daily_choice_A"
	ChoiceB = "daily_choice_B"
)

// Table declares the transitions of one flow shape.
type Table[S ~string] struct {
	Initial S
	// Terminal is the sub-step whose forward move completes the day
	Terminal S
	Forward  map[S]S
	Backward map[S]S
	// Choices are only valid from ChoiceFrom
	Choices    map[string]S
	ChoiceFrom S
	// Optional sub-steps are skipped when the day's content lacks them
	Optional map[S]bool
}

// Known reports whether s is a state of the table
func (t Table[S]) Known(s S) bool {
	if s == t.Initial || s == t.Terminal || s == t.ChoiceFrom {
		return true
	}
	if _, ok := t.Forward[s]; ok {
		return true
	}
	if _, ok := t.Backward[s]; ok {
		return true
	}
	for _, dst := range t.Choices {
		if dst == s {
			return true
		}
	}
	return false
}

// BranchTable: intro, practice, optional practice2, a two-way check-in
// and a shared completion.
var BranchTable = Table[BranchStep]{
	Initial:  BranchIntro,
	Terminal: BranchCompletion,
	Forward: map[BranchStep]BranchStep{
		BranchIntro:     BranchPractice,
		BranchPractice:  BranchPractice2,
		BranchPractice2: BranchCheckin,
		BranchResponseA: BranchCompletion,
		BranchResponseB: BranchCompletion,
	},
	Backward: map[BranchStep]BranchStep{
		BranchPractice:  BranchIntro,
		BranchPractice2: BranchPractice,
		BranchCheckin:   BranchPractice,
		BranchResponseA: BranchCheckin,
		BranchResponseB: BranchCheckin,
	},
	Choices: map[string]BranchStep{
		ChoiceA: BranchResponseA,
		ChoiceB: BranchResponseB,
	},
	ChoiceFrom: BranchCheckin,
	Optional:   map[BranchStep]bool{BranchPractice2: true},
}

// LinearTable: intro, timer, affirmation, watering
var LinearTable = Table[LinearStep]{
	Initial:  LinearIntro,
	Terminal: LinearWatering,
	Forward: map[LinearStep]LinearStep{
		LinearIntro:       LinearTimer,
		LinearTimer:       LinearAffirmation,
		LinearAffirmation: LinearWatering,
	},
	Backward: map[LinearStep]LinearStep{
		LinearTimer:       LinearIntro,
		LinearAffirmation: LinearTimer,
		LinearWatering:    LinearAffirmation,
	},
}
