// Package progress moves a user through the stages and steps of the
// content tree. Every function is pure: it takes the current record and
// returns the next one together with what to show.
package progress

import (
	"fmt"
	"time"

	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/pkg/models"
)

// Action tokens handled here
const (
	ActionNext            = "next_step"
	ActionPrev            = "prev_step"
	ActionCompleteStage   = "complete_stage"
	ActionSproutsAppeared = "sprouts_appeared"
	ActionContinue        = "continue_practice"
	ActionConfirmReset    = "confirm_reset"
	ActionCancelReset     = "cancel_reset"
	ActionStartPractice   = "start_practice"
)

// Outcome classifies what an operation did
type Outcome int

const (
	OutcomeMoved Outcome = iota
	OutcomeShown
	OutcomeRejected
	OutcomeNotFound
	OutcomeStageExhausted
	OutcomeAwaitingSprouts
	OutcomeAllComplete
	OutcomeReset
	OutcomeDayComplete
	OutcomeCycleComplete
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMoved:
		return "moved"
	case OutcomeShown:
		return "shown"
	case OutcomeRejected:
		return "rejected"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeStageExhausted:
		return "stage_exhausted"
	case OutcomeAwaitingSprouts:
		return "awaiting_sprouts"
	case OutcomeAllComplete:
		return "all_complete"
	case OutcomeReset:
		return "reset"
	case OutcomeDayComplete:
		return "day_complete"
	case OutcomeCycleComplete:
		return "cycle_complete"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the next state of the user and what to render
type Result struct {
	User    models.User
	Render  models.Render
	Outcome Outcome
	// Changed is set when User differs from the input record
	Changed bool
	// Entry is the audit record of a state-changing operation
	Entry *models.HistoryEntry
}

// Moved builds the result of a state-changing operation and its history entry
func Moved(u models.User, action string, now time.Time, r models.Render, o Outcome) Result {
	return moved(u, action, now, r, o)
}

// Rejected builds the result of a refused operation; the record is unchanged
func Rejected(u models.User, msg string) Result {
	return rejected(u, msg)
}

// NotFound builds the result of a lookup that failed against the content
func NotFound(u models.User, what string) Result {
	return notFound(u, what)
}

func moved(u models.User, action string, now time.Time, r models.Render, o Outcome) Result {
	entry := models.NewHistoryEntry(u, action, now)
	return Result{User: u, Render: r, Outcome: o, Changed: true, Entry: &entry}
}

func rejected(u models.User, msg string) Result {
	return Result{User: u, Render: models.Render{Message: msg, Alert: true}, Outcome: OutcomeRejected}
}

func notFound(u models.User, what string) Result {
	return Result{
		User:    u,
		Render:  models.Render{Message: fmt.Sprintf("❌ Не удалось найти %s.\n\nПожалуйста, свяжитесь с поддержкой: /contact", what)},
		Outcome: OutcomeNotFound,
	}
}

// Next moves to step current_step+1 of the current stage. When there is
// no such step the stage is exhausted and the position is kept.
func Next(u models.User, tree *content.Tree, now time.Time) Result {
	stage, ok := tree.Stage(u.CurrentStage)
	if !ok {
		return notFound(u, fmt.Sprintf("этап %d", u.CurrentStage))
	}
	step, ok := stage.Step(u.CurrentStep + 1)
	if !ok {
		return Result{
			User: u,
			Render: models.Render{
				Message: fmt.Sprintf("Этап %d завершён! 🎉\n\nСледующий этап будет доступен позже.\nИспользуйте /status чтобы увидеть прогресс.", u.CurrentStage),
			},
			Outcome: OutcomeStageExhausted,
		}
	}
	u.CurrentStep = step.StepID
	return moved(u, ActionNext, now, step.Render(), OutcomeMoved)
}

// Prev moves back one step. It refuses at step 1 and below, and when
// the previous id does not belong to the current stage.
func Prev(u models.User, tree *content.Tree, now time.Time) Result {
	if u.CurrentStep <= 1 {
		return rejected(u, "Это первый шаг, вернуться назад нельзя.")
	}
	stage, ok := tree.Stage(u.CurrentStage)
	if !ok {
		return notFound(u, fmt.Sprintf("этап %d", u.CurrentStage))
	}
	step, ok := stage.Step(u.CurrentStep - 1)
	if !ok {
		return rejected(u, "Это первый шаг этапа, вернуться назад нельзя.")
	}
	u.CurrentStep = step.StepID
	return moved(u, ActionPrev, now, step.Render(), OutcomeMoved)
}

// CompleteStage applies the per-stage completion policy:
//   - stage 1 parks the user waiting for sprouts and asks for reminder settings;
//   - other stages move to step 0 of the next stage when it exists, or its first step;
//   - entering a daily-cycle stage arms the cycle for the next calendar day;
//   - the last stage marks the whole program complete.
func CompleteStage(u models.User, tree *content.Tree, now time.Time) Result {
	if u.CurrentStage == 1 {
		u.AwaitingSprouts = true
		return moved(u, ActionCompleteStage, now, TimezonePrompt(), OutcomeAwaitingSprouts)
	}

	from := u.CurrentStage
	next, ok := tree.Stage(from + 1)
	if !ok {
		if u.CompletedAt == nil {
			at := now.UTC()
			u.CompletedAt = &at
		}
		u.ClearDailyCycle()
		return moved(u, ActionCompleteStage, now, models.Render{
			Message: "🎊 ПОЗДРАВЛЯЕМ! 🎊\n\nВы завершили все практики предвкушения!\n\nВы прошли путь от семечка до урожая. 🌱",
		}, OutcomeAllComplete)
	}

	step, ok := next.Step(0)
	if !ok {
		if step, ok = next.FirstStep(); !ok {
			return notFound(u, fmt.Sprintf("шаги этапа %d", next.StageID))
		}
	}

	u.CurrentStage = next.StageID
	u.CurrentStep = step.StepID
	u.AwaitingSprouts = false
	u.ClearDailyCycle()
	if next.CycleLength() > 0 {
		// The first daily reminder must land on a later calendar day.
		at := now.UTC()
		u.LastReminderSent = &at
	}

	r := step.Render()
	if step.StepID != 0 {
		r.Message = fmt.Sprintf("🎉 Этап %d завершён!\n\nПереходим к этапу %d: %s\n\n%s", from, next.StageID, next.StageName, r.Message)
	}
	return moved(u, ActionCompleteStage, now, r, OutcomeMoved)
}

// SproutsAppeared ends the stage 1 waiting state and opens stage 2
func SproutsAppeared(u models.User, tree *content.Tree, now time.Time) Result {
	if u.CurrentStage != 1 {
		return rejected(u, "Эта функция доступна только на Этапе 1 (после посадки).\n\nИспользуйте /status для проверки вашего прогресса.")
	}
	stage, ok := tree.Stage(2)
	if !ok {
		return notFound(u, "этап 2")
	}
	step, ok := stage.FirstStep()
	if !ok {
		return notFound(u, "шаги этапа 2")
	}

	u.AwaitingSprouts = false
	u.CurrentStage = stage.StageID
	u.CurrentStep = step.StepID
	u.CurrentDay = 2

	r := step.Render()
	r.Message = fmt.Sprintf("🎉 Отлично! Ваши всходы появились!\n\nПереходим к этапу «%s»\n\n%s", stage.StageName, r.Message)
	return moved(u, ActionSproutsAppeared, now, r, OutcomeMoved)
}

// Continue shows the current step. A step id that no longer exists in
// the tree is repaired to the stage's first step.
func Continue(u models.User, tree *content.Tree) Result {
	if u.CompletedAt != nil {
		return Result{
			User:    u,
			Render:  models.Render{Message: "🎊 Все практики завершены!\n\nЧтобы пройти путь заново, используйте /reset."},
			Outcome: OutcomeAllComplete,
		}
	}
	stage, ok := tree.Stage(u.CurrentStage)
	if !ok {
		return notFound(u, fmt.Sprintf("этап %d", u.CurrentStage))
	}
	if step, ok := stage.Step(u.CurrentStep); ok {
		return Result{User: u, Render: step.Render(), Outcome: OutcomeShown}
	}
	step, ok := stage.FirstStep()
	if !ok {
		return notFound(u, fmt.Sprintf("шаги этапа %d", u.CurrentStage))
	}
	u.CurrentStep = step.StepID
	return Result{User: u, Render: step.Render(), Outcome: OutcomeShown, Changed: true}
}

// CancelReset returns to the current practice after a declined reset
func CancelReset(u models.User, tree *content.Tree) Result {
	res := Continue(u, tree)
	if res.Outcome == OutcomeShown {
		res.Render.Message = "✅ Сброс отменён!\n\nВозвращаемся к вашей практике:\n\n" + res.Render.Text()
		res.Render.Title = ""
	}
	return res
}

// Reset puts the user back at stage 1 / step 1 / day 1. Calling it on
// an already reset record yields the same record.
func Reset(u models.User, now time.Time) Result {
	u.Reset()
	return moved(u, ActionConfirmReset, now, models.Render{
		Message: "🔄 Прогресс сброшен!\n\nВы можете начать практики заново командой /start_practice\n\nНачнём сначала! 🌱",
		Buttons: []models.Button{{Label: "🌱 Начать практику", Action: ActionStartPractice}},
	}, OutcomeReset)
}

// ResetPrompt asks for confirmation before a reset
func ResetPrompt() models.Render {
	return models.Render{
		Message: "⚠️ Сбросить весь прогресс и начать практики заново?",
		Buttons: []models.Button{
			{Label: "Да, начать заново", Action: ActionConfirmReset},
			{Label: "Нет, продолжить", Action: ActionCancelReset},
		},
	}
}

// Start begins the program. A user who already started continues where
// they are.
func Start(u models.User, tree *content.Tree, now time.Time) Result {
	if u.StartedAt != nil {
		return Continue(u, tree)
	}
	step, ok := tree.Step(1, 1)
	if !ok {
		return notFound(u, "первый шаг практики")
	}
	at := now.UTC()
	u.StartedAt = &at
	u.CurrentStage, u.CurrentStep, u.CurrentDay = 1, step.StepID, 1
	return moved(u, ActionStartPractice, now, step.Render(), OutcomeMoved)
}
