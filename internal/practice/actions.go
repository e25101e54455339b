package practice

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/internal/flow"
	"github.com/example/sogretobot/internal/progress"
	"github.com/example/sogretobot/internal/triggers"
	"github.com/example/sogretobot/pkg/models"
)

// Action tokens handled by the service itself
const (
	actionStartPractice       = progress.ActionStartPractice
	actionStartWaiting        = "start_waiting_for_daily"
	actionStartDaily          = "start_daily_practices"
	actionCompleteDay4        = "complete_day4_practice"
	actionReplantStepPrefix   = "replant_step_"
	actionReplantComplete     = "replant_complete"
	actionMoldComplete        = "mold_complete"
	actionMoldSproutsComplete = "mold_sprouts_complete"
	actionAllDeadStepPrefix   = "all_dead_step_"
	actionAllDeadComplete     = "all_dead_complete"
	actionPause               = "pause"
	actionResume              = "resume"
)

const moldHandled = "🌱 Отлично! Ты справился(ась) с плесенью.\n\n"

// operation computes the next state of one user. It must not block.
type operation func(u models.User, tree *content.Tree, now time.Time) flow.Result

func wrap(r progress.Result) flow.Result { return flow.Result{Result: r} }

func lift(f func(models.User, *content.Tree, time.Time) progress.Result) operation {
	return func(u models.User, tree *content.Tree, now time.Time) flow.Result {
		return wrap(f(u, tree, now))
	}
}

func shown(u models.User, r models.Render) flow.Result {
	return wrap(progress.Result{User: u, Render: r, Outcome: progress.OutcomeShown})
}

func (s *Service) resolve(action string) (operation, bool) {
	switch action {
	case progress.ActionNext:
		return lift(progress.Next), true
	case progress.ActionPrev:
		return lift(progress.Prev), true
	case progress.ActionCompleteStage:
		return lift(progress.CompleteStage), true
	case progress.ActionSproutsAppeared:
		return lift(progress.SproutsAppeared), true
	case progress.ActionStartPractice:
		return lift(progress.Start), true
	case progress.ActionContinue:
		return func(u models.User, tree *content.Tree, _ time.Time) flow.Result {
			return wrap(progress.Continue(u, tree))
		}, true
	case progress.ActionCancelReset:
		return func(u models.User, tree *content.Tree, _ time.Time) flow.Result {
			return wrap(progress.CancelReset(u, tree))
		}, true
	case progress.ActionConfirmReset:
		return func(u models.User, _ *content.Tree, now time.Time) flow.Result {
			return wrap(progress.Reset(u, now))
		}, true

	case flow.ActionPostpone:
		return s.postpone, true
	case actionStartWaiting:
		return startWaiting, true
	case actionStartDaily:
		return startDailyPractices, true
	case actionCompleteDay4:
		return cycleOp(flow.Witness, flow.CompleteDay), true
	case triggers.ActionStage6Finale:
		return startFinale, true

	case triggers.ActionReplantStart:
		return showScenarioStep(content.ScenarioReplant, 1), true
	case actionReplantComplete:
		return replantComplete, true
	case triggers.ActionMoldStart:
		return showScenario(content.ScenarioMold), true
	case actionMoldComplete:
		return moldComplete, true
	case flow.ActionMoldSprouts:
		return showScenario(content.ScenarioMoldSprouts), true
	case actionMoldSproutsComplete:
		return moldSproutsComplete, true
	case actionAllDeadComplete:
		return allDeadComplete, true
	}

	if c, ok := flow.ForAction(action); ok {
		switch action {
		case c.StartAction:
			return cycleOp(c, flow.Start), true
		case c.NextAction:
			return cycleOp(c, flow.Next), true
		case c.PrevAction:
			return cycleOp(c, flow.Prev), true
		case flow.ChoiceA, flow.ChoiceB:
			return func(u models.User, tree *content.Tree, now time.Time) flow.Result {
				return flow.Choose(c, u, tree, action, now)
			}, true
		}
	}

	switch {
	case strings.HasPrefix(action, progress.TimezonePrefix):
		zone := strings.TrimPrefix(action, progress.TimezonePrefix)
		return func(u models.User, _ *content.Tree, _ time.Time) flow.Result {
			return wrap(progress.SetTimezone(u, zone))
		}, true
	case strings.HasPrefix(action, progress.TimePrefix):
		clock := strings.TrimPrefix(action, progress.TimePrefix)
		return func(u models.User, _ *content.Tree, now time.Time) flow.Result {
			return wrap(progress.SetPreferredTime(u, clock, now))
		}, true
	case strings.HasPrefix(action, actionReplantStepPrefix):
		if id, err := strconv.Atoi(strings.TrimPrefix(action, actionReplantStepPrefix)); err == nil {
			return showScenarioStep(content.ScenarioReplant, id), true
		}
	case strings.HasPrefix(action, actionAllDeadStepPrefix):
		if id, err := strconv.Atoi(strings.TrimPrefix(action, actionAllDeadStepPrefix)); err == nil {
			return showScenarioStep(content.ScenarioAllDead, id), true
		}
	}
	return nil, false
}

func cycleOp(c flow.Cycle, f func(flow.Cycle, models.User, *content.Tree, time.Time) flow.Result) operation {
	return func(u models.User, tree *content.Tree, now time.Time) flow.Result {
		return f(c, u, tree, now)
	}
}

// postpone suppresses today's remaining cycle reminders until now+postponeFor
func (s *Service) postpone(u models.User, _ *content.Tree, now time.Time) flow.Result {
	until := now.Add(s.postponeFor).UTC()
	u.ReminderPostponed = true
	u.PostponedUntil = &until

	r := models.Render{Message: fmt.Sprintf(
		"⏰ Напоминание отложено до %s.\n\nКогда будешь готов(а), нажми «Начать практику» в напоминании или используй /status.\n\nДо встречи! 🌱",
		until.In(u.Location()).Format("15:04"))}
	return wrap(progress.Moved(u, flow.ActionPostpone, now, r, progress.OutcomeMoved))
}

// startWaiting confirms that the user waits for the first cycle reminder
func startWaiting(u models.User, tree *content.Tree, _ time.Time) flow.Result {
	c, ok := flow.ForStage(u.CurrentStage)
	if !ok {
		return wrap(progress.Continue(u, tree))
	}
	if u.DailyPracticeDay > 0 {
		r, ok := c.DailyReminder(u, tree)
		if !ok {
			return wrap(progress.NotFound(u, fmt.Sprintf("практику дня %d", u.DailyPracticeDay)))
		}
		return shown(u, r)
	}
	return shown(u, models.Render{Message: "✅ Отлично! Я буду присылать напоминания о практиках.\n\n" +
		"Первое напоминание придёт в твоё предпочтительное время.\n\n🌱 До встречи на практике!"})
}

// startDailyPractices moves a harvested user into the long-goal cycle.
// The first reminder goes out on the next calendar day.
func startDailyPractices(u models.User, tree *content.Tree, now time.Time) flow.Result {
	c := flow.Maturity
	switch {
	case u.CurrentStage == c.Stage:
		return startWaiting(u, tree, now)
	case u.CurrentStage != c.Stage-1:
		return wrap(progress.Rejected(u, "Ежедневные практики этого этапа пока недоступны.\n\nИспользуйте /status для проверки вашего прогресса."))
	}

	stage, ok := tree.Stage(c.Stage)
	if !ok {
		return wrap(progress.NotFound(u, fmt.Sprintf("этап %d", c.Stage)))
	}
	step, ok := stage.FirstStep()
	if !ok {
		return wrap(progress.NotFound(u, fmt.Sprintf("шаги этапа %d", c.Stage)))
	}
	u.CurrentStage, u.CurrentStep = c.Stage, step.StepID
	u.ClearDailyCycle()
	at := now.UTC()
	u.LastReminderSent = &at

	return wrap(progress.Moved(u, actionStartDaily, now, models.Render{
		Message: fmt.Sprintf("✅ Отлично! Начинаем новый цикл.\n\nСледующие %d %s ты будешь получать ежедневные практики.\n\n"+
			"Каждый день новая тема для работы с долгосрочными целями.\n\n🌱 Первое напоминание придёт завтра!",
			c.Length(tree), flow.DaysWord(c.Length(tree))),
	}, progress.OutcomeMoved))
}

// startFinale opens the first step of the final stage
func startFinale(u models.User, tree *content.Tree, now time.Time) flow.Result {
	c := flow.Maturity
	if u.CurrentStage < c.Stage {
		return wrap(progress.Rejected(u, "Финал пока недоступен.\n\nИспользуйте /status для проверки вашего прогресса."))
	}
	if u.CompletedAt != nil {
		return wrap(progress.Continue(u, tree))
	}
	step, ok := tree.Step(c.NextStage, c.EntryStep)
	if !ok {
		return wrap(progress.NotFound(u, fmt.Sprintf("шаг %d", c.EntryStep)))
	}
	if u.CurrentStage == c.NextStage && u.CurrentStep == c.EntryStep && u.Stage6ReminderDate == "" {
		return shown(u, step.Render())
	}
	u.CurrentStage, u.CurrentStep = c.NextStage, c.EntryStep
	u.ClearDailyCycle()
	u.Stage6ReminderDate = ""
	return wrap(progress.Moved(u, triggers.ActionStage6Finale, now, step.Render(), progress.OutcomeMoved))
}

func showScenario(name string) operation {
	return func(u models.User, tree *content.Tree, _ time.Time) flow.Result {
		sc, ok := tree.Scenario(name)
		if !ok {
			return wrap(progress.NotFound(u, "сценарий"))
		}
		return shown(u, sc.Render())
	}
}

func showScenarioStep(name string, id int) operation {
	return func(u models.User, tree *content.Tree, _ time.Time) flow.Result {
		sc, ok := tree.Scenario(name)
		if !ok {
			return wrap(progress.NotFound(u, "сценарий"))
		}
		step, ok := sc.Step(id)
		if !ok {
			return wrap(progress.NotFound(u, fmt.Sprintf("шаг %d сценария", id)))
		}
		return shown(u, step.Render())
	}
}

// lastPlantingStep is the step a user waiting for sprouts sits on
func lastPlantingStep(tree *content.Tree) int {
	if stage, ok := tree.Stage(1); ok {
		if id := stage.LastStepID(); id > 0 {
			return id
		}
	}
	return triggers.DefaultLastPlantingStep
}

// replantComplete restarts the sprouts timer after a second sowing
func replantComplete(u models.User, tree *content.Tree, now time.Time) flow.Result {
	if u.CurrentStage != 1 {
		return wrap(progress.Rejected(u, "Пересев доступен только на этапе посадки."))
	}
	at := now.UTC()
	u.StartedAt = &at
	u.AwaitingSprouts = true
	u.CurrentStep = lastPlantingStep(tree)

	return wrap(progress.Moved(u, actionReplantComplete, now, models.Render{
		Message: "🌱 Семена посажены заново!\n\nТаймер сброшен. Жди новых всходов, обычно 2-4 дня.\n\n" +
			"Я буду присылать напоминания проверить горшок.\n\nКак только увидишь первые зелёные петельки, нажми кнопку! 🌱",
		Buttons: []models.Button{{Label: "✅ Всходы появились!", Action: progress.ActionSproutsAppeared}},
	}, progress.OutcomeAwaitingSprouts))
}

func moldComplete(u models.User, _ *content.Tree, _ time.Time) flow.Result {
	return shown(u, models.Render{
		Message: "🌱 Отлично!\n\nТы справился(ась) с плесенью. Продолжай наблюдать за горшком.\n\n" +
			"Как только увидишь первые зелёные петельки, нажми кнопку! 🌱",
		Buttons: []models.Button{
			{Label: "✅ Всходы появились!", Action: progress.ActionSproutsAppeared},
			{Label: "🍄 Плесень снова", Action: triggers.ActionMoldStart},
		},
	})
}

// moldSproutsComplete returns to whatever the user was doing before the
// mold instructions
func moldSproutsComplete(u models.User, tree *content.Tree, _ time.Time) flow.Result {
	if c, ok := flow.ForStage(u.CurrentStage); ok && u.DailyPracticeDay > 0 {
		if r, ok := c.DailyReminder(u, tree); ok {
			r.Message = moldHandled + r.Message
			return shown(u, r)
		}
	}

	if u.CurrentStage == flow.Witness.NextStage {
		if step, ok := tree.Step(u.CurrentStage, u.CurrentStep); ok {
			r := step.Render()
			r = models.Render{Message: moldHandled + r.Text(), Buttons: r.Buttons}
			if len(r.Buttons) == 0 {
				r.Buttons = []models.Button{{Label: "Начать практику", Action: progress.ActionNext}}
			}
			return shown(u, r.WithButtons(flow.MoldButton))
		}
	}

	return shown(u, models.Render{
		Message: "🌱 Отлично!\n\nТы справился(ась) с плесенью. Возвращайся к практике!",
		Buttons: []models.Button{{Label: "Продолжить практику", Action: progress.ActionContinue}},
	})
}

// allDeadComplete starts over from planting while keeping the reminder
// settings
func allDeadComplete(u models.User, tree *content.Tree, now time.Time) flow.Result {
	u.Reset()
	at := now.UTC()
	u.StartedAt = &at
	u.AwaitingSprouts = true
	u.CurrentStep = lastPlantingStep(tree)

	return wrap(progress.Moved(u, actionAllDeadComplete, now, models.Render{
		Message: "🌱 Жди уведомлений о всходах, удачи!\n\nЯ буду присылать напоминания проверить горшок.\n" +
			"Как только увидишь первые зелёные петельки, нажми кнопку!",
		Buttons: []models.Button{{Label: "✅ Появились первые всходы", Action: progress.ActionSproutsAppeared}},
	}, progress.OutcomeAwaitingSprouts))
}

func setPaused(u models.User, paused bool) flow.Result {
	msg := "▶️ Напоминания снова включены.\n\nИспользуйте /status, чтобы продолжить практику."
	if paused {
		msg = "⏸ Напоминания приостановлены.\n\nЧтобы включить их снова, используйте /resume."
	}
	if u.IsPaused == paused {
		return shown(u, models.Render{Message: msg})
	}
	u.IsPaused = paused
	return wrap(progress.Result{User: u, Render: models.Render{Message: msg}, Outcome: progress.OutcomeMoved, Changed: true})
}

func resetPrompt() models.Render {
	return progress.ResetPrompt()
}

func settingsPrompt(u models.User) models.Render {
	r := progress.TimezonePrompt()
	r.Message = fmt.Sprintf("⚙️ Сейчас напоминания приходят в %s (%s).\n\n", u.PreferredTime, u.Timezone) + r.Message
	return r
}
