package scheduler

import (
	"fmt"
	"time"

	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/internal/flow"
	"github.com/example/sogretobot/internal/triggers"
	"github.com/example/sogretobot/pkg/models"
)

// Pathway names the reminder route that handled a user
type Pathway string

const (
	PathwayNone       Pathway = "none"
	PathwaySprouts    Pathway = "sprouts"
	PathwayCycleStart Pathway = "cycle_start"
	PathwayCycleDay   Pathway = "cycle_day"
	PathwayMilestone  Pathway = "milestone"
	PathwayTrigger    Pathway = "trigger"
)

const (
	// reminders go out during the first half of the preferred hour
	windowMinutes = 30

	stage6FinaleAction = "start_stage6_finale"
)

// Options tune a single decision
type Options struct {
	// IgnoreWindow evaluates the user regardless of the preferred time
	IgnoreWindow bool
}

// Decision is the outcome of evaluating one user at one instant. A
// pathway may claim the user and still send nothing; Skip then says why.
type Decision struct {
	Pathway Pathway
	Skip    string
	Rule    string
	// User is the record to persist, nil when nothing changes
	User *models.User
	// Push is the message to send after User is stored
	Push *models.Render
}

// Sends reports whether the decision pushes a message
func (d Decision) Sends() bool { return d.Push != nil }

// InWindow reports whether now falls in the first half of the user's
// preferred hour, in the user's timezone
func InWindow(u models.User, now time.Time) bool {
	local := now.In(u.Location())
	hour, _ := u.ReminderClock()
	return local.Hour() == hour && local.Minute() < windowMinutes
}

// Decide routes a user to exactly one reminder pathway. The first
// pathway that applies wins, even when it ends up not sending.
func Decide(u models.User, tree *content.Tree, now time.Time, opts Options) Decision {
	if !u.Active() {
		return Decision{Pathway: PathwayNone, Skip: "inactive"}
	}
	if !opts.IgnoreWindow && !InWindow(u, now) {
		return Decision{Pathway: PathwayNone, Skip: "outside window"}
	}

	today := u.LocalDate(now)
	elapsed := triggers.ElapsedDays(u, now)

	// 1. waiting for sprouts after planting
	if u.CurrentStage == 1 && u.AwaitingSprouts && elapsed >= 2 && elapsed <= 5 {
		d := Decision{Pathway: PathwaySprouts, Rule: fmt.Sprintf("sprouts_day%d", elapsed)}
		if u.RemindedOn(now) {
			d.Skip = "already reminded today"
			return d
		}
		r, _ := triggers.SproutReminder(elapsed)
		return d.send(u, now, r)
	}

	if c, ok := flow.ForStage(u.CurrentStage); ok {
		// 2. cycle armed, first day not opened yet
		if u.DailyPracticeDay == 0 {
			d := Decision{Pathway: PathwayCycleStart, Rule: fmt.Sprintf("stage%d_day1", c.Stage)}
			if u.RemindedOn(now) {
				d.Skip = "entered cycle today"
				return d
			}
			next := u
			next.DailyPracticeDay = 1
			r, ok := c.DailyReminder(next, tree)
			if !ok {
				d.Skip = "no reminder content"
				return d
			}
			return d.send(next, now, r)
		}

		// 3. active day
		d := Decision{Pathway: PathwayCycleDay, Rule: fmt.Sprintf("stage%d_day%d", c.Stage, u.DailyPracticeDay)}
		switch {
		case u.LastPracticeDate == today:
			d.Skip = "practiced today"
			return d
		case u.Postponed(now):
			d.Skip = "postponed"
			return d
		case u.RemindedOn(now):
			d.Skip = "already reminded today"
			return d
		}
		r, ok := c.DailyReminder(u, tree)
		if !ok {
			d.Skip = "no reminder content"
			return d
		}
		return d.send(u, now, r)
	}

	// 4. one-shot milestones, consumed by clearing their date
	if u.Stage4ReminderDate != "" && u.Stage4ReminderDate == today {
		return harvestMilestone(u, tree)
	}
	if u.Stage6ReminderDate != "" && u.Stage6ReminderDate == today {
		return finaleMilestone(u, tree)
	}

	// 5. generic trigger table
	if u.RemindedOn(now) {
		return Decision{Pathway: PathwayTrigger, Skip: "already reminded today"}
	}
	in := triggers.Input{
		Stage:           u.CurrentStage,
		Step:            u.CurrentStep,
		AwaitingSprouts: u.AwaitingSprouts,
		ElapsedDays:     elapsed,
	}
	if stage, ok := tree.Stage(1); ok {
		in.LastStep = stage.LastStepID()
	}
	rem, ok := triggers.Evaluate(in)
	if !ok {
		return Decision{Pathway: PathwayNone}
	}
	d := Decision{Pathway: PathwayTrigger, Rule: rem.Rule}
	return d.send(u, now, rem.Render)
}

func (d Decision) send(u models.User, now time.Time, r models.Render) Decision {
	at := now.UTC()
	u.LastReminderSent = &at
	d.User = &u
	d.Push = &r
	return d
}

func harvestMilestone(u models.User, tree *content.Tree) Decision {
	d := Decision{Pathway: PathwayMilestone, Rule: "stage4_harvest"}
	c := flow.Witness

	next := u
	next.Stage4ReminderDate = ""
	d.User = &next

	step, ok := tree.Step(c.NextStage, c.EntryStep)
	if !ok {
		d.Skip = "no harvest content"
		return d
	}
	next.CurrentStage = c.NextStage
	next.CurrentStep = c.EntryStep
	next.ClearDailyCycle()

	r := models.Render{
		Message: "🌱 Пора собирать первый урожай!\n\nТвоя микрозелень готова! Пришло время практики «Якорь»: мы свяжем твои желания с первыми результатами.\n\n" +
			step.Render().Text(),
		Buttons: content.Buttons(step.Buttons),
	}
	if len(r.Buttons) == 0 {
		r.Buttons = []models.Button{{Label: "Начать практику", Action: "next_step"}}
	}
	r = r.WithButtons(flow.MoldButton)
	d.Push = &r
	return d
}

func finaleMilestone(u models.User, tree *content.Tree) Decision {
	c := flow.Maturity
	next := u
	next.Stage6ReminderDate = ""

	title := "Признание мастерства"
	if step, ok := tree.Step(c.NextStage, c.EntryStep); ok && step.Title != "" {
		title = step.Title
	}
	r := models.Render{
		Message: "🎉 Финальный этап!\n\nТвой беби-лиф готов! Время завершить практику и насладиться результатом.\n\n" +
			title + "\n\nСегодня мы пройдём все финальные шаги подряд. Приготовься к празднованию своего успеха! 🌱",
		Buttons: []models.Button{{Label: "Приступить к финалу", Action: stage6FinaleAction}},
	}
	return Decision{Pathway: PathwayMilestone, Rule: "stage6_finale", User: &next, Push: &r}
}
