package flow

import (
	"fmt"

	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/pkg/models"
)

// Tokens of the buttons attached to daily reminders
const (
	ActionPostpone    = "postpone_reminder"
	ActionMoldSprouts = "mold_sprouts_start"
)

// MoldButton is offered with every reminder once sprouts exist
var MoldButton = models.Button{Label: "🍄 Что-то пошло не так / Плесень", Action: ActionMoldSprouts}

func (c Cycle) render(u models.User, tree *content.Tree, p *content.DailyPractice, sub *content.Substep, id string) models.Render {
	if c.Shape == ShapeLinear {
		return c.renderLinear(u, tree, p, sub, LinearStep(id))
	}
	return c.renderBranch(sub, BranchStep(id))
}

func (c Cycle) renderBranch(sub *content.Substep, id BranchStep) models.Render {
	r := sub.Render()
	switch {
	case id == BranchPractice || id == BranchPractice2:
		// Timed practice: the user confirms the minute is over.
		r.Buttons = []models.Button{
			{Label: "← Назад", Action: c.PrevAction},
			{Label: "Минута прошла", Action: c.NextAction},
		}
	case len(r.Buttons) == 0 && id != BranchCheckin && !sub.AutoProceed && !sub.AutoComplete:
		r.Buttons = []models.Button{{Label: "Далее", Action: c.NextAction}}
	}
	return r
}

func (c Cycle) renderLinear(u models.User, tree *content.Tree, p *content.DailyPractice, sub *content.Substep, id LinearStep) models.Render {
	day := u.DailyPracticeDay
	length := c.Length(tree)
	r := models.Render{Message: fmt.Sprintf("🌱 День %d из %d: %s\n\n%s", day, length, p.Theme, sub.Body())}

	back := models.Button{Label: "← Назад", Action: c.PrevAction}
	switch id {
	case LinearIntro:
		r.Buttons = []models.Button{{Label: "Продолжить", Action: c.NextAction}}
	case LinearTimer:
		r.Buttons = []models.Button{back, {Label: "Минута прошла", Action: c.NextAction}}
	case LinearAffirmation:
		label := "Принято. До завтра"
		if day >= length {
			label = "Перейти к празднику зрелости"
		}
		r.Buttons = []models.Button{back, {Label: label, Action: c.NextAction}}
	case LinearWatering:
		r.Buttons = []models.Button{back, {Label: "Ага", Action: c.NextAction}}
	}
	return r
}

// DailyReminder is the push that opens the current day of the cycle
func (c Cycle) DailyReminder(u models.User, tree *content.Tree) (models.Render, bool) {
	p, ok := tree.DailyPractice(c.Stage, u.DailyPracticeDay)
	if !ok {
		return models.Render{}, false
	}

	if c.Shape == ShapeLinear {
		return models.Render{
			Message: fmt.Sprintf("🌱 День %d из %d: %s\n\nПришло время ежедневной практики с долгосрочными целями.\n\nСегодня мы поработаем с темой «%s».",
				u.DailyPracticeDay, c.Length(tree), p.Theme, p.Theme),
			Buttons: []models.Button{
				{Label: "Начать практику", Action: c.StartAction},
				{Label: "Напомнить позже", Action: ActionPostpone},
				MoldButton,
			},
		}, true
	}

	if p.Reminder == nil {
		return models.Render{}, false
	}
	r := models.Render{Message: p.Reminder.Message, Buttons: content.Buttons(p.Reminder.Buttons)}
	return r.WithButtons(MoldButton), true
}

// DaysWord is the Russian plural of "day" for n
func DaysWord(n int) string {
	switch {
	case n%10 == 1 && n%100 != 11:
		return "день"
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 12 || n%100 > 14):
		return "дня"
	default:
		return "дней"
	}
}
