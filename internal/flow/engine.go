package flow

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/internal/progress"
	"github.com/example/sogretobot/pkg/models"
)

// ActionCompleteDay is recorded when a day of a cycle is finished
const ActionCompleteDay = "complete_daily_practice"

// Result is a progress result that may carry a deferred follow-up
type Result struct {
	progress.Result
	Continuation *Continuation
}

// Continuation asks the caller to run Action after Delay, provided the
// user is still on day Day at sub-step From.
type Continuation struct {
	Delay  time.Duration
	Action string
	Day    int
	From   string
}

// Due reports whether the continuation still applies to u
func (c Continuation) Due(u models.User) bool {
	return u.DailyPracticeDay == c.Day && u.DailyPracticeSubstep == c.From
}

// shape is the string view of a Table used by the engine
type shape interface {
	initialStep() string
	terminalStep() string
	choiceStep() string
	known(string) bool
	fire(from, event string, present func(string) bool) (string, bool)
}

func (t Table[S]) initialStep() string  { return string(t.Initial) }
func (t Table[S]) terminalStep() string { return string(t.Terminal) }
func (t Table[S]) choiceStep() string   { return string(t.ChoiceFrom) }
func (t Table[S]) known(s string) bool  { return t.Known(S(s)) }

func (t Table[S]) fire(from, event string, present func(string) bool) (string, bool) {
	to, ok := t.Fire(S(from), event, func(s S) bool { return present(string(s)) })
	return string(to), ok
}

func (c Cycle) table() shape {
	if c.Shape == ShapeLinear {
		return LinearTable
	}
	return BranchTable
}

func wrap(r progress.Result) Result { return Result{Result: r} }

// today loads the day's practice after checking the user is inside the cycle
func (c Cycle) today(u models.User, tree *content.Tree) (*content.DailyPractice, *Result) {
	if u.CurrentStage != c.Stage {
		res := wrap(progress.Rejected(u, "Эта практика сейчас недоступна.\n\nИспользуйте /status для проверки вашего прогресса."))
		return nil, &res
	}
	if u.DailyPracticeDay <= 0 {
		res := wrap(progress.Rejected(u, "Практика дня ещё не началась. Я пришлю напоминание в выбранное время. 🌱"))
		return nil, &res
	}
	p, ok := tree.DailyPractice(c.Stage, u.DailyPracticeDay)
	if !ok {
		res := wrap(progress.NotFound(u, fmt.Sprintf("практику дня %d", u.DailyPracticeDay)))
		return nil, &res
	}
	return p, nil
}

// Start opens the first sub-step of the current day
func Start(c Cycle, u models.User, tree *content.Tree, now time.Time) Result {
	p, rej := c.today(u, tree)
	if rej != nil {
		return *rej
	}
	return c.enter(u, tree, p, c.table().initialStep(), c.StartAction, "", now)
}

// Next moves forward one sub-step. Moving on from the terminal sub-step
// completes the day; the check-in only accepts a choice.
func Next(c Cycle, u models.User, tree *content.Tree, now time.Time) Result {
	p, rej := c.today(u, tree)
	if rej != nil {
		return *rej
	}
	t := c.table()
	cur := u.DailyPracticeSubstep
	if cur == "" {
		return c.enter(u, tree, p, t.initialStep(), c.NextAction, "", now)
	}
	if !t.known(cur) {
		return wrap(progress.Rejected(u, "Не удалось определить шаг практики. Начните практику дня заново."))
	}
	if cur == t.terminalStep() {
		return c.complete(u, tree, now, nil)
	}

	to, ok := t.fire(cur, eventNext, presentIn(p))
	if !ok {
		if cur == t.choiceStep() {
			return wrap(progress.Rejected(u, "Выберите один из вариантов ответа."))
		}
		return wrap(progress.Rejected(u, "Дальше пройти нельзя."))
	}
	return c.enter(u, tree, p, to, c.NextAction, "", now)
}

// Prev moves back one sub-step
func Prev(c Cycle, u models.User, tree *content.Tree, now time.Time) Result {
	p, rej := c.today(u, tree)
	if rej != nil {
		return *rej
	}
	t := c.table()
	to, ok := t.fire(u.DailyPracticeSubstep, eventBack, presentIn(p))
	if !ok {
		if u.DailyPracticeSubstep == t.initialStep() {
			return wrap(progress.Rejected(u, "Это первый шаг практики, вернуться назад нельзя."))
		}
		return wrap(progress.Rejected(u, "Вернуться назад отсюда нельзя."))
	}
	return c.enter(u, tree, p, to, c.PrevAction, "", now)
}

// Choose records the check-in answer and shows its response
func Choose(c Cycle, u models.User, tree *content.Tree, choice string, now time.Time) Result {
	p, rej := c.today(u, tree)
	if rej != nil {
		return *rej
	}
	to, ok := c.table().fire(u.DailyPracticeSubstep, choice, presentIn(p))
	if !ok {
		return wrap(progress.Rejected(u, "Выбор доступен только после практики."))
	}
	return c.enter(u, tree, p, to, choice, strings.TrimPrefix(choice, "daily_choice_"), now)
}

// CompleteDay finishes the current day. After the last day the user
// moves to the next stage and the milestone push is armed for tomorrow.
func CompleteDay(c Cycle, u models.User, tree *content.Tree, now time.Time) Result {
	if _, rej := c.today(u, tree); rej != nil {
		return *rej
	}
	return c.complete(u, tree, now, nil)
}

func presentIn(p *content.DailyPractice) func(string) bool {
	return func(id string) bool {
		_, ok := p.Substep(id)
		return ok
	}
}

func (c Cycle) enter(u models.User, tree *content.Tree, p *content.DailyPractice, id, action, response string, now time.Time) Result {
	sub, ok := p.Substep(id)
	if !ok {
		return wrap(progress.NotFound(u, fmt.Sprintf("подшаг «%s» дня %d", id, u.DailyPracticeDay)))
	}
	u.DailyPracticeSubstep = id
	r := c.render(u, tree, p, sub, id)

	if sub.AutoComplete {
		final := models.Render{Title: r.Title, Message: r.Message}
		return c.complete(u, tree, now, &final)
	}

	res := Result{Result: progress.Moved(u, action, now, r, progress.OutcomeMoved)}
	res.Entry.Day = u.DailyPracticeDay
	res.Entry.Response = response
	if sub.AutoProceed {
		res.Continuation = &Continuation{
			Delay:  DefaultAutoProceedDelay,
			Action: c.NextAction,
			Day:    u.DailyPracticeDay,
			From:   id,
		}
	}
	return res
}

func (c Cycle) complete(u models.User, tree *content.Tree, now time.Time, final *models.Render) Result {
	day := u.DailyPracticeDay
	length := c.Length(tree)
	theme := ""
	if p, ok := tree.DailyPractice(c.Stage, day); ok {
		theme = p.Theme
	}

	var r models.Render
	outcome := progress.OutcomeDayComplete
	if day >= length {
		u.CurrentStage = c.NextStage
		u.CurrentStep = c.EntryStep
		u.ClearDailyCycle()
		c.Milestone(&u, now.In(u.Location()).AddDate(0, 0, 1).Format(models.DateLayout))
		outcome = progress.OutcomeCycleComplete
		r.Message = fmt.Sprintf("🎉 Все %d %s практик «%s» завершены!\n\nОтличная работа! Скоро мы перейдём к следующему этапу.", length, DaysWord(length), c.Name)
	} else {
		u.DailyPracticeDay = day + 1
		u.DailyPracticeSubstep = ""
		u.LastPracticeDate = u.LocalDate(now)
		u.ClearPostponement()
		if c.Shape == ShapeLinear {
			r.Message = fmt.Sprintf("✅ День %d завершён!\n\nТема: %s\n\nМолодец! Ты сделал(а) ещё один шаг в работе с долгосрочными целями.\n\n🌱 До встречи завтра!", day, theme)
		} else {
			r.Message = fmt.Sprintf("✅ Практика дня %d завершена!\n\nМолодец! Ты сделал(а) ещё один шаг.\n\nДо встречи завтра! 🌱", day)
		}
	}
	if final != nil {
		r = *final
	}

	res := Result{Result: progress.Moved(u, ActionCompleteDay, now, r, outcome)}
	res.Entry.Day = day
	return res
}
