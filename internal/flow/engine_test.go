package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/sogretobot/internal/content/contenttest"
	"github.com/example/sogretobot/internal/progress"
	"github.com/example/sogretobot/pkg/models"
)

// 09:00 in Moscow
var now = time.Date(2026, 4, 2, 6, 0, 0, 0, time.UTC)

func cycleUser(c Cycle, day int, substep string) models.User {
	u := models.NewUser(1)
	started := now.AddDate(0, 0, -10)
	u.StartedAt = &started
	u.CurrentStage = c.Stage
	u.CurrentStep = 0
	u.DailyPracticeDay = day
	u.DailyPracticeSubstep = substep
	return u
}

func TestBranchDayWithoutPractice2(t *testing.T) {
	tree := contenttest.Tree(t)
	u := cycleUser(Witness, 1, "")

	res := Start(Witness, u, tree, now)
	require.Equal(t, progress.OutcomeMoved, res.Outcome)
	assert.Equal(t, "intro", res.User.DailyPracticeSubstep)
	assert.Equal(t, "next_daily_substep", res.Render.Buttons[0].Action)

	res = Next(Witness, res.User, tree, now)
	assert.Equal(t, "practice", res.User.DailyPracticeSubstep)
	require.Len(t, res.Render.Buttons, 2)
	assert.Equal(t, "prev_daily_substep", res.Render.Buttons[0].Action)
	assert.Equal(t, "Минута прошла", res.Render.Buttons[1].Label)

	res = Next(Witness, res.User, tree, now)
	assert.Equal(t, "checkin", res.User.DailyPracticeSubstep, "practice2 is skipped when absent")

	stuck := Next(Witness, res.User, tree, now)
	assert.Equal(t, progress.OutcomeRejected, stuck.Outcome)
	assert.Equal(t, "checkin", stuck.User.DailyPracticeSubstep)

	res = Choose(Witness, res.User, tree, ChoiceB, now)
	assert.Equal(t, "response_B", res.User.DailyPracticeSubstep)
	assert.Equal(t, "B", res.Entry.Response)

	// completion is auto_complete: rendered and the day closes at once
	res = Next(Witness, res.User, tree, now)
	assert.Equal(t, progress.OutcomeDayComplete, res.Outcome)
	assert.Equal(t, "День 1 завершён. До завтра!", res.Render.Text())
	assert.Empty(t, res.Render.Buttons)
	assert.Equal(t, 2, res.User.DailyPracticeDay)
	assert.Empty(t, res.User.DailyPracticeSubstep)
	assert.Equal(t, "2026-04-02", res.User.LastPracticeDate)
	assert.Equal(t, 1, res.Entry.Day)
	assert.Equal(t, ActionCompleteDay, res.Entry.Action)
}

func TestBranchAutoProceed(t *testing.T) {
	tree := contenttest.Tree(t)
	u := cycleUser(Witness, 2, "practice")

	res := Next(Witness, u, tree, now)
	assert.Equal(t, "practice2", res.User.DailyPracticeSubstep)
	require.NotNil(t, res.Continuation)
	assert.Equal(t, DefaultAutoProceedDelay, res.Continuation.Delay)
	assert.Equal(t, "next_daily_substep", res.Continuation.Action)
	assert.True(t, res.Continuation.Due(res.User))

	moved := res.User
	moved.DailyPracticeSubstep = "checkin"
	assert.False(t, res.Continuation.Due(moved))

	res = Next(Witness, res.User, tree, now)
	assert.Equal(t, "checkin", res.User.DailyPracticeSubstep)
	assert.Nil(t, res.Continuation)

	back := Prev(Witness, res.User, tree, now)
	assert.Equal(t, "practice", back.User.DailyPracticeSubstep)
}

func TestBranchManualCompletion(t *testing.T) {
	tree := contenttest.Tree(t)
	u := cycleUser(Witness, 3, "response_A")

	res := Next(Witness, u, tree, now)
	require.Equal(t, progress.OutcomeMoved, res.Outcome)
	assert.Equal(t, "completion", res.User.DailyPracticeSubstep)

	res = Next(Witness, res.User, tree, now)
	assert.Equal(t, progress.OutcomeDayComplete, res.Outcome)
	assert.Equal(t, 4, res.User.DailyPracticeDay)
}

func TestBranchLastDayArmsMilestone(t *testing.T) {
	tree := contenttest.Tree(t)
	u := cycleUser(Witness, 4, "response_A")
	u.ReminderPostponed = true
	until := now.Add(time.Hour)
	u.PostponedUntil = &until

	res := Next(Witness, u, tree, now)

	assert.Equal(t, progress.OutcomeCycleComplete, res.Outcome)
	assert.Equal(t, "Все 4 дня завершены!", res.Render.Text())
	assert.Equal(t, 4, res.User.CurrentStage)
	assert.Equal(t, 12, res.User.CurrentStep)
	assert.Equal(t, 0, res.User.DailyPracticeDay)
	assert.Empty(t, res.User.LastPracticeDate)
	assert.False(t, res.User.ReminderPostponed)
	assert.Nil(t, res.User.PostponedUntil)
	assert.Equal(t, "2026-04-03", res.User.Stage4ReminderDate)
}

func TestMilestoneDateIsLocalTomorrow(t *testing.T) {
	tree := contenttest.Tree(t)
	u := cycleUser(Witness, 4, "")
	u.Timezone = "Asia/Vladivostok"
	// 23:30 UTC on April 2nd is already April 3rd in Vladivostok
	late := time.Date(2026, 4, 2, 23, 30, 0, 0, time.UTC)

	res := CompleteDay(Witness, u, tree, late)
	assert.Equal(t, "2026-04-04", res.User.Stage4ReminderDate)
}

func TestChoiceOnlyFromCheckin(t *testing.T) {
	tree := contenttest.Tree(t)

	res := Choose(Witness, cycleUser(Witness, 1, "intro"), tree, ChoiceA, now)
	assert.Equal(t, progress.OutcomeRejected, res.Outcome)
	assert.Equal(t, "intro", res.User.DailyPracticeSubstep)
}

func TestPrevAtIntroRejected(t *testing.T) {
	tree := contenttest.Tree(t)

	for _, c := range []Cycle{Witness, Maturity} {
		res := Prev(c, cycleUser(c, 1, "intro"), tree, now)
		assert.Equal(t, progress.OutcomeRejected, res.Outcome, c.Name)
		assert.Equal(t, "Это первый шаг практики, вернуться назад нельзя.", res.Render.Message, c.Name)
	}
}

func TestPrevWithoutBackEdgeRejected(t *testing.T) {
	tree := contenttest.Tree(t)

	for _, substep := range []string{string(BranchCompletion), ""} {
		res := Prev(Witness, cycleUser(Witness, 1, substep), tree, now)
		assert.Equal(t, progress.OutcomeRejected, res.Outcome, substep)
		assert.Equal(t, "Вернуться назад отсюда нельзя.", res.Render.Message, substep)
		assert.Equal(t, substep, res.User.DailyPracticeSubstep)
	}
}

func TestStartRequiresActiveDay(t *testing.T) {
	tree := contenttest.Tree(t)

	res := Start(Witness, cycleUser(Witness, 0, ""), tree, now)
	assert.Equal(t, progress.OutcomeRejected, res.Outcome)

	res = Start(Maturity, cycleUser(Witness, 1, ""), tree, now)
	assert.Equal(t, progress.OutcomeRejected, res.Outcome, "wrong stage")

	res = Start(Witness, cycleUser(Witness, 9, ""), tree, now)
	assert.Equal(t, progress.OutcomeNotFound, res.Outcome)
}

func TestUnknownSubstepRejected(t *testing.T) {
	tree := contenttest.Tree(t)

	res := Next(Witness, cycleUser(Witness, 1, "bogus"), tree, now)
	assert.Equal(t, progress.OutcomeRejected, res.Outcome)
}

func TestLinearDay(t *testing.T) {
	tree := contenttest.Tree(t)
	u := cycleUser(Maturity, 3, "")

	res := Start(Maturity, u, tree, now)
	assert.Equal(t, "intro", res.User.DailyPracticeSubstep)
	assert.Contains(t, res.Render.Message, "День 3 из 7: Радость")
	require.Len(t, res.Render.Buttons, 1)
	assert.Equal(t, "Продолжить", res.Render.Buttons[0].Label)

	res = Next(Maturity, res.User, tree, now)
	assert.Equal(t, "timer", res.User.DailyPracticeSubstep)
	assert.Equal(t, []models.Button{
		{Label: "← Назад", Action: "stage5_prev_substep"},
		{Label: "Минута прошла", Action: "stage5_next_substep"},
	}, res.Render.Buttons)

	res = Next(Maturity, res.User, tree, now)
	assert.Equal(t, "affirmation", res.User.DailyPracticeSubstep)
	assert.Equal(t, "Принято. До завтра", res.Render.Buttons[1].Label)

	back := Prev(Maturity, res.User, tree, now)
	assert.Equal(t, "timer", back.User.DailyPracticeSubstep)

	res = Next(Maturity, res.User, tree, now)
	assert.Equal(t, "watering", res.User.DailyPracticeSubstep)
	assert.Equal(t, "Ага", res.Render.Buttons[1].Label)

	res = Next(Maturity, res.User, tree, now)
	assert.Equal(t, progress.OutcomeDayComplete, res.Outcome)
	assert.Equal(t, 4, res.User.DailyPracticeDay)
	assert.Contains(t, res.Render.Message, "Тема: Радость")
}

func TestLinearLastDay(t *testing.T) {
	tree := contenttest.Tree(t)

	res := Next(Maturity, cycleUser(Maturity, 7, "timer"), tree, now)
	assert.Equal(t, "Перейти к празднику зрелости", res.Render.Buttons[1].Label)

	res = Next(Maturity, cycleUser(Maturity, 7, "watering"), tree, now)
	assert.Equal(t, progress.OutcomeCycleComplete, res.Outcome)
	assert.Equal(t, 6, res.User.CurrentStage)
	assert.Equal(t, 24, res.User.CurrentStep)
	assert.Equal(t, "2026-04-03", res.User.Stage6ReminderDate)
	assert.Contains(t, res.Render.Message, "Все 7 дней")
}

func TestDailyReminder(t *testing.T) {
	tree := contenttest.Tree(t)

	r, ok := Witness.DailyReminder(cycleUser(Witness, 1, ""), tree)
	require.True(t, ok)
	assert.Equal(t, "Пора к практике дня 1.", r.Message)
	assert.Equal(t, MoldButton, r.Buttons[len(r.Buttons)-1])

	r, ok = Maturity.DailyReminder(cycleUser(Maturity, 2, ""), tree)
	require.True(t, ok)
	assert.Contains(t, r.Message, "«Доверие»")
	assert.Equal(t, []string{"stage5_start_substep", ActionPostpone, ActionMoldSprouts},
		[]string{r.Buttons[0].Action, r.Buttons[1].Action, r.Buttons[2].Action})

	_, ok = Witness.DailyReminder(cycleUser(Witness, 5, ""), tree)
	assert.False(t, ok)
}

func TestCycleLookup(t *testing.T) {
	c, ok := ForAction("stage5_prev_substep")
	require.True(t, ok)
	assert.Equal(t, 5, c.Stage)

	c, ok = ForAction(ChoiceA)
	require.True(t, ok)
	assert.Equal(t, 3, c.Stage)

	_, ok = ForAction("next_step")
	assert.False(t, ok)

	_, ok = ForStage(4)
	assert.False(t, ok)

	assert.Equal(t, 4, Witness.Length(contenttest.Tree(t)))
}
