// Package triggers holds the fallback reminder table keyed by stage and
// the number of calendar days since the user started.
package triggers

import (
	"fmt"
	"time"

	"github.com/example/sogretobot/pkg/models"
)

// DefaultLastPlantingStep is the last step of the planting stage when the
// content does not say otherwise
const DefaultLastPlantingStep = 6

// Input is everything the table looks at
type Input struct {
	Stage           int
	Step            int
	LastStep        int
	AwaitingSprouts bool
	ElapsedDays     int
}

// Reminder is a matched rule
type Reminder struct {
	Rule   string
	Render models.Render
}

// Action tokens offered by the table
const (
	ActionSproutsAppeared = "sprouts_appeared"
	ActionReplantStart    = "replant_start"
	ActionMoldStart       = "mold_start"
	ActionStage6Finale    = "start_stage6_finale"
	ActionContinue        = "continue_practice"
)

// ElapsedDays counts calendar days between start and now in the user's
// timezone
func ElapsedDays(u models.User, now time.Time) int {
	if u.StartedAt == nil {
		return 0
	}
	loc := u.Location()
	s := u.StartedAt.In(loc)
	n := now.In(loc)
	from := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// Evaluate returns the reminder for the given position, if any
func Evaluate(in Input) (Reminder, bool) {
	last := in.LastStep
	if last <= 0 {
		last = DefaultLastPlantingStep
	}
	days := in.ElapsedDays

	switch in.Stage {
	case 1:
		if in.Step < last {
			if days >= 1 {
				return withContinue("stage1_unfinished", fmt.Sprintf(
					"🌱 Не забудьте завершить посадку!\n\nВы остановились на шаге %d из %d.\n\n"+
						"Завершите первый этап, чтобы начать выращивать ваш салат!\n\n/status - продолжить практику", in.Step, last)), true
			}
			return Reminder{}, false
		}
		if !in.AwaitingSprouts {
			return Reminder{}, false
		}
		return stage1Sprouts(days)

	case 2:
		if days >= 5 {
			return withContinue("stage2_stalled",
				"🌿 Продолжайте практики!\n\nВаши ростки уже показались? Отлично!\n\nПереходите к следующему этапу практик.\n\n/status - посмотреть прогресс"), true
		}

	case 3:
		if days == 7 {
			return withContinue("stage3_harvest",
				"🌱 Время первого урожая!\n\nПрошла неделя с момента посадки. Ваша микрозелень готова к первому сбору!\n\n"+
					"Переходите к Этапу 4: практика «Якорь» и дегустация.\n\n/status - продолжить"), true
		}

	case 4:
		if days >= 8 {
			return withContinue("stage4_babyleaf",
				"🌿 Переходим к росту беби-лифа!\n\nВы попробовали микрозелень? Теперь оставшиеся ростки будут расти дальше.\n\n"+
					"Переходите к Этапу 5: ежедневные практики с большими целями.\n\n/status - начать Этап 5"), true
		}

	case 5:
		if d := days - 7; d >= 1 && d <= 7 {
			return withContinue("stage5_daily", fmt.Sprintf(
				"🌱 День %d из 7: Ежедневная практика\n\nПродолжайте свои ежедневные практики с большими целями.\n\n"+
					"Ваш беби-лиф растёт, и вместе с ним растут ваши намерения.\n\n/status - сегодняшняя практика", d)), true
		}

	case 6:
		if days >= 14 {
			return Reminder{
				Rule: "stage6_finale",
				Render: models.Render{
					Message: "🎉 Финальный этап!\n\nВаш беби-лиф готов к сбору! Время завершить практику и насладиться результатом.\n\n" +
						"Переходите к финальным шагам.\n\n/status - завершить практику",
					Buttons: []models.Button{{Label: "🎉 Приступить к финалу", Action: ActionStage6Finale}},
				},
			}, true
		}
	}
	return Reminder{}, false
}

func withContinue(rule, msg string) Reminder {
	return Reminder{
		Rule: rule,
		Render: models.Render{
			Message: msg,
			Buttons: []models.Button{{Label: "▶️ Продолжить практику", Action: ActionContinue}},
		},
	}
}

func stage1Sprouts(days int) (Reminder, bool) {
	var msg string
	switch days {
	case 2:
		msg = "🌱 Пора проверить всходы!\n\nПрошло 2 дня с момента посадки. Обычно в это время появляются первые ростки.\n\n" +
			"Загляните в горшок: видите зелёные петельки? Если да, нажмите кнопку ниже!"
	case 3:
		msg = "🌿 Напоминание о всходах\n\nУже 3 дня с момента посадки. Проверьте горшок: появились ли ростки?\n\n" +
			"Если нет, не переживайте, иногда семенам нужно чуть больше времени."
	case 4:
		msg = "🌾 Проверка всходов\n\n4-й день после посадки. Если ростки ещё не показались, проверьте:\n" +
			"• Достаточно ли влаги в почве?\n• Накрыт ли горшок плёнкой?\n• Стоит ли в тёплом месте?"
	case 5:
		msg = "⚠️ Салат не всходит?\n\nПрошло уже 5 дней с момента посадки. Если всходов так и нет, попробуйте пересадить салат заново."
	default:
		return Reminder{}, false
	}
	buttons := []models.Button{{Label: "✅ У меня появились первые всходы!", Action: ActionSproutsAppeared}}
	if days == 5 {
		buttons = []models.Button{
			{Label: "✅ Всходы появились!", Action: ActionSproutsAppeared},
			{Label: "😔 Салат не взошёл", Action: ActionReplantStart},
		}
	}
	return Reminder{
		Rule:   fmt.Sprintf("stage1_sprouts_day%d", days),
		Render: models.Render{Message: msg, Buttons: buttons},
	}, true
}

// SproutReminder is the daily "check your pot" push sent on days 2..5
// after planting
func SproutReminder(day int) (models.Render, bool) {
	var msg string
	switch day {
	case 2:
		msg = "🌱 Пора проверить всходы!\n\nПрошло 2 дня с момента посадки. Обычно в это время появляются первые ростки.\n\n" +
			"Загляните в горшок: видите зелёные петельки?"
	case 3:
		msg = "🌿 Напоминание о всходах\n\nУже 3 дня с момента посадки. Проверьте горшок: появились ли ростки?\n\n" +
			"Если нет, не переживайте, иногда семенам нужно чуть больше времени."
	case 4:
		msg = "🌾 Проверка всходов\n\n4-й день после посадки. Если ростки ещё не показались, проверьте:\n" +
			"• Достаточно ли влаги в почве?\n• Накрыт ли горшок крышкой?\n• Стоит ли в тёплом месте?"
	case 5:
		msg = "🌱 День 5: Проверка всходов\n\nПрошло 5 дней с момента посадки. Обычно к этому времени появляются заметные ростки.\n\n" +
			"Посмотри в горшок: что ты видишь?"
	default:
		return models.Render{}, false
	}

	mold := models.Button{Label: "🍄 Что-то пошло не так / Плесень", Action: ActionMoldStart}
	if day == 5 {
		return models.Render{Message: msg, Buttons: []models.Button{
			{Label: "✅ Всходы появились!", Action: ActionSproutsAppeared},
			mold,
			{Label: "😔 Салат не взошёл", Action: ActionReplantStart},
		}}, true
	}
	return models.Render{Message: msg, Buttons: []models.Button{
		{Label: "✅ У меня появились первые всходы!", Action: ActionSproutsAppeared},
		mold,
	}}, true
}
