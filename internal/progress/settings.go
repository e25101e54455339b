package progress

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/sogretobot/pkg/models"
)

// Prefixes of the reminder settings tokens
const (
	TimezonePrefix = "stage1_tz_"
	TimePrefix     = "stage1_time_"
)

// TimezoneOption is one entry of the timezone picker
type TimezoneOption struct {
	Label string
	Zone  string
}

// TimezoneOptions offered after planting
var TimezoneOptions = []TimezoneOption{
	{"🇷🇺 Москва (UTC+3)", "Europe/Moscow"},
	{"🇷🇺 Самара (UTC+4)", "Europe/Samara"},
	{"🇷🇺 Екатеринбург (UTC+5)", "Asia/Yekaterinburg"},
	{"🇷🇺 Новосибирск (UTC+7)", "Asia/Novosibirsk"},
	{"🇷🇺 Владивосток (UTC+10)", "Asia/Vladivostok"},
}

// TimeOptions offered after the timezone is picked
var TimeOptions = []string{"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "18:00", "19:00", "20:00", "21:00"}

// TimezonePrompt asks for the reminder timezone
func TimezonePrompt() models.Render {
	buttons := make([]models.Button, 0, len(TimezoneOptions))
	for _, o := range TimezoneOptions {
		buttons = append(buttons, models.Button{Label: o.Label, Action: TimezonePrefix + o.Zone})
	}
	return models.Render{
		Message: "🌍 Настройка часового пояса\n\nПрежде чем продолжить, давай настроим напоминания!\n\nВыбери свой часовой пояс:",
		Buttons: buttons,
	}
}

// TimePrompt asks for the reminder hour
func TimePrompt(zone string) models.Render {
	buttons := make([]models.Button, 0, len(TimeOptions))
	for _, t := range TimeOptions {
		buttons = append(buttons, models.Button{Label: t, Action: TimePrefix + t})
	}
	return models.Render{
		Message: fmt.Sprintf("⏰ Настройка времени напоминаний\n\nЧасовой пояс: %s ✓\n\nТеперь выбери время для напоминаний:", zone),
		Buttons: buttons,
	}
}

// SetTimezone stores an IANA zone name. Unknown zones are rejected.
func SetTimezone(u models.User, zone string) Result {
	zone = strings.TrimSpace(zone)
	if zone == "" {
		return rejected(u, "Укажите часовой пояс, например Europe/Moscow.")
	}
	if _, err := time.LoadLocation(zone); err != nil {
		return rejected(u, fmt.Sprintf("Неизвестный часовой пояс: %s", zone))
	}
	u.Timezone = zone
	return Result{User: u, Render: TimePrompt(zone), Outcome: OutcomeMoved, Changed: true}
}

// SetPreferredTime stores the reminder time. During the setup that
// follows planting, the current day counts as already reminded so the
// first sprout reminder lands on a later day. Later changes leave the
// reminder bookkeeping alone.
func SetPreferredTime(u models.User, clock string, now time.Time) Result {
	h, m, ok := models.ParseClock(clock)
	if !ok {
		return rejected(u, "Время нужно указать в формате ЧЧ:ММ, например 09:00.")
	}
	u.PreferredTime = fmt.Sprintf("%02d:%02d", h, m)

	if u.CurrentStage != 1 || !u.AwaitingSprouts {
		return Result{
			User:    u,
			Render:  models.Render{Message: fmt.Sprintf("⏰ Напоминания настроены: %s (%s)", u.PreferredTime, u.Timezone)},
			Outcome: OutcomeMoved,
			Changed: true,
		}
	}
	at := now.UTC()
	u.LastReminderSent = &at
	return Result{
		User: u,
		Render: models.Render{
			Message: fmt.Sprintf("🎉 Этап 1 завершён!\n\nОтличная работа! Семена посажены.\n\n⏰ Напоминания настроены: %s (%s)\n\n"+
				"Обычно первые всходы появляются через 2-4 дня.\n\n💡 Что делать:\n• Проверяй горшок каждый день\n• Следи за влажностью почвы\n• Держи горшок под крышкой\n\n"+
				"Как только увидишь первые зелёные петельки, нажми кнопку! 🌱\n\nЯ буду присылать напоминания проверить всходы.",
				u.PreferredTime, u.Timezone),
			Buttons: []models.Button{{Label: "🌱 Появились первые всходы!", Action: ActionSproutsAppeared}},
		},
		Outcome: OutcomeMoved,
		Changed: true,
	}
}
