package practice

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/sogretobot/internal/content"
	"github.com/example/sogretobot/internal/flow"
	"github.com/example/sogretobot/internal/progress"
	"github.com/example/sogretobot/internal/triggers"
	"github.com/example/sogretobot/pkg/models"
)

func status(u models.User, tree *content.Tree, now time.Time) models.Render {
	if u.StartedAt == nil {
		return models.Render{
			Message: "🌱 Вы ещё не начали практику.\n\nНажмите кнопку ниже, чтобы посадить первые семена.",
			Buttons: []models.Button{{Label: "🌱 Начать практику", Action: progress.ActionStartPractice}},
		}
	}
	if u.CompletedAt != nil {
		return models.Render{Message: "🎊 Все практики завершены!\n\nЧтобы пройти путь заново, используйте /reset."}
	}

	var b strings.Builder
	b.WriteString("📊 Ваш прогресс\n\n")

	name := ""
	if stage, ok := tree.Stage(u.CurrentStage); ok {
		name = stage.StageName
	}
	fmt.Fprintf(&b, "Этап %d из %d", u.CurrentStage, tree.TotalStages())
	if name != "" {
		fmt.Fprintf(&b, ": %s", name)
	}
	b.WriteString("\n")
	if step, ok := tree.Step(u.CurrentStage, u.CurrentStep); ok && step.Title != "" {
		fmt.Fprintf(&b, "Шаг: %s\n", step.Title)
	}
	fmt.Fprintf(&b, "День практики: %d\n", triggers.ElapsedDays(u, now)+1)

	if c, ok := flow.ForStage(u.CurrentStage); ok {
		if u.DailyPracticeDay > 0 {
			fmt.Fprintf(&b, "Ежедневная практика: день %d из %d\n", u.DailyPracticeDay, c.Length(tree))
		} else {
			b.WriteString("Ежедневная практика начнётся с ближайшим напоминанием\n")
		}
	}
	if u.AwaitingSprouts {
		b.WriteString("Ждём первые всходы 🌱\n")
	}

	fmt.Fprintf(&b, "\n⏰ Напоминания: %s (%s)", u.PreferredTime, u.Timezone)
	if u.IsPaused {
		b.WriteString("\n⏸ Напоминания на паузе. Включить: /resume")
	}

	return models.Render{
		Message: b.String(),
		Buttons: []models.Button{{Label: "▶️ Продолжить практику", Action: progress.ActionContinue}},
	}
}
