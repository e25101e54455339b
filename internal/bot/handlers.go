package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/sogretobot/internal/database"
	"github.com/example/sogretobot/internal/progress"
	"github.com/example/sogretobot/pkg/models"
)

const (
	helpText = "Команды Sogreto Bot 🌱\n\n" +
		"Основные:\n" +
		"/start - Начать работу с ботом\n" +
		"/start_practice - Начать практики предвкушения\n" +
		"/help - Показать эту справку\n\n" +
		"Управление практиками:\n" +
		"/status - Посмотреть свой прогресс\n" +
		"/pause - Приостановить напоминания\n" +
		"/resume - Возобновить напоминания\n" +
		"/reset - Начать практики заново\n\n" +
		"Настройки:\n" +
		"/settings - Часовой пояс и время напоминаний\n\n" +
		"Вопросы? Пиши /contact 💚"

	contactText = "Поддержка Sogreto Bot 💚\n\n" +
		"По всем вопросам пишите:\n" +
		"📧 Email: support@sogreto.com\n" +
		"💬 Telegram: @sogreto_support\n\n" +
		"Мы ответим в течение 24 часов."

	adminOnlyText = "Эта команда доступна только администраторам."
	textHint      = "Я понимаю кнопки и команды 🌱\n\nПосмотреть прогресс: /status\nВсе команды: /help"
)

// handleUpdate routes one update
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.CallbackQuery != nil:
		err = b.HandleCallback(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		err = b.HandleCommand(ctx, update.Message)
	case update.Message != nil && update.Message.Chat != nil:
		err = b.send(update.Message.Chat.ID, models.Render{Message: textHint})
	}
	if err != nil {
		b.logger.Error("failed to handle update", zap.Int("update_id", update.UpdateID), zap.Error(err))
	}
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.From == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}
	userID, chatID := message.From.ID, message.Chat.ID

	var (
		r   models.Render
		err error
	)
	switch message.Command() {
	case "start":
		r, err = b.handleStart(ctx, message.From)
	case "start_practice":
		r, err = b.practice.StartPractice(ctx, profile(message.From))
	case "status":
		r, err = b.practice.Status(ctx, userID)
	case "reset":
		r = b.practice.RequestReset()
	case "pause":
		r, err = b.practice.SetPaused(ctx, userID, true)
	case "resume":
		r, err = b.practice.SetPaused(ctx, userID, false)
	case "settings":
		r, err = b.practice.Settings(ctx, userID)
	case "help":
		r = models.Render{Message: helpText}
	case "contact":
		r = models.Render{Message: contactText}
	case "check", "admin_stats", "reload":
		if !b.isAdmin(userID) {
			r = models.Render{Message: adminOnlyText}
			break
		}
		r, err = b.handleAdminCommand(ctx, message)
	default:
		r = models.Render{Message: "Неизвестная команда. Список команд: /help"}
	}

	if err != nil {
		b.logger.Warn("command failed",
			zap.String("command", message.Command()),
			zap.Int64("user_id", userID),
			zap.Error(err))
	}
	if r.Text() == "" {
		return nil
	}
	if sendErr := b.send(chatID, r); sendErr != nil {
		return fmt.Errorf("failed to answer /%s: %w", message.Command(), sendErr)
	}
	return nil
}

func (b *Bot) handleStart(ctx context.Context, from *tgbotapi.User) (models.Render, error) {
	u, _, err := b.practice.Register(ctx, profile(from))
	if err != nil {
		return models.Render{Message: "😞 Произошла ошибка. Попробуйте ещё раз чуть позже."}, err
	}

	name := from.FirstName
	if name == "" {
		name = "друг"
	}
	r := models.Render{
		Message: fmt.Sprintf("Привет, %s! 🌱\n\n", name) +
			"Я твой проводник в мир практик предвкушения.\n\n" +
			"Вместе мы будем выращивать кресс-салат и культивировать эмоцию предвкушения. " +
			"Каждый день новая практика, новое открытие.\n\n" +
			"Справка: /help\nПоддержка: /contact\n\n" +
			"Готов(а) начать? 🌿",
	}
	action := progress.ActionStartPractice
	if u.StartedAt != nil {
		action = progress.ActionContinue
	}
	r.Buttons = []models.Button{{Label: "Да, тык 🌱", Action: action}}
	return r, nil
}

func (b *Bot) handleAdminCommand(ctx context.Context, message *tgbotapi.Message) (models.Render, error) {
	switch message.Command() {
	case "check":
		return b.handleCheck(ctx, message)
	case "admin_stats":
		if b.stats == nil {
			return models.Render{Message: "Статистика недоступна."}, nil
		}
		return b.handleAdminStats(ctx)
	default:
		if b.content == nil {
			return models.Render{Message: "Перезагрузка контента недоступна."}, nil
		}
		if err := b.content.Reload(); err != nil {
			return models.Render{Message: fmt.Sprintf("❌ Контент не перезагружен: %v", err)}, err
		}
		b.logger.Info("content reloaded by admin", zap.Int64("user_id", message.From.ID))
		return models.Render{Message: "✅ Контент перезагружен."}, nil
	}
}

// topActions is how many actions /admin_stats lists
const topActions = 10

func (b *Bot) handleAdminStats(ctx context.Context) (models.Render, error) {
	total, active, err := b.stats.Count(ctx)
	if err != nil {
		return models.Render{Message: "😞 Не удалось получить статистику."}, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Статистика\n\nВсего пользователей: %d\nАктивных: %d", total, active)
	if b.history == nil {
		return models.Render{Message: sb.String()}, nil
	}

	counts, err := b.history.CountByAction(ctx)
	if err != nil {
		b.logger.Warn("failed to count history", zap.Error(err))
		return models.Render{Message: sb.String()}, nil
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > topActions {
		names = names[:topActions]
	}
	if len(names) > 0 {
		sb.WriteString("\n\nЧастые действия:")
		for _, name := range names {
			fmt.Fprintf(&sb, "\n• %s: %d", name, counts[name])
		}
	}
	return models.Render{Message: sb.String()}, nil
}

// handleCheck runs the reminder pathways for the caller, or for the
// user ID given as the argument, ignoring the reminder window
func (b *Bot) handleCheck(ctx context.Context, message *tgbotapi.Message) (models.Render, error) {
	checker := b.reminderChecker()
	if checker == nil {
		return models.Render{Message: "Планировщик выключен."}, nil
	}
	target := message.From.ID
	if arg := strings.TrimSpace(message.CommandArguments()); arg != "" {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return models.Render{Message: "Использование: /check [user_id]"}, nil
		}
		target = id
	}

	d, err := checker.RunManualCheck(ctx, target)
	switch {
	case errors.Is(err, database.ErrUserNotFound):
		return models.Render{Message: fmt.Sprintf("Пользователь %d не найден.", target)}, nil
	case err != nil:
		return models.Render{Message: fmt.Sprintf("❌ Проверка не удалась: %v", err)}, err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🔎 Пользователь %d\nПуть: %s", target, d.Pathway)
	if d.Rule != "" {
		fmt.Fprintf(&sb, "\nПравило: %s", d.Rule)
	}
	if d.Sends() {
		sb.WriteString("\nНапоминание отправлено ✅")
	} else if d.Skip != "" {
		fmt.Fprintf(&sb, "\nПропуск: %s", d.Skip)
	}
	return models.Render{Message: sb.String()}, nil
}

// HandleCallback answers a button press
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback == nil || callback.Message == nil || callback.From == nil || callback.Message.Chat == nil {
		return fmt.Errorf("invalid callback data: required fields are missing")
	}
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	r, err := b.practice.Handle(ctx, userID, callback.Data)
	if err != nil {
		b.logger.Warn("action failed",
			zap.String("action", callback.Data),
			zap.Int64("user_id", userID),
			zap.Error(err))
	}

	// Always answer the callback query to remove the loading state
	answer := tgbotapi.NewCallback(callback.ID, "")
	if r.Alert {
		answer = tgbotapi.NewCallbackWithAlert(callback.ID, r.Text())
	}
	if _, aerr := b.client.Request(answer); aerr != nil {
		b.logger.Warn("failed to answer callback", zap.Error(aerr))
	}
	if r.Alert || r.Text() == "" {
		return nil
	}

	if err := b.edit(chatID, callback.Message.MessageID, r); err != nil {
		// The pressed message may be too old to edit
		b.logger.Debug("edit failed, sending a new message", zap.Error(err))
		return b.send(chatID, r)
	}
	return nil
}

func profile(from *tgbotapi.User) models.User {
	return models.User{
		ID:        from.ID,
		Username:  from.UserName,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	}
}
