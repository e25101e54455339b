package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/example/sogretobot/internal/scheduler"
	"github.com/example/sogretobot/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// renderKeyboard lays out one button per row
func renderKeyboard(r models.Render) (tgbotapi.InlineKeyboardMarkup, bool) {
	if len(r.Buttons) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	rows := make([][]MenuButton, 0, len(r.Buttons))
	for _, b := range r.Buttons {
		rows = append(rows, []MenuButton{{Text: b.Label, CallbackData: b.Action}})
	}
	return createKeyboard(rows), true
}

// Practice is the action dispatcher behind the chat
type Practice interface {
	Handle(ctx context.Context, userID int64, action string) (models.Render, error)
	Register(ctx context.Context, profile models.User) (models.User, bool, error)
	StartPractice(ctx context.Context, profile models.User) (models.Render, error)
	Status(ctx context.Context, userID int64) (models.Render, error)
	SetPaused(ctx context.Context, userID int64, paused bool) (models.Render, error)
	Settings(ctx context.Context, userID int64) (models.Render, error)
	RequestReset() models.Render
}

// ReminderChecker runs the reminder pathways for one user on demand
type ReminderChecker interface {
	RunManualCheck(ctx context.Context, userID int64) (scheduler.Decision, error)
}

// UserStats counts users for the admin report
type UserStats interface {
	Count(ctx context.Context) (total, active int, err error)
}

// HistoryStats counts recorded actions for the admin report
type HistoryStats interface {
	CountByAction(ctx context.Context) (map[string]int, error)
}

// ContentReloader re-reads the practices document
type ContentReloader interface {
	Reload() error
}

// sender is the part of the Telegram client used to talk to users
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Deps are the collaborators of the bot
type Deps struct {
	Practice Practice
	Checker  ReminderChecker
	Stats    UserStats
	History  HistoryStats
	Content  ContentReloader
	Logger   *zap.Logger
}

// Bot represents the Telegram bot application
type Bot struct {
	api          *tgbotapi.BotAPI
	client       sender
	practice     Practice
	stats        UserStats
	history      HistoryStats
	content      ContentReloader
	adminUserIDs map[int64]bool
	logger       *zap.Logger

	mu      sync.RWMutex
	checker ReminderChecker

	handlers sync.WaitGroup
}

// NewBot authorizes against Telegram and creates a new bot instance
func NewBot(cfg *Config, deps Deps) (*Bot, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}
	b := newBot(botAPI, cfg, deps)
	b.api = botAPI
	b.logger.Info("authorized on account", zap.String("username", botAPI.Self.UserName))
	return b, nil
}

func newBot(client sender, cfg *Config, deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	admins := make(map[int64]bool, len(cfg.AdminUserIDs))
	for id, ok := range cfg.AdminUserIDs {
		admins[id] = ok
	}
	return &Bot{
		client:       client,
		practice:     deps.Practice,
		checker:      deps.Checker,
		stats:        deps.Stats,
		history:      deps.History,
		content:      deps.Content,
		adminUserIDs: admins,
		logger:       logger.Named("bot"),
	}
}

// SetChecker sets the scheduler used by the /check admin command
func (b *Bot) SetChecker(c ReminderChecker) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checker = c
}

func (b *Bot) reminderChecker() ReminderChecker {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.checker
}

// Start polls Telegram for updates until ctx is done. Every update is
// handled in its own goroutine.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("bot is not connected to Telegram")
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)
	b.logger.Info("bot started")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.handlers.Wait()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				b.handlers.Wait()
				return nil
			}
			b.handlers.Add(1)
			go func() {
				defer b.handlers.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

// SendReminder implements the scheduler.Notifier interface
func (b *Bot) SendReminder(ctx context.Context, userID int64, r models.Render) error {
	return b.push(ctx, userID, r)
}

// Deliver implements the practice.Sink interface
func (b *Bot) Deliver(ctx context.Context, userID int64, r models.Render) error {
	return b.push(ctx, userID, r)
}

// push sends an unsolicited message. A user who blocked the bot is
// paused so the scheduler stops picking them up.
func (b *Bot) push(ctx context.Context, userID int64, r models.Render) error {
	// In private chats the chat ID equals the user ID
	err := b.send(userID, r)
	if err == nil {
		return nil
	}
	if isBlocked(err) {
		b.logger.Warn("user blocked the bot, pausing reminders", zap.Int64("user_id", userID))
		if _, perr := b.practice.SetPaused(ctx, userID, true); perr != nil {
			b.logger.Error("failed to pause blocked user", zap.Int64("user_id", userID), zap.Error(perr))
		}
	}
	return fmt.Errorf("failed to send message to user %d: %w", userID, err)
}

func (b *Bot) send(chatID int64, r models.Render) error {
	msg := tgbotapi.NewMessage(chatID, r.Text())
	if kb, ok := renderKeyboard(r); ok {
		msg.ReplyMarkup = kb
	}
	_, err := b.client.Send(msg)
	return err
}

// edit replaces the message the pressed button belongs to. Telegram
// refuses edits that change nothing; those count as success.
func (b *Bot) edit(chatID int64, messageID int, r models.Render) error {
	var c tgbotapi.Chattable
	if kb, ok := renderKeyboard(r); ok {
		c = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, r.Text(), kb)
	} else {
		c = tgbotapi.NewEditMessageText(chatID, messageID, r.Text())
	}
	_, err := b.client.Send(c)
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest && containsNotModified(apiErr.Message) {
		return nil
	}
	return err
}

func isBlocked(err error) bool {
	var apiErr *tgbotapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusForbidden
}

func containsNotModified(msg string) bool {
	return strings.Contains(msg, "message is not modified")
}

// isAdmin checks if a user is an admin
func (b *Bot) isAdmin(userID int64) bool {
	return b.adminUserIDs[userID]
}
