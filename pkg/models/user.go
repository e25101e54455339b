package models

import (
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// Defaults applied to users who never picked their own settings
const (
	DefaultTimezone      = "Europe/Moscow"
	DefaultPreferredTime = "09:00"

	// DateLayout is the layout of the local calendar dates stored on the record
	DateLayout = "2006-01-02"
)

// User represents a Telegram user walking through the practices.
// The record is keyed by the Telegram user ID.
type User struct {
	ID        int64  `json:"id" db:"telegram_id"` // Telegram User ID
	Username  string `json:"username" db:"username"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	// Position in the content tree
	CurrentStage int `json:"current_stage" db:"current_stage"`
	CurrentStep  int `json:"current_step" db:"current_step"`
	CurrentDay   int `json:"current_day" db:"current_day"` // advisory, display only

	IsPaused        bool `json:"is_paused" db:"is_paused"`
	AwaitingSprouts bool `json:"awaiting_sprouts" db:"awaiting_sprouts"`

	// Daily cycle: day 0 waits for the first reminder, 1..D is the active day
	DailyPracticeDay     int    `json:"daily_practice_day" db:"daily_practice_day"`
	DailyPracticeSubstep string `json:"daily_practice_substep" db:"daily_practice_substep"`
	LastPracticeDate     string `json:"last_practice_date" db:"last_practice_date"` // YYYY-MM-DD, local

	ReminderPostponed bool       `json:"reminder_postponed" db:"reminder_postponed"`
	PostponedUntil    *time.Time `json:"postponed_until" db:"postponed_until"`

	// One-shot milestone dates, YYYY-MM-DD in the user's timezone
	Stage4ReminderDate string `json:"stage4_reminder_date" db:"stage4_reminder_date"`
	Stage6ReminderDate string `json:"stage6_reminder_date" db:"stage6_reminder_date"`

	StartedAt        *time.Time `json:"started_at" db:"started_at"`
	LastReminderSent *time.Time `json:"last_reminder_sent" db:"last_reminder_sent"`
	CompletedAt      *time.Time `json:"completed_at" db:"completed_at"`

	Timezone      string `json:"timezone" db:"timezone"`
	PreferredTime string `json:"preferred_time" db:"preferred_time"` // HH:MM

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewUser returns a fresh record positioned at the first step
func NewUser(id int64) User {
	return User{
		ID:            id,
		CurrentStage:  1,
		CurrentStep:   1,
		CurrentDay:    1,
		Timezone:      DefaultTimezone,
		PreferredTime: DefaultPreferredTime,
	}
}

// Location returns the user's timezone. Unknown zones fall back to the
// default zone and then to UTC+3.
func (u User) Location() *time.Location {
	name := u.Timezone
	if name == "" {
		name = DefaultTimezone
	}
	if loc, err := time.LoadLocation(name); err == nil {
		return loc
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc
	}
	return time.FixedZone("MSK", 3*60*60)
}

// LocalDate formats t as a calendar date in the user's timezone
func (u User) LocalDate(t time.Time) string {
	return t.In(u.Location()).Format(DateLayout)
}

// ReminderClock returns the preferred reminder hour and minute
func (u User) ReminderClock() (int, int) {
	if h, m, ok := ParseClock(u.PreferredTime); ok {
		return h, m
	}
	h, m, _ := ParseClock(DefaultPreferredTime)
	return h, m
}

// ParseClock parses an HH:MM string
func ParseClock(s string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}

// RemindedOn reports whether the last reminder fell on the same local
// calendar day as now. Both instants are converted with the user's
// current timezone.
func (u User) RemindedOn(now time.Time) bool {
	if u.LastReminderSent == nil {
		return false
	}
	return u.LocalDate(*u.LastReminderSent) == u.LocalDate(now)
}

// ClearDailyCycle drops all daily-cycle bookkeeping
func (u *User) ClearDailyCycle() {
	u.DailyPracticeDay = 0
	u.DailyPracticeSubstep = ""
	u.LastPracticeDate = ""
	u.ClearPostponement()
}

// ClearPostponement removes an active "remind me later" request
func (u *User) ClearPostponement() {
	u.ReminderPostponed = false
	u.PostponedUntil = nil
}

// Postponed reports whether a postponement is still active at now
func (u User) Postponed(now time.Time) bool {
	return u.ReminderPostponed && u.PostponedUntil != nil && now.Before(*u.PostponedUntil)
}

// Reset returns the user to stage 1 / step 1 / day 1 and clears every
// progress field. Identity and reminder settings are kept.
func (u *User) Reset() {
	u.CurrentStage = 1
	u.CurrentStep = 1
	u.CurrentDay = 1
	u.IsPaused = false
	u.AwaitingSprouts = false
	u.ClearDailyCycle()
	u.Stage4ReminderDate = ""
	u.Stage6ReminderDate = ""
	u.StartedAt = nil
	u.LastReminderSent = nil
	u.CompletedAt = nil
}

// Normalize enforces the record invariants: sprouts are only awaited in
// stage 1 and a sub-step only exists inside an active day.
func (u *User) Normalize() {
	if u.CurrentStage != 1 {
		u.AwaitingSprouts = false
	}
	if u.DailyPracticeDay <= 0 {
		u.DailyPracticeDay = 0
		u.DailyPracticeSubstep = ""
	}
	if !u.ReminderPostponed {
		u.PostponedUntil = nil
	}
}

// Active reports whether the scheduler should consider the user at all
func (u User) Active() bool {
	return !u.IsPaused && u.StartedAt != nil && u.CompletedAt == nil
}
