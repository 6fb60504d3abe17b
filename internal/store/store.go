// Package store is the durable side of the bot: users with their
// subscription tier and the reminder rows the dispatcher scans. SQLite via
// database/sql; all timestamps are stored as UTC RFC3339 text.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hamyarlab/yadavar/internal/recur"
)

// ErrNotFound covers both genuinely missing rows and rows owned by someone
// else; callers must not be able to tell the difference.
var ErrNotFound = errors.New("store: not found")

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

type User struct {
	ID         int64
	TelegramID int64
	ChatID     string
	FirstName  string
	Username   string
	Lang       string
	Tier       Tier
	TierExpiry *time.Time
	Timezone   string
}

type Reminder struct {
	ID         int64
	UserID     int64
	ChatID     string
	Task       string
	DueAt      time.Time
	Recurrence recur.Rule
	Active     bool
	Notified   bool
	Timezone   string // owner timezone, filled on due scans for rescheduling
}

// Quota is what the orchestrator checks before staging a confirmation.
type Quota struct {
	MaxActive int
	Premium   bool
}

type Store struct {
	db      *sql.DB
	freeMax int
}

func Open(dbPath string, freeMax int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db, freeMax: freeMax}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER NOT NULL UNIQUE,
			chat_id TEXT NOT NULL DEFAULT '',
			first_name TEXT NOT NULL DEFAULT '',
			username TEXT NOT NULL DEFAULT '',
			lang TEXT NOT NULL DEFAULT 'fa',
			tier TEXT NOT NULL DEFAULT 'free',
			tier_expiry TEXT,
			timezone TEXT NOT NULL DEFAULT 'Asia/Tehran',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL REFERENCES users(id),
			chat_id TEXT NOT NULL DEFAULT '',
			task TEXT NOT NULL,
			due_at TEXT NOT NULL,
			recurrence TEXT NOT NULL DEFAULT 'none',
			active INTEGER NOT NULL DEFAULT 1,
			notified INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_due ON reminders(active, notified, due_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_owner ON reminders(user_id, active)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// UpsertUser registers a Telegram user on first contact and refreshes the
// mutable profile bits on every later one.
func (s *Store) UpsertUser(telegramID int64, chatID, firstName, username, lang string) (*User, error) {
	if lang == "" {
		lang = "fa"
	}
	_, err := s.db.Exec(`
		INSERT INTO users (telegram_id, chat_id, first_name, username, lang)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			first_name = excluded.first_name,
			username = excluded.username,
			updated_at = datetime('now')
	`, telegramID, chatID, firstName, username, lang)
	if err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	return s.UserByTelegramID(telegramID)
}

func (s *Store) UserByTelegramID(telegramID int64) (*User, error) {
	row := s.db.QueryRow(`
		SELECT id, telegram_id, chat_id, first_name, username, lang, tier, tier_expiry, timezone
		FROM users WHERE telegram_id = ?
	`, telegramID)
	return scanUser(row)
}

func (s *Store) UserByID(id int64) (*User, error) {
	row := s.db.QueryRow(`
		SELECT id, telegram_id, chat_id, first_name, username, lang, tier, tier_expiry, timezone
		FROM users WHERE id = ?
	`, id)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	var expiry sql.NullString
	err := row.Scan(&u.ID, &u.TelegramID, &u.ChatID, &u.FirstName, &u.Username,
		&u.Lang, &u.Tier, &expiry, &u.Timezone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if expiry.Valid {
		if t, err := time.Parse(time.RFC3339, expiry.String); err == nil {
			u.TierExpiry = &t
		}
	}
	return &u, nil
}

// SetTier is called by the payment path after a verified checkout.
func (s *Store) SetTier(userID int64, tier Tier, expiry time.Time) error {
	res, err := s.db.Exec(`
		UPDATE users SET tier = ?, tier_expiry = ?, updated_at = datetime('now') WHERE id = ?
	`, string(tier), expiry.UTC().Format(time.RFC3339), userID)
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Quota returns the creation limit for a user. An expired premium tier
// reads as free; the row itself is left alone.
func (s *Store) Quota(userID int64, now time.Time) (Quota, error) {
	u, err := s.UserByID(userID)
	if err != nil {
		return Quota{}, err
	}
	premium := u.Tier == TierPremium && (u.TierExpiry == nil || u.TierExpiry.After(now))
	if premium {
		return Quota{MaxActive: 0, Premium: true}, nil
	}
	return Quota{MaxActive: s.freeMax, Premium: false}, nil
}

func (s *Store) CreateReminder(r *Reminder) error {
	res, err := s.db.Exec(`
		INSERT INTO reminders (user_id, chat_id, task, due_at, recurrence, active, notified)
		VALUES (?, ?, ?, ?, ?, 1, 0)
	`, r.UserID, r.ChatID, r.Task, r.DueAt.UTC().Format(time.RFC3339), string(r.Recurrence))
	if err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create reminder id: %w", err)
	}
	r.ID = id
	r.Active = true
	r.Notified = false
	return nil
}

func (s *Store) ActiveCount(userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM reminders WHERE user_id = ? AND active = 1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reminders: %w", err)
	}
	return n, nil
}

func (s *Store) ActiveReminders(userID int64) ([]Reminder, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, chat_id, task, due_at, recurrence, active, notified
		FROM reminders
		WHERE user_id = ? AND active = 1
		ORDER BY due_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

// Reminder fetches one reminder scoped to its owner. A row owned by another
// user is reported as ErrNotFound, never as a permission error.
func (s *Store) Reminder(id, userID int64) (*Reminder, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, chat_id, task, due_at, recurrence, active, notified
		FROM reminders WHERE id = ? AND user_id = ?
	`, id, userID)
	if err != nil {
		return nil, fmt.Errorf("get reminder: %w", err)
	}
	defer rows.Close()
	list, err := scanReminders(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// Deactivate soft-deletes an owner's reminder.
func (s *Store) Deactivate(id, userID int64) error {
	res, err := s.db.Exec(`
		UPDATE reminders SET active = 0, updated_at = datetime('now')
		WHERE id = ? AND user_id = ? AND active = 1
	`, id, userID)
	if err != nil {
		return fmt.Errorf("deactivate reminder: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// DueBatch returns active, unnotified reminders due at or before now in
// dueInstant order, joined with the owner's timezone so the caller can
// reschedule recurring rows on the right wall clock.
func (s *Store) DueBatch(now time.Time, limit int) ([]Reminder, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.user_id, r.chat_id, r.task, r.due_at, r.recurrence, r.active, r.notified, u.timezone
		FROM reminders r
		JOIN users u ON u.id = r.user_id
		WHERE r.active = 1 AND r.notified = 0 AND r.due_at <= ?
		ORDER BY r.due_at ASC
		LIMIT ?
	`, now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("due batch: %w", err)
	}
	defer rows.Close()

	var out []Reminder
	for rows.Next() {
		r, err := scanReminderRow(rows, true)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CompleteOneShot finishes a non-recurring reminder after delivery. The
// WHERE clause is a compare-and-swap against the state the dispatcher read,
// so a concurrent manual delete wins and the update reports false.
func (s *Store) CompleteOneShot(id int64) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE reminders SET active = 0, notified = 1, updated_at = datetime('now')
		WHERE id = ? AND active = 1 AND notified = 0
	`, id)
	if err != nil {
		return false, fmt.Errorf("complete reminder: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Reschedule moves a recurring reminder to its next occurrence after a
// successful delivery. Same compare-and-swap shape as CompleteOneShot.
func (s *Store) Reschedule(id int64, next time.Time) (bool, error) {
	res, err := s.db.Exec(`
		UPDATE reminders SET due_at = ?, notified = 0, updated_at = datetime('now')
		WHERE id = ? AND active = 1 AND notified = 0
	`, next.UTC().Format(time.RFC3339), id)
	if err != nil {
		return false, fmt.Errorf("reschedule reminder: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanReminders(rows *sql.Rows) ([]Reminder, error) {
	var out []Reminder
	for rows.Next() {
		r, err := scanReminderRow(rows, false)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanReminderRow(rows *sql.Rows, withTimezone bool) (Reminder, error) {
	var (
		r      Reminder
		due    string
		rule   string
		active int
		sent   int
	)
	dest := []any{&r.ID, &r.UserID, &r.ChatID, &r.Task, &due, &rule, &active, &sent}
	if withTimezone {
		dest = append(dest, &r.Timezone)
	}
	if err := rows.Scan(dest...); err != nil {
		return Reminder{}, fmt.Errorf("scan reminder: %w", err)
	}
	t, err := time.Parse(time.RFC3339, due)
	if err != nil {
		return Reminder{}, fmt.Errorf("parse due_at %q: %w", due, err)
	}
	r.DueAt = t.UTC()
	r.Recurrence = recur.Parse(rule)
	r.Active = active == 1
	r.Notified = sent == 1
	return r, nil
}
