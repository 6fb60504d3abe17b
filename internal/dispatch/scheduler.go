// Package dispatch scans the store for due reminders and pushes them out
// over the messaging channel. Delivery is at-least-once: a row is only
// marked notified (or rescheduled) after the send succeeded, so a crash or
// send failure means the next tick retries it.
package dispatch

import (
	"fmt"
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/hamyarlab/yadavar/internal/bus"
	"github.com/hamyarlab/yadavar/internal/recur"
	"github.com/hamyarlab/yadavar/internal/store"
)

// Storage is the slice of the store the scheduler needs. *store.Store
// satisfies it.
type Storage interface {
	DueBatch(now time.Time, limit int) ([]store.Reminder, error)
	CompleteOneShot(id int64) (bool, error)
	Reschedule(id int64, next time.Time) (bool, error)
}

// Sender pushes one outbound message and reports whether it was accepted
// by the transport.
type Sender interface {
	Send(msg bus.OutboundMessage) error
}

type Scheduler struct {
	storage  Storage
	sender   Sender
	channel  string
	interval time.Duration
	batch    int
	loc      *time.Location
	now      func() time.Time

	// Maintenance runs every minute alongside the due scan; the gateway
	// points it at the dialogue sweeps.
	Maintenance func(now time.Time)

	mu   sync.Mutex
	cron *rcron.Cron
}

func NewScheduler(storage Storage, sender Sender, channel string, interval time.Duration, batch int, loc *time.Location) *Scheduler {
	return &Scheduler{
		storage:  storage,
		sender:   sender,
		channel:  channel,
		interval: interval,
		batch:    batch,
		loc:      loc,
		now:      time.Now,
	}
}

// SetClock replaces the time source, for tests.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("dispatch: already started")
	}

	c := rcron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.Tick); err != nil {
		return fmt.Errorf("register due scan: %w", err)
	}
	if _, err := c.AddFunc("@every 1m", s.maintain); err != nil {
		return fmt.Errorf("register maintenance: %w", err)
	}
	c.Start()
	s.cron = c
	log.Printf("[dispatch] started, scanning every %s with batch %d", s.interval, s.batch)
	return nil
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[dispatch] stop timeout waiting for running tick")
	}
	log.Printf("[dispatch] stopped")
}

// Tick runs one due scan. Each record is handled in isolation: a failure
// to deliver or commit one reminder never aborts the rest of the batch.
func (s *Scheduler) Tick() {
	now := s.now()

	due, err := s.storage.DueBatch(now, s.batch)
	if err != nil {
		log.Printf("[dispatch] due scan: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	delivered := 0
	for _, r := range due {
		if err := s.dispatchOne(r, now); err != nil {
			log.Printf("[dispatch] reminder %d: %v", r.ID, err)
			continue
		}
		delivered++
	}
	log.Printf("[dispatch] delivered %d/%d due reminders", delivered, len(due))
}

func (s *Scheduler) dispatchOne(r store.Reminder, now time.Time) error {
	msg := bus.OutboundMessage{
		Channel: s.channel,
		ChatID:  r.ChatID,
		Content: fmt.Sprintf("🔔 یادآوری: %s", r.Task),
	}
	if err := s.sender.Send(msg); err != nil {
		// row untouched; the next tick retries
		return fmt.Errorf("send: %w", err)
	}

	if !r.Recurrence.Recurring() {
		ok, err := s.storage.CompleteOneShot(r.ID)
		if err != nil {
			return fmt.Errorf("complete: %w", err)
		}
		if !ok {
			// deleted out from under us between scan and commit
			log.Printf("[dispatch] reminder %d vanished before completion", r.ID)
		}
		return nil
	}

	next := recur.NextFireAfter(r.DueAt, r.Recurrence, s.recordLocation(r))
	// after downtime, skip forward past the missed occurrences
	next = recur.RollToFuture(next, r.Recurrence, now, s.recordLocation(r))
	ok, err := s.storage.Reschedule(r.ID, next)
	if err != nil {
		return fmt.Errorf("reschedule: %w", err)
	}
	if !ok {
		log.Printf("[dispatch] reminder %d vanished before reschedule", r.ID)
	}
	return nil
}

func (s *Scheduler) recordLocation(r store.Reminder) *time.Location {
	if r.Timezone != "" {
		if loc, err := time.LoadLocation(r.Timezone); err == nil {
			return loc
		}
	}
	return s.loc
}

func (s *Scheduler) maintain() {
	if s.Maintenance != nil {
		s.Maintenance(s.now())
	}
}
