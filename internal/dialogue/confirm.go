package dialogue

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hamyarlab/yadavar/internal/recur"
)

// Pending is a fully-resolved reminder waiting for the owner to tap
// accept or reject. Nothing is persisted until the token is consumed.
type Pending struct {
	Token      string
	OwnerID    int64
	ChatID     string
	Channel    string
	Task       string
	DueAt      time.Time
	Recurrence recur.Rule
	CreatedAt  time.Time
}

// ConfirmStore is the single-use token map guarding reminder creation.
// Consume has pop semantics: under one mutex the entry is looked up and
// deleted, so two racing accepts cannot both win. Entries are dropped
// lazily once past the TTL; a lost entry just means the user sees
// "already expired" and retries.
type ConfirmStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]Pending
}

func NewConfirmStore(ttl time.Duration) *ConfirmStore {
	return &ConfirmStore{
		ttl:     ttl,
		entries: make(map[string]Pending),
	}
}

// Stage stores the payload under a fresh unpredictable token and returns
// the token.
func (c *ConfirmStore) Stage(p Pending, now time.Time) string {
	token := ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
	p.Token = token
	p.CreatedAt = now

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[token] = p
	return token
}

// Consume pops the payload for token. A missing, expired, or
// already-consumed token reports ok=false; that is an expected outcome,
// not an error.
func (c *ConfirmStore) Consume(token string, now time.Time) (Pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.entries[token]
	if !ok {
		return Pending{}, false
	}
	delete(c.entries, token)
	if now.Sub(p.CreatedAt) > c.ttl {
		return Pending{}, false
	}
	return p, true
}

// Sweep evicts expired entries so abandoned confirmations don't pile up.
func (c *ConfirmStore) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for token, p := range c.entries {
		if now.Sub(p.CreatedAt) > c.ttl {
			delete(c.entries, token)
			n++
		}
	}
	return n
}
