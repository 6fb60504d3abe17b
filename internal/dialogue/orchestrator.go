// Package dialogue runs the slot-filling conversation that turns free-form
// user messages into committed reminders. One orchestrator serves every
// owner; per-owner state lives in the session store and turns for the same
// owner are serialized with a keyed lock.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hamyarlab/yadavar/internal/bus"
	"github.com/hamyarlab/yadavar/internal/nlu"
	"github.com/hamyarlab/yadavar/internal/recur"
	"github.com/hamyarlab/yadavar/internal/store"
	"github.com/hamyarlab/yadavar/internal/when"
)

// Turn is one inbound user event, normalized by the gateway. Voice turns
// arrive with Content already transcribed.
type Turn struct {
	Channel    string
	ChatID     string
	TelegramID int64
	Kind       bus.TurnKind
	Content    string
	FirstName  string
	Username   string
	Lang       string
}

// Reply is what the gateway sends back on the turn's channel.
type Reply struct {
	Text    string
	Buttons [][]bus.Button
}

// Persistence is the slice of the store the orchestrator needs. *store.Store
// satisfies it.
type Persistence interface {
	UpsertUser(telegramID int64, chatID, firstName, username, lang string) (*store.User, error)
	Quota(userID int64, now time.Time) (store.Quota, error)
	ActiveCount(userID int64) (int, error)
	CreateReminder(r *store.Reminder) error
	ActiveReminders(userID int64) ([]store.Reminder, error)
	Reminder(id, userID int64) (*store.Reminder, error)
	Deactivate(id, userID int64) error
	SetTier(userID int64, tier store.Tier, expiry time.Time) error
}

// Payments creates checkout links and verifies completed payments. The
// gateway wires a Zibal-style client; a nil Payments disables /buy.
type Payments interface {
	CreateCheckout(ctx context.Context, ownerID, amountIRR int64, description string) (url string, trackID int64, err error)
	Verify(ctx context.Context, trackID int64) (paid bool, err error)
}

type Orchestrator struct {
	store     Persistence
	extractor nlu.Extractor
	sessions  *SessionStore
	confirms  *ConfirmStore
	payments  Payments
	loc       *time.Location
	priceIRR  int64
	now       func() time.Time

	mu         sync.Mutex
	ownerLocks map[int64]*sync.Mutex
	pendingPay map[int64]int64 // owner id -> open checkout track id
}

func NewOrchestrator(p Persistence, ex nlu.Extractor, sessions *SessionStore, confirms *ConfirmStore, pay Payments, loc *time.Location, priceIRR int64) *Orchestrator {
	return &Orchestrator{
		store:      p,
		extractor:  ex,
		sessions:   sessions,
		confirms:   confirms,
		payments:   pay,
		loc:        loc,
		priceIRR:   priceIRR,
		now:        time.Now,
		ownerLocks: make(map[int64]*sync.Mutex),
		pendingPay: make(map[int64]int64),
	}
}

// SetClock replaces the time source, for tests.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

func (o *Orchestrator) ownerLock(ownerID int64) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.ownerLocks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		o.ownerLocks[ownerID] = l
	}
	return l
}

// Sweep drops stale sessions and expired confirmations; the dispatcher's
// maintenance job calls it periodically.
func (o *Orchestrator) Sweep(now time.Time) {
	if n := o.sessions.Sweep(now); n > 0 {
		log.Printf("[dialogue] swept %d stale sessions", n)
	}
	if n := o.confirms.Sweep(now); n > 0 {
		log.Printf("[dialogue] swept %d expired confirmations", n)
	}
}

// HandleTurn runs one user turn to completion and returns the reply.
// Turns for the same owner are serialized; different owners proceed in
// parallel.
func (o *Orchestrator) HandleTurn(ctx context.Context, turn Turn) Reply {
	now := o.now()

	user, err := o.store.UpsertUser(turn.TelegramID, turn.ChatID, turn.FirstName, turn.Username, turn.Lang)
	if err != nil {
		log.Printf("[dialogue] upsert user %d: %v", turn.TelegramID, err)
		return Reply{Text: msgGeneralError}
	}

	lock := o.ownerLock(user.ID)
	lock.Lock()
	defer lock.Unlock()

	switch turn.Kind {
	case bus.TurnButton:
		return o.handleButton(ctx, user, turn, now)
	case bus.TurnCommand:
		return o.handleCommand(ctx, user, turn, now)
	case bus.TurnVoice:
		if strings.TrimSpace(turn.Content) == "" {
			return Reply{Text: msgVoiceUnrecognized}
		}
		return o.handleText(ctx, user, turn, now)
	default:
		return o.handleText(ctx, user, turn, now)
	}
}

func (o *Orchestrator) handleCommand(ctx context.Context, user *store.User, turn Turn, now time.Time) Reply {
	fields := strings.Fields(turn.Content)
	if len(fields) == 0 {
		return Reply{Text: msgHelp}
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "start":
		o.sessions.Reset(user.ID)
		return Reply{Text: msgWelcome}
	case "help":
		return Reply{Text: msgHelp}
	case "list":
		return o.listReminders(user, now, false)
	case "delete":
		return o.listReminders(user, now, true)
	case "cancel":
		o.sessions.Reset(user.ID)
		return Reply{Text: msgCancelled}
	case "buy", "pay":
		return o.startCheckout(ctx, user, now)
	case "verify":
		var ref int64
		if len(fields) > 1 {
			ref, _ = strconv.ParseInt(fields[1], 10, 64)
		}
		return o.verifyPayment(ctx, user, ref, now)
	}
	return Reply{Text: msgHelp}
}

func (o *Orchestrator) handleButton(ctx context.Context, user *store.User, turn Turn, now time.Time) Reply {
	action, arg, _ := strings.Cut(turn.Content, ":")

	switch action {
	case "accept":
		return o.acceptPending(user, arg, now)
	case "reject":
		o.confirms.Consume(arg, now)
		o.sessions.Reset(user.ID)
		return Reply{Text: msgCancelled}
	case "delete":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return Reply{Text: msgReminderNotFound}
		}
		r, err := o.store.Reminder(id, user.ID)
		if err != nil {
			return Reply{Text: msgReminderNotFound}
		}
		return Reply{
			Text: fmt.Sprintf("یادآور «%s» حذف شود؟", r.Task),
			Buttons: [][]bus.Button{{
				{Label: btnDelete, Action: fmt.Sprintf("confirmDelete:%d", r.ID)},
				{Label: btnReject, Action: "cancelDelete"},
			}},
		}
	case "confirmDelete":
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return Reply{Text: msgReminderNotFound}
		}
		return o.deleteReminder(user, id)
	case "cancelDelete":
		return Reply{Text: msgDeleteCancelled}
	case "verify":
		ref, _ := strconv.ParseInt(arg, 10, 64)
		return o.verifyPayment(ctx, user, ref, now)
	}
	log.Printf("[dialogue] unknown button action %q from user %d", turn.Content, user.ID)
	return Reply{Text: msgGeneralError}
}

// cancelWords short-circuit any live flow without an extractor round trip.
var cancelWords = map[string]bool{
	"لغو": true, "کنسل": true, "بیخیال": true, "بی خیال": true,
	"cancel": true, "nevermind": true, "never mind": true,
}

func (o *Orchestrator) handleText(ctx context.Context, user *store.User, turn Turn, now time.Time) Reply {
	text := strings.TrimSpace(turn.Content)
	if cancelWords[strings.ToLower(text)] {
		o.sessions.Reset(user.ID)
		return Reply{Text: msgCancelled}
	}

	sess := o.sessions.Get(user.ID, now)

	tag := nlu.TagIdle
	if sess != nil {
		tag = contextTag(sess.State)
	}

	slots, err := o.extractor.Extract(ctx, text, tag)
	if err != nil {
		log.Printf("[dialogue] extract for user %d: %v", user.ID, err)
		return Reply{Text: msgNLUError}
	}
	if slots == nil {
		return Reply{Text: msgExtractFailed}
	}

	if slots.Intent == nlu.IntentCancel {
		o.sessions.Reset(user.ID)
		return Reply{Text: msgCancelled}
	}

	if sess != nil {
		// A clearly fresh, complete request supersedes the pending
		// clarification; anything else is merged into the open slot set.
		if sess.State != StateAwaitingConfirmation && !freshRequest(slots) {
			o.mergeAnswer(sess, slots, text)
			return o.advance(user, sess, turn, now)
		}
		o.sessions.Reset(user.ID)
		sess = nil
	}

	switch slots.Intent {
	case nlu.IntentCreate:
		sess = &Session{OwnerID: user.ID, Slots: Slots{AmbiguousHour: -1}}
		fillFromSlots(&sess.Slots, slots)
		return o.advance(user, sess, turn, now)
	case nlu.IntentList:
		return o.listReminders(user, now, false)
	case nlu.IntentDelete:
		if slots.TargetID > 0 {
			return o.deleteReminder(user, slots.TargetID)
		}
		return o.listReminders(user, now, true)
	case nlu.IntentHelp:
		return Reply{Text: msgHelp}
	case nlu.IntentBuy:
		return o.startCheckout(ctx, user, now)
	case nlu.IntentConfirm:
		// A bare yes with nothing staged has nothing to act on.
		return Reply{Text: msgConfirmExpired}
	}
	return Reply{Text: msgExtractFailed}
}

// freshRequest reports whether an extraction mid-clarification looks like a
// brand-new complete reminder rather than an answer to the pending slot.
// Heuristic: it must declare the create intent, name a task, and carry at
// least one date/time expression.
func freshRequest(s *nlu.Slots) bool {
	return s.Intent == nlu.IntentCreate && s.Task != "" && (s.DateExpr != "" || s.TimeExpr != "")
}

func contextTag(st State) string {
	switch st {
	case StateAwaitingTask:
		return nlu.TagAwaitingTask
	case StateAwaitingDate:
		return nlu.TagAwaitingDate
	case StateAwaitingTime:
		return nlu.TagAwaitingTime
	case StateAwaitingMeridiem:
		return nlu.TagAwaitingMeridiem
	case StateAwaitingDateTime:
		return nlu.TagAwaitingDateTime
	}
	return nlu.TagIdle
}

// fillFromSlots copies whatever the extractor produced into the session,
// never overwriting a collected value with an empty one.
func fillFromSlots(dst *Slots, src *nlu.Slots) {
	if src.Task != "" {
		dst.Task = src.Task
	}
	if src.DateExpr != "" {
		dst.DateExpr = src.DateExpr
	}
	if src.TimeExpr != "" {
		dst.TimeExpr = src.TimeExpr
		if src.MeridiemHint != "" && !strings.Contains(dst.TimeExpr, src.MeridiemHint) {
			dst.TimeExpr += " " + src.MeridiemHint
		}
	}
	if r := recur.Parse(src.RecurrenceExpr); r.Recurring() {
		dst.Recurrence = r
	}
}

// mergeAnswer interprets an extraction as the answer to the slot the
// session is currently waiting on.
func (o *Orchestrator) mergeAnswer(sess *Session, slots *nlu.Slots, raw string) {
	switch sess.State {
	case StateAwaitingTask:
		if slots.Task == "" {
			// the whole message is the task
			sess.Slots.Task = raw
		}
	case StateAwaitingMeridiem:
		if pm, ok := when.Meridiem(raw); ok && sess.Slots.AmbiguousHour > 0 {
			sess.Slots.TimeExpr = fmt.Sprintf("%02d:00", when.ClockHour(sess.Slots.AmbiguousHour, pm))
			sess.Slots.AmbiguousHour = -1
		} else if slots.MeridiemHint != "" && sess.Slots.AmbiguousHour > 0 {
			if pm, ok := when.Meridiem(slots.MeridiemHint); ok {
				sess.Slots.TimeExpr = fmt.Sprintf("%02d:00", when.ClockHour(sess.Slots.AmbiguousHour, pm))
				sess.Slots.AmbiguousHour = -1
			}
		} else if slots.TimeExpr != "" {
			// a full replacement time answers the question too
			sess.Slots.AmbiguousHour = -1
		}
	}
	fillFromSlots(&sess.Slots, slots)
}

// advance re-evaluates the slot set and either asks for the next missing
// piece or stages the confirmation.
func (o *Orchestrator) advance(user *store.User, sess *Session, turn Turn, now time.Time) Reply {
	loc := o.userLocation(user)

	if sess.Slots.Task == "" {
		sess.State = StateAwaitingTask
		o.sessions.Put(sess, now)
		return Reply{Text: msgRequestTask}
	}
	if sess.Slots.DateExpr == "" && sess.Slots.TimeExpr == "" {
		sess.State = StateAwaitingDateTime
		o.sessions.Put(sess, now)
		return Reply{Text: msgRequestFull}
	}

	if sess.State == StateAwaitingMeridiem && sess.Slots.AmbiguousHour > 0 {
		// Still no usable meridiem answer.
		o.sessions.Put(sess, now)
		return Reply{Text: msgInvalidAmPm}
	}

	// Recurring rules don't need an explicit date: anchor to today and
	// let RollToFuture find the first fire.
	dateExpr := sess.Slots.DateExpr
	if dateExpr == "" && sess.Slots.Recurrence.Recurring() {
		dateExpr = "امروز"
	}

	res := when.Resolve(dateExpr, sess.Slots.TimeExpr, now, loc)
	switch res.Kind {
	case when.Complete:
		return o.stage(user, sess, res.At, turn, now, loc)
	case when.AmbiguousMeridiem:
		sess.State = StateAwaitingMeridiem
		sess.Slots.AmbiguousHour = res.Hour
		o.sessions.Put(sess, now)
		return Reply{Text: askMeridiem(res.Hour)}
	case when.PartialTime:
		sess.State = StateAwaitingTime
		o.sessions.Put(sess, now)
		return Reply{Text: msgRequestTime}
	case when.PartialDate:
		sess.State = StateAwaitingDate
		o.sessions.Put(sess, now)
		return Reply{Text: msgRequestDate}
	}

	// Resolver failure: the collected expressions were unusable, so drop
	// them and re-ask with a corrective prompt.
	sess.Slots.DateExpr, sess.Slots.TimeExpr = "", ""
	sess.Slots.AmbiguousHour = -1
	sess.State = StateAwaitingDateTime
	o.sessions.Put(sess, now)
	return Reply{Text: msgInvalidDateTime}
}

func (o *Orchestrator) stage(user *store.User, sess *Session, due time.Time, turn Turn, now time.Time, loc *time.Location) Reply {
	rule := sess.Slots.Recurrence
	if rule.Recurring() {
		due = recur.RollToFuture(due, rule, now, loc)
	} else if !due.After(now) {
		date, clock := formatJalali(due, loc)
		sess.Slots.DateExpr, sess.Slots.TimeExpr = "", ""
		sess.State = StateAwaitingDateTime
		o.sessions.Put(sess, now)
		return Reply{Text: fmt.Sprintf("%s (%s، ساعت %s) %s", msgDateTimeInPast, date, clock, msgRequestFull)}
	}

	quota, err := o.store.Quota(user.ID, now)
	if err != nil {
		log.Printf("[dialogue] quota for user %d: %v", user.ID, err)
		o.sessions.Reset(user.ID)
		return Reply{Text: msgGeneralError}
	}
	count, err := o.store.ActiveCount(user.ID)
	if err != nil {
		log.Printf("[dialogue] active count for user %d: %v", user.ID, err)
		o.sessions.Reset(user.ID)
		return Reply{Text: msgGeneralError}
	}
	if !quota.Premium && count >= quota.MaxActive {
		o.sessions.Reset(user.ID)
		return Reply{Text: fmt.Sprintf(msgLimitReached, quota.MaxActive)}
	}

	token := o.confirms.Stage(Pending{
		OwnerID:    user.ID,
		ChatID:     turn.ChatID,
		Channel:    turn.Channel,
		Task:       sess.Slots.Task,
		DueAt:      due,
		Recurrence: rule,
	}, now)

	sess.State = StateAwaitingConfirmation
	sess.Slots.ResolvedAt = due
	o.sessions.Put(sess, now)

	return Reply{
		Text: confirmPrompt(sess.Slots.Task, due, rule, loc),
		Buttons: [][]bus.Button{{
			{Label: btnAccept, Action: "accept:" + token},
			{Label: btnReject, Action: "reject:" + token},
		}},
	}
}

func (o *Orchestrator) acceptPending(user *store.User, token string, now time.Time) Reply {
	p, ok := o.confirms.Consume(token, now)
	if !ok {
		o.sessions.Reset(user.ID)
		return Reply{Text: msgConfirmExpired}
	}

	r := &store.Reminder{
		UserID:     p.OwnerID,
		ChatID:     p.ChatID,
		Task:       p.Task,
		DueAt:      p.DueAt,
		Recurrence: p.Recurrence,
		Active:     true,
	}
	if err := o.store.CreateReminder(r); err != nil {
		log.Printf("[dialogue] create reminder for user %d: %v", user.ID, err)
		o.sessions.Reset(user.ID)
		return Reply{Text: msgGeneralError}
	}

	o.sessions.Reset(user.ID)
	return Reply{Text: committedMessage(p.Task, p.DueAt, p.Recurrence, o.userLocation(user))}
}

func (o *Orchestrator) listReminders(user *store.User, now time.Time, withDelete bool) Reply {
	reminders, err := o.store.ActiveReminders(user.ID)
	if err != nil {
		log.Printf("[dialogue] list reminders for user %d: %v", user.ID, err)
		return Reply{Text: msgGeneralError}
	}
	if len(reminders) == 0 {
		return Reply{Text: msgNoReminders}
	}

	loc := o.userLocation(user)
	lines := []string{msgListHeader}
	if withDelete {
		lines = []string{msgSelectForDelete}
	}
	var buttons [][]bus.Button
	for i, r := range reminders {
		lines = append(lines, listEntry(i+1, r.Task, r.DueAt, r.Recurrence, loc))
		if withDelete {
			buttons = append(buttons, []bus.Button{{
				Label:  fmt.Sprintf("%s %s", btnDelete, truncate(r.Task, 24)),
				Action: fmt.Sprintf("delete:%d", r.ID),
			}})
		}
	}
	return Reply{Text: strings.Join(lines, "\n"), Buttons: buttons}
}

func (o *Orchestrator) deleteReminder(user *store.User, id int64) Reply {
	r, err := o.store.Reminder(id, user.ID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[dialogue] load reminder %d for user %d: %v", id, user.ID, err)
		}
		return Reply{Text: msgReminderNotFound}
	}
	if err := o.store.Deactivate(id, user.ID); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("[dialogue] delete reminder %d for user %d: %v", id, user.ID, err)
			return Reply{Text: msgGeneralError}
		}
		return Reply{Text: msgReminderNotFound}
	}
	return Reply{Text: deletedMessage(r.Task)}
}

func (o *Orchestrator) startCheckout(ctx context.Context, user *store.User, now time.Time) Reply {
	if o.payments == nil {
		return Reply{Text: msgPaymentError}
	}

	quota, err := o.store.Quota(user.ID, now)
	if err == nil && quota.Premium && user.TierExpiry != nil {
		date, _ := formatJalali(*user.TierExpiry, o.userLocation(user))
		return Reply{Text: fmt.Sprintf(msgAlreadyPremium, date)}
	}

	url, trackID, err := o.payments.CreateCheckout(ctx, user.ID, o.priceIRR, "اشتراک ۳۰ روزه یادآور")
	if err != nil {
		log.Printf("[dialogue] checkout for user %d: %v", user.ID, err)
		return Reply{Text: msgPaymentError}
	}

	o.mu.Lock()
	o.pendingPay[user.ID] = trackID
	o.mu.Unlock()

	toman := toPersianDigits(strconv.FormatInt(o.priceIRR/10, 10))
	return Reply{Text: fmt.Sprintf(msgPaymentPrompt, toman, url) + "\n" + msgPaymentVerifyHow}
}

func (o *Orchestrator) verifyPayment(ctx context.Context, user *store.User, ref int64, now time.Time) Reply {
	if o.payments == nil {
		return Reply{Text: msgPaymentError}
	}
	if ref == 0 {
		o.mu.Lock()
		ref = o.pendingPay[user.ID]
		o.mu.Unlock()
	}
	if ref == 0 {
		return Reply{Text: msgPaymentFailed}
	}

	paid, err := o.payments.Verify(ctx, ref)
	if err != nil {
		log.Printf("[dialogue] verify payment %d for user %d: %v", ref, user.ID, err)
		return Reply{Text: msgPaymentError}
	}
	if !paid {
		return Reply{Text: msgPaymentFailed}
	}

	expiry := now.AddDate(0, 0, 30)
	if err := o.store.SetTier(user.ID, store.TierPremium, expiry); err != nil {
		log.Printf("[dialogue] set tier for user %d: %v", user.ID, err)
		return Reply{Text: msgGeneralError}
	}

	o.mu.Lock()
	delete(o.pendingPay, user.ID)
	o.mu.Unlock()

	date, _ := formatJalali(expiry, o.userLocation(user))
	return Reply{Text: fmt.Sprintf(msgPaymentSuccess, date)}
}

func (o *Orchestrator) userLocation(user *store.User) *time.Location {
	if user.Timezone != "" {
		if loc, err := time.LoadLocation(user.Timezone); err == nil {
			return loc
		}
	}
	return o.loc
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
