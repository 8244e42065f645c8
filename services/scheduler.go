// services/scheduler.go
package services

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Reminders arms one-shot callbacks ahead of an event's start.
type Reminders interface {
	Arm(eventID string, start time.Time, lead time.Duration, fn func(eventID string)) error
}

// ReminderScheduler runs reminders as gocron one-time jobs tagged with the
// event id. Armed reminders cannot be cancelled; the callback must cope with
// an event that no longer exists.
type ReminderScheduler struct {
	sched gocron.Scheduler
	clock clockwork.Clock

	mu    sync.Mutex
	armed map[string]struct{}
}

func NewReminderScheduler(clock clockwork.Clock) (*ReminderScheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	sched.Start()

	return &ReminderScheduler{
		sched: sched,
		clock: clock,
		armed: make(map[string]struct{}),
	}, nil
}

// reminderTime is start minus lead. A reminder whose time is not after now
// fires immediately.
func reminderTime(start time.Time, lead time.Duration) time.Time {
	return start.Add(-lead)
}

// Arm schedules fn(eventID) at start-lead. A second Arm for the same event is
// ignored so that each event gets exactly one reminder.
func (r *ReminderScheduler) Arm(eventID string, start time.Time, lead time.Duration, fn func(eventID string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.armed[eventID]; ok {
		log.Printf("[Reminder] Event %s already has a reminder, skipping", eventID)
		return nil
	}

	at := reminderTime(start, lead)
	task := gocron.NewTask(fn, eventID)

	startAt := gocron.OneTimeJobStartImmediately()
	if at.After(r.clock.Now()) {
		startAt = gocron.OneTimeJobStartDateTime(at)
	}

	_, err := r.sched.NewJob(
		gocron.OneTimeJob(startAt),
		task,
		gocron.WithName("reminder:"+eventID),
		gocron.WithTags(eventID),
	)
	if err != nil && !at.After(r.clock.Now()) {
		// the fire time slipped into the past while arming
		_, err = r.sched.NewJob(
			gocron.OneTimeJob(gocron.OneTimeJobStartImmediately()),
			task,
			gocron.WithName("reminder:"+eventID),
			gocron.WithTags(eventID),
		)
	}
	if err != nil {
		return fmt.Errorf("arm reminder for %s: %w", eventID, err)
	}

	r.armed[eventID] = struct{}{}
	log.Printf("[Reminder] Armed reminder for event %s at %s", eventID, at.UTC().Format(time.RFC3339))
	return nil
}

// Shutdown stops the scheduler; pending reminders are dropped.
func (r *ReminderScheduler) Shutdown() error {
	return r.sched.Shutdown()
}
