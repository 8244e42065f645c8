package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"siege-coordinator/models"

	"github.com/jonboulle/clockwork"
)

var errDiskFull = errors.New("disk full")

// memStore is an EventStore that keeps deep copies and can be told to fail.
type memStore struct {
	mu           sync.Mutex
	live         map[string]models.LiveEvent
	archive      map[string]models.ArchiveRecord
	liveSaves    int
	archiveSaves int
	failLive     error
	failArchive  error
}

func newMemStore() *memStore {
	return &memStore{
		live:    map[string]models.LiveEvent{},
		archive: map[string]models.ArchiveRecord{},
	}
}

func (m *memStore) LoadLive(context.Context) (map[string]models.LiveEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.LiveEvent, len(m.live))
	for k, v := range m.live {
		out[k] = v.Clone()
	}
	return out, nil
}

func (m *memStore) SaveLive(_ context.Context, events map[string]models.LiveEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failLive != nil {
		return m.failLive
	}
	m.live = make(map[string]models.LiveEvent, len(events))
	for k, v := range events {
		m.live[k] = v.Clone()
	}
	m.liveSaves++
	return nil
}

func (m *memStore) LoadArchive(context.Context) (map[string]models.ArchiveRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]models.ArchiveRecord, len(m.archive))
	for k, v := range m.archive {
		out[k] = v.Clone()
	}
	return out, nil
}

func (m *memStore) SaveArchive(_ context.Context, records map[string]models.ArchiveRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failArchive != nil {
		return m.failArchive
	}
	m.archive = make(map[string]models.ArchiveRecord, len(records))
	for k, v := range records {
		m.archive[k] = v.Clone()
	}
	m.archiveSaves++
	return nil
}

type armCall struct {
	eventID string
	start   time.Time
	lead    time.Duration
	fn      func(string)
}

// recordingReminders captures Arm calls instead of scheduling them.
type recordingReminders struct {
	mu    sync.Mutex
	calls []armCall
	err   error
}

func (r *recordingReminders) Arm(eventID string, start time.Time, lead time.Duration, fn func(string)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.calls = append(r.calls, armCall{eventID: eventID, start: start, lead: lead, fn: fn})
	return nil
}

type sentMessage struct {
	participantID string
	message       string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]bool
}

func (n *recordingNotifier) NotifyParticipant(_ context.Context, participantID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[participantID] {
		return errors.New("cannot send messages to this user")
	}
	n.sent = append(n.sent, sentMessage{participantID, message})
	return nil
}

type harness struct {
	svc       *SiegeService
	store     *memStore
	reminders *recordingReminders
	notifier  *recordingNotifier
	clock     *clockwork.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     newMemStore(),
		reminders: &recordingReminders{},
		notifier:  &recordingNotifier{fail: map[string]bool{}},
		clock:     clockwork.NewFakeClockAt(time.Date(2030, 12, 1, 12, 0, 0, 0, time.UTC)),
	}
	h.svc = NewSiegeService(h.store, h.reminders, h.notifier, h.clock, DefaultSettings())
	return h
}

func (h *harness) createSiege(t *testing.T, id string) models.Event {
	t.Helper()
	ev, err := h.svc.Create(context.Background(), CreateParams{
		ID:        id,
		Date:      "25.12.2030",
		Territory: "Calpheon",
		Type:      "Siege",
		Tier:      "T3",
		Node:      "Node 1",
		Slots:     50,
	})
	if err != nil {
		t.Fatalf("Create(%s): %v", id, err)
	}
	return ev
}
