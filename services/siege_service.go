package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"siege-coordinator/models"

	"github.com/jonboulle/clockwork"
)

// DateLayout is the DD.MM.YYYY format organizers type dates in.
const DateLayout = "02.01.2006"

// RoleCaps lists the roles with a per-event ceiling. Roles not listed are
// uncapped.
var RoleCaps = map[models.Role]int{
	models.RoleDef:     5,
	models.RoleRecruit: 3,
}

const defaultSlots = 50

// EventStore persists the live and archived collections. Every save writes
// the whole collection; the store itself does no locking.
type EventStore interface {
	LoadLive(ctx context.Context) (map[string]models.LiveEvent, error)
	SaveLive(ctx context.Context, events map[string]models.LiveEvent) error
	LoadArchive(ctx context.Context) (map[string]models.ArchiveRecord, error)
	SaveArchive(ctx context.Context, records map[string]models.ArchiveRecord) error
}

// Notifier delivers a direct message to a member.
type Notifier interface {
	NotifyParticipant(ctx context.Context, participantID, message string) error
}

// Settings fixes when sieges start and how early reminders go out.
type Settings struct {
	Location     *time.Location
	StartHour    int
	ReminderLead time.Duration
}

// DefaultSettings: 19:00 Europe/Berlin, reminders 30 minutes ahead.
func DefaultSettings() Settings {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		// tzdata is embedded, so this only trips on a broken build
		panic(err)
	}
	return Settings{Location: loc, StartHour: 19, ReminderLead: 30 * time.Minute}
}

// SiegeService owns the siege lifecycle: create, register, withdraw and
// complete. All mutations are serialized by mu and are persisted before the
// in-memory state changes, so a failed save leaves memory untouched.
type SiegeService struct {
	store     EventStore
	reminders Reminders
	notifier  Notifier
	clock     clockwork.Clock
	settings  Settings

	mu      sync.RWMutex
	events  map[string]models.Event
	ledger  *RegistrationLedger
	archive map[string]models.ArchiveRecord
}

func NewSiegeService(store EventStore, reminders Reminders, notifier Notifier, clock clockwork.Clock, settings Settings) *SiegeService {
	return &SiegeService{
		store:     store,
		reminders: reminders,
		notifier:  notifier,
		clock:     clock,
		settings:  settings,
		events:    make(map[string]models.Event),
		ledger:    NewRegistrationLedger(),
		archive:   make(map[string]models.ArchiveRecord),
	}
}

// Load replaces in-memory state with what the store holds.
func (s *SiegeService) Load(ctx context.Context) error {
	live, err := s.store.LoadLive(ctx)
	if err != nil {
		return fmt.Errorf("load live events: %w", err)
	}
	archive, err := s.store.LoadArchive(ctx)
	if err != nil {
		return fmt.Errorf("load archive: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string]models.Event, len(live))
	s.ledger = NewRegistrationLedger()
	for id, le := range live {
		s.events[id] = le.Event
		for _, r := range le.Registrations {
			s.ledger.Put(id, r)
		}
	}
	s.archive = archive
	if s.archive == nil {
		s.archive = make(map[string]models.ArchiveRecord)
	}

	log.Printf("[Siege] Loaded %d live event(s) and %d archive record(s)", len(s.events), len(s.archive))
	return nil
}

// RearmReminders arms reminders for loaded events whose reminder time is
// still ahead. Events already past that point are left alone so a restart
// does not flood members with stale reminders.
func (s *SiegeService) RearmReminders() int {
	s.mu.RLock()
	var pending []models.Event
	now := s.clock.Now()
	for _, ev := range s.events {
		if reminderTime(time.Unix(ev.StartTimestamp, 0), s.settings.ReminderLead).After(now) {
			pending = append(pending, ev)
		}
	}
	s.mu.RUnlock()

	armed := 0
	for _, ev := range pending {
		if err := s.reminders.Arm(ev.ID, time.Unix(ev.StartTimestamp, 0), s.settings.ReminderLead, s.remind); err != nil {
			log.Printf("[Siege] Failed to re-arm reminder for %s: %v", ev.ID, err)
			continue
		}
		armed++
	}
	return armed
}

// CreateParams carries what an organizer supplies for a new siege.
type CreateParams struct {
	ID        string
	Date      string // DD.MM.YYYY
	Territory string
	Type      string
	Tier      string
	Node      string
	Slots     int
}

// StartTime combines a DD.MM.YYYY date with the configured start hour in the
// reference zone.
func (s *SiegeService) StartTime(date string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(date), s.settings.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be DD.MM.YYYY", ErrInvalidInput, date)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), s.settings.StartHour, 0, 0, 0, s.settings.Location), nil
}

// Create persists a new active siege and arms its reminder.
func (s *SiegeService) Create(ctx context.Context, p CreateParams) (models.Event, error) {
	ev, err := s.create(ctx, p)
	if err != nil {
		return models.Event{}, err
	}

	// reminder failures do not undo the event; it is already announced
	if err := s.reminders.Arm(ev.ID, time.Unix(ev.StartTimestamp, 0), s.settings.ReminderLead, s.remind); err != nil {
		log.Printf("[Siege] Failed to arm reminder for %s: %v", ev.ID, err)
	}
	return ev, nil
}

func (s *SiegeService) create(ctx context.Context, p CreateParams) (models.Event, error) {
	id := strings.TrimSpace(p.ID)
	if id == "" {
		return models.Event{}, fmt.Errorf("%w: event id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Territory) == "" || strings.TrimSpace(p.Type) == "" || strings.TrimSpace(p.Tier) == "" {
		return models.Event{}, fmt.Errorf("%w: territory, type and tier are required", ErrInvalidInput)
	}
	if p.Slots < 0 {
		return models.Event{}, fmt.Errorf("%w: slots must not be negative", ErrInvalidInput)
	}
	start, err := s.StartTime(p.Date)
	if err != nil {
		return models.Event{}, err
	}

	slots := p.Slots
	if slots == 0 {
		slots = defaultSlots
	}
	node := strings.TrimSpace(p.Node)
	if node == "" || strings.EqualFold(strings.TrimSpace(p.Type), "occupation") {
		node = "-"
	}

	ev := models.Event{
		ID:             id,
		Date:           strings.TrimSpace(p.Date),
		Territory:      strings.TrimSpace(p.Territory),
		Type:           strings.TrimSpace(p.Type),
		Tier:           strings.TrimSpace(p.Tier),
		Node:           node,
		Slots:          slots,
		StartTimestamp: start.Unix(),
		Status:         models.StatusActive,
		CreatedAt:      s.clock.Now().Unix(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[id]; ok {
		return models.Event{}, fmt.Errorf("%w: %s", ErrDuplicateEvent, id)
	}
	if _, ok := s.archive[id]; ok {
		return models.Event{}, fmt.Errorf("%w: %s is archived", ErrDuplicateEvent, id)
	}

	next := s.liveSnapshot()
	next[id] = models.LiveEvent{Event: ev, Registrations: map[string]models.Registration{}}
	if err := s.store.SaveLive(ctx, next); err != nil {
		return models.Event{}, fmt.Errorf("save live events: %w", err)
	}
	s.events[id] = ev

	log.Printf("[Siege] Created %s: %s %s %s, starts %s", id, ev.Territory, ev.Type, ev.Tier,
		start.Format(time.RFC3339))
	return ev, nil
}

// Register assigns the participant to role, replacing any prior role. The
// cap is checked against current registrations minus the caller's own.
func (s *SiegeService) Register(ctx context.Context, eventID, participantID, displayName string, role models.Role) (models.Registration, error) {
	if participantID == "" {
		return models.Registration{}, fmt.Errorf("%w: participant id is required", ErrInvalidInput)
	}
	if !validRole(role) {
		return models.Registration{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if displayName == "" {
		displayName = participantID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok || ev.Status != models.StatusActive {
		return models.Registration{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}

	if limit, capped := RoleCaps[role]; capped {
		taken := s.ledger.CountByRole(eventID, role)
		if prior, ok := s.ledger.Get(eventID, participantID); ok && prior.Role == role {
			taken--
		}
		if taken >= limit {
			return models.Registration{}, fmt.Errorf("%w: %s %d/%d", ErrCapacityExceeded, role, taken, limit)
		}
	}

	reg := models.Registration{
		ParticipantID: participantID,
		DisplayName:   displayName,
		Role:          role,
		RegisteredAt:  s.clock.Now().Unix(),
	}

	next := s.liveSnapshot()
	next[eventID].Registrations[participantID] = reg
	if err := s.store.SaveLive(ctx, next); err != nil {
		return models.Registration{}, fmt.Errorf("save live events: %w", err)
	}
	s.ledger.Put(eventID, reg)

	log.Printf("[Siege] %s registered %s (%s) as %s", eventID, participantID, displayName, role)
	return reg, nil
}

// Withdraw removes the participant's registration.
func (s *SiegeService) Withdraw(ctx context.Context, eventID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok || ev.Status != models.StatusActive {
		return fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}
	if _, ok := s.ledger.Get(eventID, participantID); !ok {
		return fmt.Errorf("%w: %s in %s", ErrNotRegistered, participantID, eventID)
	}

	next := s.liveSnapshot()
	delete(next[eventID].Registrations, participantID)
	if err := s.store.SaveLive(ctx, next); err != nil {
		return fmt.Errorf("save live events: %w", err)
	}
	s.ledger.Remove(eventID, participantID)

	log.Printf("[Siege] %s withdrew %s", eventID, participantID)
	return nil
}

// Complete archives the event with its registrations and the result, then
// removes the live record. The archive is written first; if the live save
// then fails the archive write is reverted.
func (s *SiegeService) Complete(ctx context.Context, eventID string, result models.Result) (models.ArchiveRecord, error) {
	if !validResult(result) {
		return models.ArchiveRecord{}, fmt.Errorf("%w: unknown result %q", ErrInvalidInput, result)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok || ev.Status != models.StatusActive {
		return models.ArchiveRecord{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}

	now := s.clock.Now()
	rec := models.ArchiveRecord{
		ID:             ev.ID,
		Date:           now.In(s.settings.Location).Format(DateLayout),
		EventDate:      ev.Date,
		Territory:      ev.Territory,
		Type:           ev.Type,
		Tier:           ev.Tier,
		Node:           ev.Node,
		Slots:          ev.Slots,
		StartTimestamp: ev.StartTimestamp,
		CompletedAt:    now.Unix(),
		Result:         result,
		Participants:   s.ledger.Snapshot(eventID),
	}

	nextArchive := make(map[string]models.ArchiveRecord, len(s.archive)+1)
	for k, v := range s.archive {
		nextArchive[k] = v
	}
	nextArchive[eventID] = rec
	if err := s.store.SaveArchive(ctx, nextArchive); err != nil {
		return models.ArchiveRecord{}, fmt.Errorf("save archive: %w", err)
	}

	nextLive := s.liveSnapshot()
	delete(nextLive, eventID)
	if err := s.store.SaveLive(ctx, nextLive); err != nil {
		if rbErr := s.store.SaveArchive(ctx, s.archive); rbErr != nil {
			log.Printf("[Siege] Failed to revert archive after live save error for %s: %v", eventID, rbErr)
		}
		return models.ArchiveRecord{}, fmt.Errorf("save live events: %w", err)
	}

	s.archive[eventID] = rec
	delete(s.events, eventID)
	s.ledger.Drop(eventID)

	log.Printf("[Siege] Completed %s with result %s (%d participant(s))", eventID, result, len(rec.Participants))
	return rec.Clone(), nil
}

// event returns the live event with the given id.
func (s *SiegeService) event(eventID string) (models.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[eventID]
	return ev, ok
}

// registrations returns a copy of the event's registrations ordered by time.
func (s *SiegeService) registrations(eventID string) ([]models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.events[eventID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}
	return s.ledger.All(eventID), nil
}

// remind is the reminder callback. It resolves registrants at fire time and
// does nothing when the event is gone. Delivery failures are logged only.
func (s *SiegeService) remind(eventID string) {
	s.mu.RLock()
	_, ok := s.events[eventID]
	regs := s.ledger.All(eventID)
	s.mu.RUnlock()

	if !ok {
		log.Printf("[Reminder] Event %s no longer live, nothing to send", eventID)
		return
	}

	msg := fmt.Sprintf("Reminder! The siege starts in %d minutes.", int(s.settings.ReminderLead.Minutes()))
	sent := 0
	for _, r := range regs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.notifier.NotifyParticipant(ctx, r.ParticipantID, msg)
		cancel()
		if err != nil {
			log.Printf("[Reminder] Could not notify %s for %s: %v", r.ParticipantID, eventID, err)
			continue
		}
		sent++
	}
	log.Printf("[Reminder] Sent %d/%d reminder(s) for %s", sent, len(regs), eventID)
}

// liveSnapshot copies the live state into the persisted shape. Callers hold mu.
func (s *SiegeService) liveSnapshot() map[string]models.LiveEvent {
	out := make(map[string]models.LiveEvent, len(s.events))
	for id, ev := range s.events {
		out[id] = models.LiveEvent{Event: ev, Registrations: s.ledger.Snapshot(id)}
	}
	return out
}

func validRole(role models.Role) bool {
	for _, r := range models.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func validResult(r models.Result) bool {
	switch r {
	case models.ResultWin, models.ResultNodeCaptured, models.ResultLoss:
		return true
	}
	return false
}
