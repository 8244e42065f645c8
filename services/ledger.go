package services

import (
	"sort"

	"siege-coordinator/models"
)

// RegistrationLedger maps event id -> participant id -> registration.
// It holds no policy and no lock; SiegeService serializes access.
type RegistrationLedger struct {
	events map[string]map[string]models.Registration
}

func NewRegistrationLedger() *RegistrationLedger {
	return &RegistrationLedger{events: make(map[string]map[string]models.Registration)}
}

// Put upserts a registration, replacing any prior role of the participant.
func (l *RegistrationLedger) Put(eventID string, r models.Registration) {
	regs, ok := l.events[eventID]
	if !ok {
		regs = make(map[string]models.Registration)
		l.events[eventID] = regs
	}
	regs[r.ParticipantID] = r
}

// Remove deletes the participant's registration and reports whether one existed.
func (l *RegistrationLedger) Remove(eventID, participantID string) bool {
	regs, ok := l.events[eventID]
	if !ok {
		return false
	}
	if _, ok := regs[participantID]; !ok {
		return false
	}
	delete(regs, participantID)
	return true
}

func (l *RegistrationLedger) Get(eventID, participantID string) (models.Registration, bool) {
	r, ok := l.events[eventID][participantID]
	return r, ok
}

func (l *RegistrationLedger) CountByRole(eventID string, role models.Role) int {
	n := 0
	for _, r := range l.events[eventID] {
		if r.Role == role {
			n++
		}
	}
	return n
}

// All returns the event's registrations ordered by registration time.
func (l *RegistrationLedger) All(eventID string) []models.Registration {
	regs := l.events[eventID]
	out := make([]models.Registration, 0, len(regs))
	for _, r := range regs {
		out = append(out, r)
	}
	sortRegistrations(out)
	return out
}

// Snapshot copies the event's registrations into a fresh map.
func (l *RegistrationLedger) Snapshot(eventID string) map[string]models.Registration {
	regs := l.events[eventID]
	out := make(map[string]models.Registration, len(regs))
	for k, v := range regs {
		out[k] = v
	}
	return out
}

// Drop forgets every registration of the event.
func (l *RegistrationLedger) Drop(eventID string) {
	delete(l.events, eventID)
}

func sortRegistrations(regs []models.Registration) {
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].RegisteredAt != regs[j].RegisteredAt {
			return regs[i].RegisteredAt < regs[j].RegisteredAt
		}
		return regs[i].ParticipantID < regs[j].ParticipantID
	})
}
