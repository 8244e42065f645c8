package services

import (
	"fmt"
	"sort"
	"strings"

	"siege-coordinator/models"

	"github.com/gosimple/unidecode"
)

// AllPeriods is the stats filter that matches every archive record.
const AllPeriods = "all"

// ParticipantStats aggregates one member's archived sign-ups.
type ParticipantStats struct {
	Name  string              `json:"name"`
	Roles map[models.Role]int `json:"roles"`
	Total int                 `json:"total"`
	Dates []string            `json:"dates"`
}

// ListArchive returns every archive record, oldest completion first.
func (s *SiegeService) ListArchive() []models.ArchiveRecord {
	s.mu.RLock()
	records := make([]models.ArchiveRecord, 0, len(s.archive))
	for _, rec := range s.archive {
		records = append(records, rec.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		if records[i].CompletedAt != records[j].CompletedAt {
			return records[i].CompletedAt < records[j].CompletedAt
		}
		return records[i].ID < records[j].ID
	})
	return records
}

// Stats groups archived registrations by display name. A period other than
// "all" keeps only records whose date contains it as a substring, so "12.2030"
// selects December 2030 and "2030" the whole year.
func (s *SiegeService) Stats(period string) []ParticipantStats {
	return aggregateStats(s.ListArchive(), period)
}

func aggregateStats(records []models.ArchiveRecord, period string) []ParticipantStats {
	period = strings.TrimSpace(period)
	if period == "" {
		period = AllPeriods
	}

	byName := make(map[string]*ParticipantStats)
	for _, rec := range records {
		if period != AllPeriods && !strings.Contains(rec.Date, period) {
			continue
		}

		regs := make([]models.Registration, 0, len(rec.Participants))
		for _, r := range rec.Participants {
			regs = append(regs, r)
		}
		sortRegistrations(regs)

		for _, r := range regs {
			st, ok := byName[r.DisplayName]
			if !ok {
				st = &ParticipantStats{Name: r.DisplayName, Roles: make(map[models.Role]int, len(models.Roles))}
				for _, role := range models.Roles {
					st.Roles[role] = 0
				}
				byName[r.DisplayName] = st
			}
			st.Roles[r.Role]++
			st.Total++
			st.Dates = append(st.Dates, rec.Date)
		}
	}

	out := make([]ParticipantStats, 0, len(byName))
	for _, st := range byName {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := nameSortKey(out[i].Name), nameSortKey(out[j].Name)
		if ki != kj {
			return ki < kj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// nameSortKey transliterates so Cyrillic and Latin names interleave: "Богдан"
// sorts next to "Bohdan", not after every Latin name.
func nameSortKey(name string) string {
	return strings.ToLower(unidecode.Unidecode(name))
}

// RosterGroup is one role's sign-ups in registration order.
type RosterGroup struct {
	Role    models.Role           `json:"role"`
	Members []models.Registration `json:"members"`
}

// Roster is the live sign-up table of an event.
type Roster struct {
	Event      models.Event  `json:"event"`
	Registered int           `json:"registered"`
	Groups     []RosterGroup `json:"groups"`
}

// Summary renders "registered/slots".
func (r Roster) Summary() string {
	return fmt.Sprintf("%d/%d", r.Registered, r.Event.Slots)
}

// Roster groups the event's registrations by role in display order, leaving
// out empty roles.
func (s *SiegeService) Roster(eventID string) (Roster, error) {
	s.mu.RLock()
	ev, ok := s.events[eventID]
	regs := s.ledger.All(eventID)
	s.mu.RUnlock()

	if !ok {
		return Roster{}, fmt.Errorf("%w: %s", ErrUnknownEvent, eventID)
	}

	roster := Roster{Event: ev, Registered: len(regs)}
	for _, role := range models.Roles {
		var members []models.Registration
		for _, r := range regs {
			if r.Role == role {
				members = append(members, r)
			}
		}
		if len(members) > 0 {
			roster.Groups = append(roster.Groups, RosterGroup{Role: role, Members: members})
		}
	}
	return roster, nil
}
