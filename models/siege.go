package models

import (
	"strings"

	"golang.org/x/text/cases"
)

// Role is the participation category a member signs up for.
type Role string

const (
	RoleShai           Role = "Shai"
	RoleDef            Role = "Def"
	RoleSupportFighter Role = "SupportFighter"
	RoleMain           Role = "Main"
	RoleRecruit        Role = "Recruit"
)

// Roles lists every role in roster display order.
var Roles = []Role{RoleDef, RoleSupportFighter, RoleShai, RoleMain, RoleRecruit}

var roleAliases = map[string]Role{
	"shai":           RoleShai,
	"def":            RoleDef,
	"supportfighter": RoleSupportFighter,
	"sf":             RoleSupportFighter,
	"main":           RoleMain,
	"recruit":        RoleRecruit,
	"hire":           RoleRecruit,
	"найм":           RoleRecruit,
}

// ParseRole accepts canonical role names and the short labels used on the
// announcement buttons ("SF", "Найм"), ignoring case.
func ParseRole(s string) (Role, bool) {
	r, ok := roleAliases[fold(s)]
	return r, ok
}

// Status of a siege. Completed is terminal. Completing removes the live
// Event and keeps the outcome on its ArchiveRecord, so a live Event is always
// Active; the service treats any other status as an unknown event.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// Result is the outcome recorded when a siege is completed.
type Result string

const (
	ResultWin          Result = "Win"
	ResultNodeCaptured Result = "NodeCaptured"
	ResultLoss         Result = "Loss"
)

var resultAliases = map[string]Result{
	"win":          ResultWin,
	"перемога":     ResultWin,
	"nodecaptured": ResultNodeCaptured,
	"node":         ResultNodeCaptured,
	"взяли нод":    ResultNodeCaptured,
	"loss":         ResultLoss,
	"програш":      ResultLoss,
}

func ParseResult(s string) (Result, bool) {
	r, ok := resultAliases[fold(s)]
	return r, ok
}

// fold builds a fresh Caser per call; casers are stateful and must not be
// shared between goroutines.
func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Event is one siege instance. ID is the identity of the announcement
// message the front end posted for it. Result stays empty on a live event;
// the outcome is recorded on ArchiveRecord.Result.
type Event struct {
	ID             string `json:"id" yaml:"id"`
	Date           string `json:"date" yaml:"date"` // DD.MM.YYYY as entered
	Territory      string `json:"territory" yaml:"territory"`
	Type           string `json:"type" yaml:"type"`
	Tier           string `json:"tier" yaml:"tier"`
	Node           string `json:"node" yaml:"node"`
	Slots          int    `json:"slots" yaml:"slots"`
	StartTimestamp int64  `json:"start_timestamp" yaml:"start_timestamp"`
	Status         Status `json:"status" yaml:"status"`
	Result         Result `json:"result,omitempty" yaml:"result,omitempty"`
	CreatedAt      int64  `json:"created_at" yaml:"created_at"`
}

// Registration is one member's claim on a role within an event.
type Registration struct {
	ParticipantID string `json:"participant_id" yaml:"participant_id"`
	DisplayName   string `json:"name" yaml:"name"` // snapshot taken at registration time
	Role          Role   `json:"role" yaml:"role"`
	RegisteredAt  int64  `json:"timestamp" yaml:"timestamp"`
}

// LiveEvent is the persisted form of an active event: the event itself plus
// its registrations keyed by participant id.
type LiveEvent struct {
	Event         Event                   `json:"event" yaml:"event"`
	Registrations map[string]Registration `json:"registrations" yaml:"registrations"`
}

// Clone returns a deep copy so callers can mutate it without aliasing the
// registration map.
func (e LiveEvent) Clone() LiveEvent {
	return LiveEvent{Event: e.Event, Registrations: cloneRegistrations(e.Registrations)}
}

// ArchiveRecord is the immutable snapshot written when a siege completes.
type ArchiveRecord struct {
	ID             string                  `json:"id" yaml:"id"`
	Date           string                  `json:"date" yaml:"date"` // completion day, DD.MM.YYYY
	EventDate      string                  `json:"event_date" yaml:"event_date"`
	Territory      string                  `json:"territory" yaml:"territory"`
	Type           string                  `json:"type" yaml:"type"`
	Tier           string                  `json:"tier" yaml:"tier"`
	Node           string                  `json:"node" yaml:"node"`
	Slots          int                     `json:"slots" yaml:"slots"`
	StartTimestamp int64                   `json:"start_timestamp" yaml:"start_timestamp"`
	CompletedAt    int64                   `json:"completed_at" yaml:"completed_at"`
	Result         Result                  `json:"result" yaml:"result"`
	Participants   map[string]Registration `json:"participants" yaml:"participants"`
}

func (a ArchiveRecord) Clone() ArchiveRecord {
	a.Participants = cloneRegistrations(a.Participants)
	return a
}

func cloneRegistrations(in map[string]Registration) map[string]Registration {
	out := make(map[string]Registration, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
