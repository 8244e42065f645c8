package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"siege-coordinator/models"
)

func TestCreate(t *testing.T) {
	h := newHarness(t)
	ev := h.createSiege(t, "msg-1")

	if ev.Status != models.StatusActive {
		t.Errorf("status = %q, want active", ev.Status)
	}
	// 19:00 in Berlin is 18:00 UTC in winter.
	want := time.Date(2030, 12, 25, 18, 0, 0, 0, time.UTC).Unix()
	if ev.StartTimestamp != want {
		t.Errorf("start = %d, want %d", ev.StartTimestamp, want)
	}
	if ev.Slots != 50 || ev.Territory != "Calpheon" || ev.Tier != "T3" || ev.Node != "Node 1" {
		t.Errorf("unexpected event %+v", ev)
	}

	live, _ := h.store.LoadLive(context.Background())
	stored, ok := live["msg-1"]
	if !ok {
		t.Fatal("event not persisted")
	}
	if len(stored.Registrations) != 0 {
		t.Errorf("new event has %d registrations", len(stored.Registrations))
	}

	if len(h.reminders.calls) != 1 {
		t.Fatalf("arm calls = %d, want 1", len(h.reminders.calls))
	}
	call := h.reminders.calls[0]
	if call.eventID != "msg-1" || call.start.Unix() != want || call.lead != 30*time.Minute {
		t.Errorf("unexpected arm call %+v", call)
	}
}

func TestCreateSummerTime(t *testing.T) {
	h := newHarness(t)
	start, err := h.svc.StartTime("01.07.2031")
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2031, 7, 1, 17, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %s, want %s", start.UTC(), want)
	}
}

func TestCreateInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		p    CreateParams
	}{
		{"bad date", CreateParams{ID: "1", Date: "2030-12-25", Territory: "Mediah", Type: "Siege", Tier: "T1"}},
		{"impossible date", CreateParams{ID: "1", Date: "31.02.2030", Territory: "Mediah", Type: "Siege", Tier: "T1"}},
		{"missing id", CreateParams{Date: "25.12.2030", Territory: "Mediah", Type: "Siege", Tier: "T1"}},
		{"missing territory", CreateParams{ID: "1", Date: "25.12.2030", Type: "Siege", Tier: "T1"}},
		{"negative slots", CreateParams{ID: "1", Date: "25.12.2030", Territory: "Mediah", Type: "Siege", Tier: "T1", Slots: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.Create(context.Background(), tt.p)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if h.store.liveSaves != 0 || len(h.reminders.calls) != 0 {
				t.Errorf("invalid create touched state: saves=%d arms=%d", h.store.liveSaves, len(h.reminders.calls))
			}
		})
	}
}

func TestCreateDefaults(t *testing.T) {
	h := newHarness(t)
	ev, err := h.svc.Create(context.Background(), CreateParams{
		ID: "occ", Date: "25.12.2030", Territory: "Balenos", Type: "Occupation", Tier: "T1", Node: "Northern Wheat",
	})
	if err != nil {
		t.Fatal(err)
	}
	if ev.Node != "-" {
		t.Errorf("occupation node = %q, want -", ev.Node)
	}
	if ev.Slots != defaultSlots {
		t.Errorf("slots = %d, want %d", ev.Slots, defaultSlots)
	}
}

func TestCreateDuplicate(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "dup")

	_, err := h.svc.Create(context.Background(), CreateParams{
		ID: "dup", Date: "26.12.2030", Territory: "Mediah", Type: "Siege", Tier: "T2",
	})
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("err = %v, want ErrDuplicateEvent", err)
	}
	if ev, _ := h.svc.event("dup"); ev.Territory != "Calpheon" {
		t.Errorf("duplicate create overwrote the event: %+v", ev)
	}

	if _, err := h.svc.Complete(context.Background(), "dup", models.ResultWin); err != nil {
		t.Fatal(err)
	}
	_, err = h.svc.Create(context.Background(), CreateParams{
		ID: "dup", Date: "26.12.2030", Territory: "Mediah", Type: "Siege", Tier: "T2",
	})
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Fatalf("archived id: err = %v, want ErrDuplicateEvent", err)
	}
}

func TestCreateSurvivesReminderFailure(t *testing.T) {
	h := newHarness(t)
	h.reminders.err = errors.New("scheduler stopped")
	h.createSiege(t, "x")
	if _, ok := h.svc.event("x"); !ok {
		t.Fatal("event should exist even when the reminder cannot be armed")
	}
}

func TestRegisterDefCap(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		id := fmt.Sprintf("u%d", i)
		if _, err := h.svc.Register(ctx, "ev", id, "Player "+id, models.RoleDef); err != nil {
			t.Fatalf("Def #%d: %v", i, err)
		}
	}

	_, err := h.svc.Register(ctx, "ev", "u6", "Player u6", models.RoleDef)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("6th Def: err = %v, want ErrCapacityExceeded", err)
	}

	reg, err := h.svc.Register(ctx, "ev", "u6", "Player u6", models.RoleMain)
	if err != nil {
		t.Fatalf("6th as Main: %v", err)
	}
	if reg.Role != models.RoleMain {
		t.Errorf("role = %q, want Main", reg.Role)
	}

	if n := h.svc.ledger.CountByRole("ev", models.RoleDef); n != 5 {
		t.Errorf("Def count = %d, want 5", n)
	}
}

func TestRegisterRecruitCap(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		if _, err := h.svc.Register(ctx, "ev", fmt.Sprintf("r%d", i), "", models.RoleRecruit); err != nil {
			t.Fatalf("Recruit #%d: %v", i, err)
		}
	}
	if _, err := h.svc.Register(ctx, "ev", "r4", "", models.RoleRecruit); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("4th Recruit: err = %v, want ErrCapacityExceeded", err)
	}
}

func TestRegisterSameRoleAtCap(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		if _, err := h.svc.Register(ctx, "ev", fmt.Sprintf("u%d", i), "", models.RoleDef); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := h.svc.Register(ctx, "ev", "u3", "renamed", models.RoleDef); err != nil {
		t.Fatalf("re-registering into a full role the member already holds: %v", err)
	}
	if n := h.svc.ledger.CountByRole("ev", models.RoleDef); n != 5 {
		t.Errorf("Def count = %d, want 5", n)
	}
}

func TestRegisterReplacesRole(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	if _, err := h.svc.Register(ctx, "ev", "p", "Pavlo", models.RoleShai); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(time.Minute)
	if _, err := h.svc.Register(ctx, "ev", "p", "Pavlo", models.RoleMain); err != nil {
		t.Fatal(err)
	}

	regs, err := h.svc.registrations("ev")
	if err != nil {
		t.Fatal(err)
	}
	if len(regs) != 1 {
		t.Fatalf("registrations = %d, want 1", len(regs))
	}
	if regs[0].Role != models.RoleMain {
		t.Errorf("role = %q, want Main", regs[0].Role)
	}

	live, _ := h.store.LoadLive(ctx)
	if got := live["ev"].Registrations["p"].Role; got != models.RoleMain {
		t.Errorf("persisted role = %q, want Main", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	if _, err := h.svc.Register(ctx, "missing", "p", "P", models.RoleMain); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("unknown event: err = %v", err)
	}
	if _, err := h.svc.Register(ctx, "ev", "p", "P", models.Role("Tank")); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("unknown role: err = %v", err)
	}
	if _, err := h.svc.Register(ctx, "ev", "", "P", models.RoleMain); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty participant: err = %v", err)
	}

	reg, err := h.svc.Register(ctx, "ev", "p", "", models.RoleMain)
	if err != nil {
		t.Fatal(err)
	}
	if reg.DisplayName != "p" {
		t.Errorf("display name fallback = %q, want p", reg.DisplayName)
	}
}

func TestWithdraw(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	if _, err := h.svc.Register(ctx, "ev", "a", "A", models.RoleDef); err != nil {
		t.Fatal(err)
	}

	saves := h.store.liveSaves
	if err := h.svc.Withdraw(ctx, "ev", "stranger"); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("err = %v, want ErrNotRegistered", err)
	}
	if h.store.liveSaves != saves {
		t.Error("failed withdraw persisted state")
	}
	if regs, _ := h.svc.registrations("ev"); len(regs) != 1 {
		t.Errorf("ledger changed after failed withdraw: %v", regs)
	}

	if err := h.svc.Withdraw(ctx, "ev", "a"); err != nil {
		t.Fatal(err)
	}
	if regs, _ := h.svc.registrations("ev"); len(regs) != 0 {
		t.Errorf("registrations after withdraw = %v", regs)
	}
	if err := h.svc.Withdraw(ctx, "ev", "a"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("second withdraw: err = %v", err)
	}
	if err := h.svc.Withdraw(ctx, "nope", "a"); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("unknown event: err = %v", err)
	}
}

func TestComplete(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	want := map[string]models.Registration{}
	for i, role := range []models.Role{models.RoleDef, models.RoleShai, models.RoleMain} {
		id := fmt.Sprintf("u%d", i)
		reg, err := h.svc.Register(ctx, "ev", id, "Name "+id, role)
		if err != nil {
			t.Fatal(err)
		}
		want[id] = reg
		h.clock.Advance(time.Second)
	}

	// 20:00 UTC on the 25th is still the 25th in Berlin.
	h.clock.Advance(time.Date(2030, 12, 25, 20, 0, 0, 0, time.UTC).Sub(h.clock.Now()))

	rec, err := h.svc.Complete(ctx, "ev", models.ResultWin)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if rec.Result != models.ResultWin || rec.Territory != "Calpheon" || rec.Slots != 50 {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Date != "25.12.2030" {
		t.Errorf("record date = %q, want 25.12.2030", rec.Date)
	}
	if len(rec.Participants) != len(want) {
		t.Fatalf("participants = %d, want %d", len(rec.Participants), len(want))
	}
	for id, w := range want {
		if got := rec.Participants[id]; got != w {
			t.Errorf("participant %s = %+v, want %+v", id, got, w)
		}
	}

	if _, ok := h.svc.event("ev"); ok {
		t.Error("live event should be gone")
	}
	live, _ := h.store.LoadLive(ctx)
	if _, ok := live["ev"]; ok {
		t.Error("live event still persisted")
	}
	archive, _ := h.store.LoadArchive(ctx)
	if len(archive) != 1 {
		t.Fatalf("persisted archive = %d records, want 1", len(archive))
	}

	if _, err := h.svc.Complete(ctx, "ev", models.ResultLoss); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("second complete: err = %v, want ErrUnknownEvent", err)
	}
	if got := len(h.svc.ListArchive()); got != 1 {
		t.Errorf("archive size after second complete = %d, want 1", got)
	}
	if _, err := h.svc.Register(ctx, "ev", "late", "Late", models.RoleMain); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("register after complete: err = %v, want ErrUnknownEvent", err)
	}
}

func TestCompleteInvalidResult(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	if _, err := h.svc.Complete(context.Background(), "ev", models.Result("Draw")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if _, ok := h.svc.event("ev"); !ok {
		t.Error("event should still be live")
	}
}

func TestSaveFailureLeavesMemoryUntouched(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	h.store.failLive = errDiskFull
	if _, err := h.svc.Register(ctx, "ev", "p", "P", models.RoleDef); !errors.Is(err, errDiskFull) {
		t.Fatalf("err = %v, want disk full", err)
	}
	if regs, _ := h.svc.registrations("ev"); len(regs) != 0 {
		t.Errorf("registration applied despite failed save: %v", regs)
	}

	if _, err := h.svc.Create(ctx, CreateParams{ID: "other", Date: "26.12.2030", Territory: "Mediah", Type: "Siege", Tier: "T1"}); err == nil {
		t.Fatal("create should fail when the store fails")
	}
	if _, ok := h.svc.event("other"); ok {
		t.Error("event created despite failed save")
	}
}

func TestCompleteRevertsArchiveWhenLiveSaveFails(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	h.store.failLive = errDiskFull
	if _, err := h.svc.Complete(ctx, "ev", models.ResultLoss); !errors.Is(err, errDiskFull) {
		t.Fatalf("err = %v, want disk full", err)
	}
	if _, ok := h.svc.event("ev"); !ok {
		t.Error("event should still be live")
	}
	archive, _ := h.store.LoadArchive(ctx)
	if len(archive) != 0 {
		t.Errorf("archive should have been reverted, has %d record(s)", len(archive))
	}

	h.store.failLive = nil
	if _, err := h.svc.Complete(ctx, "ev", models.ResultLoss); err != nil {
		t.Fatalf("retry complete: %v", err)
	}
}

func TestCompleteArchiveFailure(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")

	h.store.failArchive = errDiskFull
	if _, err := h.svc.Complete(context.Background(), "ev", models.ResultWin); !errors.Is(err, errDiskFull) {
		t.Fatalf("err = %v, want disk full", err)
	}
	if _, ok := h.svc.event("ev"); !ok {
		t.Error("event should still be live")
	}
	if len(h.svc.ListArchive()) != 0 {
		t.Error("archive should be empty")
	}
}

func TestConcurrentRegistrationsRespectCaps(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, full := 0, 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			role := models.RoleDef
			if i%2 == 1 {
				role = models.RoleRecruit
			}
			_, err := h.svc.Register(ctx, "ev", fmt.Sprintf("u%d", i), "", role)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrCapacityExceeded):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 8 || full != 32 {
		t.Errorf("ok=%d full=%d, want 8 and 32", ok, full)
	}

	live, _ := h.store.LoadLive(ctx)
	counts := map[models.Role]int{}
	for _, r := range live["ev"].Registrations {
		counts[r.Role]++
	}
	if counts[models.RoleDef] != 5 || counts[models.RoleRecruit] != 3 {
		t.Errorf("persisted counts = %v", counts)
	}
}

func TestConcurrentRegisterAndWithdraw(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := h.svc.Register(ctx, "ev", fmt.Sprintf("old%d", i), "", models.RoleDef); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = h.svc.Withdraw(ctx, "ev", fmt.Sprintf("old%d", i))
		}(i)
		go func(i int) {
			defer wg.Done()
			_, _ = h.svc.Register(ctx, "ev", fmt.Sprintf("new%d", i), "", models.RoleDef)
		}(i)
	}
	wg.Wait()

	if n := h.svc.ledger.CountByRole("ev", models.RoleDef); n > 5 {
		t.Errorf("Def count = %d exceeds cap", n)
	}
}

func TestRemind(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if _, err := h.svc.Register(ctx, "ev", id, strings.ToUpper(id), models.RoleMain); err != nil {
			t.Fatal(err)
		}
	}
	h.notifier.fail["b"] = true

	h.reminders.calls[0].fn("ev")

	if len(h.notifier.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(h.notifier.sent))
	}
	for _, m := range h.notifier.sent {
		if !strings.Contains(m.message, "30 minutes") {
			t.Errorf("message %q does not mention the lead", m.message)
		}
	}
}

func TestRemindAfterComplete(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	if _, err := h.svc.Register(ctx, "ev", "a", "A", models.RoleMain); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.Complete(ctx, "ev", models.ResultWin); err != nil {
		t.Fatal(err)
	}

	h.reminders.calls[0].fn("ev")
	if len(h.notifier.sent) != 0 {
		t.Errorf("reminder for a completed event sent %d message(s)", len(h.notifier.sent))
	}
}

func TestLoadAndRearm(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "future")
	ctx := context.Background()
	if _, err := h.svc.Register(ctx, "future", "a", "A", models.RoleDef); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.Create(ctx, CreateParams{ID: "past", Date: "01.11.2030", Territory: "Mediah", Type: "Siege", Tier: "T1"}); err != nil {
		t.Fatal(err)
	}

	restarted := &recordingReminders{}
	svc := NewSiegeService(h.store, restarted, h.notifier, h.clock, DefaultSettings())
	if err := svc.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if _, ok := svc.event("past"); !ok {
		t.Error("past event should still load")
	}
	regs, err := svc.registrations("future")
	if err != nil || len(regs) != 1 {
		t.Fatalf("registrations after load = %v, %v", regs, err)
	}

	if n := svc.RearmReminders(); n != 1 {
		t.Errorf("re-armed %d, want 1", n)
	}
	if len(restarted.calls) != 1 || restarted.calls[0].eventID != "future" {
		t.Errorf("unexpected re-arm calls %+v", restarted.calls)
	}
}

func TestRoster(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	signups := []struct {
		id   string
		role models.Role
	}{
		{"m1", models.RoleMain},
		{"d1", models.RoleDef},
		{"m2", models.RoleMain},
		{"r1", models.RoleRecruit},
	}
	for _, s := range signups {
		if _, err := h.svc.Register(ctx, "ev", s.id, s.id, s.role); err != nil {
			t.Fatal(err)
		}
		h.clock.Advance(time.Second)
	}

	roster, err := h.svc.Roster("ev")
	if err != nil {
		t.Fatal(err)
	}
	if roster.Summary() != "4/50" {
		t.Errorf("summary = %q, want 4/50", roster.Summary())
	}
	var order []string
	for _, g := range roster.Groups {
		for _, m := range g.Members {
			order = append(order, string(g.Role)+":"+m.ParticipantID)
		}
	}
	if got, want := strings.Join(order, ","), "Def:d1,Main:m1,Main:m2,Recruit:r1"; got != want {
		t.Errorf("roster order = %s, want %s", got, want)
	}

	if _, err := h.svc.Roster("nope"); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("unknown roster: err = %v", err)
	}
}

func TestLiveEventStaysActiveUntilArchived(t *testing.T) {
	h := newHarness(t)
	h.createSiege(t, "ev")
	ctx := context.Background()

	if ev, _ := h.svc.event("ev"); ev.Status != models.StatusActive || ev.Result != "" {
		t.Fatalf("live event = %+v, want active with no result", ev)
	}
	rec, err := h.svc.Complete(ctx, "ev", models.ResultLoss)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Result != models.ResultLoss {
		t.Errorf("archived result = %q", rec.Result)
	}
	if live := h.store.live; len(live) != 0 {
		t.Errorf("completed event still live: %+v", live)
	}

	// a record persisted in the completed state is not mutable after load
	h.store.live["old"] = models.LiveEvent{
		Event:         models.Event{ID: "old", Status: models.StatusCompleted, Result: models.ResultWin},
		Registrations: map[string]models.Registration{},
	}
	svc := NewSiegeService(h.store, h.reminders, h.notifier, h.clock, DefaultSettings())
	if err := svc.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Register(ctx, "old", "a", "A", models.RoleMain); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("register on completed event: err = %v, want ErrUnknownEvent", err)
	}
	if _, err := svc.Complete(ctx, "old", models.ResultWin); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("complete on completed event: err = %v, want ErrUnknownEvent", err)
	}
}
