package store

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"diocese/api/internal/util"
)

func openIntegrationStore(t *testing.T) (*PostgresStore, context.Context) {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("DIOCESE_TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("DIOCESE_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := Reset(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPostgresStore(db), ctx
}

func TestChargeSingleActivePostgres(t *testing.T) {
	s, ctx := openIntegrationStore(t)

	first, err := s.InsertCharge(ctx, BishopCharge{ID: util.NewID("chg"), Title: "Advent", Content: "<p>a</p>", IsActive: true})
	if err != nil {
		t.Fatalf("insert first: %v", err)
	}
	second, err := s.InsertCharge(ctx, BishopCharge{ID: util.NewID("chg"), Title: "Lent", Content: "<p>b</p>", IsActive: true})
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}

	active, err := s.GetActiveCharge(ctx)
	if err != nil || active == nil || active.ID != second.ID {
		t.Fatalf("active charge = %+v, %v; want %s", active, err, second.ID)
	}
	reloaded, err := s.GetCharge(ctx, first.ID)
	if err != nil {
		t.Fatalf("get first: %v", err)
	}
	if reloaded.IsActive {
		t.Fatal("first charge should have been deactivated")
	}

	if _, err := s.ActivateCharge(ctx, first.ID); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if active, _ := s.GetActiveCharge(ctx); active == nil || active.ID != first.ID {
		t.Fatalf("active after activate = %+v", active)
	}
	if _, err := s.ActivateCharge(ctx, "chg_missing"); !IsNotFound(err) {
		t.Fatalf("activate missing = %v, want not found", err)
	}
}

func TestArchdeaconryDeleteRejectedWhileReferenced(t *testing.T) {
	s, ctx := openIntegrationStore(t)

	arc := Archdeaconry{ID: util.NewID("arc"), Name: "Northern", ImageURLs: []string{"n.jpg"}}
	if err := s.InsertArchdeaconry(ctx, arc); err != nil {
		t.Fatalf("insert archdeaconry: %v", err)
	}
	parish := Parish{ID: util.NewID("par"), Name: "St Mark", Address: "1 High St", ArchdeaconryID: &arc.ID}
	if err := s.InsertParish(ctx, parish); err != nil {
		t.Fatalf("insert parish: %v", err)
	}
	priest := Priest{ID: util.NewID("prs"), Name: "John", Title: "Reverend", ParishID: &parish.ID}
	if err := s.InsertPriest(ctx, priest); err != nil {
		t.Fatalf("insert priest: %v", err)
	}

	if err := s.DeleteArchdeaconry(ctx, arc.ID); !errors.Is(err, ErrInUse) {
		t.Fatalf("delete archdeaconry = %v, want ErrInUse", err)
	}
	got, err := s.GetArchdeaconry(ctx, arc.ID)
	if err != nil || got.ParishCount != 1 {
		t.Fatalf("archdeaconry after refused delete = %+v, %v", got, err)
	}

	if err := s.DeleteParish(ctx, parish.ID); err != nil {
		t.Fatalf("delete parish: %v", err)
	}
	orphan, err := s.GetPriest(ctx, priest.ID)
	if err != nil {
		t.Fatalf("priest should survive parish delete: %v", err)
	}
	if orphan.ParishID != nil {
		t.Fatalf("priest parish = %v, want nil", *orphan.ParishID)
	}
	if err := s.DeleteArchdeaconry(ctx, arc.ID); err != nil {
		t.Fatalf("delete empty archdeaconry: %v", err)
	}
}

func TestEventsOrderedByDateDescending(t *testing.T) {
	s, ctx := openIntegrationStore(t)

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 6; i++ {
		err := s.InsertEvent(ctx, Event{
			ID:       util.NewID("evt"),
			Title:    "Event",
			Date:     base.AddDate(0, i, 0),
			Category: "general",
		})
		if err != nil {
			t.Fatalf("insert event %d: %v", i, err)
		}
	}

	items, err := s.ListEvents(ctx, EventFilter{Limit: 4})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("len = %d, want 4", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].Date.After(items[i-1].Date) {
			t.Fatalf("events not ordered by date desc at %d", i)
		}
	}
}

func TestUserUniqueness(t *testing.T) {
	s, ctx := openIntegrationStore(t)

	user := User{ID: util.NewID("usr"), Username: "bishop", Email: "bishop@diocese.org", PasswordHash: "x", Role: "admin"}
	if err := s.InsertUser(ctx, user); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	user.ID = util.NewID("usr")
	user.Username = "other"
	var dup *UniqueViolation
	if err := s.InsertUser(ctx, user); !errors.As(err, &dup) || dup.Constraint != "users_email_key" {
		t.Fatalf("duplicate email insert = %v", err)
	}
}
