package scheduler

import (
	"context"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/daniel-olson-code/buelon/internal/governor"
	"github.com/daniel-olson-code/buelon/internal/metadata"
)

func newTestRepo(t *testing.T) metadata.Repo {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := db.AutoMigrate(&metadata.Step{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return metadata.NewRepo(db)
}

func TestGetStepsOrdersByPriorityThenLeases(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	gov := governor.New(nil)
	sched := New(repo, gov, 720*time.Second)

	for _, s := range []*metadata.Step{
		{ID: "low", Scope: "default", Priority: 1, Status: metadata.StatusPending},
		{ID: "high", Scope: "default", Priority: 10, Status: metadata.StatusPending},
	} {
		if err := repo.Insert(ctx, s); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := sched.GetSteps(ctx, []string{"default"}, 1, metadata.StatusPending, true, false)
	if err != nil {
		t.Fatalf("GetSteps: %v", err)
	}
	if len(got) != 1 || got[0].ID != "high" {
		t.Fatalf("expected [high], got %+v", got)
	}
	if got[0].Status != metadata.StatusWorking {
		t.Fatalf("expected leased step to report working, got %v", got[0].Status)
	}

	row, err := repo.Get(ctx, "high")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if row.Status != metadata.StatusWorking {
		t.Fatalf("expected persisted status working, got %v", row.Status)
	}
}

func TestGetStepsSkipsOverBudgetTag(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	gov := governor.New(map[string]int{"busy": 0})
	sched := New(repo, gov, 720*time.Second)

	for _, s := range []*metadata.Step{
		{ID: "blocked", Scope: "default", Priority: 10, Status: metadata.StatusPending, Tag: "busy"},
		{ID: "admits", Scope: "default", Priority: 1, Status: metadata.StatusPending, Tag: "free"},
	} {
		if err := repo.Insert(ctx, s); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := sched.GetSteps(ctx, []string{"default"}, 5, metadata.StatusPending, true, false)
	if err != nil {
		t.Fatalf("GetSteps: %v", err)
	}
	if len(got) != 1 || got[0].ID != "admits" {
		t.Fatalf("expected only the unthrottled tag to admit, got %+v", got)
	}
}

func TestGetStepsZeroLimitReturnsNothing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	sched := New(repo, governor.New(nil), 720*time.Second)
	got, err := sched.GetSteps(ctx, []string{"default"}, 0, metadata.StatusPending, true, false)
	if err != nil {
		t.Fatalf("GetSteps: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no steps for limit=0, got %+v", got)
	}
}
