package hub

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/daniel-olson-code/buelon/internal/blob"
	"github.com/daniel-olson-code/buelon/internal/executor"
	"github.com/daniel-olson-code/buelon/internal/governor"
	"github.com/daniel-olson-code/buelon/internal/logger"
	"github.com/daniel-olson-code/buelon/internal/metadata"
	"github.com/daniel-olson-code/buelon/internal/scheduler"
)

func mustLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("production")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

// TestHubComponentsWireTogether exercises the same wiring order New uses
// (metadata store -> blob store -> governor -> scheduler -> executor)
// without the network-dependent pieces (Redis, TCP listen), which can't
// run without live services in a unit test.
func TestHubComponentsWireTogether(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := db.AutoMigrate(&metadata.Step{}); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	repo := metadata.NewRepo(db)
	store := blob.NewMemoryStore()
	gov := governor.New(map[string]int{"default": 5})
	sched := scheduler.New(repo, gov, 720*time.Second)

	log := mustLogger(t)
	exec := executor.New(repo, store, log)

	if sched == nil || exec == nil {
		t.Fatalf("expected non-nil scheduler and executor")
	}
}
