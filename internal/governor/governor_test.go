package governor

import (
	"testing"
	"time"
)

func TestTryAdmitRespectsLimit(t *testing.T) {
	g := New(map[string]int{"fast": 2})
	if !g.TryAdmit("fast") {
		t.Fatalf("first admit should succeed")
	}
	if !g.TryAdmit("fast") {
		t.Fatalf("second admit should succeed")
	}
	if g.TryAdmit("fast") {
		t.Fatalf("third admit should be rejected at the limit")
	}
}

func TestTryAdmitUnlimitedTagAlwaysAdmits(t *testing.T) {
	g := New(nil)
	for i := 0; i < 100; i++ {
		if !g.TryAdmit("anything") {
			t.Fatalf("unlimited tag rejected admit at i=%d", i)
		}
	}
}

func TestTryAdmitEmptyTagAlwaysAdmits(t *testing.T) {
	g := New(map[string]int{"": 0})
	if !g.TryAdmit("") {
		t.Fatalf("empty tag should always admit regardless of configured limit")
	}
}

func TestDecrementAllFreesCapacity(t *testing.T) {
	g := New(map[string]int{"fast": 1})
	if !g.TryAdmit("fast") {
		t.Fatalf("admit should succeed")
	}
	if g.TryAdmit("fast") {
		t.Fatalf("should be at limit")
	}
	g.decrementAll()
	if !g.TryAdmit("fast") {
		t.Fatalf("admit should succeed again after decrement")
	}
}

func TestStartStopDecrementsOnTicker(t *testing.T) {
	g := New(map[string]int{"fast": 1})
	g.TryAdmit("fast")
	g.Start()
	defer g.Stop()
	time.Sleep(1200 * time.Millisecond)
	if usage := g.Usage(); usage["fast"] != 0 {
		t.Fatalf("expected usage to decay to 0 after a tick, got %+v", usage)
	}
}
