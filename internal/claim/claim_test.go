package claim

import (
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestAtMostOneClaim races many claimers on a single id; exactly one must
// win regardless of scheduling.
func TestAtMostOneClaim(t *testing.T) {
	reg, err := NewRegistry(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	const claimers = 64
	var wins int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			<-start
			ok, err := reg.TryClaim("video.mp4", worker)
			if err != nil {
				t.Errorf("TryClaim failed: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&wins, 1)
			}
		}(i)
	}

	close(start)
	wg.Wait()

	if wins != 1 {
		t.Errorf("got %d successful claims, want exactly 1", wins)
	}
}

func TestReleaseAllowsReclaim(t *testing.T) {
	reg, err := NewRegistry(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	ok, err := reg.TryClaim("a.mp4", 1)
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	if ok, _ := reg.TryClaim("a.mp4", 2); ok {
		t.Error("second claim succeeded while lock held")
	}

	if err := reg.Release("a.mp4"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	// Releasing again must be a no-op.
	if err := reg.Release("a.mp4"); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}

	if ok, _ := reg.TryClaim("a.mp4", 2); !ok {
		t.Error("claim failed after release")
	}
}

func TestHeld(t *testing.T) {
	reg, err := NewRegistry(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	reg.TryClaim("a.mp4", 1)
	reg.TryClaim("b.mp4", 2)

	held, err := reg.Held()
	if err != nil {
		t.Fatal(err)
	}
	if len(held) != 2 {
		t.Errorf("got %d held locks, want 2", len(held))
	}
}

func TestSweepReclaimsStaleLocks(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry(dir)
	if err != nil {
		t.Fatal(err)
	}

	reg.TryClaim("stale.mp4", 1)
	reg.TryClaim("fresh.mp4", 2)

	// Age the stale lock well past the lease.
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(reg.lockPath("stale.mp4"), old, old); err != nil {
		t.Fatal(err)
	}

	reclaimed, err := reg.Sweep(time.Hour)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0] != "stale.mp4" {
		t.Errorf("got reclaimed=%v, want [stale.mp4]", reclaimed)
	}

	held, _ := reg.Held()
	if len(held) != 1 || held[0] != "fresh.mp4" {
		t.Errorf("got held=%v, want [fresh.mp4]", held)
	}
}

func TestSweepRejectsZeroLease(t *testing.T) {
	reg, err := NewRegistry(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Sweep(0); err == nil {
		t.Error("expected error for zero lease")
	}
}
