package idgen_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/artpar/carebill/adapters/idgen"
)

func TestUUID_New(t *testing.T) {
	g := idgen.UUID{}

	id := g.New()
	if len(id) != 36 {
		t.Errorf("len(New()) = %d, want 36", len(id))
	}
	if id == g.New() {
		t.Error("successive UUIDs should differ")
	}
}

func TestUUID_Prefix(t *testing.T) {
	g := idgen.UUID{Prefix: "run_"}

	id := g.New()
	if !strings.HasPrefix(id, "run_") {
		t.Errorf("New() = %q, want run_ prefix", id)
	}
	if len(id) != len("run_")+36 {
		t.Errorf("len(New()) = %d, want %d", len(id), len("run_")+36)
	}
}

func TestSequential(t *testing.T) {
	g := idgen.NewSequential("run-")

	tests := []string{"run-1", "run-2", "run-3"}
	for _, want := range tests {
		if got := g.New(); got != want {
			t.Errorf("New() = %q, want %q", got, want)
		}
	}

	g.Reset()
	if got := g.New(); got != "run-1" {
		t.Errorf("after Reset New() = %q, want run-1", got)
	}
}

func TestSequential_Concurrent(t *testing.T) {
	g := idgen.NewSequential("")
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := g.New()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Errorf("unique ids = %d, want 50", len(seen))
	}
}
