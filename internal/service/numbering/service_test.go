package numbering

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gobooks/ledger/internal/errs"
	"github.com/gobooks/ledger/internal/ledger"
	"github.com/gobooks/ledger/internal/storage/memory"
)

func TestNext_FormatsAndAdvances(t *testing.T) {
	store := memory.New()
	store.SeedSequence(ledger.Sequence{Name: "journal_entry", Prefix: "JE-", NextValue: 1, IncrementBy: 1, MinValue: 1, Pad: 6})
	svc := New(store)

	first, err := svc.Next(context.Background(), "journal_entry")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first != "JE-000001" {
		t.Fatalf("expected JE-000001, got %s", first)
	}
	second, err := svc.Next(context.Background(), "journal_entry")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if second != "JE-000002" {
		t.Fatalf("expected JE-000002, got %s", second)
	}
}

func TestNext_ConcurrentAllocationsUnique(t *testing.T) {
	store := memory.New()
	store.SeedSequence(ledger.Sequence{Name: "journal_entry", Prefix: "JE-", NextValue: 1, IncrementBy: 1, MinValue: 1, Pad: 6})
	svc := New(store)

	const n = 32
	results := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			num, err := svc.Next(context.Background(), "journal_entry")
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			results <- num
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for num := range results {
		if seen[num] {
			t.Fatalf("duplicate number allocated: %s", num)
		}
		seen[num] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d unique numbers, got %d", n, len(seen))
	}
}

func TestNext_ExhaustionAndCycle(t *testing.T) {
	store := memory.New()
	store.SeedSequence(ledger.Sequence{Name: "capped", Prefix: "C-", NextValue: 3, IncrementBy: 1, MinValue: 1, MaxValue: 3, Pad: 2})
	svc := New(store)

	if got, err := svc.Next(context.Background(), "capped"); err != nil || got != "C-03" {
		t.Fatalf("expected C-03, got %q err %v", got, err)
	}
	if _, err := svc.Next(context.Background(), "capped"); !errors.Is(err, errs.ErrSequenceExhausted) {
		t.Fatalf("expected ErrSequenceExhausted, got %v", err)
	}

	store.SeedSequence(ledger.Sequence{Name: "wrapping", Prefix: "W-", NextValue: 4, IncrementBy: 1, MinValue: 1, MaxValue: 3, Cycle: true, Pad: 2})
	if got, err := svc.Next(context.Background(), "wrapping"); err != nil || got != "W-01" {
		t.Fatalf("expected wrap to W-01, got %q err %v", got, err)
	}
}

func TestNext_UnknownSequence(t *testing.T) {
	svc := New(memory.New())
	if _, err := svc.Next(context.Background(), "nope"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Next(context.Background(), ""); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty name, got %v", err)
	}
}
