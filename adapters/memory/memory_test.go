package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/artpar/carebill/adapters/memory"
	"github.com/artpar/carebill/domain/billing"
	"github.com/artpar/carebill/ports"
	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ClientStore tests

func TestClientStore_ListKeepsOrder(t *testing.T) {
	store := memory.NewClientStore(
		billing.Client{Name: "Asha Rao"},
		billing.Client{Name: "Bilal Khan"},
		billing.Client{Name: "Chen Wei"},
	)
	store.Put(billing.Client{Name: "asha rao", Active: true}) // replaces, keeps position

	clients, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(clients) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(clients))
	}
	if clients[0].Name != "asha rao" || !clients[0].Active {
		t.Errorf("clients[0] = %+v, want replaced asha rao", clients[0])
	}
	if clients[2].Name != "Chen Wei" {
		t.Errorf("clients[2].Name = %q, want Chen Wei", clients[2].Name)
	}
}

func TestClientStore_UpdateLastBilled(t *testing.T) {
	store := memory.NewClientStore(billing.Client{Name: "Asha Rao"})
	ctx := context.Background()

	at := time.Date(2025, 2, 28, 17, 45, 0, 0, time.UTC)
	if err := store.UpdateLastBilled(ctx, " ASHA RAO ", at); err != nil {
		t.Fatalf("UpdateLastBilled failed: %v", err)
	}
	c, _ := store.Get("Asha Rao")
	if c.LastBilled == nil || !c.LastBilled.Equal(day(2025, 2, 28)) {
		t.Errorf("LastBilled = %v, want 2025-02-28", c.LastBilled)
	}

	err := store.UpdateLastBilled(ctx, "Nobody", at)
	if !errors.Is(err, ports.ErrClientNotFound) {
		t.Errorf("UpdateLastBilled(unknown) error = %v, want ErrClientNotFound", err)
	}
}

func TestClientStore_FaultInjection(t *testing.T) {
	store := memory.NewClientStore(billing.Client{Name: "Asha Rao"})
	ctx := context.Background()
	boom := errors.New("sheet offline")

	store.FailList(boom)
	if _, err := store.List(ctx); !errors.Is(err, boom) {
		t.Errorf("List() error = %v, want %v", err, boom)
	}
	store.FailList(nil)
	if _, err := store.List(ctx); err != nil {
		t.Errorf("List() after clear error = %v", err)
	}

	store.FailUpdate(boom)
	if err := store.UpdateLastBilled(ctx, "Asha Rao", day(2025, 1, 1)); !errors.Is(err, boom) {
		t.Errorf("UpdateLastBilled() error = %v, want %v", err, boom)
	}
}

// InvoiceStore tests

func invoice(ref, client, service string, issued time.Time) billing.Invoice {
	return billing.Invoice{
		Reference:   ref,
		IssuedAt:    issued,
		ClientName:  client,
		Total:       decimal.NewFromInt(11500),
		Status:      billing.StatusInvoiced,
		ServiceType: service,
	}
}

func TestInvoiceStore_AppendAndList(t *testing.T) {
	store := memory.NewInvoiceStore()
	ctx := context.Background()

	if err := store.Append(ctx, invoice("HC-0001", "Asha Rao", "Home Care", day(2025, 1, 31))); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, invoice("PA-0001", "Asha Rao", "Patient Admission", day(2025, 1, 31))); err != nil {
		t.Fatalf("Append other family failed: %v", err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("len(List()) = %d, want 2", len(all))
	}
}

func TestInvoiceStore_RejectsSameDayDuplicate(t *testing.T) {
	store := memory.NewInvoiceStore(invoice("HC-0001", "Asha Rao", "Home Care", day(2025, 2, 28)))
	ctx := context.Background()

	later := time.Date(2025, 2, 28, 18, 0, 0, 0, time.UTC)
	err := store.Append(ctx, invoice("HC-0002", "asha rao", "Home Care", later))
	if !errors.Is(err, ports.ErrDuplicateInvoice) {
		t.Errorf("Append() error = %v, want ErrDuplicateInvoice", err)
	}

	if err := store.Append(ctx, invoice("HC-0002", "Asha Rao", "Home Care", day(2025, 3, 1))); err != nil {
		t.Errorf("Append() next day error = %v", err)
	}
}

func TestInvoiceStore_ListForClient(t *testing.T) {
	store := memory.NewInvoiceStore(
		invoice("HC-0001", "Asha Rao", "Home Care", day(2025, 1, 1)),
		invoice("HC-0002", "Bilal Khan", "Home Care", day(2025, 1, 1)),
		invoice("PA-0001", "Asha Rao", "Patient Admission", day(2025, 1, 1)),
		invoice("HC-0003", "ASHA RAO", "Home Care - Nursing", day(2025, 2, 1)),
	)

	got, err := store.ListForClient(context.Background(), "asha rao", "home care")
	if err != nil {
		t.Fatalf("ListForClient failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(ListForClient()) = %d, want 2", len(got))
	}
	if got[0].Reference != "HC-0001" || got[1].Reference != "HC-0003" {
		t.Errorf("refs = %s, %s; want HC-0001, HC-0003", got[0].Reference, got[1].Reference)
	}
}

func TestInvoiceStore_FailClient(t *testing.T) {
	store := memory.NewInvoiceStore()
	ctx := context.Background()
	boom := errors.New("row unreadable")

	store.FailClient("Bilal Khan", boom)
	if _, err := store.ListForClient(ctx, "bilal khan", "Home Care"); !errors.Is(err, boom) {
		t.Errorf("ListForClient(failing) error = %v, want %v", err, boom)
	}
	if _, err := store.ListForClient(ctx, "Asha Rao", "Home Care"); err != nil {
		t.Errorf("ListForClient(other) error = %v", err)
	}

	store.FailClient("Bilal Khan", nil)
	if _, err := store.ListForClient(ctx, "Bilal Khan", "Home Care"); err != nil {
		t.Errorf("ListForClient() after clear error = %v", err)
	}
}

// Locker tests

func TestLocker_Exclusive(t *testing.T) {
	l := memory.NewLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "home_care/asha rao")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if !l.Held("home_care/asha rao") {
		t.Error("Held() = false after Lock")
	}

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(waitCtx, "home_care/asha rao"); !errors.Is(err, ports.ErrLockTimeout) {
		t.Errorf("second Lock() error = %v, want ErrLockTimeout", err)
	}

	other, err := l.Lock(ctx, "home_care/bilal khan")
	if err != nil {
		t.Fatalf("Lock(other key) failed: %v", err)
	}
	other()

	unlock()
	unlock() // idempotent
	if l.Held("home_care/asha rao") {
		t.Error("Held() = true after unlock")
	}
}

func TestLocker_Serialises(t *testing.T) {
	l := memory.NewLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "k")
			if err != nil {
				t.Errorf("Lock failed: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max holders = %d, want 1", maxSeen)
	}
}
