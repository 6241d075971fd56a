package redis_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/artpar/carebill/adapters/redis"
	"github.com/artpar/carebill/ports"
	goredis "github.com/redis/go-redis/v9"
)

// fakeClient emulates SET NX and the release script against a map.
type fakeClient struct {
	mu     sync.Mutex
	keys   map[string]string
	ttls   map[string]time.Duration
	setErr error
	evals  int
}

func newFakeClient() *fakeClient {
	return &fakeClient{keys: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := goredis.NewBoolCmd(ctx)
	if f.setErr != nil {
		cmd.SetErr(f.setErr)
		return cmd
	}
	if _, held := f.keys[key]; held {
		cmd.SetVal(false)
		return cmd
	}
	f.keys[key] = value.(string)
	f.ttls[key] = expiration
	cmd.SetVal(true)
	return cmd
}

func (f *fakeClient) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *goredis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evals++
	cmd := goredis.NewCmd(ctx)
	if f.keys[keys[0]] == args[0] {
		delete(f.keys, keys[0])
		cmd.SetVal(int64(1))
		return cmd
	}
	cmd.SetVal(int64(0))
	return cmd
}

func (f *fakeClient) holder(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.keys[key]
	return v, ok
}

func TestLocker_AcquireRelease(t *testing.T) {
	client := newFakeClient()
	locker := redis.NewLocker(client, redis.LockerConfig{TTL: time.Minute})

	unlock, err := locker.Lock(context.Background(), "home_care/asha rao")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	if _, held := client.holder("carebill:lock:home_care/asha rao"); !held {
		t.Fatal("expected prefixed key to be set")
	}
	if ttl := client.ttls["carebill:lock:home_care/asha rao"]; ttl != time.Minute {
		t.Errorf("ttl = %v, want 1m", ttl)
	}

	unlock()
	unlock()
	if _, held := client.holder("carebill:lock:home_care/asha rao"); held {
		t.Error("expected key released")
	}
	if client.evals != 1 {
		t.Errorf("release evals = %d, want 1", client.evals)
	}
}

func TestLocker_WaitsForRelease(t *testing.T) {
	client := newFakeClient()
	locker := redis.NewLocker(client, redis.LockerConfig{PollInterval: 5 * time.Millisecond})
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		second, err := locker.Lock(ctx, "k")
		if err != nil {
			t.Errorf("second Lock failed: %v", err)
			close(acquired)
			return
		}
		second()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock acquired while first held")
	case <-time.After(30 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second Lock never acquired")
	}
}

func TestLocker_Timeout(t *testing.T) {
	client := newFakeClient()
	locker := redis.NewLocker(client, redis.LockerConfig{PollInterval: 5 * time.Millisecond})

	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, ports.ErrLockTimeout) {
		t.Errorf("Lock error = %v, want ErrLockTimeout", err)
	}
}

func TestLocker_StaleUnlockKeepsNewHolder(t *testing.T) {
	client := newFakeClient()
	locker := redis.NewLocker(client, redis.LockerConfig{})
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	if err != nil {
		t.Fatalf("Lock failed: %v", err)
	}
	// Simulate expiry and takeover by another process.
	client.mu.Lock()
	client.keys["carebill:lock:k"] = "other-token"
	client.mu.Unlock()

	unlock()
	if v, _ := client.holder("carebill:lock:k"); v != "other-token" {
		t.Errorf("holder = %q, want other-token", v)
	}
}

func TestLocker_ClientError(t *testing.T) {
	client := newFakeClient()
	client.setErr = errors.New("connection refused")
	locker := redis.NewLocker(client, redis.LockerConfig{})

	_, err := locker.Lock(context.Background(), "k")
	if err == nil || errors.Is(err, ports.ErrLockTimeout) {
		t.Errorf("Lock error = %v, want connection error", err)
	}
}
