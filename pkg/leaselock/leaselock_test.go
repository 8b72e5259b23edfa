package leaselock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB emulates the app_locks table for the three statements used here.
type fakeDB struct {
	mu    sync.Mutex
	locks map[string]fakeLock
	now   func() time.Time
}

type fakeLock struct {
	owner   string
	expires time.Time
}

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.key
	return nil
}

func newFakeDB() *fakeDB {
	return &fakeDB{locks: map[string]fakeLock{}, now: time.Now}
}

func (f *fakeDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	ttl := time.Duration(args[2].(int64)) * time.Millisecond
	cur, held := f.locks[key]

	switch sql {
	case tryAcquireSQL:
		if held && cur.expires.After(f.now()) && cur.owner != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		f.locks[key] = fakeLock{owner: token, expires: f.now().Add(ttl)}
		return fakeRow{key: key}
	case renewSQL:
		if !held || cur.owner != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		f.locks[key] = fakeLock{owner: token, expires: f.now().Add(ttl)}
		return fakeRow{key: key}
	}
	return fakeRow{err: errors.New("unexpected statement")}
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sql != releaseSQL {
		return pgconn.CommandTag{}, errors.New("unexpected statement")
	}
	key, token := args[0].(string), args[1].(string)
	if cur, ok := f.locks[key]; ok && cur.owner == token {
		delete(f.locks, key)
	}
	return pgconn.NewCommandTag("DELETE 1"), nil
}

func (f *fakeDB) steal(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locks[key] = fakeLock{owner: "someone-else", expires: f.now().Add(time.Hour)}
}

func TestAcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	c := New(db, Options{TTL: time.Minute, Owner: "worker-a:"})

	lease, err := c.Acquire(ctx, RebuildKey)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := c.Acquire(ctx, RebuildKey); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if err := lease.Release(ctx); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if lease.Context.Err() == nil {
		t.Fatalf("lease context should be canceled after release")
	}
	again, err := c.Acquire(ctx, RebuildKey)
	if err != nil {
		t.Fatalf("re-Acquire: %v", err)
	}
	_ = again.Release(ctx)
}

func TestWithLeaseWaits(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	holder := New(db, Options{TTL: time.Minute})
	waiter := New(db, Options{TTL: time.Minute, Wait: true, WaitInterval: 5 * time.Millisecond})

	lease, err := holder.Acquire(ctx, RebuildKey)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = lease.Release(ctx)
	}()

	ran := false
	err = waiter.WithLease(ctx, RebuildKey, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("WithLease: ran=%v err=%v", ran, err)
	}
}

func TestLostLeaseCancelsWork(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	c := New(db, Options{TTL: 2 * time.Second, RenewEvery: 10 * time.Millisecond})

	err := c.WithLease(ctx, RebuildKey, func(ctx context.Context) error {
		db.steal(RebuildKey)
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, ErrLost) {
		t.Fatalf("expected ErrLost, got %v", err)
	}
}

func TestAcquireRejectsEmptyKey(t *testing.T) {
	c := New(newFakeDB(), Options{})
	if _, err := c.Acquire(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty key")
	}
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker()

	err := l.WithLease(ctx, RebuildKey, func(ctx context.Context) error {
		if err := l.WithLease(ctx, RebuildKey, func(context.Context) error { return nil }); !errors.Is(err, ErrBusy) {
			t.Fatalf("expected ErrBusy for nested lease, got %v", err)
		}
		return l.WithLease(ctx, "other", func(context.Context) error { return nil })
	})
	if err != nil {
		t.Fatalf("WithLease: %v", err)
	}
	if err := l.WithLease(ctx, RebuildKey, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("lease not released: %v", err)
	}
}
