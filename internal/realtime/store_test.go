package realtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/azrayildirim/mekandamobil/internal/stream"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type record struct {
	IsOnline     bool   `json:"isOnline"`
	LastSeen     int64  `json:"lastSeen"`
	CurrentPlace *place `json:"currentPlace"`
}

type place struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	s.SetTime(time.UnixMilli(1_700_000_000_000))
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, stream.NewHub(nil, zerolog.Nop()), zerolog.Nop()), s
}

func TestWriteResolvesServerTimestamp(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.Write(ctx, "status/user-1", Value{
		"isOnline":     true,
		"lastSeen":     ServerTimestamp,
		"currentPlace": map[string]any{"id": "venue-1", "name": "Kahve"},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	var got record
	ok, err := store.Read(ctx, "status/user-1", &got)
	if err != nil || !ok {
		t.Fatalf("read: %v %v", ok, err)
	}
	if !got.IsOnline || got.LastSeen != 1_700_000_000_000 {
		t.Fatalf("unexpected record %+v", got)
	}
	if got.CurrentPlace == nil || got.CurrentPlace.ID != "venue-1" {
		t.Fatalf("expected current place")
	}
}

func TestReadMissing(t *testing.T) {
	store, _ := newTestStore(t)
	var got record
	ok, err := store.Read(context.Background(), "status/nobody", &got)
	if err != nil || ok {
		t.Fatalf("expected absent value, got %v %v", ok, err)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Write(ctx, "status/user-1", Value{
		"isOnline":     false,
		"lastSeen":     int64(1),
		"currentPlace": map[string]any{"id": "venue-1", "name": "Kahve"},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Update(ctx, "status/user-1", Value{"isOnline": true, "lastSeen": ServerTimestamp}); err != nil {
		t.Fatalf("update: %v", err)
	}

	var got record
	if _, err := store.Read(ctx, "status/user-1", &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !got.IsOnline || got.CurrentPlace == nil || got.LastSeen != 1_700_000_000_000 {
		t.Fatalf("unexpected merged record %+v", got)
	}
}

func TestDisconnectRunsRules(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	if err := store.Write(ctx, "status/user-1", Value{"isOnline": true, "lastSeen": ServerTimestamp}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.WriteOnDisconnect(ctx, "conn-1", "status/user-1", Value{"isOnline": false, "lastSeen": ServerTimestamp}); err != nil {
		t.Fatalf("on disconnect: %v", err)
	}

	mr.SetTime(time.UnixMilli(1_700_000_060_000))
	if err := store.Disconnect(ctx, "conn-1"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	var got record
	if _, err := store.Read(ctx, "status/user-1", &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.IsOnline || got.LastSeen != 1_700_000_060_000 {
		t.Fatalf("expected offline record stamped at disconnect, got %+v", got)
	}
	if mr.Exists("rt:ondisconnect:conn-1") {
		t.Fatalf("expected rules to be removed")
	}
}

func TestCancelOnDisconnect(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.WriteOnDisconnect(ctx, "conn-2", "status/user-2", Value{"isOnline": false}); err != nil {
		t.Fatalf("on disconnect: %v", err)
	}
	if err := store.CancelOnDisconnect(ctx, "conn-2"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := store.Disconnect(ctx, "conn-2"); err != nil {
		t.Fatalf("disconnect: %v", err)
	}

	var got record
	ok, _ := store.Read(ctx, "status/user-2", &got)
	if ok {
		t.Fatalf("cancelled rule must not write")
	}
}

func TestSubscribeReceivesWrites(t *testing.T) {
	store, _ := newTestStore(t)
	updates := make(chan []byte, 1)
	unsubscribe := store.Subscribe("status/user-3", func(b []byte) { updates <- b })
	defer unsubscribe()

	if err := store.Write(context.Background(), "status/user-3", Value{"isOnline": true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case msg := <-updates:
		if string(msg) != `{"isOnline":true}` {
			t.Fatalf("unexpected payload %s", msg)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timeout waiting for update")
	}
}

func TestWriteFailsWhenRedisDown(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()
	if err := store.Write(context.Background(), "status/user-1", Value{"isOnline": true}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestUpdateRetriesOnConcurrentWrites(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	path := "status/user-1"

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- store.Update(ctx, path, Value{"isOnline": true, "lastSeen": ServerTimestamp})
		}()
		go func() {
			defer wg.Done()
			errs <- store.Write(ctx, path, Value{"isOnline": false, "lastSeen": ServerTimestamp})
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent write failed: %v", err)
		}
	}
}

func TestConcurrentUpdatesKeepEveryField(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	path := "status/user-1"

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := store.Update(ctx, path, Value{fmt.Sprintf("field%d", i): i}); err != nil {
				t.Errorf("update %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	got := map[string]any{}
	if _, err := store.Read(ctx, path, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 20 {
		t.Fatalf("merged %d fields, want 20: %v", len(got), got)
	}
}
