package puckroom

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

func newTestManager(t *testing.T, settings Settings) *Manager[string, string] {
	t.Helper()
	m := NewManager[string, string](t.Context(), Options[string]{Settings: settings})
	t.Cleanup(m.StopAll)
	return m
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("room-%d", n.Add(1))
	}
}

func TestManager_GetOrCreate(t *testing.T) {
	t.Run("should create a room once and reuse it", func(t *testing.T) {
		m := newTestManager(t, DefaultSettings())

		a := m.GetOrCreate("r1")
		b := m.GetOrCreate("r1")
		if a == nil || a != b {
			t.Fatal("expected the same room for the same id")
		}
		if got, ok := m.Get("r1"); !ok || got != a {
			t.Fatal("expected Get to find the room")
		}
		if m.Len() != 1 {
			t.Fatalf("expected 1 room, got %d", m.Len())
		}
	})

	t.Run("should forget a room once it is disposed", func(t *testing.T) {
		m := newTestManager(t, DefaultSettings())
		r := m.GetOrCreate("r1")
		r.Stop()

		waitFor(t, "room removal", func() bool {
			_, ok := m.Get("r1")
			return !ok
		})
		if fresh := m.GetOrCreate("r1"); fresh == r {
			t.Fatal("expected a new room after disposal")
		}
	})

	t.Run("should return nil after the parent context ends", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		m := NewManager[string, string](ctx, Options[string]{})
		cancel()
		if m.GetOrCreate("r1") != nil || m.Match(sequentialIDs()) != nil {
			t.Fatal("expected no rooms after cancel")
		}
	})
}

func TestManager_Match(t *testing.T) {
	t.Run("should pair the first two arrivals", func(t *testing.T) {
		m := newTestManager(t, DefaultSettings())
		ids := sequentialIDs()
		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()

		r1 := m.Match(ids)
		if err := r1.Join(ctx, newMockSocketSession("p1")); err != nil {
			t.Fatal(err)
		}
		r2 := m.Match(ids)
		if r2 != r1 {
			t.Fatal("expected the second arrival in the waiting room")
		}
		if err := r2.Join(ctx, newMockSocketSession("p2")); err != nil {
			t.Fatal(err)
		}

		r3 := m.Match(ids)
		if r3 == r1 {
			t.Fatal("expected a new room once the first is active")
		}
		if r3.ID != "room-2" {
			t.Fatalf("expected room-2, got %s", r3.ID)
		}
	})

	t.Run("should prefer a waiting room over an empty one", func(t *testing.T) {
		m := newTestManager(t, DefaultSettings())
		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()

		m.GetOrCreate("empty")
		waiting := m.GetOrCreate("waiting")
		if err := waiting.Join(ctx, newMockSocketSession("p1")); err != nil {
			t.Fatal(err)
		}

		for range 10 {
			if got := m.Match(sequentialIDs()); got != waiting {
				t.Fatalf("expected the waiting room, got %s", got.ID)
			}
		}
	})
}

func TestManager_List(t *testing.T) {
	t.Run("should report status and player counts", func(t *testing.T) {
		m := newTestManager(t, DefaultSettings())
		ctx, cancel := context.WithTimeout(t.Context(), time.Second)
		defer cancel()

		m.GetOrCreate("a")
		b := m.GetOrCreate("b")
		if err := b.Join(ctx, newMockSocketSession("p1")); err != nil {
			t.Fatal(err)
		}

		infos := map[string]RoomInfo[string]{}
		for _, info := range m.List() {
			infos[info.ID] = info
		}
		if infos["a"].Status != "Lobby" || infos["a"].Players != 0 {
			t.Errorf("unexpected info for a: %+v", infos["a"])
		}
		if infos["b"].Status != "WaitingForOpponent" || infos["b"].Players != 1 {
			t.Errorf("unexpected info for b: %+v", infos["b"])
		}
	})
}

func TestManager_StopAll(t *testing.T) {
	t.Run("should dispose every room", func(t *testing.T) {
		m := newTestManager(t, DefaultSettings())
		rooms := []*Room[string, string]{m.GetOrCreate("a"), m.GetOrCreate("b")}

		m.StopAll()

		for _, r := range rooms {
			select {
			case <-r.Done():
			default:
				t.Fatalf("room %s still running", r.ID)
			}
		}
		waitFor(t, "rooms removed", func() bool { return m.Len() == 0 })
	})
}
