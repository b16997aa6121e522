package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/listveil/listveil/pkg/interfaces"
)

func TestMockItemCounters(t *testing.T) {
	item := NewMockItem("hello")

	if item.Hidden() {
		t.Error("new item should be visible")
	}
	_ = item.Text()
	_ = item.Text()
	if got := item.GetTextReads(); got != 2 {
		t.Errorf("GetTextReads() = %d, want 2", got)
	}

	item.SetHidden(true)
	if !item.Hidden() {
		t.Error("item should be hidden after SetHidden(true)")
	}
	if got := item.GetMarkerWrites(); got != 1 {
		t.Errorf("GetMarkerWrites() = %d, want 1", got)
	}

	item.SetText("rewritten")
	if item.Text() != "rewritten" {
		t.Errorf("Text() = %q, want rewritten", item.Text())
	}
}

func TestMockContainerAppendNotifies(t *testing.T) {
	c := NewMockContainer("one")

	var got []interfaces.Change
	id := c.Subscribe(func(change interfaces.Change) {
		got = append(got, change)
	})

	c.Append("two", "three")

	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	if got[0].AddedItems != 2 {
		t.Errorf("AddedItems = %d, want 2", got[0].AddedItems)
	}
	if len(c.Items()) != 3 {
		t.Errorf("Items() has %d entries, want 3", len(c.Items()))
	}

	c.Unsubscribe(id)
	c.Append("four")
	if len(got) != 1 {
		t.Error("unsubscribed callback still received notifications")
	}
	if c.GetSubscriberCount() != 0 {
		t.Errorf("GetSubscriberCount() = %d, want 0", c.GetSubscriberCount())
	}
}

func TestMockLocatorFailsThenFinds(t *testing.T) {
	container := NewMockContainer()
	locator := NewMockLocator(container, 2)

	for i := 0; i < 2; i++ {
		if _, err := locator.Find(context.Background()); !errors.Is(err, ErrNotYet) {
			t.Fatalf("attempt %d error = %v, want ErrNotYet", i+1, err)
		}
	}

	found, err := locator.Find(context.Background())
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if found != interfaces.Container(container) {
		t.Error("Find() returned a different container")
	}
	if locator.GetAttempts() != 3 {
		t.Errorf("GetAttempts() = %d, want 3", locator.GetAttempts())
	}
}

func TestMockSurfaceOpsLog(t *testing.T) {
	s := NewMockSurface()

	if err := s.Register(interfaces.Command{Key: "a"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := s.Unregister("a"); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}

	ops := s.GetOps()
	if len(ops) != 2 || ops[0] != "register:a" || ops[1] != "unregister:a" {
		t.Errorf("GetOps() = %v, want [register:a unregister:a]", ops)
	}
	if len(s.GetKeys()) != 0 {
		t.Errorf("GetKeys() = %v, want empty", s.GetKeys())
	}

	s.SetRegisterError(errors.New("surface full"))
	if err := s.Register(interfaces.Command{Key: "b"}); err == nil {
		t.Error("expected injected register error")
	}
	if _, ok := s.GetCommand("b"); ok {
		t.Error("failed registration still stored the command")
	}
}

func TestFlakyKVInjection(t *testing.T) {
	kv := NewFlakyKV()
	kv.Seed("k", []string{"seeded"})

	values, err := kv.Load("k")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(values) != 1 || values[0] != "seeded" {
		t.Errorf("Load() = %v, want [seeded]", values)
	}

	boom := errors.New("disk gone")
	kv.SetSaveError(boom)
	if err := kv.Save("k", []string{"x"}); !errors.Is(err, boom) {
		t.Errorf("Save() error = %v, want injected error", err)
	}
	if kv.GetSaveCalls() != 1 {
		t.Errorf("GetSaveCalls() = %d, want 1", kv.GetSaveCalls())
	}

	kv.SetSaveError(nil)
	if err := kv.Save("k", []string{"x"}); err != nil {
		t.Errorf("Save() after clearing error = %v", err)
	}

	kv.SetLoadError(boom)
	if _, err := kv.Load("k"); !errors.Is(err, boom) {
		t.Errorf("Load() error = %v, want injected error", err)
	}
}
