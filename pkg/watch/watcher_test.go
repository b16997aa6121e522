package watch

import (
	"sync"
	"testing"
	"time"

	"github.com/listveil/listveil/pkg/interfaces"
	"github.com/listveil/listveil/pkg/testutil"
)

func TestBurstCollapsesToOneFlush(t *testing.T) {
	var mu sync.Mutex
	flushCount := 0
	flush := func() {
		mu.Lock()
		flushCount++
		mu.Unlock()
	}

	container := testutil.NewMockContainer()
	w := New(60*time.Millisecond, flush, nil)
	session := w.Watch(container)
	defer session.Dispose()

	// Five growth notifications inside one window
	for i := 0; i < 5; i++ {
		container.Emit(interfaces.Change{AddedItems: 1})
		time.Sleep(10 * time.Millisecond)
	}

	// Wait for quiescence plus margin
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if flushCount != 1 {
		t.Errorf("flush ran %d times, want 1", flushCount)
	}
}

func TestWindowRestartsOnEachChange(t *testing.T) {
	var mu sync.Mutex
	flushCount := 0
	flush := func() {
		mu.Lock()
		flushCount++
		mu.Unlock()
	}

	container := testutil.NewMockContainer()
	w := New(100*time.Millisecond, flush, nil)
	session := w.Watch(container)
	defer session.Dispose()

	container.Emit(interfaces.Change{AddedItems: 1})
	time.Sleep(50 * time.Millisecond)
	container.Emit(interfaces.Change{AddedItems: 1})

	// The first window would have expired here, but the second change
	// restarted it
	time.Sleep(70 * time.Millisecond)
	mu.Lock()
	if flushCount != 0 {
		mu.Unlock()
		t.Fatalf("flush ran %d times before the restarted window expired", flushCount)
	}
	mu.Unlock()

	time.Sleep(120 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if flushCount != 1 {
		t.Errorf("flush ran %d times, want 1", flushCount)
	}
}

func TestSeparateBurstsFlushSeparately(t *testing.T) {
	var mu sync.Mutex
	flushCount := 0
	flush := func() {
		mu.Lock()
		flushCount++
		mu.Unlock()
	}

	container := testutil.NewMockContainer()
	w := New(40*time.Millisecond, flush, nil)
	session := w.Watch(container)
	defer session.Dispose()

	container.Emit(interfaces.Change{AddedItems: 1})
	time.Sleep(100 * time.Millisecond)
	container.Emit(interfaces.Change{AddedItems: 1})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if flushCount != 2 {
		t.Errorf("flush ran %d times, want 2", flushCount)
	}
}

func TestNoiseDoesNotSchedule(t *testing.T) {
	var mu sync.Mutex
	flushCount := 0
	flush := func() {
		mu.Lock()
		flushCount++
		mu.Unlock()
	}

	container := testutil.NewMockContainer()
	w := New(30*time.Millisecond, flush, nil)
	session := w.Watch(container)
	defer session.Dispose()

	container.Emit(interfaces.Change{RemovedItems: 2})
	container.Emit(interfaces.Change{})

	if session.Pending() {
		t.Error("Pending() = true after noise-only changes")
	}

	time.Sleep(80 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if flushCount != 0 {
		t.Errorf("flush ran %d times on noise, want 0", flushCount)
	}
}

func TestStateTransitions(t *testing.T) {
	container := testutil.NewMockContainer()
	w := New(50*time.Millisecond, func() {}, nil)
	session := w.Watch(container)
	defer session.Dispose()

	if got := session.State(); got != StateIdle {
		t.Errorf("initial State() = %v, want %v", got, StateIdle)
	}

	container.Emit(interfaces.Change{AddedItems: 1})
	if got := session.State(); got != StatePendingFlush {
		t.Errorf("State() after qualifying change = %v, want %v", got, StatePendingFlush)
	}
	if !session.Pending() {
		t.Error("Pending() = false with armed timer")
	}

	time.Sleep(120 * time.Millisecond)
	if got := session.State(); got != StateIdle {
		t.Errorf("State() after flush = %v, want %v", got, StateIdle)
	}
}

func TestChangeDuringFlushRearms(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	flushCount := 0
	flush := func() {
		mu.Lock()
		flushCount++
		first := flushCount == 1
		mu.Unlock()

		if first {
			close(entered)
			<-release
		}
	}

	container := testutil.NewMockContainer()
	w := New(30*time.Millisecond, flush, nil)
	session := w.Watch(container)
	defer session.Dispose()

	container.Emit(interfaces.Change{AddedItems: 1})

	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("first flush never started")
	}

	// A qualifying change while the first flush is still running must arm
	// the next window
	container.Emit(interfaces.Change{AddedItems: 1})
	close(release)

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if flushCount != 2 {
		t.Errorf("flush ran %d times, want 2", flushCount)
	}
}

func TestDisposeCancelsPendingFlush(t *testing.T) {
	var mu sync.Mutex
	flushCount := 0
	flush := func() {
		mu.Lock()
		flushCount++
		mu.Unlock()
	}

	container := testutil.NewMockContainer()
	w := New(60*time.Millisecond, flush, nil)
	session := w.Watch(container)

	container.Emit(interfaces.Change{AddedItems: 1})
	session.Dispose()

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if flushCount != 0 {
		t.Errorf("flush ran %d times after Dispose, want 0", flushCount)
	}
	if got := container.GetSubscriberCount(); got != 0 {
		t.Errorf("container keeps %d subscriptions after Dispose, want 0", got)
	}
}

func TestDisposeIsIdempotent(t *testing.T) {
	container := testutil.NewMockContainer()
	w := New(30*time.Millisecond, func() {}, nil)
	session := w.Watch(container)

	session.Dispose()
	session.Dispose()
	session.Dispose()

	if got := container.GetSubscriberCount(); got != 0 {
		t.Errorf("container keeps %d subscriptions, want 0", got)
	}
	if session.Pending() {
		t.Error("Pending() = true after Dispose")
	}
}

func TestChangesAfterDisposeIgnored(t *testing.T) {
	var mu sync.Mutex
	flushCount := 0
	flush := func() {
		mu.Lock()
		flushCount++
		mu.Unlock()
	}

	container := testutil.NewMockContainer()
	w := New(20*time.Millisecond, flush, nil)
	session := w.Watch(container)
	session.Dispose()

	// Deliver straight to the session callback to mimic a notification
	// already in flight at dispose time
	session.onChange(interfaces.Change{AddedItems: 3})

	time.Sleep(60 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if flushCount != 0 {
		t.Errorf("flush ran %d times after Dispose, want 0", flushCount)
	}
}

func TestDefaultWindow(t *testing.T) {
	w := New(0, func() {}, nil)
	if w.window != DefaultWindow {
		t.Errorf("window = %v, want %v", w.window, DefaultWindow)
	}

	w = New(-time.Second, func() {}, nil)
	if w.window != DefaultWindow {
		t.Errorf("window = %v, want %v", w.window, DefaultWindow)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{state: StateIdle, want: "idle"},
		{state: StatePendingFlush, want: "pending-flush"},
		{state: State(99), want: "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
