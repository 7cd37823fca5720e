package sigil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type firedList struct {
	mu  sync.Mutex
	ids []string
}

func (f *firedList) add(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func (f *firedList) get() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

func TestSchedulerFiresInDeadlineOrder(t *testing.T) {
	fired := &firedList{}
	s := newScheduler(time.Now, fired.add)
	s.start()
	defer s.stop()

	now := time.Now()
	s.schedule("c", now.Add(60*time.Millisecond))
	s.schedule("a", now.Add(10*time.Millisecond))
	s.schedule("b", now.Add(30*time.Millisecond))

	require.Eventually(t, func() bool { return len(fired.get()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, fired.get())
	assert.Zero(t, s.len())
}

func TestSchedulerEarlierDeadlineWakesLoop(t *testing.T) {
	fired := &firedList{}
	s := newScheduler(time.Now, fired.add)
	s.start()
	defer s.stop()

	s.schedule("late", time.Now().Add(time.Hour))
	s.schedule("soon", time.Now().Add(10*time.Millisecond))

	require.Eventually(t, func() bool { return len(fired.get()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"soon"}, fired.get())
	assert.Equal(t, 1, s.len())
}

func TestSchedulerKeepsDeadlinesUntilStart(t *testing.T) {
	fired := &firedList{}
	s := newScheduler(time.Now, fired.add)

	s.schedule("past", time.Now().Add(-time.Second))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, fired.get())

	s.start()
	defer s.stop()
	require.Eventually(t, func() bool { return len(fired.get()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestSchedulerStopDropsPending(t *testing.T) {
	fired := &firedList{}
	s := newScheduler(time.Now, fired.add)
	s.start()
	s.schedule("never", time.Now().Add(time.Hour))

	done := make(chan struct{})
	go func() {
		s.stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop did not return")
	}
	assert.Empty(t, fired.get())

	// second stop is a no-op
	s.stop()
}
