package sigil

import (
	"container/heap"
	"sync"
	"time"
)

type deadline struct {
	tokenID string
	at      time.Time
}

type deadlineHeap []deadline

func (h deadlineHeap) Len() int           { return len(h) }
func (h deadlineHeap) Less(i, j int) bool { return h[i].at.Before(h[j].at) }
func (h deadlineHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x any)        { *h = append(*h, x.(deadline)) }
func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	d := old[n-1]
	*h = old[:n-1]
	return d
}

// scheduler fires expire for each token once its deadline passes. A single
// goroutine waits on one timer for the earliest deadline.
type scheduler struct {
	mu      sync.Mutex
	pending deadlineHeap
	running bool

	now    func() time.Time
	expire func(tokenID string)

	wake     chan struct{}
	stopChan chan struct{}
	done     chan struct{}
}

func newScheduler(now func() time.Time, expire func(string)) *scheduler {
	return &scheduler{
		now:      now,
		expire:   expire,
		wake:     make(chan struct{}, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// schedule registers a deadline. Deadlines added before start are kept.
func (s *scheduler) schedule(tokenID string, at time.Time) {
	s.mu.Lock()
	heap.Push(&s.pending, deadline{tokenID: tokenID, at: at})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *scheduler) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len()
}

func (s *scheduler) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	go s.run()
}

// stop halts the goroutine. Deadlines still pending are dropped.
func (s *scheduler) stop() {
	s.mu.Lock()
	running := s.running
	s.running = false
	s.mu.Unlock()

	if !running {
		return
	}
	close(s.stopChan)
	<-s.done
}

func (s *scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		due, wait, ok := s.next()
		if due != "" {
			s.expire(due)
			continue
		}

		var fire <-chan time.Time
		if ok {
			timer.Reset(wait)
			fire = timer.C
		}

		select {
		case <-s.stopChan:
			return
		case <-s.wake:
		case <-fire:
		}
		timer.Stop()
	}
}

// next pops the earliest deadline if it is due. Otherwise it returns how
// long to wait for it, with ok false when nothing is pending.
func (s *scheduler) next() (due string, wait time.Duration, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending.Len() == 0 {
		return "", 0, false
	}
	head := s.pending[0]
	wait = head.at.Sub(s.now())
	if wait <= 0 {
		heap.Pop(&s.pending)
		return head.tokenID, 0, true
	}
	return "", wait, true
}
