package emulated

import "sync"

// stream runs enqueued work in order on its own goroutine. enqueue and
// synchronize may be called from any number of goroutines.
type stream struct {
	ops  chan func() error
	done chan struct{}

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	err     error
}

func newStream(depth int) *stream {
	s := &stream{
		ops:  make(chan func() error, depth),
		done: make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	go s.run()
	return s
}

func (s *stream) run() {
	defer close(s.done)
	for op := range s.ops {
		err := op()
		s.mu.Lock()
		if err != nil && s.err == nil {
			s.err = err
		}
		s.pending--
		if s.pending == 0 {
			s.idle.Broadcast()
		}
		s.mu.Unlock()
	}
}

func (s *stream) enqueue(op func() error) {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
	s.ops <- op
}

// synchronize blocks until the stream has drained and returns the first
// error any of its work produced since the previous call.
func (s *stream) synchronize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
	err := s.err
	s.err = nil
	return err
}

func (s *stream) close() error {
	err := s.synchronize()
	close(s.ops)
	<-s.done
	return err
}
