package transport

import (
	"context"
	"sync"
)

// Sim is an in-memory Transport for tests and dry runs. Reads pop queued
// replies (empty once drained, like a timed-out port), writes are recorded
// as the hex-ASCII frames that were handed in.
type Sim struct {
	mutex   sync.Mutex
	replies [][]byte
	writes  []string
	closed  bool
}

var _ Transport = (*Sim)(nil)

func NewSim(replies ...[]byte) *Sim {
	return &Sim{replies: replies}
}

// QueueReply appends one raw reply to be returned by a later Read.
func (s *Sim) QueueReply(b []byte) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.replies = append(s.replies, b)
}

func (s *Sim) Read(ctx context.Context) ([]byte, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.replies) == 0 {
		return nil, nil
	}
	b := s.replies[0]
	s.replies = s.replies[1:]
	return b, nil
}

func (s *Sim) Write(ctx context.Context, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.writes = append(s.writes, string(data))
	return nil
}

// Writes returns a copy of everything written so far.
func (s *Sim) Writes() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]string, len(s.writes))
	copy(out, s.writes)
	return out
}

func (s *Sim) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.closed = true
	return nil
}
