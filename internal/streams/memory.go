package streams

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

type memoryStream struct {
	entries []Entry
	touched time.Time
}

// MemoryLog is a process-local Log. Streams survive client reconnects but
// not restarts, and are only visible to this process.
type MemoryLog struct {
	mu      sync.Mutex
	streams map[string]*memoryStream
	notify  chan struct{}
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryLog creates a log whose streams expire ttl after their last
// append. A zero ttl keeps streams for an hour. Expired streams stop being
// visible at once and are freed by Prune.
func NewMemoryLog(ttl time.Duration) *MemoryLog {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryLog{
		streams: make(map[string]*memoryStream),
		notify:  make(chan struct{}),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (l *MemoryLog) Append(ctx context.Context, streamID string, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	s := l.streams[streamID]
	if s == nil {
		s = &memoryStream{}
		l.streams[streamID] = s
	}
	s.entries = append(s.entries, Entry{ID: fmt.Sprintf("%d-0", len(s.entries)+1), Event: event})
	s.touched = now

	close(l.notify)
	l.notify = make(chan struct{})
	return nil
}

func (l *MemoryLog) Read(ctx context.Context, streamID, after string, block time.Duration) ([]Entry, error) {
	seq, _, _ := strings.Cut(after, "-")
	offset, err := strconv.Atoi(seq)
	if err != nil {
		return nil, fmt.Errorf("invalid entry id %q", after)
	}

	timer := time.NewTimer(block)
	defer timer.Stop()
	for {
		l.mu.Lock()
		var out []Entry
		if s := l.streams[streamID]; s != nil && offset < len(s.entries) {
			out = append(out, s.entries[offset:]...)
		}
		notify := l.notify
		l.mu.Unlock()

		if len(out) > 0 {
			return out, nil
		}
		select {
		case <-notify:
		case <-timer.C:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *MemoryLog) Exists(ctx context.Context, streamID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.streams[streamID]
	return s != nil && l.now().Sub(s.touched) <= l.ttl, nil
}

// Prune frees streams whose ttl elapsed before now.
func (l *MemoryLog) Prune(ctx context.Context, now time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for id, s := range l.streams {
		if now.Sub(s.touched) > l.ttl {
			delete(l.streams, id)
			n++
		}
	}
	return n, nil
}

func (l *MemoryLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.streams = make(map[string]*memoryStream)
	return nil
}
