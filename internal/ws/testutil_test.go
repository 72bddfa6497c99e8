package ws

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

// mockSink records frames in memory and releases itself from the hub on
// Close, like a real connection does.
type mockSink struct {
	hub *Hub
	id  string

	mu        sync.Mutex
	frames    [][]byte
	closed    bool
	full      bool
	closeErr  error
	closeOnce sync.Once
}

func (s *mockSink) Enqueue(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClientDisconnected
	}
	if s.full {
		return ErrSlowConsumer
	}
	s.frames = append(s.frames, frame)
	return nil
}

func (s *mockSink) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.hub.Release(s.id)
	})
	return s.closeErr
}

func (s *mockSink) setFull(full bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.full = full
}

func (s *mockSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *mockSink) getFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.frames))
	copy(out, s.frames)
	return out
}

// events returns the event names received so far, connected ack excluded.
func (s *mockSink) events() []string {
	var names []string
	for _, f := range s.getFrames() {
		name := gjson.GetBytes(f, "event").String()
		if name == EventConnected.String() {
			continue
		}
		names = append(names, name)
	}
	return names
}

func (s *mockSink) count(kind EventKind) int {
	n := 0
	for _, name := range s.events() {
		if name == kind.String() {
			n++
		}
	}
	return n
}

func (s *mockSink) last() gjson.Result {
	frames := s.getFrames()
	if len(frames) == 0 {
		return gjson.Result{}
	}
	return gjson.ParseBytes(frames[len(frames)-1])
}

func (s *mockSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}

// memoryPresence records what the hub mirrors to its presence store.
type memoryPresence struct {
	mu        sync.Mutex
	online    map[string]int
	refreshed map[string]int
	refreshes int
}

func newMemoryPresence() *memoryPresence {
	return &memoryPresence{online: make(map[string]int)}
}

func (m *memoryPresence) MarkOnline(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.online[userID]++
	return nil
}

func (m *memoryPresence) MarkOffline(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.online[userID]--; m.online[userID] <= 0 {
		delete(m.online, userID)
	}
	return nil
}

func (m *memoryPresence) RefreshOnline(_ context.Context, counts map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed = make(map[string]int, len(counts))
	for userID, n := range counts {
		m.refreshed[userID] = n
	}
	m.refreshes++
	return nil
}

func (m *memoryPresence) lastRefresh() (map[string]int, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshed, m.refreshes
}

func (m *memoryPresence) onlineCount(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online[userID]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func createTestHub(t *testing.T, opts ...func(*Options)) *Hub {
	t.Helper()
	o := Options{Logger: discardLogger()}
	for _, apply := range opts {
		apply(&o)
	}
	return NewHub(o)
}

func connect(t *testing.T, hub *Hub, connID, userID, role string) *mockSink {
	t.Helper()
	sink := &mockSink{hub: hub, id: connID}
	err := hub.Admit(Principal{
		ConnectionID: connID,
		UserID:       userID,
		Email:        userID + "@studio.test",
		Role:         role,
	}, sink)
	require.NoError(t, err)
	return sink
}
