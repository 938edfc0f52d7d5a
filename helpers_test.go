package bootstage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// recorder keeps track of the order in which hooks ran.
type recorder struct {
	mu        sync.Mutex
	narrative []string
}

func (r *recorder) add(name string) {
	r.mu.Lock()
	r.narrative = append(r.narrative, name)
	r.mu.Unlock()
}

// hook returns a Hook that records the given name.
func (r *recorder) hook(name string) Hook {
	return func() { r.add(name) }
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.narrative...)
}

type logEntry struct {
	level, msg string
}

// memorySink stores log messages in-memory for tests.
type memorySink struct {
	mu      sync.Mutex
	entries []logEntry
}

func (m *memorySink) log(level, msg string) {
	m.mu.Lock()
	m.entries = append(m.entries, logEntry{level, msg})
	m.mu.Unlock()
}

func (m *memorySink) Warn(msg string)    { m.log("warn", msg) }
func (m *memorySink) Error(msg string)   { m.log("error", msg) }
func (m *memorySink) Verbose(msg string) { m.log("verbose", msg) }

func (m *memorySink) messages(level string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var msgs []string
	for _, e := range m.entries {
		if e.level == level {
			msgs = append(msgs, e.msg)
		}
	}
	return msgs
}

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *memorySink) {
	t.Helper()

	sink := &memorySink{}
	c := New(append([]Option{WithSink(sink)}, opts...)...)
	return c, sink
}

// verifyInvariants checks the invariants that hold for every stage at rest.
func verifyInvariants(t *testing.T, s *Stage) {
	t.Helper()

	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	require.GreaterOrEqual(t, s.waiters, 0)
	require.GreaterOrEqual(t, s.callers, 0)
	if s.finished {
		require.False(t, s.open, "finished stage %q is open", s.name)
		require.False(t, s.prevented, "finished stage %q is prevented", s.name)
		require.LessOrEqual(t, s.waiters, s.callers, "finished stage %q has outstanding waiters", s.name)
	}
}
