package bootstage

import (
	"fmt"
	"time"
)

// State represents where a Stage is in its lifecycle.
type State uint8

const (
	// StateCreated is a stage that has neither begun nor been ended.
	StateCreated State = iota
	// StatePrevented is a stage that tried to begin while another stage prevented it.
	StatePrevented
	// StateStarting is a stage waiting for its before-serial hooks to call back.
	StateStarting
	// StateOpen is a begun stage that still accepts waiters.
	StateOpen
	// StateClosed is an ended stage with outstanding waiters.
	StateClosed
	// StateFinished is the terminal state.
	StateFinished
)

// String returns the lower case name of the state.
func (st State) String() string {
	switch st {
	case StateCreated:
		return "created"
	case StatePrevented:
		return "prevented"
	case StateStarting:
		return "starting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Stage is a named unit of work with its own hook queues and completion
// tracking. Stages are created by a Coordinator and all of their state is
// guarded by the Coordinator's lock. Hooks always run with the lock released.
type Stage struct {
	c       *Coordinator
	name    string
	private bool // Aggregation stages created by WaitFor.

	queues [phaseCount]hookQueue

	waiters int // Outstanding tickets handed out by Waiter.
	callers int // Tickets that have called back.

	open      bool // Accepting new waiters; false once End has been called.
	starting  bool // Begin is waiting for before-serial hooks.
	begun     bool
	finished  bool
	prevented bool // Begin was attempted while a blocker was active.

	blocks  []string // Stages this one prevents from beginning.
	timeout timeoutGuard
	beganAt time.Time
	done    chan struct{}
}

func newStage(c *Coordinator, name string) *Stage {
	s := &Stage{
		c:    c,
		name: name,
		open: true,
		done: make(chan struct{}),
	}
	for i := range s.queues {
		s.queues[i] = make(hookQueue)
	}
	s.timeout.fire = s.onTimeout
	return s
}

// Name returns the name of the stage.
func (s *Stage) Name() string {
	return s.name
}

// Begin runs the any-begin hooks of the Coordinator followed by the before,
// before-serial and during queues of the stage. Begin returns a
// DuplicateBeginError if the stage has already begun. Otherwise, if another
// stage currently prevents this one, Begin marks the stage as prevented and
// returns; the stage begins automatically once its last blocker finishes.
func (s *Stage) Begin() error {
	c := s.c

	c.mu.Lock()
	if s.starting || s.begun {
		c.mu.Unlock()
		err := DuplicateBeginError(s.name)
		c.usageError(usageDuplicateBegin, err)
		return err
	}
	if blockers := c.preventions[s.name]; len(blockers) > 0 {
		s.prevented = true
		c.mu.Unlock()
		c.log.Verbose(fmt.Sprintf("Stage %q is prevented from beginning by %q", s.name, blockers))
		return nil
	}

	s.starting = true
	s.prevented = false
	s.beganAt = time.Now()
	anyBegin := append([]func(*Stage){}, c.anyBegin...)
	before := s.queues[phaseBefore].drain()
	serial := s.queues[phaseBeforeSerial].drain()
	c.mu.Unlock()

	c.metrics.begin(s)

	for _, fn := range anyBegin {
		fn(s)
	}
	runHooks(before)
	runSerial(serial, s.during)

	return nil
}

// during runs the during queue once every serial hook has called back, then
// marks the stage as begun. Hooks that register more during hooks are picked
// up before the stage is marked begun.
func (s *Stage) during() {
	c := s.c

	for {
		c.mu.Lock()
		entries := s.queues[phaseDuring].drain()
		if len(entries) == 0 {
			break
		}
		c.mu.Unlock()
		runHooks(entries)
	}

	s.starting = false
	s.begun = true
	finished := s.evaluate()
	c.mu.Unlock()

	if finished {
		s.finish()
	}
}

// Waiter increments the number of waiters of an open stage and returns the
// Ticket that counts it back. The stage can't finish until Done has been
// called on every Ticket. A closed stage accepts no new waiters; the returned
// Ticket does nothing.
func (s *Stage) Waiter() *Ticket {
	c := s.c
	c.mu.Lock()
	defer c.mu.Unlock()

	if !s.open {
		return &Ticket{}
	}

	s.waiters++
	s.timeout.reset()
	c.metrics.setOutstanding(s)

	return &Ticket{fire: s.caller}
}

// caller counts back a single waiter.
func (s *Stage) caller() {
	c := s.c

	c.mu.Lock()
	s.callers++
	s.timeout.reset()
	c.metrics.setOutstanding(s)
	finished := s.evaluate()
	c.mu.Unlock()

	if finished {
		s.finish()
	}
}

// End closes the stage for new waiters. The stage finishes as soon as every
// waiter has called back. Only the first call has effect.
func (s *Stage) End() {
	c := s.c

	c.mu.Lock()
	if !s.open {
		c.mu.Unlock()
		return
	}
	s.open = false
	s.timeout.stop()
	finished := s.evaluate()
	c.mu.Unlock()

	if finished {
		s.finish()
	}
}

// evaluate marks the stage as finished if it is closed, not prevented, and
// all of its waiters have called back. It reports whether this call finished
// the stage. The coordinator lock must be held.
func (s *Stage) evaluate() bool {
	if s.finished || s.prevented || s.open || s.waiters > s.callers {
		return false
	}
	s.finished = true
	s.timeout.stop()
	return true
}

// finish runs the after queue and the any-end hooks, then releases every stage
// this one prevents. It is called exactly once, right after evaluate reported
// true.
func (s *Stage) finish() {
	c := s.c

	c.mu.Lock()
	after := s.queues[phaseAfter].drain()
	var anyEnd []func(*Stage)
	if !s.private {
		anyEnd = append(anyEnd, c.anyEnd...)
	}
	blocks := s.blocks
	s.blocks = nil
	c.metrics.finish(s)
	c.mu.Unlock()

	runHooks(after)
	for _, fn := range anyEnd {
		fn(s)
	}
	for _, target := range blocks {
		c.ReleasePrevention(s.name, target)
	}

	close(s.done)
}

// Before registers a hook that runs when the stage begins.
func (s *Stage) Before(fn Hook, opts ...HookOption) {
	s.when(phaseBefore, hookEntry{hook: fn}, opts)
}

// BeforeSerial registers a hook that must call done before the during hooks of
// the stage may run.
func (s *Stage) BeforeSerial(fn SerialHook, opts ...HookOption) {
	s.when(phaseBeforeSerial, hookEntry{serial: fn}, opts)
}

// During registers a hook that runs once every before-serial hook has called
// back.
func (s *Stage) During(fn Hook, opts ...HookOption) {
	s.when(phaseDuring, hookEntry{hook: fn}, opts)
}

// After registers a hook that runs once the stage has finished.
func (s *Stage) After(fn Hook, opts ...HookOption) {
	s.when(phaseAfter, hookEntry{hook: fn}, opts)
}

// when queues the entry, or runs it right away if its phase has passed.
func (s *Stage) when(ph phase, e hookEntry, opts []HookOption) {
	c := s.c

	c.mu.Lock()
	cfg := hookConfig{order: c.defaultOrder}
	for _, opt := range opts {
		opt(&cfg)
	}

	late := false
	switch ph {
	case phaseBefore, phaseBeforeSerial:
		late = s.starting || s.begun
	case phaseDuring:
		late = s.begun
	}

	if s.finished || late {
		finished := s.finished
		c.mu.Unlock()
		if !finished {
			c.log.Verbose(fmt.Sprintf("Executed function meant %s stage %q after it had already begun", ph, s.name))
		}
		e.run()
		return
	}

	s.queues[ph].push(cfg.order, e)
	c.mu.Unlock()
}

// Prevent keeps the stage with the given name from beginning until this stage
// has finished.
func (s *Stage) Prevent(target string) error {
	return s.c.RegisterPrevention(s.name, target)
}

// SetTimeout makes the stage log a warning every d while it is unfinished and
// without waiter activity. The timeout is stopped when the stage is ended. It
// has no effect on a stage that was already ended.
func (s *Stage) SetTimeout(d time.Duration) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	if !s.open || s.finished {
		return
	}
	s.timeout.arm(d)
}

// StopTimeout cancels the timeout set with SetTimeout.
func (s *Stage) StopTimeout() {
	s.c.mu.Lock()
	s.timeout.stop()
	s.c.mu.Unlock()
}

func (s *Stage) onTimeout(gen uint64) {
	c := s.c

	c.mu.Lock()
	if !s.timeout.current(gen) || s.finished || !s.open {
		c.mu.Unlock()
		return
	}
	d := s.timeout.d
	waiters, callers := s.waiters, s.callers
	s.timeout.reset()
	c.metrics.timeout(s)
	c.mu.Unlock()

	c.log.Warn(fmt.Sprintf("Stage %q has timed out after %s (%d of %d waiters called back)", s.name, d, callers, waiters))
}

// Done returns a channel that is closed once the stage has finished and its
// after hooks have run.
func (s *Stage) Done() <-chan struct{} {
	return s.done
}

// State returns the current state of the stage.
func (s *Stage) State() State {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	return s.state()
}

func (s *Stage) state() State {
	switch {
	case s.finished:
		return StateFinished
	case s.prevented:
		return StatePrevented
	case s.starting:
		return StateStarting
	case !s.open:
		return StateClosed
	case s.begun:
		return StateOpen
	default:
		return StateCreated
	}
}

// Begun reports whether the stage has run its during hooks.
func (s *Stage) Begun() bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	return s.begun
}

// Open reports whether the stage still accepts new waiters.
func (s *Stage) Open() bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	return s.open
}

// Finished reports whether the stage has finished.
func (s *Stage) Finished() bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	return s.finished
}

// Prevented reports whether the stage tried to begin while being prevented and
// has not begun since.
func (s *Stage) Prevented() bool {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	return s.prevented
}

// Counts returns the number of waiters and the number of callers.
func (s *Stage) Counts() (waiters, callers int) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	return s.waiters, s.callers
}

// Blocks returns the names of the stages this stage currently prevents.
func (s *Stage) Blocks() []string {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	return append([]string(nil), s.blocks...)
}
