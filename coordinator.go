package bootstage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Coordinator owns a set of named stages, the order in which they were first
// referenced, the prevention table between them and the hooks that run
// whenever any stage begins or ends.
type Coordinator struct {
	mu sync.Mutex // Protects every field below and the state of every Stage.

	stages      map[string]*Stage
	ordered     []*Stage
	preventions map[string][]string // Target stage name to the names of its blockers.
	anyBegin    []func(*Stage)
	anyEnd      []func(*Stage)
	launching   []func(*Stage)
	launched    []func(*Stage)

	defaultOrder int
	log          Logger
	metrics      *metrics
}

// New returns a Coordinator without any stages.
func New(opts ...Option) *Coordinator {
	cfg := config{defaultOrder: DefaultOrder}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.log == nil {
		cfg.log = defaultLogger()
	}

	return &Coordinator{
		stages:       make(map[string]*Stage),
		preventions:  make(map[string][]string),
		defaultOrder: cfg.defaultOrder,
		log:          cfg.log,
		metrics:      newMetrics(cfg.registerer, cfg.log),
	}
}

// Stage returns the stage with the given name, creating it if it doesn't exist.
func (c *Coordinator) Stage(name string) *Stage {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stage(name)
}

// stage is Stage for callers that hold the lock.
func (c *Coordinator) stage(name string) *Stage {
	if s, ok := c.stages[name]; ok {
		return s
	}
	s := newStage(c, name)
	c.stages[name] = s
	c.ordered = append(c.ordered, s)
	return s
}

// Lookup returns the stage with the given name, if it exists.
func (c *Coordinator) Lookup(name string) (*Stage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stages[name]
	return s, ok
}

// Stages returns every stage in the order in which it was first referenced.
func (c *Coordinator) Stages() []*Stage {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]*Stage(nil), c.ordered...)
}

// Begin begins the stage with the given name, creating it if necessary.
func (c *Coordinator) Begin(name string, opts ...BeginOption) error {
	var cfg beginConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s := c.Stage(name)
	if err := s.Begin(); err != nil {
		return err
	}
	if cfg.timeout > 0 {
		s.SetTimeout(cfg.timeout)
	}
	return nil
}

// End ends the stage with the given name. End returns an UnknownStageError if
// no such stage exists.
func (c *Coordinator) End(name string) error {
	s, ok := c.Lookup(name)
	if !ok {
		err := UnknownStageError(name)
		c.usageError(usageUnknownStage, err)
		return err
	}
	s.End()
	return nil
}

// Before registers a hook on the before queue of the named stage.
func (c *Coordinator) Before(name string, fn Hook, opts ...HookOption) {
	c.Stage(name).Before(fn, opts...)
}

// After registers a hook on the after queue of the named stage.
func (c *Coordinator) After(name string, fn Hook, opts ...HookOption) {
	c.Stage(name).After(fn, opts...)
}

// OnAnyBegin registers a function that is called whenever any stage begins.
func (c *Coordinator) OnAnyBegin(fn func(*Stage)) {
	c.mu.Lock()
	c.anyBegin = append(c.anyBegin, fn)
	c.mu.Unlock()
}

// OnAnyEnd registers a function that is called whenever any stage finishes.
func (c *Coordinator) OnAnyEnd(fn func(*Stage)) {
	c.mu.Lock()
	c.anyEnd = append(c.anyEnd, fn)
	c.mu.Unlock()
}

// OnLaunching registers a function that is called whenever Launch is about to
// begin a stage.
func (c *Coordinator) OnLaunching(fn func(*Stage)) {
	c.mu.Lock()
	c.launching = append(c.launching, fn)
	c.mu.Unlock()
}

// OnLaunched registers a function that is called once a stage begun by Launch
// has finished. Stages begun with Begin don't trigger it.
func (c *Coordinator) OnLaunched(fn func(*Stage)) {
	c.mu.Lock()
	c.launched = append(c.launched, fn)
	c.mu.Unlock()
}

// WaitFor returns a Completion that resolves once every named stage has
// finished. It is already resolved if they have all finished. WaitFor returns
// an UnknownStageError if any of the names has not been registered.
func (c *Coordinator) WaitFor(names ...string) (*Completion, error) {
	c.mu.Lock()
	targets := make([]*Stage, 0, len(names))
	pending := false
	for _, name := range names {
		s, ok := c.stages[name]
		if !ok {
			c.mu.Unlock()
			err := UnknownStageError(name)
			c.usageError(usageUnknownStage, err)
			return nil, err
		}
		pending = pending || !s.finished
		targets = append(targets, s)
	}
	c.mu.Unlock()

	if !pending {
		return resolvedCompletion(), nil
	}

	done := newCompletion()
	if len(targets) == 1 {
		targets[0].After(done.resolve)
		return done, nil
	}

	// The aggregation stage finishes once every target's after hook has
	// completed its ticket.
	agg := newStage(c, "wait-for:"+uuid.NewString())
	agg.private = true
	for _, s := range targets {
		s.After(agg.Waiter().Done)
	}
	agg.After(done.resolve)
	agg.End()

	return done, nil
}

// Launch begins and ends every stage in order, one after the other. Unknown
// names are logged and skipped; their errors are joined into the returned
// error. WithOthers makes Launch continue with every other registered stage
// that has not begun yet, in the order in which the stages were first
// referenced. BeginOnly leaves every launched stage open.
func (c *Coordinator) Launch(order []string, opts ...LaunchOption) error {
	var cfg launchConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var errs []error
	launched := make(map[string]struct{}, len(order))

	for _, name := range order {
		s, ok := c.Lookup(name)
		if !ok {
			err := UnknownStageError(name)
			c.usageError(usageUnknownStage, err)
			errs = append(errs, err)
			continue
		}
		launched[name] = struct{}{}
		c.launch(s, cfg.beginOnly)
	}

	if !cfg.others {
		return errors.Join(errs...)
	}

	for _, s := range c.Stages() {
		if _, ok := launched[s.name]; ok {
			continue
		}
		if _, ok := cfg.except[s.name]; ok {
			continue
		}
		c.mu.Lock()
		started := s.starting || s.begun
		c.mu.Unlock()
		if started {
			continue
		}
		c.launch(s, cfg.beginOnly)
	}

	return errors.Join(errs...)
}

func (c *Coordinator) launch(s *Stage, beginOnly bool) {
	c.mu.Lock()
	launching := append([]func(*Stage){}, c.launching...)
	launched := append([]func(*Stage){}, c.launched...)
	c.mu.Unlock()

	c.log.Verbose(fmt.Sprintf("Launching stage %q", s.name))
	for _, fn := range launching {
		fn(s)
	}
	s.After(func() {
		c.log.Verbose(fmt.Sprintf("Launched stage %q", s.name))
		for _, fn := range launched {
			fn(s)
		}
	})

	// Duplicate begins are logged by Begin, and ending the stage is still wanted.
	_ = s.Begin()
	if !beginOnly {
		s.End()
	}
}

// String returns the stages in the order in which they were first referenced,
// along with their state. Each stage is wrapped in parentheses, and stages are
// separated by a right-arrow.
func (c *Coordinator) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts := make([]string, len(c.ordered))
	for i, s := range c.ordered {
		parts[i] = "(" + s.name + ":" + s.state().String() + ")"
	}
	return strings.Join(parts, " > ")
}

func (c *Coordinator) usageError(kind string, err error) {
	c.metrics.usageError(kind)
	c.log.Error(err.Error())
}
