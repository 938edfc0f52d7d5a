package bootstage

import "fmt"

// RegisterPrevention keeps the target stage from beginning until the blocker
// stage has finished. Both stages are created if necessary. A target may have
// several blockers; it begins once the last of them has finished, provided it
// tried to begin in the meantime.
//
// RegisterPrevention returns a SelfReferenceError when blocker and target are
// the same stage, and a CyclicReferenceError when the target already prevents
// the blocker, directly or through other stages. Registering a blocker that
// has already finished does nothing.
func (c *Coordinator) RegisterPrevention(blocker, target string) error {
	if blocker == target {
		err := SelfReferenceError(blocker)
		c.usageError(usageSelfReference, err)
		return err
	}

	c.mu.Lock()
	b := c.stage(blocker)
	c.stage(target)

	if b.finished {
		c.mu.Unlock()
		c.log.Verbose(fmt.Sprintf("Stage %q has already finished and can't prevent %q", blocker, target))
		return nil
	}

	if path := c.blockerPath(blocker, target, nil); path != nil {
		c.mu.Unlock()
		err := CyclicReferenceError(fmt.Sprintf("%q can't prevent %q: %s", blocker, target, formatPath(append(path, blocker))))
		c.usageError(usageCyclicReference, err)
		return err
	}

	c.preventions[target] = appendUnique(c.preventions[target], blocker)
	b.blocks = appendUnique(b.blocks, target)
	c.mu.Unlock()

	return nil
}

// ReleasePrevention lifts the prevention of target by blocker. If target has
// no blockers left and it tried to begin while prevented, it begins now.
func (c *Coordinator) ReleasePrevention(blocker, target string) {
	c.mu.Lock()
	if blockers := removeName(c.preventions[target], blocker); len(blockers) > 0 {
		c.preventions[target] = blockers
	} else {
		delete(c.preventions, target)
	}
	if b, ok := c.stages[blocker]; ok {
		b.blocks = removeName(b.blocks, target)
	}

	t, ok := c.stages[target]
	retry := ok && len(c.preventions[target]) == 0 && t.prevented && !t.starting && !t.begun
	c.mu.Unlock()

	if retry {
		_ = t.Begin()
	}
}

// Preventions returns the names of the stages currently preventing target.
func (c *Coordinator) Preventions(target string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.preventions[target]...)
}

// blockerPath returns the chain of stages leading from stage to one of its
// blockers named want, or nil if want doesn't transitively prevent stage. The
// coordinator lock must be held.
func (c *Coordinator) blockerPath(stage, want string, seen map[string]bool) []string {
	if seen == nil {
		seen = make(map[string]bool)
	}
	if seen[stage] {
		return nil
	}
	seen[stage] = true

	for _, blocker := range c.preventions[stage] {
		if blocker == want {
			return []string{want}
		}
		if path := c.blockerPath(blocker, want, seen); path != nil {
			return append(path, blocker)
		}
	}

	return nil
}

// formatPath renders a chain of blockers, each preventing the next one.
func formatPath(path []string) string {
	var s string
	for i, name := range path {
		if i > 0 {
			s += " prevents "
		}
		s += fmt.Sprintf("%q", name)
	}
	return s
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}

func removeName(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i:i], names[i+1:]...)
		}
	}
	return names
}
