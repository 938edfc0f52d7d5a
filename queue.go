package bootstage

import (
	"sort"
	"sync"
	"sync/atomic"
)

// DefaultOrder is the order hooks are registered at unless AtOrder says otherwise.
const DefaultOrder = 10

// Hook is a fire-and-forget function run during a stage phase.
type Hook func()

// SerialHook is run during the before-serial phase. The during phase of the
// stage does not start until every serial hook has called done.
type SerialHook func(done func())

// phase identifies one of the four hook queues of a stage.
type phase uint8

const (
	phaseBefore phase = iota
	phaseBeforeSerial
	phaseDuring
	phaseAfter
	phaseCount
)

// String returns the name of the phase as used in log messages.
func (p phase) String() string {
	switch p {
	case phaseBefore:
		return "before"
	case phaseBeforeSerial:
		return "before-serial"
	case phaseDuring:
		return "during"
	case phaseAfter:
		return "after"
	default:
		return "unknown"
	}
}

// HookOption configures the registration of a single hook.
type HookOption func(*hookConfig)

type hookConfig struct {
	order int
}

// AtOrder registers a hook at the given order. Hooks with a lower order run
// first; hooks sharing an order run in registration order.
func AtOrder(order int) HookOption {
	return func(cfg *hookConfig) {
		cfg.order = order
	}
}

// hookEntry holds exactly one of hook or serial.
type hookEntry struct {
	hook   Hook
	serial SerialHook
}

// run invokes the entry outside of any queue. Serial hooks receive a callback
// that does nothing.
func (e hookEntry) run() {
	if e.serial != nil {
		e.serial(func() {})
		return
	}
	e.hook()
}

// hookQueue maps an order to the hooks registered at that order.
type hookQueue map[int][]hookEntry

func (q hookQueue) push(order int, e hookEntry) {
	q[order] = append(q[order], e)
}

// drain empties the queue and returns its entries sorted by numeric order,
// keeping registration order within each order.
func (q hookQueue) drain() []hookEntry {
	if len(q) == 0 {
		return nil
	}

	orders := make([]int, 0, len(q))
	for order := range q {
		orders = append(orders, order)
	}
	sort.Ints(orders)

	var entries []hookEntry
	for _, order := range orders {
		entries = append(entries, q[order]...)
		delete(q, order)
	}

	return entries
}

func runHooks(entries []hookEntry) {
	for _, e := range entries {
		e.run()
	}
}

// runSerial invokes every serial hook with its own single-shot callback and
// calls next once all of them have called back. The number of hooks is fixed
// before any of them runs, so a hook that calls back synchronously can't
// release next early.
func runSerial(entries []hookEntry, next func()) {
	if len(entries) == 0 {
		next()
		return
	}

	remaining := new(atomic.Int32)
	remaining.Store(int32(len(entries)))

	for _, e := range entries {
		var once sync.Once
		e.serial(func() {
			once.Do(func() {
				if remaining.Add(-1) == 0 {
					next()
				}
			})
		})
	}
}
