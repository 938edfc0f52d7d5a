package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mkock/bootstage"
	"github.com/mkock/bootstage/internal/plan"
)

func runPlan(ctx context.Context, out io.Writer, log zerolog.Logger, path string, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p, err := plan.Load(path)
	if err != nil {
		return err
	}
	if opts.order != "" {
		p.Order = opts.order
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	return simulate(ctx, out, log, p, opts.deadline)
}

// simulate launches the stages of p. Every waiter of a stage is armed during
// the stage and completed after the stage's delay by an errgroup goroutine.
func simulate(ctx context.Context, out io.Writer, log zerolog.Logger, p *plan.Plan, deadline time.Duration) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := bootstage.New(bootstage.WithLogger(log))
	if err := p.Apply(c); err != nil {
		return err
	}

	c.OnAnyBegin(func(s *bootstage.Stage) {
		log.Info().Str("stage", s.Name()).Msg("stage began")
	})
	c.OnAnyEnd(func(s *bootstage.Stage) {
		waiters, _ := s.Counts()
		log.Info().Str("stage", s.Name()).Int("waiters", waiters).Msg("stage finished")
	})

	c.OnLaunching(func(s *bootstage.Stage) {
		log.Debug().Str("stage", s.Name()).Msg("launching")
	})
	c.OnLaunched(func(s *bootstage.Stage) {
		log.Debug().Str("stage", s.Name()).Msg("launched")
	})

	g, gctx := errgroup.WithContext(ctx)

	for _, ps := range p.Stages {
		ps := ps
		stage := c.Stage(ps.Name)
		delay, err := ps.DelayDuration()
		if err != nil {
			return err
		}

		stage.During(func() {
			for i := 0; i < ps.Waiters; i++ {
				t := stage.Waiter()
				g.Go(func() error {
					select {
					case <-time.After(delay):
						t.Done()
						return nil
					case <-gctx.Done():
						return gctx.Err()
					}
				})
			}
		})
	}

	order, err := p.OrderNames()
	if err != nil {
		return err
	}
	launched, err := p.Launched()
	if err != nil {
		return err
	}

	// Unknown names in the order are reported by Launch but don't stop it.
	if err := c.Launch(order, p.LaunchOptions()...); err != nil {
		log.Warn().Err(err).Msg("launch reported errors")
	}

	var waitErr error
	if !p.BeginOnly {
		done, err := c.WaitFor(launched...)
		if err != nil {
			return err
		}
		wctx, wcancel := context.WithTimeout(ctx, deadline)
		waitErr = done.Wait(wctx)
		wcancel()
		if waitErr != nil {
			cancel()
		}
	}

	if err := g.Wait(); err != nil && waitErr == nil {
		waitErr = err
	}

	fmt.Fprintln(out, c.String())

	if waitErr != nil {
		return fmt.Errorf("stages did not finish: %w", waitErr)
	}
	return nil
}
