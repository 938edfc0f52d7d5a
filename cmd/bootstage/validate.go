package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/mkock/bootstage/internal/plan"
)

func runValidate(out io.Writer, path string) error {
	p, err := plan.Load(path)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	launched, err := p.Launched()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d stages (%s), %d launched\n", path, len(p.Stages), strings.Join(p.Names(), ", "), len(launched))
	return nil
}
