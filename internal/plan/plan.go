// Package plan loads launch plans: files that declare the stages of a
// Coordinator, the preventions between them and the order in which they are
// launched.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/mkock/bootstage"
)

var (
	// ErrEmptyPath is returned by Load for an empty path.
	ErrEmptyPath = errors.New("empty plan path")

	// ErrUnsupportedFormat is returned for files that are not YAML, TOML or JSON.
	ErrUnsupportedFormat = errors.New("unsupported plan format")

	// ErrNoStages is returned for a plan that declares no stages.
	ErrNoStages = errors.New("plan has no stages")

	// ErrEmptyStageName is returned for a stage without a name.
	ErrEmptyStageName = errors.New("stage has empty name")

	// ErrDuplicateStage is returned when two stages share a name.
	ErrDuplicateStage = errors.New("duplicate stage")

	// ErrUnknownStage is returned when a plan refers to a stage it doesn't declare.
	ErrUnknownStage = errors.New("unknown stage")

	// ErrInvalidDuration is returned for timeouts and delays that can't be parsed.
	ErrInvalidDuration = errors.New("invalid duration")

	// ErrNegativeWaiters is returned for a stage with a negative number of waiters.
	ErrNegativeWaiters = errors.New("negative number of waiters")
)

// Plan describes how a Coordinator is set up and launched.
type Plan struct {
	// Order is a launch order formula, such as "config > db > http".
	Order     string   `json:"order" yaml:"order" toml:"order"`
	Others    bool     `json:"others" yaml:"others" toml:"others"`
	Exclude   []string `json:"exclude" yaml:"exclude" toml:"exclude"`
	BeginOnly bool     `json:"begin_only" yaml:"begin_only" toml:"begin_only"`
	Stages    []Stage  `json:"stages" yaml:"stages" toml:"stages"`
}

// Stage describes a single stage of a Plan.
type Stage struct {
	Name     string   `json:"name" yaml:"name" toml:"name"`
	Timeout  string   `json:"timeout" yaml:"timeout" toml:"timeout"`
	Prevents []string `json:"prevents" yaml:"prevents" toml:"prevents"`
	// Waiters is the number of units of asynchronous work the stage waits
	// for, each one completing after Delay.
	Waiters int    `json:"waiters" yaml:"waiters" toml:"waiters"`
	Delay   string `json:"delay" yaml:"delay" toml:"delay"`
}

// Load reads a plan file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (*Plan, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// Parse decodes a plan in the given format: yaml, yml, json or toml.
func Parse(b []byte, format string) (*Plan, error) {
	var p Plan
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("decode yaml plan: %w", err)
		}
	case "json":
		if err := json.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("decode json plan: %w", err)
		}
	case "toml":
		if err := toml.Unmarshal(b, &p); err != nil {
			return nil, fmt.Errorf("decode toml plan: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return &p, nil
}

// TimeoutDuration returns the parsed timeout of the stage, or zero if it has none.
func (s Stage) TimeoutDuration() (time.Duration, error) {
	return parseDuration(s.Name, "timeout", s.Timeout)
}

// DelayDuration returns the parsed delay of the stage, or zero if it has none.
func (s Stage) DelayDuration() (time.Duration, error) {
	return parseDuration(s.Name, "delay", s.Delay)
}

func parseDuration(stage, field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("stage %q: %w for %s: %q", stage, ErrInvalidDuration, field, value)
	}
	return d, nil
}

// OrderNames returns the stage names of the launch order formula. An empty
// formula yields no names.
func (p *Plan) OrderNames() ([]string, error) {
	if strings.TrimSpace(p.Order) == "" {
		return nil, nil
	}
	return bootstage.ParseOrder(p.Order)
}

// Validate checks that every name the plan refers to is declared, that every
// duration parses, and that the preventions don't form a cycle.
func (p *Plan) Validate() error {
	if len(p.Stages) == 0 {
		return ErrNoStages
	}

	declared := make(map[string]bool, len(p.Stages))
	for _, s := range p.Stages {
		if s.Name == "" {
			return ErrEmptyStageName
		}
		if declared[s.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateStage, s.Name)
		}
		declared[s.Name] = true
	}

	order, err := p.OrderNames()
	if err != nil {
		return fmt.Errorf("order: %w", err)
	}
	refs := map[string][]string{"order": order, "exclude": p.Exclude}
	for _, s := range p.Stages {
		refs[fmt.Sprintf("stage %q prevents", s.Name)] = s.Prevents
		if _, err := s.TimeoutDuration(); err != nil {
			return err
		}
		if _, err := s.DelayDuration(); err != nil {
			return err
		}
		if s.Waiters < 0 {
			return fmt.Errorf("stage %q: %w", s.Name, ErrNegativeWaiters)
		}
	}
	for field, names := range refs {
		for _, name := range names {
			if !declared[name] {
				return fmt.Errorf("%s: %w: %q", field, ErrUnknownStage, name)
			}
		}
	}

	// A scratch coordinator detects self-references and cycles.
	scratch := bootstage.New(bootstage.WithLogger(zerolog.Nop()))
	return p.registerPreventions(scratch)
}

// Apply declares the stages of the plan on c in plan order, registers their
// preventions, and arms the timeout of each stage when it begins. The plan
// must have been validated.
func (p *Plan) Apply(c *bootstage.Coordinator) error {
	for _, s := range p.Stages {
		stage := c.Stage(s.Name)
		d, err := s.TimeoutDuration()
		if err != nil {
			return err
		}
		if d > 0 {
			stage.Before(func() { stage.SetTimeout(d) }, bootstage.AtOrder(0))
		}
	}
	return p.registerPreventions(c)
}

func (p *Plan) registerPreventions(c *bootstage.Coordinator) error {
	for _, s := range p.Stages {
		for _, target := range s.Prevents {
			if err := c.RegisterPrevention(s.Name, target); err != nil {
				return err
			}
		}
	}
	return nil
}

// LaunchOptions returns the options Coordinator.Launch is called with.
func (p *Plan) LaunchOptions() []bootstage.LaunchOption {
	var opts []bootstage.LaunchOption
	switch {
	case len(p.Exclude) > 0:
		opts = append(opts, bootstage.WithOthersExcept(p.Exclude...))
	case p.Others:
		opts = append(opts, bootstage.WithOthers())
	}
	if p.BeginOnly {
		opts = append(opts, bootstage.BeginOnly())
	}
	return opts
}

// Names returns the names of the stages in plan order.
func (p *Plan) Names() []string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = s.Name
	}
	return names
}

// Launched returns the names of the stages a launch of the plan begins: the
// stages of the order formula followed by, if others are launched, every
// other declared stage that is not excluded.
func (p *Plan) Launched() ([]string, error) {
	order, err := p.OrderNames()
	if err != nil {
		return nil, err
	}
	if !p.Others && len(p.Exclude) == 0 {
		return order, nil
	}

	skip := make(map[string]bool, len(order)+len(p.Exclude))
	for _, name := range order {
		skip[name] = true
	}
	for _, name := range p.Exclude {
		skip[name] = true
	}

	names := order
	for _, s := range p.Stages {
		if !skip[s.Name] {
			names = append(names, s.Name)
		}
	}
	return names, nil
}
