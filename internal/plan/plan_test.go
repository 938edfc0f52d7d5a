package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkock/bootstage"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

const yamlPlan = `
order: config > db
others: true
stages:
  - name: config
  - name: db
    timeout: 2s
    prevents: [http]
    waiters: 2
    delay: 50ms
  - name: http
`

func TestLoadYAML(t *testing.T) {
	p, err := Load(writeTempFile(t, t.TempDir(), "plan.yaml", yamlPlan))
	require.NoError(t, err)

	assert.Equal(t, "config > db", p.Order)
	assert.True(t, p.Others)
	assert.Equal(t, []string{"config", "db", "http"}, p.Names())
	assert.Equal(t, []string{"http"}, p.Stages[1].Prevents)
	assert.Equal(t, 2, p.Stages[1].Waiters)

	d, err := p.Stages[1].TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
	d, err = p.Stages[1].DelayDuration()
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, d)
}

func TestLoadJSON(t *testing.T) {
	p, err := Load(writeTempFile(t, t.TempDir(), "plan.json",
		`{"order":"a > b","begin_only":true,"exclude":["c"],"stages":[{"name":"a"},{"name":"b","prevents":["c"]},{"name":"c"}]}`))
	require.NoError(t, err)

	assert.True(t, p.BeginOnly)
	assert.Equal(t, []string{"c"}, p.Exclude)
	assert.Equal(t, []string{"a", "b", "c"}, p.Names())
	require.NoError(t, p.Validate())
}

func TestLoadTOML(t *testing.T) {
	p, err := Load(writeTempFile(t, t.TempDir(), "plan.toml", `
order = "a"
others = true

[[stages]]
name = "a"
timeout = "1s"

[[stages]]
name = "b"
waiters = 1
delay = "5ms"
`))
	require.NoError(t, err)

	assert.Equal(t, "a", p.Order)
	assert.Equal(t, []string{"a", "b"}, p.Names())
	assert.Equal(t, 1, p.Stages[1].Waiters)
	require.NoError(t, p.Validate())
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	d := t.TempDir()
	_, err = Load(writeTempFile(t, d, "plan.txt", "not supported"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Load(filepath.Join(d, "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = Load(writeTempFile(t, d, "broken.json", "{"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	stages := func(ss ...Stage) []Stage { return ss }

	cases := []struct {
		name string
		plan Plan
		err  error
	}{
		{"no stages", Plan{}, ErrNoStages},
		{"empty name", Plan{Stages: stages(Stage{})}, ErrEmptyStageName},
		{"duplicate", Plan{Stages: stages(Stage{Name: "a"}, Stage{Name: "a"})}, ErrDuplicateStage},
		{"unknown order", Plan{Order: "a > b", Stages: stages(Stage{Name: "a"})}, ErrUnknownStage},
		{"unknown exclude", Plan{Exclude: []string{"b"}, Stages: stages(Stage{Name: "a"})}, ErrUnknownStage},
		{"unknown prevention", Plan{Stages: stages(Stage{Name: "a", Prevents: []string{"b"}})}, ErrUnknownStage},
		{"bad timeout", Plan{Stages: stages(Stage{Name: "a", Timeout: "soon"})}, ErrInvalidDuration},
		{"negative delay", Plan{Stages: stages(Stage{Name: "a", Delay: "-1s"})}, ErrInvalidDuration},
		{"negative waiters", Plan{Stages: stages(Stage{Name: "a", Waiters: -1})}, ErrNegativeWaiters},
		{"bad order", Plan{Order: "a >", Stages: stages(Stage{Name: "a"})}, bootstage.ParseError{}},
		{"self prevention", Plan{Stages: stages(Stage{Name: "a", Prevents: []string{"a"}})}, bootstage.SelfReferenceError("a")},
		{
			"prevention cycle",
			Plan{Stages: stages(Stage{Name: "a", Prevents: []string{"b"}}, Stage{Name: "b", Prevents: []string{"a"}})},
			bootstage.CyclicReferenceError(""),
		},
		{"valid", Plan{Order: "a", Others: true, Stages: stages(Stage{Name: "a", Prevents: []string{"b"}}, Stage{Name: "b"})}, nil},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			switch want := tt.err.(type) {
			case nil:
				assert.NoError(t, err)
			case bootstage.ParseError:
				assert.ErrorAs(t, err, &want)
			case bootstage.CyclicReferenceError:
				assert.ErrorAs(t, err, &want)
			default:
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestLaunched(t *testing.T) {
	base := []Stage{{Name: "a"}, {Name: "b"}, {Name: "c"}}

	cases := []struct {
		name     string
		plan     Plan
		expected []string
	}{
		{"order only", Plan{Order: "c > a", Stages: base}, []string{"c", "a"}},
		{"others", Plan{Order: "c", Others: true, Stages: base}, []string{"c", "a", "b"}},
		{"exclude", Plan{Exclude: []string{"b"}, Stages: base}, []string{"a", "c"}},
		{"nothing", Plan{Stages: base}, nil},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			names, err := tt.plan.Launched()
			require.NoError(t, err)
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestApply(t *testing.T) {
	p, err := Parse([]byte(yamlPlan), "yaml")
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	c := bootstage.New(bootstage.WithLogger(zerolog.Nop()))
	require.NoError(t, p.Apply(c))

	var names []string
	for _, s := range c.Stages() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"config", "db", "http"}, names)
	assert.Equal(t, []string{"db"}, c.Preventions("http"))

	order, err := p.OrderNames()
	require.NoError(t, err)
	require.NoError(t, c.Launch(order, p.LaunchOptions()...))

	assert.True(t, c.Stage("config").Finished())
	assert.True(t, c.Stage("db").Finished())
	assert.True(t, c.Stage("http").Finished())
}

func TestLaunchOptions(t *testing.T) {
	assert.Empty(t, (&Plan{}).LaunchOptions())
	assert.Len(t, (&Plan{Others: true}).LaunchOptions(), 1)
	assert.Len(t, (&Plan{Exclude: []string{"a"}, Others: true}).LaunchOptions(), 1)
	assert.Len(t, (&Plan{Others: true, BeginOnly: true}).LaunchOptions(), 2)
}
