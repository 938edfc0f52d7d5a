package bootstage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrevention(t *testing.T) {
	t.Run("a prevented stage begins once its blocker finished", func(t *testing.T) {
		c, _ := newTestCoordinator(t)
		r := &recorder{}
		require.NoError(t, c.Stage("A").Prevent("B"))
		c.Before("B", r.hook("B:before"))
		c.Stage("B").During(r.hook("B:during"))

		require.NoError(t, c.Begin("B"))
		assert.Empty(t, r.all())
		assert.True(t, c.Stage("B").Prevented())
		assert.Equal(t, StatePrevented, c.Stage("B").State())

		require.NoError(t, c.Begin("A"))
		assert.Empty(t, r.all())
		require.NoError(t, c.End("A"))

		assert.Equal(t, []string{"B:before", "B:during"}, r.all())
		assert.True(t, c.Stage("B").Begun())
		assert.False(t, c.Stage("B").Prevented())
		assert.Empty(t, c.Preventions("B"))
		assert.Empty(t, c.Stage("A").Blocks())
	})

	t.Run("a stage that never tried to begin is left alone", func(t *testing.T) {
		c, _ := newTestCoordinator(t)
		require.NoError(t, c.Stage("A").Prevent("B"))

		c.Stage("A").End()

		assert.Equal(t, StateCreated, c.Stage("B").State())
		assert.Empty(t, c.Preventions("B"))
	})

	t.Run("an ended prevented stage finishes after it began", func(t *testing.T) {
		c, _ := newTestCoordinator(t)
		r := &recorder{}
		require.NoError(t, c.Stage("A").Prevent("B"))
		c.After("B", r.hook("B:after"))

		require.NoError(t, c.Launch([]string{"B"}))
		assert.False(t, c.Stage("B").Finished())
		assert.Empty(t, r.all())

		require.NoError(t, c.Launch([]string{"A"}))

		assert.True(t, c.Stage("B").Finished())
		assert.Equal(t, []string{"B:after"}, r.all())
		verifyInvariants(t, c.Stage("B"))
	})

	t.Run("every blocker must finish", func(t *testing.T) {
		c, _ := newTestCoordinator(t)
		require.NoError(t, c.RegisterPrevention("A1", "B"))
		require.NoError(t, c.RegisterPrevention("A2", "B"))
		assert.Equal(t, []string{"A1", "A2"}, c.Preventions("B"))

		require.NoError(t, c.Begin("B"))
		c.Stage("A2").End()
		assert.False(t, c.Stage("B").Begun())
		assert.Equal(t, []string{"A1"}, c.Preventions("B"))

		c.Stage("A1").End()
		assert.True(t, c.Stage("B").Begun())
	})

	t.Run("registering twice has no extra effect", func(t *testing.T) {
		c, _ := newTestCoordinator(t)
		require.NoError(t, c.RegisterPrevention("A", "B"))
		require.NoError(t, c.RegisterPrevention("A", "B"))

		assert.Equal(t, []string{"A"}, c.Preventions("B"))
		assert.Equal(t, []string{"B"}, c.Stage("A").Blocks())
	})

	t.Run("a finished blocker prevents nothing", func(t *testing.T) {
		c, sink := newTestCoordinator(t)
		c.Stage("A").End()

		require.NoError(t, c.RegisterPrevention("A", "B"))

		assert.Empty(t, c.Preventions("B"))
		require.NoError(t, c.Begin("B"))
		assert.True(t, c.Stage("B").Begun())
		assert.Len(t, sink.messages("verbose"), 1)
	})

	t.Run("release by hand", func(t *testing.T) {
		c, _ := newTestCoordinator(t)
		require.NoError(t, c.RegisterPrevention("A", "B"))
		require.NoError(t, c.Begin("B"))

		c.ReleasePrevention("A", "B")

		assert.True(t, c.Stage("B").Begun())
		assert.Empty(t, c.Stage("A").Blocks())
	})

	t.Run("releasing an unknown prevention does nothing", func(t *testing.T) {
		c, _ := newTestCoordinator(t)

		c.ReleasePrevention("A", "B")

		assert.Empty(t, c.Stages())
	})

	t.Run("preventions chain", func(t *testing.T) {
		c, _ := newTestCoordinator(t)
		r := &recorder{}
		c.OnAnyBegin(func(s *Stage) { r.add(s.Name()) })
		require.NoError(t, c.RegisterPrevention("a", "b"))
		require.NoError(t, c.RegisterPrevention("b", "c"))

		require.NoError(t, c.Launch([]string{"c", "b", "a"}))

		assert.Equal(t, []string{"a", "b", "c"}, r.all())
		for _, s := range c.Stages() {
			assert.True(t, s.Finished(), "expected %q to finish", s.Name())
		}
	})
}

func TestPreventionErrors(t *testing.T) {
	t.Run("self reference", func(t *testing.T) {
		c, sink := newTestCoordinator(t)

		err := c.Stage("A").Prevent("A")

		assert.Equal(t, SelfReferenceError("A"), err)
		assert.Empty(t, c.Preventions("A"))
		assert.Len(t, sink.messages("error"), 1)
	})

	cases := []struct {
		name     string
		existing [][2]string
		blocker  string
		target   string
		message  string
	}{
		{
			"direct cycle",
			[][2]string{{"A", "B"}},
			"B", "A",
			`cyclic reference: "B" can't prevent "A": "A" prevents "B"`,
		},
		{
			"transitive cycle",
			[][2]string{{"A", "B"}, {"B", "C"}},
			"C", "A",
			`cyclic reference: "C" can't prevent "A": "A" prevents "B" prevents "C"`,
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			c, sink := newTestCoordinator(t)
			for _, p := range tt.existing {
				require.NoError(t, c.RegisterPrevention(p[0], p[1]))
			}

			err := c.RegisterPrevention(tt.blocker, tt.target)

			require.Error(t, err)
			assert.IsType(t, CyclicReferenceError(""), err)
			assert.Equal(t, tt.message, err.Error())
			assert.Empty(t, c.Preventions(tt.target))
			assert.Equal(t, []string{tt.message}, sink.messages("error"))
		})
	}

	t.Run("diamonds are not cycles", func(t *testing.T) {
		c, _ := newTestCoordinator(t)
		require.NoError(t, c.RegisterPrevention("A", "B"))
		require.NoError(t, c.RegisterPrevention("A", "C"))
		require.NoError(t, c.RegisterPrevention("B", "D"))
		require.NoError(t, c.RegisterPrevention("C", "D"))
		require.NoError(t, c.RegisterPrevention("A", "D"))
	})
}
