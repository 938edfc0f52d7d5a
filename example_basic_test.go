package bootstage_test

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mkock/bootstage"
)

func Example_basic() {
	// Let's use a few stages to construct a sentence!
	var words []string

	add := func(word string) bootstage.Hook {
		return func() {
			words = append(words, word)
		}
	}

	c := bootstage.New(bootstage.WithLogger(zerolog.Nop()))
	c.Before("welcome", add("Welcome"))
	c.Before("to", add("to"))
	c.Before("my", add("my"))
	c.Before("world", add("world!"))

	// "my" can't begin until "to" has finished.
	_ = c.Stage("to").Prevent("my")

	_ = c.Launch(bootstage.MustParseOrder("welcome > my > to"), bootstage.WithOthers())

	fmt.Println(strings.Join(words, " "))
	fmt.Println(c)

	// Output:
	// Welcome to my world!
	// (welcome:finished) > (to:finished) > (my:finished) > (world:finished)
}
