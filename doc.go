// Package bootstage provides a stage coordinator for sequencing the startup (or
// any multi-step) process of a long-running program. Each named stage runs its
// registered hooks in a defined order, may wait for asynchronous work before it
// is considered finished, and may prevent other stages from starting while it is
// active.
//
// Quick Start
//
// 	c := bootstage.New()
// 	c.Before("db", openPool)
// 	c.After("db", func() { log.Print("database ready") })
// 	c.Stage("db").Prevent("http")
//
// 	// Asynchronous work keeps the stage from finishing until its ticket fires.
// 	c.Stage("db").During(func() {
// 		t := c.Stage("db").Waiter()
// 		go func() { migrate(); t.Done() }()
// 	})
//
// 	// Begin and end "config", "db" and then every other registered stage.
// 	_ = c.Launch(bootstage.MustParseOrder("config > db"), bootstage.WithOthers())
//
// 	done, _ := c.WaitFor("db", "http")
// 	_ = done.Wait(context.Background())
//
// 	// Your application is now ready!
//
// A stage moves through Created, Prevented (transient), Begun, Open and Closed to
// Finished. It finishes once it has been ended, is not prevented, and every
// ticket returned by Waiter has been completed.
package bootstage
