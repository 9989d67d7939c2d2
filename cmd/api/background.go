package main

import "fmt"

// background runs fn in a goroutine that shutdown waits for. Panics are
// logged, never propagated.
func (app *application) background(fn func()) {
	app.wg.Add(1)

	go func() {
		defer app.wg.Done()
		defer func() {
			if err := recover(); err != nil {
				app.logger.Errorw("background task panicked", "error", fmt.Sprintf("%v", err))
			}
		}()

		fn()
	}()
}
