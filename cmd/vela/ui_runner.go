package main

import (
	"os"
	"runtime"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	"vela/internal/ui"
	"vela/internal/vm"
)

// runModulesWithUI executes every module on background goroutines while a
// Bubble Tea program renders their run events. The event channel closes once
// every module finished, which quits the view.
func runModulesWithUI(title string, runs []*moduleRun, exec func(*moduleRun, vm.RunObserver)) error {
	events := make(chan ui.Event, 256)
	done := make(chan struct{})

	go func() {
		g := new(errgroup.Group)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for _, r := range runs {
			observer := func(ev vm.RunEvent) {
				events <- ui.Event{
					Path:         r.path,
					Kind:         ev.Kind,
					Instructions: ev.Instructions,
					Stats:        ev.Stats,
					Err:          ev.Err,
				}
			}
			g.Go(func() error {
				exec(r, observer)
				return nil
			})
		}
		g.Wait()
		close(events)
		close(done)
	}()

	paths := make([]string, len(runs))
	for i, r := range runs {
		paths[i] = r.path
	}
	model := ui.NewRunModel(title, paths, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout))
	_, uiErr := program.Run()
	<-done
	return uiErr
}
