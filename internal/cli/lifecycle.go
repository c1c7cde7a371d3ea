package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/akondrashev/coroscope/coro"
	"github.com/akondrashev/coroscope/dispatch"
	"github.com/akondrashev/coroscope/scope"
)

func newLifecycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lifecycle",
		Short: "Destroying a scope's owner stops its tasks at the next suspension",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEnv()
			defer e.close()

			root := scope.New(cmd.Context(), e.main, scope.Supervisor, scope.WithObserver(e.obs))
			screen := root.Child(scope.FailFast)

			n := 0
			var poll coro.Step
			poll = func(ctx context.Context) coro.Op {
				n++
				e.logf(fmt.Sprintf("poll #%d", n), dispatch.WorkerName(ctx))
				return coro.Delay(40*time.Millisecond, poll)
			}
			if _, err := screen.Launch(poll); err != nil {
				return err
			}

			time.Sleep(150 * time.Millisecond)
			screen.Cancel(nil)
			if err := screen.Wait(); err != nil {
				return err
			}
			e.logf("screen destroyed, scope "+screen.State().String(), "caller")

			if _, err := screen.Launch(poll); err != nil {
				e.logf("late launch rejected: "+err.Error(), "caller")
			}
			time.Sleep(100 * time.Millisecond)
			e.logf("no poll lines after destroy", "caller")

			root.Cancel(nil)
			return root.Wait()
		},
	}
}
