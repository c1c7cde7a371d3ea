package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/akondrashev/coroscope/coro"
	"github.com/akondrashev/coroscope/dispatch"
	"github.com/akondrashev/coroscope/scope"
)

func newActivityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activity",
		Short: "Log around a dispatcher switch: A, C, B",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEnv()
			defer e.close()

			// The launch body runs synchronously up to the switch, so A
			// precedes C; B follows the asynchronous hop to IO.
			s := scope.New(cmd.Context(), dispatch.Unconfined(), scope.FailFast, scope.WithObserver(e.obs))
			_, err := s.Launch(func(ctx context.Context) coro.Op {
				e.logf("A: before the switch", dispatch.WorkerName(ctx))
				return coro.Transfer(e.io, func(ctx context.Context) coro.Op {
					return coro.Delay(50*time.Millisecond, func(ctx context.Context) coro.Op {
						e.logf("B: inside the IO block", dispatch.WorkerName(ctx))
						return coro.Done()
					})
				}, func(ctx context.Context) coro.Op {
					e.logf("back after the switch", dispatch.WorkerName(ctx))
					return coro.Done()
				})
			})
			if err != nil {
				return err
			}
			e.logf("C: right after launch", "caller")
			return s.Wait()
		},
	}
}
