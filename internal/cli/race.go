package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/akondrashev/coroscope/coro"
	"github.com/akondrashev/coroscope/scope"
)

func newRaceCmd() *cobra.Command {
	var delay time.Duration
	cmd := &cobra.Command{
		Use:   "race",
		Short: "Two launched delays finish in ~D; one chained pair takes ~2D",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEnv()
			defer e.close()

			s := scope.New(cmd.Context(), e.main, scope.FailFast, scope.WithObserver(e.obs))

			start := time.Now()
			for i := 0; i < 2; i++ {
				if _, err := s.Launch(func(context.Context) coro.Op {
					return coro.Delay(delay, nil)
				}); err != nil {
					return err
				}
			}
			if err := s.Wait(); err != nil {
				return err
			}
			fmt.Printf("two launches: %v\n", time.Since(start).Round(time.Millisecond))

			start = time.Now()
			if _, err := s.Launch(func(context.Context) coro.Op {
				return coro.Delay(delay, func(context.Context) coro.Op {
					return coro.Delay(delay, nil)
				})
			}); err != nil {
				return err
			}
			if err := s.Wait(); err != nil {
				return err
			}
			fmt.Printf("one chain:    %v\n", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 200*time.Millisecond, "suspension duration D")
	return cmd
}
