package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/akondrashev/coroscope/coro"
	"github.com/akondrashev/coroscope/observe/prom"
	"github.com/akondrashev/coroscope/scope"
)

func newMetricsCmd() *cobra.Command {
	var tasks int
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Run a fan-out workload and dump the Prometheus counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := newEnv()
			defer e.close()

			reg := prometheus.NewRegistry()
			obs := prom.New(reg)
			s := scope.New(cmd.Context(), e.compute, scope.Supervisor, scope.WithObserver(obs))

			for i := 0; i < tasks; i++ {
				if _, err := s.Launch(func(context.Context) coro.Op {
					return coro.Delay(20*time.Millisecond, func(context.Context) coro.Op {
						return coro.YieldTo(nil)
					})
				}, scope.On(e.io)); err != nil {
					return err
				}
			}
			if err := s.Wait(); err != nil {
				return err
			}

			fams, err := reg.Gather()
			if err != nil {
				return err
			}
			for _, mf := range fams {
				for _, m := range mf.GetMetric() {
					value := 0.0
					switch {
					case m.GetCounter() != nil:
						value = m.GetCounter().GetValue()
					case m.GetGauge() != nil:
						value = m.GetGauge().GetValue()
					case m.GetHistogram() != nil:
						fmt.Printf("%s count=%d sum=%v\n", mf.GetName(),
							m.GetHistogram().GetSampleCount(),
							time.Duration(float64(time.Second)*m.GetHistogram().GetSampleSum()).Round(time.Millisecond))
						continue
					}
					labels := ""
					for _, lp := range m.GetLabel() {
						labels += fmt.Sprintf("{%s=%s}", lp.GetName(), lp.GetValue())
					}
					fmt.Printf("%s%s %v\n", mf.GetName(), labels, value)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&tasks, "tasks", 32, "number of tasks to launch")
	return cmd
}
