// Package cli implements the corodemo command: small scenarios that narrate
// scope lifetimes, dispatcher affinity, and suspension with tagged log
// lines carrying the executing worker's name.
package cli

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/akondrashev/coroscope/dispatch"
)

// NewRootCmd builds the corodemo command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "corodemo",
		Short:         "Scenarios demonstrating scopes, dispatchers, and suspension",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().Int("io-workers", dispatch.DefaultIOWorkers, "size of the io dispatcher pool")
	cmd.PersistentFlags().Int("compute-workers", 0, "size of the compute dispatcher pool (0 = GOMAXPROCS)")
	cmd.PersistentFlags().Bool("verbose", false, "log scope and task lifecycle events")

	viper.SetEnvPrefix("corodemo")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("io-workers", cmd.PersistentFlags().Lookup("io-workers"))
	_ = viper.BindPFlag("compute-workers", cmd.PersistentFlags().Lookup("compute-workers"))
	_ = viper.BindPFlag("verbose", cmd.PersistentFlags().Lookup("verbose"))

	cmd.AddCommand(newActivityCmd(), newRaceCmd(), newLifecycleCmd(), newMetricsCmd())
	return cmd
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
