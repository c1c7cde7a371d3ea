package cli

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/akondrashev/coroscope/dispatch"
	"github.com/akondrashev/coroscope/observe/logging"
	"github.com/akondrashev/coroscope/scope"
)

// env holds the dispatchers every scenario shares.
type env struct {
	main    *dispatch.Dispatcher
	io      *dispatch.Dispatcher
	compute *dispatch.Dispatcher
	obs     scope.Observer
	start   time.Time
}

func newEnv() *env {
	return &env{
		main:    dispatch.NewMain(),
		io:      dispatch.NewIO(viper.GetInt("io-workers")),
		compute: dispatch.NewCompute(viper.GetInt("compute-workers")),
		obs:     logging.New(newLogger()),
		start:   time.Now(),
	}
}

func (e *env) close() {
	e.main.Close()
	e.io.Close()
	e.compute.Close()
	e.main.Join()
	e.io.Join()
	e.compute.Join()
}

func (e *env) logf(tag, worker string) {
	fmt.Printf("%8s  %-30s [%s]\n", time.Since(e.start).Round(time.Millisecond), tag, worker)
}
