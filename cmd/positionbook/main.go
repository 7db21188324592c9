// Command positionbook imports broker exports into a position book and
// serves the book and its NAV series.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path"
	"syscall"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")

	commander.Register(&serveCmd{}, "server")
	commander.Register(&importCmd{}, "book")
	commander.Register(&positionsCmd{}, "book")
	commander.Register(&resetCmd{}, "book")
	commander.Register(&seriesCmd{}, "series")
	commander.Register(&pasteNavCmd{}, "series")
	commander.Register(&pasteBenchCmd{}, "series")
	commander.Register(&clearNavCmd{}, "series")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := commander.Execute(ctx)
	stop()
	os.Exit(int(code))
}
