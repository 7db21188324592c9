package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type pasteNavCmd struct {
	account    string
	appendMode bool
}

func (*pasteNavCmd) Name() string     { return "paste-nav" }
func (*pasteNavCmd) Synopsis() string { return "Load \"DATE, NAV\" lines as an account's history." }
func (*pasteNavCmd) Usage() string {
	return `paste-nav -account <name> [-append] [file]:
  Reads one "DATE, NAV" pair per line from file or stdin. Without -append the
  account's history is replaced.
`
}

func (c *pasteNavCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Account the history belongs to")
	f.BoolVar(&c.appendMode, "append", false, "Merge into the existing history")
}

func (c *pasteNavCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	text, err := readInput(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "paste-nav: %v\n", err)
		return subcommands.ExitFailure
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	report, err := a.series.ImportNavText(ctx, c.account, string(text), c.appendMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "paste-nav: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := printJSON(report); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type pasteBenchCmd struct {
	appendMode bool
}

func (*pasteBenchCmd) Name() string { return "paste-bench" }
func (*pasteBenchCmd) Synopsis() string {
	return "Load \"DATE, CLOSE\" lines into the benchmark cache."
}
func (*pasteBenchCmd) Usage() string {
	return `paste-bench [-append] [file]:
  Reads benchmark closes from file or stdin. Without -append the cached
  closes of the benchmark symbol are replaced.
`
}

func (c *pasteBenchCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.appendMode, "append", false, "Merge into the existing cache")
}

func (c *pasteBenchCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	text, err := readInput(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "paste-bench: %v\n", err)
		return subcommands.ExitFailure
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	report, err := a.series.ImportBenchmarkText(ctx, string(text), c.appendMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "paste-bench: %v\n", err)
		return subcommands.ExitFailure
	}
	if err := printJSON(report); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type clearNavCmd struct {
	account string
}

func (*clearNavCmd) Name() string     { return "clear-nav" }
func (*clearNavCmd) Synopsis() string { return "Delete an account's NAV history." }
func (*clearNavCmd) Usage() string {
	return `clear-nav -account <name>:
  Deletes every stored snapshot of the account.
`
}

func (c *clearNavCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Account whose history is deleted")
}

func (c *clearNavCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := a.series.ClearHistory(ctx, c.account); err != nil {
		fmt.Fprintf(os.Stderr, "clear-nav: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("History of %s cleared\n", c.account)
	return subcommands.ExitSuccess
}
