package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type resetCmd struct {
	account string
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "Drop an account's positions, balances and NAV history." }
func (*resetCmd) Usage() string {
	return `reset -account <name>:
  Clears everything stored for one account. ALL is rejected.
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Account to reset")
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.account == "" {
		fmt.Fprintln(os.Stderr, "reset: -account is required")
		return subcommands.ExitUsageError
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := a.service.ResetAccount(ctx, c.account); err != nil {
		fmt.Fprintf(os.Stderr, "reset: %v\n", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("reset %s\n", c.account)
	return subcommands.ExitSuccess
}
