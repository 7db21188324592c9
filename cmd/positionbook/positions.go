package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/strategy"
)

type positionsCmd struct {
	account   string
	collapsed string
	netted    bool
	asJSON    bool
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "List the positions of an account or of ALL." }
func (*positionsCmd) Usage() string {
	return `positions [-account <name>] [-netted] [-collapsed <id,id>] [-json]:
  Prints the book. -netted groups option legs by strategy id.
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", models.AllAccounts, "Account name or ALL")
	f.BoolVar(&c.netted, "netted", false, "Group option legs into strategy summaries")
	f.StringVar(&c.collapsed, "collapsed", "", "Comma separated strategy ids whose legs are hidden")
	f.BoolVar(&c.asJSON, "json", false, "Print JSON")
}

func (c *positionsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	positions, err := a.store.Positions(ctx, c.account)
	if err != nil {
		fmt.Fprintf(os.Stderr, "positions: %v\n", err)
		return subcommands.ExitFailure
	}

	if !c.netted {
		if c.asJSON {
			err = printJSON(positions)
		} else {
			err = printPositions(positions)
		}
	} else {
		rows := strategy.Netted(positions, strategy.Options{Collapsed: strategy.ParseCollapsed(c.collapsed)})
		if c.asJSON {
			err = printJSON(rows)
		} else {
			err = printNetted(rows)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printPositions(positions []models.Position) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "ACCOUNT\tSYMBOL\tCLASS\tQTY\tPRICE\tAVG COST\tMKT VALUE\tP&L\tP&L %\t")
	for i := range positions {
		p := &positions[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%.2f\t%s\t%.2f\t%.2f\t%.1f\t\n",
			p.Account, p.Symbol, p.AssetClass, p.Quantity, p.Price,
			formatOptional(p.AvgCost), p.MarketValue, p.TotalPnL, p.ProfitPercent())
	}
	return w.Flush()
}

func printNetted(rows []strategy.Row) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "SYMBOL\tSIDE\tQTY\tPRICE\tAVG COST\tMKT VALUE\tP&L\tP&L %\t")
	for _, r := range rows {
		switch {
		case r.Summary != nil:
			s := r.Summary
			fmt.Fprintf(w, "%s %s (%d legs)\t%s\t%g\t%.2f\t%.2f\t%.2f\t%.2f\t%.1f\t\n",
				s.Underlying, s.StrategyID, s.Legs, s.Side, s.Units, s.NetPrice,
				s.NetAvgCost, s.MarketValue, s.TotalPnL, s.ProfitPercent)
		case r.Position != nil:
			p := r.Position
			name := p.Symbol
			if r.Leg {
				name = "  " + name
			}
			fmt.Fprintf(w, "%s\t\t%g\t%.2f\t%s\t%.2f\t%.2f\t%.1f\t\n",
				name, p.Quantity, p.Price, formatOptional(p.AvgCost),
				p.MarketValue, p.TotalPnL, p.ProfitPercent())
		}
	}
	return w.Flush()
}
