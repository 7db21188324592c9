package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/navseries"
	"github.com/eddiefleurent/positionbook/internal/util"
)

type seriesCmd struct {
	account string
	from    string
	to      string
	asJSON  bool
}

func (*seriesCmd) Name() string     { return "series" }
func (*seriesCmd) Synopsis() string { return "Print the NAV and benchmark series with statistics." }
func (*seriesCmd) Usage() string {
	return `series [-account <name>] [-from <date>] [-to <date>] [-json]:
  Prints the NAV series of an account, or the sum over ALL accounts.
`
}

func (c *seriesCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", models.AllAccounts, "Account name or ALL")
	f.StringVar(&c.from, "from", "", "First date (inclusive)")
	f.StringVar(&c.to, "to", "", "Last date (inclusive)")
	f.BoolVar(&c.asJSON, "json", false, "Print JSON")
}

func parseRange(from, to string) (navseries.Range, error) {
	var r navseries.Range
	for _, p := range []struct {
		name string
		raw  string
		dst  *time.Time
	}{{"from", from, &r.From}, {"to", to, &r.To}} {
		if p.raw == "" {
			continue
		}
		d, ok := util.ParseDate(p.raw)
		if !ok {
			return r, fmt.Errorf("invalid -%s date %q", p.name, p.raw)
		}
		*p.dst = d
	}
	return r, nil
}

func (c *seriesCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	rng, err := parseRange(c.from, c.to)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	points, err := a.series.SeriesFor(ctx, c.account, rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "series: %v\n", err)
		return subcommands.ExitFailure
	}
	stats := navseries.ComputeStats(points)

	if c.asJSON {
		err = printJSON(struct {
			Account string            `json:"account"`
			Points  []models.NavPoint `json:"points"`
			Stats   navseries.Stats   `json:"stats"`
		}{c.account, points, stats})
	} else {
		err = printSeries(points, stats)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printSeries(points []models.NavPoint, stats navseries.Stats) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tNAV\tBENCH\tSOURCE")
	for _, p := range points {
		fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%s\n", p.Date.Format(models.DateLayout), p.NAV, p.Bench, p.BenchSource)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "\tTOTAL RETURN\tMAX DRAWDOWN\tVOLATILITY\n")
	fmt.Fprintf(w, "NAV\t%.2f%%\t%.2f%%\t%.2f%%\n", stats.NAV.TotalReturn*100, stats.NAV.MaxDrawdown*100, stats.NAV.Volatility*100)
	fmt.Fprintf(w, "BENCH\t%.2f%%\t%.2f%%\t%.2f%%\n", stats.Bench.TotalReturn*100, stats.Bench.MaxDrawdown*100, stats.Bench.Volatility*100)
	fmt.Fprintf(w, "CORRELATION\t%.3f\n", stats.Correlation)
	return w.Flush()
}
