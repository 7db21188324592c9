package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

type importCmd struct {
	account string
	detect  bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "Import broker CSV exports into the book." }
func (*importCmd) Usage() string {
	return `import [-account <name>] [-detect] <file.csv>...:
  Detects each file's layout and reconciles it into the book. Use - to read
  from stdin. -account is required when rows carry no account label; in a
  multi-account file only the matching section is written. -detect prints
  each file's layout without importing it.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.account, "account", "", "Account to import into")
	f.BoolVar(&c.detect, "detect", false, "Print the detected layout only")
}

func (c *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "import: at least one file is required")
		return subcommands.ExitUsageError
	}

	a, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	status := subcommands.ExitSuccess
	for _, name := range f.Args() {
		data, err := readInput(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "import %s: %v\n", name, err)
			status = subcommands.ExitFailure
			continue
		}
		if c.detect {
			kind, err := a.service.Detect(data)
			if err != nil {
				fmt.Fprintf(os.Stderr, "detect %s: %v\n", name, err)
				status = subcommands.ExitFailure
				continue
			}
			fmt.Printf("%s\t%s\n", name, kind)
			continue
		}
		report, err := a.service.Import(ctx, data, c.account)
		if err != nil {
			fmt.Fprintf(os.Stderr, "import %s: %v\n", name, err)
			status = subcommands.ExitFailure
			continue
		}
		a.logger.WithFields(logrus.Fields{
			"file":     name,
			"kind":     report.Kind,
			"accepted": report.Summary.Accepted,
			"rejected": report.Summary.Rejected,
		}).Info("File imported")
		if err := printJSON(report); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
	}
	return status
}
