// Package importer recognizes broker CSV exports and extracts normalized rows
// from them: positions, account balances and transactions.
package importer

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/positionbook/internal/models"
)

// Kind identifies a recognized export layout.
type Kind string

const (
	// KindTransactions is a broker transaction history
	KindTransactions Kind = "transactions"
	// KindBalances is a per-account balances report
	KindBalances Kind = "balances_report"
	// KindStatement is a sectioned full account statement
	KindStatement Kind = "account_statement"
	// KindPositions is a per-account positions report
	KindPositions Kind = "positions_report"
	// KindGeneric is a flat CSV with recognizable column names
	KindGeneric Kind = "generic_csv"
)

const (
	defaultScanRows   = 20
	defaultMaxSamples = 10
)

// Format is one recognizable layout: a predicate over the first rows and an
// extractor over the whole table.
type Format interface {
	Kind() Kind
	Detect(sample []record) bool
	Extract(rows []record, summary *Summary) (*Result, error)
}

// AccountBalance is a cash and/or account value reading for one account.
// Account is empty when the file does not name it.
type AccountBalance struct {
	Cash         *float64 `json:"cash"`
	AccountValue *float64 `json:"account_value"`
	Account      string   `json:"account"`
}

// Result is everything extracted from one file.
type Result struct {
	AsOf         time.Time         `json:"as_of,omitempty"`
	Kind         Kind              `json:"kind"`
	Account      string            `json:"account,omitempty"`
	Positions    []models.Position `json:"positions,omitempty"`
	Balances     []AccountBalance  `json:"balances,omitempty"`
	Transactions []Transaction     `json:"transactions,omitempty"`
	// RejectedAccounts describes account sections that had position rows
	// but none of them could be used.
	RejectedAccounts []*NoUsableRowsError `json:"rejected_accounts,omitempty"`
	Summary          Summary              `json:"summary"`
}

// Options tunes detection and error reporting.
type Options struct {
	ScanRows   int
	MaxSamples int
}

// DefaultOptions scans the header plus 20 rows and keeps 10 sample failures.
func DefaultOptions() Options {
	return Options{ScanRows: defaultScanRows, MaxSamples: defaultMaxSamples}
}

// Importer runs the ordered detector list.
type Importer struct {
	logger  logrus.FieldLogger
	formats []Format
	opts    Options
}

// New creates an Importer. A nil logger discards output.
func New(opts Options, logger logrus.FieldLogger) *Importer {
	if opts.ScanRows <= 0 {
		opts.ScanRows = defaultScanRows
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = defaultMaxSamples
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Importer{
		opts:   opts,
		logger: logger,
		// Order matters: first match wins.
		formats: []Format{
			transactionsFormat{},
			balancesFormat{},
			statementFormat{},
			positionsReportFormat{},
			genericFormat{scanRows: opts.ScanRows},
		},
	}
}

// DetectAndExtract classifies data with default options and extracts its rows.
func DetectAndExtract(data []byte) (*Result, error) {
	return New(DefaultOptions(), nil).DetectAndExtract(data)
}

// Detect returns the kind of data without extracting it.
func (im *Importer) Detect(data []byte) (Kind, error) {
	rows, err := readTable(data)
	if err != nil {
		return "", err
	}
	f, err := im.match(rows)
	if err != nil {
		return "", err
	}
	return f.Kind(), nil
}

// DetectAndExtract classifies data and extracts its rows. Rows that cannot be
// used are counted in Result.Summary. ErrNoUsableRows is returned, together
// with the partial Result, when nothing survived.
func (im *Importer) DetectAndExtract(data []byte) (*Result, error) {
	rows, err := readTable(data)
	if err != nil {
		return nil, err
	}
	f, err := im.match(rows)
	if err != nil {
		return nil, err
	}

	summary := newSummary(im.opts.MaxSamples)
	res, err := f.Extract(rows, &summary)
	if res == nil {
		res = &Result{}
	}
	res.Kind = f.Kind()
	res.Summary = summary

	log := im.logger.WithFields(logrus.Fields{
		"kind":     res.Kind,
		"rows":     summary.Accepted,
		"rejected": summary.Rejected,
	})
	for _, fail := range summary.Failures {
		log.WithField("line", fail.Line).Debug(fail.Reason)
	}
	if err != nil {
		log.WithError(err).Warn("Import extraction failed")
		return res, err
	}
	log.Info("Extracted import rows")
	return res, nil
}

func (im *Importer) match(rows []record) (Format, error) {
	sample := rows
	if len(sample) > im.opts.ScanRows+1 {
		sample = sample[:im.opts.ScanRows+1]
	}
	for _, f := range im.formats {
		if f.Detect(sample) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: none of %d known layouts matched the first %d rows",
		ErrUnrecognizedFormat, len(im.formats), len(sample))
}

// anyRowContains reports whether any sample row contains every phrase.
func anyRowContains(sample []record, phrases ...string) bool {
	for _, r := range sample {
		text := r.text()
		matched := true
		for _, p := range phrases {
			if !containsPhrase(text, p) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

func containsPhrase(text, phrase string) bool {
	return strings.Contains(text, normalizePhrase(phrase))
}

func noUsableRows(summary *Summary) error {
	return &NoUsableRowsError{
		Rejected: summary.Rejected,
		Failures: append([]*RowError(nil), summary.Failures...),
	}
}
