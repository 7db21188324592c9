package reconcile

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/positionbook/internal/importer"
	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/navseries"
	"github.com/eddiefleurent/positionbook/internal/storage"
)

// Service routes a raw export to the matching reconciliation path.
type Service struct {
	*Reconciler
	importer *importer.Importer
}

// NewService wires an importer and a reconciler over the same storage.
func NewService(st storage.Interface, imp *importer.Importer, series *navseries.Store, logger logrus.FieldLogger) *Service {
	if imp == nil {
		imp = importer.New(importer.DefaultOptions(), logger)
	}
	return &Service{
		Reconciler: NewReconciler(st, series, logger),
		importer:   imp,
	}
}

// AccountReport is the per-account outcome of an import.
type AccountReport struct {
	Cash         *float64 `json:"cash,omitempty"`
	AccountValue *float64 `json:"account_value,omitempty"`
	SnapshotNAV  *float64 `json:"snapshot_nav,omitempty"`
	Account      string   `json:"account"`
	Label        string   `json:"label,omitempty"`
	Positions    int      `json:"positions"`
	Replaced     bool     `json:"replaced"`
}

// SkippedAccount is an account section left out of a scoped import.
type SkippedAccount struct {
	Label string `json:"label"`
	Rows  int    `json:"rows"`
}

// ImportReport is the outcome of Service.Import.
type ImportReport struct {
	AsOf         time.Time           `json:"as_of"`
	Transactions *TransactionsResult `json:"transactions,omitempty"`
	NavRebuild   *NavRebuildResult   `json:"nav_rebuild,omitempty"`
	BatchID      string              `json:"batch_id"`
	Kind         importer.Kind       `json:"kind"`
	Accounts     []AccountReport     `json:"accounts"`
	Skipped      []SkippedAccount    `json:"skipped,omitempty"`
	Summary      importer.Summary    `json:"summary"`
}

// Detect classifies data without applying it.
func (s *Service) Detect(data []byte) (importer.Kind, error) {
	return s.importer.Detect(data)
}

// Import detects the layout of data and applies it.
//
// scope names the target account. Unlabeled rows and files with a single
// account label are written to it; in a multi-account file only the section
// matching scope is written and the others are reported as skipped. With ""
// or ALL every row must carry its own label and each label is matched to a
// stored account.
//
// Positions-style files replace positions, update cash and account value and
// store a snapshot dated at the report's as-of date, or today. An account
// section whose position rows were all rejected fails the import before
// anything is written. Balances files update balances. Transaction histories
// replace positions with the netted trades and rebuild the NAV history.
func (s *Service) Import(ctx context.Context, data []byte, scope string) (*ImportReport, error) {
	res, err := s.importer.DetectAndExtract(data)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	report := &ImportReport{
		BatchID: uuid.New().String(),
		Kind:    res.Kind,
		AsOf:    res.AsOf,
		Summary: res.Summary,
	}
	if report.AsOf.IsZero() {
		report.AsOf = s.series.Today()
	}

	resolver, err := s.newAccountResolver(ctx, res, scope)
	if err != nil {
		return nil, err
	}

	log := s.logger.WithFields(logrus.Fields{
		"batch": report.BatchID,
		"kind":  res.Kind,
		"as_of": report.AsOf.Format(models.DateLayout),
	})

	switch res.Kind {
	case importer.KindTransactions:
		account, _, err := resolver.resolve(res.Account)
		if err != nil {
			return nil, err
		}
		tr, nr, err := s.importTransactions(ctx, account, res.Transactions)
		if err != nil {
			return nil, err
		}
		report.Transactions, report.NavRebuild = &tr, &nr
		report.Accounts = []AccountReport{{Account: account, Label: res.Account, Positions: tr.Count}}

	case importer.KindBalances:
		var rows []importer.AccountBalance
		for _, b := range res.Balances {
			account, keep, err := resolver.resolve(b.Account)
			if err != nil {
				return nil, err
			}
			if !keep {
				resolver.skip(b.Account, 1)
				continue
			}
			row := b
			row.Account = account
			rows = append(rows, row)
			report.Accounts = append(report.Accounts, AccountReport{
				Account: account, Label: b.Account, Cash: b.Cash, AccountValue: b.AccountValue,
			})
		}
		if _, err := s.ReconcileBalances(ctx, rows, report.AsOf); err != nil {
			return nil, err
		}

	default:
		accounts, err := s.importPositions(ctx, res, resolver, report.AsOf)
		if err != nil {
			return nil, err
		}
		report.Accounts = accounts
	}
	report.Skipped = resolver.skipped

	log.WithFields(logrus.Fields{
		"accounts": len(report.Accounts),
		"skipped":  len(report.Skipped),
		"rows":     report.Summary.Accepted,
		"rejected": report.Summary.Rejected,
	}).Info("Import applied")
	return report, nil
}

// importTransactions replaces the positions of account with the netted
// history and rebuilds its NAV under a single hold of the account lock.
func (s *Service) importTransactions(ctx context.Context, account string, txns []importer.Transaction) (TransactionsResult, NavRebuildResult, error) {
	if err := models.CheckWriteScope(account); err != nil {
		return TransactionsResult{}, NavRebuildResult{}, err
	}
	unlock := s.series.LockAccount(account)
	defer unlock()

	tr, err := s.applyTransactions(ctx, account, txns)
	if err != nil {
		return TransactionsResult{}, NavRebuildResult{}, err
	}
	nr, err := s.rebuildNav(ctx, account, txns)
	if err != nil {
		return tr, NavRebuildResult{}, err
	}
	return tr, nr, nil
}

// accountGroup gathers everything a positions-style file says about one account.
type accountGroup struct {
	balance   *importer.AccountBalance
	account   string
	label     string
	positions []models.Position
}

func (s *Service) importPositions(ctx context.Context, res *importer.Result, resolver *accountResolver, asOf time.Time) ([]AccountReport, error) {
	for _, rejected := range res.RejectedAccounts {
		_, keep, err := resolver.resolve(rejected.Account)
		if err != nil {
			return nil, err
		}
		if keep {
			return nil, rejected
		}
	}

	var order []string
	groups := make(map[string]*accountGroup)
	group := func(label string) (*accountGroup, error) {
		if label == "" {
			label = res.Account
		}
		account, keep, err := resolver.resolve(label)
		if err != nil {
			return nil, err
		}
		if !keep {
			resolver.skip(label, 1)
			return nil, nil
		}
		g, ok := groups[account]
		if !ok {
			g = &accountGroup{account: account, label: label}
			groups[account] = g
			order = append(order, account)
		}
		return g, nil
	}

	for _, p := range res.Positions {
		g, err := group(p.Account)
		if err != nil {
			return nil, err
		}
		if g != nil {
			g.positions = append(g.positions, p)
		}
	}
	for i := range res.Balances {
		g, err := group(res.Balances[i].Account)
		if err != nil {
			return nil, err
		}
		if g != nil {
			g.balance = &res.Balances[i]
		}
	}

	reports := make([]AccountReport, len(order))
	eg, gctx := errgroup.WithContext(ctx)
	for i, account := range order {
		i := i
		g := groups[account]
		eg.Go(func() error {
			rep, err := s.applyPositionsGroup(gctx, g, asOf)
			reports[i] = rep
			return err
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// applyPositionsGroup replaces one account's positions, updates its balances
// and records the snapshot. Snapshot NAV is the reported account value, else
// the book's market value plus cash.
func (s *Service) applyPositionsGroup(ctx context.Context, g *accountGroup, asOf time.Time) (AccountReport, error) {
	unlock := s.series.LockAccount(g.account)
	defer unlock()

	rep := AccountReport{Account: g.account, Label: g.label}
	pr, marketValue, err := s.replacePositions(ctx, g.account, g.positions)
	if err != nil {
		return rep, err
	}
	rep.Positions, rep.Replaced = pr.Count, pr.Replaced

	var cash, value *float64
	if g.balance != nil {
		cash, value = g.balance.Cash, g.balance.AccountValue
	}
	rep.Cash, rep.AccountValue = cash, value

	nav := value
	if nav == nil {
		total := marketValue
		if cash != nil {
			total += *cash
		} else if acct, err := s.loadAccount(ctx, g.account); err == nil {
			total += acct.Cash
		}
		nav = &total
	}

	wrote, err := s.applyBalance(ctx, g.account, cash, value, asOf, nav)
	if err != nil {
		return rep, err
	}
	if wrote {
		rep.SnapshotNAV = models.Float(*nav)
	}
	return rep, nil
}

// accountResolver maps labels found in a file onto stored account names and
// decides which of them a scoped import may write.
type accountResolver struct {
	scope       string
	existing    []string
	skipped     []SkippedAccount
	scoped      bool
	singleLabel bool
}

func (s *Service) newAccountResolver(ctx context.Context, res *importer.Result, scope string) (*accountResolver, error) {
	accts, err := s.storage.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	existing := make([]string, 0, len(accts))
	for _, a := range accts {
		existing = append(existing, a.Name)
	}
	sort.Strings(existing)

	return &accountResolver{
		scope:       strings.TrimSpace(scope),
		existing:    existing,
		scoped:      !models.IsAggregateScope(scope),
		singleLabel: len(fileLabels(res)) <= 1,
	}, nil
}

// resolve returns the account label belongs to and whether its rows may be
// written under the resolver's scope.
func (a *accountResolver) resolve(label string) (string, bool, error) {
	label = importer.NormalizeAccountName(label)
	if a.scoped {
		if label == "" || a.singleLabel || a.claims(label) {
			return a.scope, true, nil
		}
		return "", false, nil
	}
	if label == "" {
		return "", false, fmt.Errorf("%w: file does not name an account", ErrAmbiguousAccountScope)
	}
	account := importer.MatchAccount(label, a.existing)
	if err := models.CheckWriteScope(account); err != nil {
		return "", false, err
	}
	return account, true, nil
}

// claims reports whether label names the scoped account.
func (a *accountResolver) claims(label string) bool {
	if strings.EqualFold(label, a.scope) {
		return true
	}
	return importer.MatchAccount(label, []string{a.scope}) == a.scope
}

func (a *accountResolver) skip(label string, rows int) {
	label = importer.NormalizeAccountName(label)
	for i := range a.skipped {
		if a.skipped[i].Label == label {
			a.skipped[i].Rows += rows
			return
		}
	}
	a.skipped = append(a.skipped, SkippedAccount{Label: label, Rows: rows})
}

func fileLabels(res *importer.Result) map[string]struct{} {
	labels := make(map[string]struct{})
	add := func(l string) {
		if l = importer.NormalizeAccountName(l); l != "" {
			labels[l] = struct{}{}
		}
	}
	add(res.Account)
	for _, p := range res.Positions {
		add(p.Account)
	}
	for _, b := range res.Balances {
		add(b.Account)
	}
	for _, r := range res.RejectedAccounts {
		add(r.Account)
	}
	return labels
}
