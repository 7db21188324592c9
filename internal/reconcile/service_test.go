package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/positionbook/internal/importer"
	"github.com/eddiefleurent/positionbook/internal/models"
	"github.com/eddiefleurent/positionbook/internal/navseries"
	"github.com/eddiefleurent/positionbook/internal/storage"
)

const positionsReport = `Positions for CUSTACCS as of 01:18 AM ET, 02/10/2026

"Individual ...013"
Symbol,Description,Qty (Quantity),Price,Mkt Val (Market Value),Day Chng $ (Day Change $),Cost Basis,Gain $ (Gain/Loss $),Security Type
AAPL,Apple Inc,100,180.00,"18,000.00",120.00,"15,000.00","3,000.00",Equity
AAPL 03/20/2026 200.00 C,CALL APPLE INC $200 EXP 03/20/26,-2,4.50,-900.00,-20.00,-1200.00,300.00,Option
Cash & Cash Investments,--,--,--,"5,000.00",--,--,--,Cash and Money Market
Account Total,--,--,--,"22,100.00",--,--,--,--

Roth IRA ...555
Symbol,Description,Qty (Quantity),Price,Mkt Val (Market Value),Day Chng $ (Day Change $),Cost Basis,Gain $ (Gain/Loss $),Security Type
MSFT,Microsoft Corp,10,400.00,"4,000.00",5.00,"3,500.00",500.00,Equity
Account Total,--,--,--,"4,000.00",--,--,--,--
`

const balancesReport = `"Balances for All-Accounts as of 02/17/2026 05:37 PM ET"

Individual XXXX013
Cash & Cash Investments,"$6,000.00"
Account Value,"$23,000.00"
`

const flatPositions = `Ticker,Quantity,Last,Avg Price
AAPL,100,180,150
MSFT,10,400,300
`

const transactionHistory = `"Date","Action","Symbol","Description","Quantity","Price","Fees & Comm","Amount"
"02/09/2026","Buy","AAPL","APPLE INC","10","$180.00","","-$1,800.00"
"02/11/2026","Cash Dividend","MSFT","MICROSOFT CORP","","","","$7.50"
`

func newTestService(t *testing.T) (*Service, *storage.MemoryStorage) {
	t.Helper()
	mem := storage.NewMemoryStorage()
	series := navseries.NewStore(mem, navseries.Config{Now: func() time.Time { return testNow }}, nil)
	return NewService(mem, nil, series, nil), mem
}

func TestImport_PositionsReportAllAccounts(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	report, err := svc.Import(ctx, []byte(positionsReport), models.AllAccounts)
	require.NoError(t, err)

	_, err = uuid.Parse(report.BatchID)
	assert.NoError(t, err)
	assert.Equal(t, importer.KindPositions, report.Kind)
	assert.True(t, report.AsOf.Equal(day(2, 10)))
	require.Len(t, report.Accounts, 2)

	ind := report.Accounts[0]
	assert.Equal(t, "Individual ...013", ind.Account)
	assert.Equal(t, 2, ind.Positions)
	require.NotNil(t, ind.SnapshotNAV)
	assert.Equal(t, 22100.0, *ind.SnapshotNAV)

	book, _ := mem.Positions(ctx, "Individual ...013")
	assert.Len(t, book, 2)

	acct, err := mem.Account(ctx, "Individual ...013")
	require.NoError(t, err)
	assert.Equal(t, 5000.0, acct.Cash)
	assert.Equal(t, 22100.0, *acct.AccountValue)

	snaps, _ := mem.Snapshots(ctx, models.AllAccounts, time.Time{}, time.Time{})
	require.Len(t, snaps, 2)
	for _, s := range snaps {
		assert.True(t, s.Date.Equal(day(2, 10)))
		assert.Nil(t, s.Bench, "positions import without a cached close leaves bench nil")
	}
}

func TestImport_Idempotent(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, []byte(positionsReport), "")
	require.NoError(t, err)
	before, _ := mem.Positions(ctx, models.AllAccounts)

	report, err := svc.Import(ctx, []byte(positionsReport), "")
	require.NoError(t, err)
	after, _ := mem.Positions(ctx, models.AllAccounts)

	assert.Equal(t, before, after)
	for _, a := range report.Accounts {
		assert.True(t, a.Replaced)
	}
	snaps, _ := mem.Snapshots(ctx, models.AllAccounts, time.Time{}, time.Time{})
	assert.Len(t, snaps, 2, "same date replaces the snapshot")
}

func TestImport_BalancesMatchExistingAccount(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, []byte(positionsReport), "")
	require.NoError(t, err)

	report, err := svc.Import(ctx, []byte(balancesReport), "")
	require.NoError(t, err)
	assert.Equal(t, importer.KindBalances, report.Kind)
	require.Len(t, report.Accounts, 1)
	assert.Equal(t, "Individual ...013", report.Accounts[0].Account)
	assert.Equal(t, "Individual XXXX013", report.Accounts[0].Label)

	acct, err := mem.Account(ctx, "Individual ...013")
	require.NoError(t, err)
	assert.Equal(t, 6000.0, acct.Cash)
	assert.Equal(t, 23000.0, *acct.AccountValue)

	book, _ := mem.Positions(ctx, "Individual ...013")
	assert.Len(t, book, 2, "balances leave positions alone")
}

func TestImport_UnlabeledFileNeedsScope(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, []byte(flatPositions), models.AllAccounts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousAccountScope))
	assert.Equal(t, 0, mem.WriteCallCount())

	report, err := svc.Import(ctx, []byte(flatPositions), "ACC1")
	require.NoError(t, err)
	assert.Equal(t, importer.KindGeneric, report.Kind)
	assert.True(t, report.AsOf.Equal(day(2, 17)), "no as-of date in the file means today")

	require.Len(t, report.Accounts, 1)
	require.NotNil(t, report.Accounts[0].SnapshotNAV)
	assert.Equal(t, 22000.0, *report.Accounts[0].SnapshotNAV, "market value when no account value is reported")
}

func TestImport_SingleLabelFollowsScope(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	_, err := svc.Import(ctx, []byte(balancesReport), "Brokerage")
	require.NoError(t, err)

	acct, err := mem.Account(ctx, "Brokerage")
	require.NoError(t, err)
	assert.Equal(t, 6000.0, acct.Cash)
}

func TestImport_Transactions(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	report, err := svc.Import(ctx, []byte(transactionHistory), "ACC1")
	require.NoError(t, err)
	require.NotNil(t, report.Transactions)
	assert.Equal(t, 1, report.Transactions.Count)
	assert.InDelta(t, -1792.5, report.Transactions.CashFlow, 1e-9)

	book, _ := mem.Positions(ctx, "ACC1")
	require.Len(t, book, 1)
	assert.InDelta(t, 10.0, book[0].Quantity, 1e-9)

	require.NotNil(t, report.NavRebuild)
	assert.Equal(t, 2, report.NavRebuild.Written)
	snaps, _ := mem.Snapshots(ctx, "ACC1", time.Time{}, time.Time{})
	require.Len(t, snaps, 2)
	assert.True(t, snaps[0].Date.Equal(day(2, 9)))
	assert.InDelta(t, 1792.5, snaps[0].NAV, 1e-9)
	assert.True(t, snaps[1].Date.Equal(day(2, 11)))
	assert.InDelta(t, 1800.0, snaps[1].NAV, 1e-9)
}

func TestImport_ScopedMultiAccountLeavesOthersAlone(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	roth := equity("TSLA", 5, 200)
	roth.Account = "Roth IRA ...555"
	require.NoError(t, svc.UpsertPosition(ctx, roth))

	report, err := svc.Import(ctx, []byte(positionsReport), "Individual ...013")
	require.NoError(t, err)

	require.Len(t, report.Accounts, 1)
	assert.Equal(t, "Individual ...013", report.Accounts[0].Account)
	assert.Equal(t, []SkippedAccount{{Label: "Roth IRA ...555", Rows: 2}}, report.Skipped)

	book, _ := mem.Positions(ctx, "Roth IRA ...555")
	require.Len(t, book, 1)
	assert.Equal(t, "TSLA", book[0].Symbol)
	_, err = mem.Account(ctx, "Roth IRA ...555")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)

	book, _ = mem.Positions(ctx, "Individual ...013")
	assert.Len(t, book, 2)
	snaps, _ := mem.Snapshots(ctx, models.AllAccounts, time.Time{}, time.Time{})
	require.Len(t, snaps, 1)
	assert.Equal(t, "Individual ...013", snaps[0].Account)
}

func TestImport_ScopeMatchesMaskedLabel(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	report, err := svc.Import(ctx, []byte(positionsReport), "Individual XXXX013")
	require.NoError(t, err)
	require.Len(t, report.Accounts, 1)
	assert.Equal(t, "Individual XXXX013", report.Accounts[0].Account)
	assert.Equal(t, "Individual ...013", report.Accounts[0].Label)

	book, _ := mem.Positions(ctx, "Individual XXXX013")
	assert.Len(t, book, 2)
	book, _ = mem.Positions(ctx, "Roth IRA ...555")
	assert.Empty(t, book)
}

func TestImport_ScopedBalancesSkipOtherAccounts(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	data := balancesReport + `
Roth IRA XXXX555
Cash & Cash Investments,"$100.00"
Account Value,"$4,100.00"
`
	report, err := svc.Import(ctx, []byte(data), "Roth IRA ...555")
	require.NoError(t, err)
	require.Len(t, report.Accounts, 1)
	assert.Equal(t, "Roth IRA ...555", report.Accounts[0].Account)
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "Individual XXXX013", report.Skipped[0].Label)

	_, err = mem.Account(ctx, "Individual XXXX013")
	assert.ErrorIs(t, err, storage.ErrAccountNotFound)
	acct, err := mem.Account(ctx, "Roth IRA ...555")
	require.NoError(t, err)
	assert.Equal(t, 100.0, acct.Cash)
}

func TestImport_RejectedSectionKeepsBook(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	held := equity("TSLA", 5, 200)
	held.Account = "Individual ...013"
	require.NoError(t, svc.UpsertPosition(ctx, held))
	writes := mem.WriteCallCount()

	data := `Positions for CUSTACCS as of 01:18 AM ET, 02/10/2026

"Individual ...013"
Symbol,Description,Qty (Quantity),Price,Mkt Val (Market Value),Day Chng $ (Day Change $),Cost Basis,Gain $ (Gain/Loss $),Security Type
TSLA,Tesla Inc,abc,200.00,"1,000.00",0.00,"900.00",100.00,Equity
Cash & Cash Investments,--,--,--,"5,000.00",--,--,--,Cash and Money Market
`
	for _, scope := range []string{"Individual ...013", models.AllAccounts} {
		_, err := svc.Import(ctx, []byte(data), scope)
		require.Error(t, err, scope)
		assert.ErrorIs(t, err, importer.ErrNoUsableRows)

		var detail *importer.NoUsableRowsError
		require.True(t, errors.As(err, &detail))
		assert.Equal(t, "Individual ...013", detail.Account)
		require.Len(t, detail.Failures, 1)
		assert.Equal(t, 5, detail.Failures[0].Line)
	}

	assert.Equal(t, writes, mem.WriteCallCount(), "nothing is written")
	book, _ := mem.Positions(ctx, "Individual ...013")
	require.Len(t, book, 1)
	assert.Equal(t, "TSLA", book[0].Symbol)
}

func TestImport_RejectedSectionOutsideScope(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()

	data := `Positions for CUSTACCS as of 01:18 AM ET, 02/10/2026

"Individual ...013"
Symbol,Description,Qty (Quantity),Price,Mkt Val (Market Value),Day Chng $ (Day Change $),Cost Basis,Gain $ (Gain/Loss $),Security Type
TSLA,Tesla Inc,abc,200.00,"1,000.00",0.00,"900.00",100.00,Equity

Roth IRA ...555
Symbol,Description,Qty (Quantity),Price,Mkt Val (Market Value),Day Chng $ (Day Change $),Cost Basis,Gain $ (Gain/Loss $),Security Type
MSFT,Microsoft Corp,10,400.00,"4,000.00",5.00,"3,500.00",500.00,Equity
`
	report, err := svc.Import(ctx, []byte(data), "Roth IRA ...555")
	require.NoError(t, err)
	require.Len(t, report.Accounts, 1)

	book, _ := mem.Positions(ctx, "Roth IRA ...555")
	assert.Len(t, book, 1)
}

func TestDetect(t *testing.T) {
	svc, mem := newTestService(t)

	kind, err := svc.Detect([]byte(balancesReport))
	require.NoError(t, err)
	assert.Equal(t, importer.KindBalances, kind)
	assert.Equal(t, 0, mem.WriteCallCount())
}

func TestImport_Unrecognized(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Import(context.Background(), []byte("hello,world\nfoo,bar\n"), "ACC1")
	assert.ErrorIs(t, err, importer.ErrUnrecognizedFormat)
}
