package importer

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/positionbook/internal/models"
)

func TestParseOptionDescription(t *testing.T) {
	jan17 := time.Date(2026, 1, 17, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		text       string
		fallback   string
		wantSymbol string
		wantErr    error
	}{
		{"full numeric form", "3 AAPL 01/17/2026 150 CALL", "", "AAPL260117C00150000", nil},
		{"no quantity", "AAPL 01/17/2026 150.00 C", "", "AAPL260117C00150000", nil},
		{"single digit date parts", "AAPL 1/17/2026 150 P", "", "AAPL260117P00150000", nil},
		{"month name form", "SPY 100 (Weeklys) 17 JAN 26 480 CALL", "", "SPY260117C00480000", nil},
		{"month name four digit year", "QQQ 17 Jan 2026 400.5 PUT", "", "QQQ260117P00400500", nil},
		{"fallback underlying used", "3 01/17/2026 150 CALL", "aapl", "AAPL260117C00150000", nil},
		{"description underlying beats fallback", "MSFT 01/17/2026 150 CALL", "AAPL", "MSFT260117C00150000", nil},
		{"class share underlying", "BRK/B 01/17/2026 400 C", "", "BRKB260117C00400000", nil},
		{"missing underlying without fallback", "3 01/17/2026 150 CALL", "", "", ErrMissingUnderlying},
		{"plain equity", "Apple Inc", "", "", ErrNotOptionDescription},
		{"empty", "", "AAPL", "", ErrNotOptionDescription},
		{"missing right", "AAPL 01/17/2026 150", "", "", ErrNotOptionDescription},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := ParseOptionDescription(tt.text, tt.fallback)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			sym, err := c.Symbol()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSymbol, sym)
		})
	}

	c, err := ParseOptionDescription("3 01/17/2026 150 CALL", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, jan17, c.Expiry)
	assert.Equal(t, models.RightCall, c.Right)
	assert.InDelta(t, 150.0, c.Strike, 1e-9)
}

func TestParseFuture(t *testing.T) {
	tests := []struct {
		symbol   string
		root     string
		expiry   time.Time
		mult     float64
		wantFail bool
	}{
		{"/ESZ25", "ES", time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), 50, false},
		{"NQH26", "NQ", time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), 20, false},
		{"/mgcj26", "MGC", time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), 10, false},
		{"/ZZZF26", "ZZZ", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1, false},
		{"AAPL", "", time.Time{}, 0, true},
		{"/ES", "", time.Time{}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.symbol, func(t *testing.T) {
			fc, ok := ParseFuture(tt.symbol)
			if tt.wantFail {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.root, fc.Root)
			assert.Equal(t, tt.expiry, fc.Expiry)
			assert.InDelta(t, tt.mult, fc.Multiplier, 1e-9)
		})
	}

	assert.InDelta(t, 1000.0, FutureMultiplier("/CL"), 1e-9)
}

func TestMatchAccount(t *testing.T) {
	existing := []string{"Individual 2013", "Roth IRA 555", "Joint"}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"digit suffix", "Individual ...013", "Individual 2013"},
		{"masked digits", "Roth IRA XXXX555", "Roth IRA 555"},
		{"words only", "joint", "Joint"},
		{"no match keeps label", "Trust 777", "Trust 777"},
		{"different words", "Individual 555", "Individual 555"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchAccount(tt.in, existing))
		})
	}
}

func TestParseHistoryText(t *testing.T) {
	text := `# nav history
2026-01-02, 100,000.50
2026/01/05	101000
01/06/2026, $102,500

garbage line
2026-01-07, abc
2026-01-02, 100100
`
	res, err := ParseHistoryText(text)
	require.NoError(t, err)

	require.Len(t, res.Entries, 3)
	assert.Equal(t, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), res.Entries[0].Date)
	assert.InDelta(t, 100100.0, res.Entries[0].Value, 1e-9, "later duplicate wins")
	assert.InDelta(t, 101000.0, res.Entries[1].Value, 1e-9)
	assert.InDelta(t, 102500.0, res.Entries[2].Value, 1e-9)

	require.Len(t, res.Errors, 2)
	assert.Equal(t, 6, res.Errors[0].Line)
	assert.Equal(t, 7, res.Errors[1].Line)
}

func TestParseHistoryText_NoUsableLines(t *testing.T) {
	res, err := ParseHistoryText("# only a comment\nnot a line\n")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoUsableRows))
	assert.Len(t, res.Errors, 1)
}
