package csvfeed

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `open_time,close_time,symbol,interval,open,high,low,close,volume
2024-01-01T00:00:00Z,2024-01-01T01:00:00Z,ETHUSDT,1h,2281.5,2290.12,2275,2288.0001,1520.75
2024-01-01T01:00:00Z,2024-01-01T02:00:00Z,ETHUSDT,1h,2288.0001,2301,2280.5,2299.99,980
1704078000000,,ETHUSDT,1h,2299.99,2310,2295,2305.5,1200
`

func TestReadSeries(t *testing.T) {
	series, err := ReadSeries(strings.NewReader(sample), "ETHUSDT", "1h")
	require.NoError(t, err)
	require.Len(t, series.Bars, 3)

	first := series.Bars[0]
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), first.Time)
	assert.Equal(t, domain.Price(22_815_000), first.Open)
	assert.Equal(t, domain.Price(22_901_200), first.High)
	assert.Equal(t, domain.Price(22_880_001), first.Close)
	assert.Equal(t, int64(1520), first.Volume)
	assert.Equal(t, time.Hour, series.Step)

	// Unix milliseconds: 2024-01-01T03:00:00Z, one bar missing before it.
	third := series.Bars[2]
	assert.Equal(t, time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC), third.Time)
	assert.True(t, third.Gap)
	assert.False(t, series.Bars[1].Gap)
	assert.NoError(t, series.Validate())
}

func TestReadSeriesRejectsBadRows(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{name: "bad price", csv: "open_time,open,high,low,close,volume\n2024-01-01T00:00:00Z,abc,1,1,1,1\n"},
		{name: "bad time", csv: "open_time,open,high,low,close,volume\nyesterday,1,1,1,1,1\n"},
		{name: "foreign symbol", csv: "open_time,symbol,open,high,low,close,volume\n2024-01-01T00:00:00Z,BTCUSDT,1,1,1,1,1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadSeries(strings.NewReader(tt.csv), "ETHUSDT", "1h")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ports.ErrDataIntegrity))
		})
	}

	_, err := ReadSeries(strings.NewReader(sample), "ETHUSDT", "7h")
	assert.True(t, errors.Is(err, ports.ErrConfigurationError))
}

func TestSeriesRoundTripThroughFile(t *testing.T) {
	series, err := ReadSeries(strings.NewReader(sample), "ETHUSDT", "1h")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "eth.csv")
	require.NoError(t, SaveSeries(path, series))

	loaded, err := LoadSeries(path, "ETHUSDT", "1h")
	require.NoError(t, err)
	assert.Equal(t, series, loaded)
}

func TestLoadSeriesValidates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	body := "open_time,open,high,low,close,volume\n2024-01-01T01:00:00Z,1,1,1,1,1\n2024-01-01T00:00:00Z,1,1,1,1,1\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	_, err := LoadSeries(path, "ETHUSDT", "1h")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrDataIntegrity))
}

func TestWriteTradesAndEquity(t *testing.T) {
	at := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	trades := []domain.ClosedTrade{{
		ID: "01HN", Symbol: "ETHUSDT", Side: domain.Buy,
		EntryTime: at, ExitTime: at.Add(3 * time.Hour),
		EntryPrice: 22_815_000, ExitPrice: 23_000_000, Size: 2,
		PnL: 36_550, Fees: 450, Reason: domain.ExitTakeProfit, BarsHeld: 3, DecisionID: 7,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteTrades(&buf, trades))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,symbol,side,entry_time,exit_time,entry_price,exit_price,size,pnl,fees,reason,bars_held,decision_id", lines[0])
	assert.Equal(t, "01HN,ETHUSDT,BUY,2024-02-01T12:00:00Z,2024-02-01T15:00:00Z,2281.5,2300,2,365.50,4.50,take-profit,3,7", lines[1])

	buf.Reset()
	curve := []domain.AccountState{{Time: at, Cash: 1_000_000, Unrealized: -250, Equity: 999_750, HighWaterMark: 1_000_000, OpenPositions: 1}}
	require.NoError(t, WriteEquityCurve(&buf, curve))
	assert.Contains(t, buf.String(), "2024-02-01T12:00:00Z,10000.00,-2.50,9997.50,10000.00,1")
}
