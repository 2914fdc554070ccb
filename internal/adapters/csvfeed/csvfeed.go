// Package csvfeed loads price series from CSV files and exports run ledgers.
package csvfeed

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"backtestCore/internal/domain"
	"backtestCore/internal/ports"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
)

var intervalSteps = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"4h":  4 * time.Hour,
	"1d":  24 * time.Hour,
}

// IntervalStep returns the bar spacing of an interval such as "15m".
func IntervalStep(interval string) (time.Duration, error) {
	step, ok := intervalSteps[interval]
	if !ok {
		return 0, ports.NewConfigError("csvfeed", "unsupported interval %q", interval)
	}
	return step, nil
}

// barRecord is one CSV row. Prices are decimal strings so no precision is lost
// on the way to fixed point.
type barRecord struct {
	OpenTime  string `csv:"open_time"`
	CloseTime string `csv:"close_time,omitempty"`
	Symbol    string `csv:"symbol,omitempty"`
	Interval  string `csv:"interval,omitempty"`
	Open      string `csv:"open"`
	High      string `csv:"high"`
	Low       string `csv:"low"`
	Close     string `csv:"close"`
	Volume    string `csv:"volume"`
}

// BuildSeries wraps bars fetched from any source into a Series, flagging bars
// further apart than the interval step as following a gap.
func BuildSeries(symbol, interval string, bars []domain.Bar) (domain.Series, error) {
	step, err := IntervalStep(interval)
	if err != nil {
		return domain.Series{}, err
	}
	for i := 1; i < len(bars); i++ {
		if bars[i].Time.Sub(bars[i-1].Time) > step {
			bars[i].Gap = true
		}
	}
	return domain.Series{Symbol: symbol, Interval: interval, Step: step, Bars: bars}, nil
}

// ReadSeries parses bars from r. The series is not validated here.
func ReadSeries(r io.Reader, symbol, interval string) (domain.Series, error) {
	if _, err := IntervalStep(interval); err != nil {
		return domain.Series{}, err
	}

	var records []*barRecord
	if err := gocsv.Unmarshal(r, &records); err != nil {
		return domain.Series{}, &ports.DataError{Op: "read bars csv", Err: err}
	}

	bars := make([]domain.Bar, 0, len(records))
	for i, rec := range records {
		if rec.Symbol != "" && !strings.EqualFold(rec.Symbol, symbol) {
			return domain.Series{}, &ports.DataError{Op: fmt.Sprintf("row %d", i+1), Err: fmt.Errorf("symbol %s in a %s file", rec.Symbol, symbol)}
		}
		bar, err := rec.toBar()
		if err != nil {
			return domain.Series{}, &ports.DataError{Op: fmt.Sprintf("row %d", i+1), Err: err}
		}
		bars = append(bars, bar)
	}
	return BuildSeries(symbol, interval, bars)
}

// LoadSeries reads and validates the series stored at path.
func LoadSeries(path, symbol, interval string) (domain.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Series{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	series, err := ReadSeries(f, symbol, interval)
	if err != nil {
		return domain.Series{}, fmt.Errorf("load %s: %w", path, err)
	}
	if err := series.Validate(); err != nil {
		return domain.Series{}, &ports.DataError{Op: "validate " + path, Err: err}
	}
	return series, nil
}

func (rec *barRecord) toBar() (domain.Bar, error) {
	t, err := parseTime(rec.OpenTime)
	if err != nil {
		return domain.Bar{}, err
	}
	var bar domain.Bar
	bar.Time = t
	for _, field := range []struct {
		raw string
		dst *domain.Price
	}{
		{rec.Open, &bar.Open},
		{rec.High, &bar.High},
		{rec.Low, &bar.Low},
		{rec.Close, &bar.Close},
	} {
		if *field.dst, err = domain.ParsePrice(strings.TrimSpace(field.raw)); err != nil {
			return domain.Bar{}, err
		}
	}
	volume, err := decimal.NewFromString(strings.TrimSpace(rec.Volume))
	if err != nil {
		return domain.Bar{}, fmt.Errorf("parsing volume '%s': %w", rec.Volume, err)
	}
	bar.Volume = volume.IntPart()
	return bar, nil
}

// parseTime accepts RFC 3339 or Unix milliseconds and truncates to seconds in UTC.
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC().Truncate(time.Second), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time '%s': %w", s, err)
	}
	return t.UTC().Truncate(time.Second), nil
}

// WriteSeries writes the bars of series to w with a header row.
func WriteSeries(w io.Writer, series domain.Series) error {
	records := make([]*barRecord, len(series.Bars))
	for i, bar := range series.Bars {
		records[i] = &barRecord{
			OpenTime:  bar.Time.Format(time.RFC3339),
			CloseTime: bar.Time.Add(series.Step).Format(time.RFC3339),
			Symbol:    series.Symbol,
			Interval:  series.Interval,
			Open:      bar.Open.String(),
			High:      bar.High.String(),
			Low:       bar.Low.String(),
			Close:     bar.Close.String(),
			Volume:    strconv.FormatInt(bar.Volume, 10),
		}
	}
	return gocsv.Marshal(&records, w)
}

// SaveSeries writes series to a new file at path.
func SaveSeries(path string, series domain.Series) (err error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return WriteSeries(f, series)
}

type tradeRecord struct {
	ID         string `csv:"id"`
	Symbol     string `csv:"symbol"`
	Side       string `csv:"side"`
	EntryTime  string `csv:"entry_time"`
	ExitTime   string `csv:"exit_time"`
	EntryPrice string `csv:"entry_price"`
	ExitPrice  string `csv:"exit_price"`
	Size       int64  `csv:"size"`
	PnL        string `csv:"pnl"`
	Fees       string `csv:"fees"`
	Reason     string `csv:"reason"`
	BarsHeld   int    `csv:"bars_held"`
	DecisionID int64  `csv:"decision_id"`
}

// WriteTrades exports a closed-trade ledger.
func WriteTrades(w io.Writer, trades []domain.ClosedTrade) error {
	records := make([]*tradeRecord, len(trades))
	for i, t := range trades {
		records[i] = &tradeRecord{
			ID:         t.ID,
			Symbol:     t.Symbol,
			Side:       string(t.Side),
			EntryTime:  t.EntryTime.Format(time.RFC3339),
			ExitTime:   t.ExitTime.Format(time.RFC3339),
			EntryPrice: t.EntryPrice.String(),
			ExitPrice:  t.ExitPrice.String(),
			Size:       int64(t.Size),
			PnL:        t.PnL.String(),
			Fees:       t.Fees.String(),
			Reason:     string(t.Reason),
			BarsHeld:   t.BarsHeld,
			DecisionID: t.DecisionID,
		}
	}
	return gocsv.Marshal(&records, w)
}

type equityRecord struct {
	Time          string `csv:"time"`
	Cash          string `csv:"cash"`
	Unrealized    string `csv:"unrealized"`
	Equity        string `csv:"equity"`
	HighWaterMark string `csv:"high_water_mark"`
	OpenPositions int    `csv:"open_positions"`
}

// WriteEquityCurve exports the per-bar account snapshots.
func WriteEquityCurve(w io.Writer, curve []domain.AccountState) error {
	records := make([]*equityRecord, len(curve))
	for i, p := range curve {
		records[i] = &equityRecord{
			Time:          p.Time.Format(time.RFC3339),
			Cash:          p.Cash.String(),
			Unrealized:    p.Unrealized.String(),
			Equity:        p.Equity.String(),
			HighWaterMark: p.HighWaterMark.String(),
			OpenPositions: p.OpenPositions,
		}
	}
	return gocsv.Marshal(&records, w)
}
