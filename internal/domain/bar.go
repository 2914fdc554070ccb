package domain

import (
	"fmt"
	"time"
)

// Bar represents a single OHLCV observation.
type Bar struct {
	Time   time.Time // Start of the interval, UTC, second precision
	Open   Price     // Opening price
	High   Price     // Highest price
	Low    Price     // Lowest price
	Close  Price     // Closing price
	Volume int64     // Traded volume in whole units
	Gap    bool      // Set by the producer when missing bars precede this one
}

// Series is an ordered run of bars for one symbol and timeframe.
// Nothing in the core mutates a Series after it is produced.
type Series struct {
	Symbol   string
	Interval string        // e.g. "1h", "1d"
	Step     time.Duration // Expected spacing between bars; 0 disables the gap check
	Bars     []Bar
}

// SeriesError describes the first integrity violation found in a Series.
type SeriesError struct {
	Index  int
	Reason string
}

func (e *SeriesError) Error() string {
	return fmt.Sprintf("bar %d: %s", e.Index, e.Reason)
}

// Len returns the number of bars.
func (s Series) Len() int {
	return len(s.Bars)
}

// Window returns the bars strictly before index end.
func (s Series) Window(end int) []Bar {
	return s.Bars[:end:end]
}

// Validate checks ordering and OHLC consistency.
func (s Series) Validate() error {
	if len(s.Bars) == 0 {
		return &SeriesError{Index: 0, Reason: "series is empty"}
	}
	for i, b := range s.Bars {
		if b.Time.Location() != time.UTC {
			return &SeriesError{Index: i, Reason: "timestamp is not UTC"}
		}
		if b.Time.Nanosecond() != 0 {
			return &SeriesError{Index: i, Reason: "timestamp has sub-second precision"}
		}
		if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
			return &SeriesError{Index: i, Reason: "non-positive price"}
		}
		if b.Low > min(b.Open, b.Close) || b.High < max(b.Open, b.Close) {
			return &SeriesError{Index: i, Reason: fmt.Sprintf("inconsistent range low=%s high=%s", b.Low, b.High)}
		}
		if b.Volume < 0 {
			return &SeriesError{Index: i, Reason: "negative volume"}
		}
		if i == 0 {
			continue
		}
		prev := s.Bars[i-1].Time
		if !b.Time.After(prev) {
			return &SeriesError{Index: i, Reason: fmt.Sprintf("timestamp %s not after %s", b.Time.Format(time.RFC3339), prev.Format(time.RFC3339))}
		}
		if s.Step > 0 && !b.Gap && b.Time.Sub(prev) > s.Step {
			return &SeriesError{Index: i, Reason: fmt.Sprintf("unflagged gap of %s", b.Time.Sub(prev))}
		}
	}
	return nil
}
