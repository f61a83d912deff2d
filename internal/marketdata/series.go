// Package marketdata provides the bar store backing the detection engine.
//
// Series ingests completed bars on their native timeframes and incrementally
// resamples the trading timeframe into the higher timeframes of the plan.
// Resampling is right-edge aligned: a higher-timeframe bucket only becomes
// visible once a bar arrives in the next bucket, so the engine never sees a
// forming higher-timeframe candle.
package marketdata

import (
	"log"
	"time"

	"mss-enginev1/internal/model"
)

// formState holds the forming derived candle for one (symbol, TF) pair.
type formState struct {
	bucket  int64 // bucket start = ts - ts%tfSecs (Unix seconds)
	bar     model.Bar
	started bool
}

// Series stores completed bars per symbol and timeframe.
// Designed for single-goroutine usage — no locks needed.
type Series struct {
	derivedTFs []model.Timeframe
	maxBars    int

	// Completed bars per "symbol:tf", oldest-first.
	bars map[string][]model.Bar

	// Forming derived candles per "symbol:tf".
	forming map[string]*formState
}

// NewSeries creates a bar store that derives the given timeframes from each
// appended trading-timeframe bar. maxBars caps retained history per series
// (0 means unbounded).
func NewSeries(derivedTFs []model.Timeframe, maxBars int) *Series {
	return &Series{
		derivedTFs: derivedTFs,
		maxBars:    maxBars,
		bars:       make(map[string][]model.Bar, 16),
		forming:    make(map[string]*formState, 16),
	}
}

// Append ingests a completed bar on its native timeframe.
// Out-of-order bars (timestamp at or before the last stored bar) are dropped.
func (s *Series) Append(b model.Bar) {
	key := b.Key()
	if existing := s.bars[key]; len(existing) > 0 {
		if !b.TS.After(existing[len(existing)-1].TS) {
			log.Printf("[marketdata] dropping out-of-order bar %s @ %s", key, b.TS)
			return
		}
	}
	s.push(key, b)
	s.resample(b)
}

// resample folds a trading-TF bar into each derived higher timeframe.
func (s *Series) resample(b model.Bar) {
	ts := b.TS.Unix()
	for _, tf := range s.derivedTFs {
		if tf <= b.TF {
			continue // can only aggregate upwards
		}
		tfSecs := int64(tf.Minutes()) * 60
		bucket := ts - ts%tfSecs
		key := b.Symbol + ":" + tf.String()

		st, ok := s.forming[key]
		if !ok {
			st = &formState{}
			s.forming[key] = st
		}

		if st.started && bucket != st.bucket {
			// Bucket rolled — the previous derived candle is complete.
			s.push(key, st.bar)
			st.started = false
		}

		if !st.started {
			st.bucket = bucket
			st.bar = model.Bar{
				Symbol: b.Symbol,
				TF:     tf,
				TS:     unixUTC(bucket),
				Open:   b.Open,
				High:   b.High,
				Low:    b.Low,
				Close:  b.Close,
			}
			st.started = true
			continue
		}

		if b.High > st.bar.High {
			st.bar.High = b.High
		}
		if b.Low < st.bar.Low {
			st.bar.Low = b.Low
		}
		st.bar.Close = b.Close
	}
}

// push appends a completed bar to a series, trimming to maxBars.
func (s *Series) push(key string, b model.Bar) {
	series := append(s.bars[key], b)
	if s.maxBars > 0 && len(series) > s.maxBars {
		series = series[len(series)-s.maxBars:]
	}
	s.bars[key] = series
}

// Bars returns the completed bars for a symbol and timeframe, oldest-first.
// Derived timeframes only include closed buckets. Empty means not ready.
func (s *Series) Bars(symbol string, tf model.Timeframe) []model.Bar {
	return s.bars[symbol+":"+tf.String()]
}

var _ model.MarketDataSource = (*Series)(nil)

func unixUTC(sec int64) (t time.Time) {
	return time.Unix(sec, 0).UTC()
}
