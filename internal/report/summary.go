// Package report turns stored crossing buckets into summaries and
// charts for the API.
package report

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/passenger.counter/internal/counting"
	"github.com/banshee-data/passenger.counter/internal/db"
)

// Summary describes passenger flow across a run of buckets.
type Summary struct {
	Stream   string            `json:"stream,omitempty"`
	Interval string            `json:"interval"`
	Buckets  int               `json:"buckets"`
	Totals   counting.Counters `json:"totals"`
	Net      int               `json:"net"` // in minus out

	MeanIn    float64 `json:"mean_in"`
	MeanOut   float64 `json:"mean_out"`
	StdDevIn  float64 `json:"stddev_in"`
	StdDevOut float64 `json:"stddev_out"`

	// Percentiles of per-bucket traffic (in + out).
	P50 float64 `json:"p50"`
	P90 float64 `json:"p90"`

	Peak *db.CountBucket `json:"peak,omitempty"`
}

// Summarize computes a Summary. Buckets need not be sorted. Empty
// buckets between the first and last are counted as zero traffic.
func Summarize(stream string, buckets []db.CountBucket, interval time.Duration) Summary {
	s := Summary{Stream: stream, Interval: interval.String()}
	filled := Fill(buckets, interval)
	if len(filled) == 0 {
		return s
	}
	s.Buckets = len(filled)

	ins := make([]float64, len(filled))
	outs := make([]float64, len(filled))
	traffic := make([]float64, len(filled))
	for i, b := range filled {
		ins[i] = float64(b.In)
		outs[i] = float64(b.Out)
		s.Totals.In += b.In
		s.Totals.Out += b.Out
	}
	floats.AddTo(traffic, ins, outs)
	s.Net = s.Totals.In - s.Totals.Out

	s.MeanIn, s.StdDevIn = stat.MeanStdDev(ins, nil)
	s.MeanOut, s.StdDevOut = stat.MeanStdDev(outs, nil)
	if len(filled) == 1 {
		// MeanStdDev reports NaN for a single sample.
		s.StdDevIn, s.StdDevOut = 0, 0
	}

	peak := filled[floats.MaxIdx(traffic)]
	s.Peak = &peak

	sorted := append([]float64(nil), traffic...)
	sort.Float64s(sorted)
	s.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	s.P90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	return s
}

// Fill returns buckets sorted by start with the gaps between the first
// and last bucket filled with zero entries.
func Fill(buckets []db.CountBucket, interval time.Duration) []db.CountBucket {
	if len(buckets) == 0 || interval <= 0 {
		return nil
	}
	sorted := append([]db.CountBucket(nil), buckets...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := make([]db.CountBucket, 0, len(sorted))
	next := sorted[0].Start
	for _, b := range sorted {
		for next.Before(b.Start) {
			out = append(out, db.CountBucket{Start: next})
			next = next.Add(interval)
		}
		out = append(out, b)
		next = b.Start.Add(interval)
	}
	return out
}
