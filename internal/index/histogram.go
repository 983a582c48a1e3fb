package index

import (
	"sort"
)

// HistogramPoint is one minute bucket of the activity histogram.
type HistogramPoint struct {
	Minute int64 `json:"minute"` // YYYYMMDDHHMM
	Count  int   `json:"count"`
}

// ActivityHistogram maps minute buckets to line counts. Only lines with a
// parsed timestamp contribute; the sum over all buckets equals the number
// of parsed lines.
type ActivityHistogram struct {
	Buckets map[int64]int
}

func NewActivityHistogram() *ActivityHistogram {
	return &ActivityHistogram{Buckets: make(map[int64]int)}
}

func (h *ActivityHistogram) Add(minute int64) {
	h.Buckets[minute]++
}

// Sum returns the total count across all buckets.
func (h *ActivityHistogram) Sum() int {
	total := 0
	for _, c := range h.Buckets {
		total += c
	}
	return total
}

// Points converts the bucket map to a slice sorted by minute ascending.
func (h *ActivityHistogram) Points() []HistogramPoint {
	points := make([]HistogramPoint, 0, len(h.Buckets))
	for m, c := range h.Buckets {
		points = append(points, HistogramPoint{Minute: m, Count: c})
	}
	sort.Slice(points, func(i, j int) bool {
		return points[i].Minute < points[j].Minute
	})
	return points
}

// FormatMinute renders a minute key as "2006-01-02 15:04" for axis labels
// and reports.
func FormatMinute(mk int64) string {
	sec := mk * 100
	s := formatSecKey(sec)
	return s[:16]
}
