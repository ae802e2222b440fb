package solver

import (
	"math"
	"sort"

	"github.com/pkg/errors"
)

var ErrDegenerateHistogram = errors.New("no nonzero candidate length in histogram")

// Histogram maps a note full length (ticks) to how many times it occurred.
type Histogram map[uint64]uint64

func (h Histogram) Add(length uint64) {
	h[length]++
}

// Merge folds other into h.
func (h Histogram) Merge(other Histogram) {
	for length, count := range other {
		h[length] += count
	}
}

func (h Histogram) Total() uint64 {
	var total uint64
	for _, count := range h {
		total += count
	}
	return total
}

type entry struct {
	length uint64
	count  uint64
}

func (h Histogram) sorted() []entry {
	res := make([]entry, 0, len(h))
	for length, count := range h {
		res = append(res, entry{length, count})
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].length < res[j].length
	})
	return res
}

type Candidate struct {
	UnitLength     uint64
	Loss           uint64
	WorstDeviation uint64
}

type Result struct {
	// UnitLength is half of the winning candidate, at least 1.
	UnitLength        uint64
	MinCommonMultiple uint64
	Loss              uint64
	Threshold         float64
	// Trace holds every accepted candidate, the initial pick first.
	Trace []Candidate
}

// medianIndex returns how many entries it takes to cover half the notes.
func medianIndex(entries []entry, total uint64) int {
	var count uint64
	i := 0
	for float64(count) < float64(total)/2 && i < len(entries) {
		count += entries[i].count
		i++
	}
	return i
}

func nearestMultiple(length uint64, unit uint64) uint64 {
	m := uint64(math.RoundToEven(float64(length) / float64(unit)))
	if m == 0 {
		m = 1
	}
	return m
}

func evaluate(entries []entry, unit uint64) Candidate {
	c := Candidate{UnitLength: unit}
	for _, e := range entries {
		fit := unit * nearestMultiple(e.length, unit)
		var dev uint64
		if fit > e.length {
			dev = fit - e.length
		} else {
			dev = e.length - fit
		}
		c.Loss += dev * e.count
		if dev > c.WorstDeviation {
			c.WorstDeviation = dev
		}
	}
	return c
}

func minCommon(entries []entry, total uint64) uint64 {
	common := make([]entry, len(entries))
	copy(common, entries)
	sort.SliceStable(common, func(i, j int) bool {
		return common[i].count > common[j].count
	})
	var res uint64
	for _, e := range common[:medianIndex(common, total)] {
		if e.length != 0 && (res == 0 || e.length < res) {
			res = e.length
		}
	}
	return res
}

// Solve infers the quantization unit that best explains the lengths in h as
// integer multiples. Candidates start at the lengths no longer than the
// median note; the winner's worst-fitting deviation is then tried as the
// next candidate until the loss stops improving or drops under
// chopLoss of the summed lengths.
//
// On ErrDegenerateHistogram the returned Result is still usable, with a
// unit length of 1.
func Solve(h Histogram, chopLoss float64) (Result, error) {
	entries := h.sorted()
	total := h.Total()

	var maxLoss uint64
	for _, e := range entries {
		maxLoss += e.length
	}
	res := Result{Threshold: chopLoss * float64(maxLoss)}

	var best Candidate
	found := false
	for _, e := range entries[:medianIndex(entries, total)] {
		if e.length == 0 {
			continue
		}
		c := evaluate(entries, e.length)
		if !found || c.Loss < best.Loss {
			best = c
			found = true
		}
	}
	if !found {
		res.UnitLength = 1
		res.MinCommonMultiple = minCommon(entries, total)
		return res, ErrDegenerateHistogram
	}
	res.Trace = append(res.Trace, best)

	for float64(best.Loss) > res.Threshold && best.WorstDeviation > 0 {
		next := evaluate(entries, best.WorstDeviation)
		if next.Loss >= best.Loss {
			break
		}
		best = next
		res.Trace = append(res.Trace, best)
	}

	res.Loss = best.Loss
	res.UnitLength = best.UnitLength / 2
	if res.UnitLength == 0 {
		res.UnitLength = 1
	}
	res.MinCommonMultiple = minCommon(entries, total) / res.UnitLength
	return res, nil
}
