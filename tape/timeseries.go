package tape

import (
	"github.com/jsphweid/midiroll/constants"
)

type PitchMode int

const (
	// Absolute grids are NumPitches wide, indexed by MIDI pitch.
	Absolute PitchMode = iota
	// Relative grids only span MinPitch..MaxPitch.
	Relative
)

type Cell struct {
	Velocity float64
	Onset    float64
}

// Grid is indexed [tick-start][pitch].
type Grid [][]Cell

func NewGrid(ticks uint64, width int) Grid {
	g := make(Grid, ticks)
	cells := make([]Cell, int(ticks)*width)
	for i := range g {
		g[i] = cells[i*width : (i+1)*width : (i+1)*width]
	}
	return g
}

// Width of the grid's pitch axis.
func (t *Tape) Width(mode PitchMode) int {
	if mode == Relative {
		return int(t.header.MaxPitch) - int(t.header.MinPitch) + 1
	}
	return constants.NumPitches
}

// Timeseries projects the tape onto a dense grid. Velocity is carried
// forward from the last event of each pitch; Onset is 1 only on the tick a
// note starts.
func (t *Tape) Timeseries(mode PitchMode) (Grid, error) {
	records, err := t.Records()
	if err != nil {
		return nil, err
	}
	width := t.Width(mode)
	offset := 0
	if mode == Relative {
		offset = int(t.header.MinPitch)
	}

	grid := NewGrid(t.Length(), width)
	current := make([]float64, width)
	// onsets and releases seen on a pitch's onset tick
	ons := make([]int, width)
	offs := make([]int, width)
	var touched []int

	i := 0
	for row := range grid {
		tick := t.header.StartTime + uint64(row)
		for ; i < len(records) && (!records[i].IsNote() || records[i].Tick <= tick); i++ {
			r := records[i]
			if !r.IsNote() {
				continue
			}
			p := int(r.Pitch) - offset
			switch {
			case r.Tag == NoteOn:
				if ons[p] == 0 {
					touched = append(touched, p)
				}
				ons[p]++
				current[p] = float64(r.Velocity) / constants.MaxVelocity
			case ons[p] > 0:
				offs[p]++
			default:
				current[p] = 0
			}
		}

		copyRow(grid[row], current)
		for _, p := range touched {
			grid[row][p].Onset = 1
			// every note sounding into this row or starting in it owes one
			// release; the pitch carries on if some are still unpaid
			open := ons[p]
			if wasSounding(grid, row, p) {
				open++
			}
			if offs[p] >= open {
				current[p] = 0
			}
			ons[p] = 0
			offs[p] = 0
		}
		touched = touched[:0]
	}
	return grid, nil
}

func wasSounding(grid Grid, row int, p int) bool {
	return row > 0 && grid[row-1][p].Velocity > 0
}

func copyRow(row []Cell, velocities []float64) {
	for p, v := range velocities {
		row[p].Velocity = v
	}
}
