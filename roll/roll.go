package roll

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/jsphweid/midiroll/constants"
	"github.com/jsphweid/midiroll/model"
	"github.com/jsphweid/midiroll/tape"
	"github.com/pkg/errors"
)

var (
	ErrMixedTempo = errors.New("tapes in a group must share a tempo")
	ErrEmptyGroup = errors.New("no tapes to combine")
)

// Roll is everything produced for one source file.
type Roll struct {
	SourcePath string
	// SourceHash identifies the logic that produced the roll, see LogicHash
	SourceHash string
	Labels     []model.Label
	Tapes      []*tape.Tape
}

func New(sourcePath string, hash string) *Roll {
	return &Roll{SourcePath: sourcePath, SourceHash: hash}
}

// LogicHash fingerprints the normalizer version and the settings that
// change its output. A stored roll with the same hash is up to date.
func LogicHash(chopLoss float64) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%g", constants.Version, chopLoss)))
	return hex.EncodeToString(sum[:])
}

func (r *Roll) Append(t *tape.Tape) {
	h := t.Header()
	r.Labels = append(r.Labels, model.Label{
		Index:      len(r.Tapes),
		StartTime:  h.StartTime,
		Tempo:      h.Tempo,
		Channel:    h.Channel,
		Instrument: h.Instrument,
		UnitLength: h.UnitLength,
	})
	r.Tapes = append(r.Tapes, t)
}

type Group struct {
	Tempo uint32
	Tapes []*tape.Tape
}

// Groups buckets the tapes by tempo, in order of first appearance.
func (r *Roll) Groups() []Group {
	var res []Group
	index := make(map[uint32]int)
	for _, t := range r.Tapes {
		tempo := t.Header().Tempo
		i, ok := index[tempo]
		if !ok {
			i = len(res)
			index[tempo] = i
			res = append(res, Group{Tempo: tempo})
		}
		res[i].Tapes = append(res[i].Tapes, t)
	}
	return res
}

// Combine overlays the absolute timeseries of same-tempo tapes onto one grid
// spanning all of them, adding velocities and onsets. It returns the grid and
// the tick its first row stands for.
//
// Tapes are laid out by start time only, so tapes of one group that were
// quantized to different units line up only approximately.
func Combine(tapes []*tape.Tape) (tape.Grid, uint64, error) {
	if len(tapes) == 0 {
		return nil, 0, ErrEmptyGroup
	}
	tempo := tapes[0].Header().Tempo
	start, end := tapes[0].Header().StartTime, uint64(0)
	for _, t := range tapes {
		h := t.Header()
		if h.Tempo != tempo {
			return nil, 0, errors.Wrapf(ErrMixedTempo, "%d and %d", tempo, h.Tempo)
		}
		if h.StartTime < start {
			start = h.StartTime
		}
		if e := h.StartTime + t.Length(); e > end {
			end = e
		}
	}

	res := tape.NewGrid(end-start, constants.NumPitches)
	for _, t := range tapes {
		series, err := t.Timeseries(tape.Absolute)
		if err != nil {
			return nil, 0, err
		}
		offset := t.Header().StartTime - start
		for i, row := range series {
			dst := res[offset+uint64(i)]
			for p, cell := range row {
				dst[p].Velocity += cell.Velocity
				dst[p].Onset += cell.Onset
			}
		}
	}
	return res, start, nil
}

// Summary is the catalog entry for the roll, under name.
func (r *Roll) Summary(name string) model.RollSummary {
	labels := make([]model.Label, len(r.Labels))
	copy(labels, r.Labels)
	return model.RollSummary{
		Name:       name,
		SourceHash: r.SourceHash,
		NumTapes:   len(r.Labels),
		Labels:     labels,
	}
}
