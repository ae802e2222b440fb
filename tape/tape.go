package tape

import (
	"sort"

	"github.com/jsphweid/midiroll/model"
	"github.com/pkg/errors"
)

var ErrNoUnitLength = errors.New("tape has no unit length")

// Header is everything about a tape except its records. Times are in
// quantized ticks unless stated otherwise.
type Header struct {
	StartTime uint64 `yaml:"start_time"`
	// RawStartTime is the segment start in file ticks, before quantization
	RawStartTime      uint64 `yaml:"raw_start_time"`
	Tempo             uint32 `yaml:"tempo"`
	Instrument        uint8  `yaml:"instrument"`
	Channel           uint8  `yaml:"channel"`
	UnitLength        uint64 `yaml:"unit_length"`
	MinCommonMultiple uint64 `yaml:"min_common_multiple"`
	MinPitch          uint8  `yaml:"min_pitch"`
	MaxPitch          uint8  `yaml:"max_pitch"`
	TotalTicks        uint64 `yaml:"total_ticks"`
	NoteCount         uint32 `yaml:"note_count"`
}

// Tape is one channel segment, quantized and encoded. It is immutable once
// built by Finalize or read back by Read.
type Tape struct {
	header Header
	data   []byte
}

func (t *Tape) Header() Header {
	return t.header
}

// Data returns a copy of the encoded records.
func (t *Tape) Data() []byte {
	res := make([]byte, len(t.data))
	copy(res, t.data)
	return res
}

// Length is the number of quantized ticks the tape spans.
func (t *Tape) Length() uint64 {
	return t.header.TotalTicks - t.header.StartTime + 1
}

func (t *Tape) Records() ([]Record, error) {
	return Decode(t.header.StartTime, t.data)
}

// Quantize maps raw file-tick events onto a grid of unit ticks, keeping
// note ons ahead of note offs that land on the same tick.
func Quantize(events []model.RawEvent, unit uint64) []Record {
	res := make([]Record, 0, len(events))
	for _, e := range events {
		r := Record{
			Tag:      NoteOff,
			Pitch:    e.Pitch,
			Velocity: e.Velocity,
			Tick:     QuantizeTick(e.Tick, unit),
		}
		if e.On {
			r.Tag = NoteOn
		}
		res = append(res, r)
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Tick != res[j].Tick {
			return res[i].Tick < res[j].Tick
		}
		return res[i].Tag == NoteOn && res[j].Tag == NoteOff
	})
	return res
}

// Finalize derives the tick and pitch bounds of records, encodes them and
// seals the tape. Only StartTime, RawStartTime, Tempo, Instrument, Channel,
// UnitLength and MinCommonMultiple are taken from h.
func Finalize(h Header, records []Record) (*Tape, error) {
	if h.UnitLength == 0 {
		return nil, ErrNoUnitLength
	}
	h.TotalTicks = h.StartTime
	h.MinPitch, h.MaxPitch, h.NoteCount = 0, 0, 0
	first := true
	for _, r := range records {
		if r.Tag == TimeChange {
			continue
		}
		if r.Tick > h.TotalTicks {
			h.TotalTicks = r.Tick
		}
		if !r.IsNote() {
			continue
		}
		if r.Tag == NoteOn {
			h.NoteCount++
		}
		if first || r.Pitch < h.MinPitch {
			h.MinPitch = r.Pitch
		}
		if first || r.Pitch > h.MaxPitch {
			h.MaxPitch = r.Pitch
		}
		first = false
	}
	data, err := Encode(h.StartTime, records)
	if err != nil {
		return nil, err
	}
	return &Tape{header: h, data: data}, nil
}

// QuantizeTick rounds a file tick to the nearest unit, halves to even.
func QuantizeTick(tick uint64, unit uint64) uint64 {
	q := tick / unit
	rem := tick % unit
	switch {
	case 2*rem > unit:
		q++
	case 2*rem == unit && q%2 == 1:
		q++
	}
	return q
}
