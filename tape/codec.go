package tape

import (
	"encoding/binary"
	"fmt"

	"github.com/jsphweid/midiroll/constants"
	"github.com/jsphweid/midiroll/util"
	"github.com/pkg/errors"
)

type Tag uint8

const (
	NoteOff     Tag = 0
	NoteOn      Tag = 1
	BasisChange Tag = 2
	TimeChange  Tag = 3
)

func (t Tag) String() string {
	switch t {
	case NoteOff:
		return "note_off"
	case NoteOn:
		return "note_on"
	case BasisChange:
		return "basis_change"
	case TimeChange:
		return "time_change"
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

var (
	ErrTickOrder  = errors.New("record tick is behind the running base")
	ErrTruncated  = errors.New("tape data is not a whole number of records")
	ErrUnknownTag = errors.New("unknown record tag")
)

// Record is one encoded tape event. Which fields are meaningful depends on
// Tag: notes use Pitch/Velocity/Tick, BasisChange uses Basis/Tick,
// TimeChange uses Delta. A decoded TimeChange carries the base it moves to
// in Tick.
type Record struct {
	Tag      Tag
	Pitch    uint8
	Velocity uint8
	Basis    uint8
	Delta    uint16
	Tick     uint64
}

func (r Record) IsNote() bool {
	return r.Tag == NoteOn || r.Tag == NoteOff
}

const maxOffset = 0xFFFF

// Encode packs records into 5 byte big-endian records. Ticks are written as
// 16 bit offsets from a running base that starts at start. TimeChange
// records move the base forward by their Delta; one is inserted wherever
// the next tick would not fit.
func Encode(start uint64, records []Record) ([]byte, error) {
	buf := make([]byte, 0, len(records)*constants.RecordSize)
	base := start
	var rec [constants.RecordSize]byte
	timeChange := func(delta uint16) {
		rec = [constants.RecordSize]byte{byte(TimeChange)}
		binary.BigEndian.PutUint16(rec[1:], delta)
		buf = append(buf, rec[:]...)
		base += uint64(delta)
	}

	for i, r := range records {
		switch r.Tag {
		case NoteOn, NoteOff, BasisChange:
			if r.Tick < base {
				return nil, errors.Wrapf(ErrTickOrder, "record %d at tick %d (base %d)", i, r.Tick, base)
			}
			for r.Tick-base > maxOffset {
				timeChange(uint16(util.Min(r.Tick-base, maxOffset)))
			}
			rec = [constants.RecordSize]byte{byte(r.Tag)}
			if r.Tag == BasisChange {
				rec[1] = r.Basis
			} else {
				rec[1] = r.Pitch
				rec[2] = r.Velocity
			}
			binary.BigEndian.PutUint16(rec[3:], uint16(r.Tick-base))
			buf = append(buf, rec[:]...)
		case TimeChange:
			timeChange(r.Delta)
		default:
			return nil, errors.Wrapf(ErrUnknownTag, "record %d: %v", i, r.Tag)
		}
	}
	return buf, nil
}

// Decode is the inverse of Encode.
func Decode(start uint64, data []byte) ([]Record, error) {
	if len(data)%constants.RecordSize != 0 {
		return nil, errors.Wrapf(ErrTruncated, "%d bytes", len(data))
	}
	res := make([]Record, 0, len(data)/constants.RecordSize)
	base := start
	for i := 0; i < len(data); i += constants.RecordSize {
		b := data[i : i+constants.RecordSize]
		r := Record{Tag: Tag(b[0])}
		switch r.Tag {
		case NoteOn, NoteOff:
			r.Pitch = b[1]
			r.Velocity = b[2]
			r.Tick = base + uint64(binary.BigEndian.Uint16(b[3:]))
		case BasisChange:
			r.Basis = b[1]
			r.Tick = base + uint64(binary.BigEndian.Uint16(b[3:]))
		case TimeChange:
			r.Delta = binary.BigEndian.Uint16(b[1:])
			base += uint64(r.Delta)
			r.Tick = base
		default:
			return nil, errors.Wrapf(ErrUnknownTag, "byte %d: %v", i, b[0])
		}
		res = append(res, r)
	}
	return res, nil
}
