package midi

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/jsphweid/midiroll/model"
	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

var ErrUnsupportedTimeFormat = errors.New("only metric (ticks per beat) time formats are supported")

func ReadMidiFile(filepath string) (s *smf.SMF, e error) {
	// handle panics
	// https://github.com/gomidi/midi/issues/20
	defer func() {
		if r := recover(); r != nil {
			s = nil
			e = errors.Errorf("Error parsing midi file... %v", r)
		}
	}()

	dat, err := os.ReadFile(filepath)
	if err != nil {
		return nil, errors.Wrap(err, "Error reading midi file")
	}
	res, err := smf.ReadFrom(bytes.NewReader(dat))
	if err != nil {
		return nil, errors.Wrap(err, "Error parsing midi file")
	}
	return res, nil
}

func TicksPerBeat(s *smf.SMF) (uint16, error) {
	mt, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok {
		return 0, errors.Wrapf(ErrUnsupportedTimeFormat, "got %v", s.TimeFormat)
	}
	if mt == 0 {
		return 0, errors.Wrap(ErrUnsupportedTimeFormat, "zero ticks per beat")
	}
	return uint16(mt), nil
}

type timed struct {
	abs   uint64
	track int
	msg   smf.Message
}

// ToEvents flattens all tracks into one stream ordered by absolute tick (ties
// keep track order), the way a player would hear them. Per-track end of
// track markers are replaced by a single one after the last event.
func ToEvents(s *smf.SMF) ([]model.Event, uint16, error) {
	tpb, err := TicksPerBeat(s)
	if err != nil {
		return nil, 0, err
	}

	var all []timed
	var last uint64
	for i, track := range s.Tracks {
		var abs uint64
		for _, ev := range track {
			abs += uint64(ev.Delta)
			if abs > last {
				last = abs
			}
			if isEndOfTrack(ev.Message) {
				continue
			}
			all = append(all, timed{abs: abs, track: i, msg: ev.Message})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].abs < all[j].abs
	})

	res := make([]model.Event, 0, len(all)+1)
	var prev uint64
	for _, t := range all {
		res = append(res, model.Event{DeltaTicks: uint32(t.abs - prev), Message: Convert(t.msg)})
		prev = t.abs
	}
	res = append(res, model.Event{DeltaTicks: uint32(last - prev), Message: model.EndOfTrack{}})
	return res, tpb, nil
}

func isEndOfTrack(msg smf.Message) bool {
	return len(msg) >= 2 && msg[0] == 0xFF && msg[1] == 0x2F
}

// Convert maps a gomidi message onto the normalizer's message kinds.
func Convert(msg smf.Message) model.Message {
	if isEndOfTrack(msg) {
		return model.EndOfTrack{}
	}
	var bpm float64
	if msg.GetMetaTempo(&bpm) {
		if bpm <= 0 {
			return model.Unsupported{Name: "tempo"}
		}
		return model.SetTempo{MicrosPerBeat: uint32(math.Round(60000000 / bpm))}
	}

	m := midi.Message(msg)
	var ch, key, vel, program, controller, value uint8
	switch {
	case m.GetNoteOn(&ch, &key, &vel):
		return model.NoteOn{Channel: ch, Pitch: key, Velocity: vel}
	case m.GetNoteOff(&ch, &key, &vel):
		return model.NoteOff{Channel: ch, Pitch: key, Velocity: vel}
	case m.GetProgramChange(&ch, &program):
		return model.ProgramChange{Channel: ch, Program: program}
	case m.GetControlChange(&ch, &controller, &value):
		return model.ControlChange{Channel: ch, Controller: controller, Value: value}
	}
	return model.Unsupported{Name: describe(msg)}
}

func describe(msg smf.Message) string {
	if len(msg) == 0 {
		return "empty"
	}
	switch status := msg[0]; {
	case status == 0xFF:
		if len(msg) > 1 {
			return fmt.Sprintf("meta 0x%02X", msg[1])
		}
		return "meta"
	case status == 0xF0 || status == 0xF7:
		return "sysex"
	case status&0xF0 == 0xE0:
		return "pitch bend"
	case status&0xF0 == 0xA0:
		return "polyphonic aftertouch"
	case status&0xF0 == 0xD0:
		return "channel aftertouch"
	}
	return fmt.Sprintf("status 0x%02X", msg[0])
}
