package normalize

import (
	"testing"

	"github.com/jsphweid/midiroll/model"
	"github.com/jsphweid/midiroll/roll"
	"github.com/jsphweid/midiroll/tape"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(delta uint32, msg model.Message) model.Event {
	return model.Event{DeltaTicks: delta, Message: msg}
}

func run(t *testing.T, events []model.Event) (*roll.Roll, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	opts := DefaultOptions()
	opts.Log = logrus.NewEntry(logger)

	r, err := Normalize("song.mid", events, 96, opts)
	require.NoError(t, err)
	return r, hook
}

func records(t *testing.T, tp *tape.Tape) []tape.Record {
	res, err := tp.Records()
	require.NoError(t, err)
	return res
}

func on(pitch, velocity uint8, tick uint64) tape.Record {
	return tape.Record{Tag: tape.NoteOn, Pitch: pitch, Velocity: velocity, Tick: tick}
}

func off(pitch uint8, tick uint64) tape.Record {
	return tape.Record{Tag: tape.NoteOff, Pitch: pitch, Tick: tick}
}

func TestTwoNotesOneChannel(t *testing.T) {
	r, _ := run(t, []model.Event{
		ev(0, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 80}),
		ev(96, model.NoteOff{Channel: 0, Pitch: 60}),
		ev(0, model.NoteOn{Channel: 0, Pitch: 62, Velocity: 80}),
		ev(96, model.NoteOff{Channel: 0, Pitch: 62}),
		ev(0, model.EndOfTrack{}),
	})
	require.Len(t, r.Tapes, 1)
	tp := r.Tapes[0]
	h := tp.Header()

	assert := assert.New(t)
	assert.Equal(uint64(48), h.UnitLength)
	assert.Equal(uint64(2), h.MinCommonMultiple)
	assert.Equal(uint32(500000), h.Tempo)
	assert.Equal(roll.LogicHash(0.002), r.SourceHash)
	assert.Equal([]tape.Record{on(60, 80, 0), on(62, 80, 2), off(60, 2), off(62, 4)}, records(t, tp))

	grid, err := tp.Timeseries(tape.Absolute)
	require.NoError(t, err)
	for row := range grid {
		assert.Equal(row < 2, grid[row][60].Velocity > 0, "pitch 60 row %d", row)
		assert.Equal(row >= 2 && row < 4, grid[row][62].Velocity > 0, "pitch 62 row %d", row)
	}
	assert.Equal(1.0, grid[0][60].Onset)
	assert.Equal(1.0, grid[2][62].Onset)
	assert.Equal(0.0, grid[1][60].Onset)
}

func TestVolumeControl(t *testing.T) {
	r, _ := run(t, []model.Event{
		ev(0, model.ControlChange{Channel: 1, Controller: 7, Value: 64}),
		ev(0, model.NoteOn{Channel: 1, Pitch: 60, Velocity: 100}),
		ev(96, model.NoteOff{Channel: 1, Pitch: 60}),
		ev(0, model.EndOfTrack{}),
	})
	require.Len(t, r.Tapes, 1)
	assert.Equal(t, uint8(50), records(t, r.Tapes[0])[0].Velocity)
	assert.Equal(t, uint8(1), r.Tapes[0].Header().Channel)
}

func TestTempoChangeClosesSoundingNotes(t *testing.T) {
	r, _ := run(t, []model.Event{
		ev(0, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 80}),
		ev(48, model.SetTempo{MicrosPerBeat: 400000}),
		ev(48, model.NoteOn{Channel: 0, Pitch: 62, Velocity: 80}),
		ev(48, model.NoteOff{Channel: 0, Pitch: 62}),
		ev(0, model.EndOfTrack{}),
	})
	require.Len(t, r.Tapes, 2)

	assert := assert.New(t)
	old, next := r.Tapes[0].Header(), r.Tapes[1].Header()
	assert.Equal(uint32(500000), old.Tempo)
	assert.Equal(uint64(24), old.UnitLength)
	assert.Equal([]tape.Record{on(60, 80, 0), off(60, 2)}, records(t, r.Tapes[0]))

	assert.Equal(uint32(400000), next.Tempo)
	assert.Equal(uint64(48), next.RawStartTime)
	assert.Equal(uint64(2), next.StartTime)
	assert.Equal([]tape.Record{on(62, 80, 4), off(62, 6)}, records(t, r.Tapes[1]))
	assert.Len(r.Groups(), 2)
}

func TestPercussionIsDropped(t *testing.T) {
	r, _ := run(t, []model.Event{
		ev(0, model.NoteOn{Channel: 9, Pitch: 36, Velocity: 100}),
		ev(10, model.NoteOff{Channel: 9, Pitch: 36}),
		ev(0, model.NoteOn{Channel: 2, Pitch: 50, Velocity: 100}),
		ev(10, model.NoteOff{Channel: 2, Pitch: 50}),
		ev(0, model.EndOfTrack{}),
	})
	require.Len(t, r.Tapes, 1)
	for _, tp := range r.Tapes {
		assert.NotEqual(t, uint8(9), tp.Header().Channel)
	}
}

func TestProgramChangeSplitsSegment(t *testing.T) {
	r, _ := run(t, []model.Event{
		ev(0, model.ProgramChange{Channel: 0, Program: 5}),
		ev(0, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 80}),
		ev(96, model.NoteOff{Channel: 0, Pitch: 60}),
		ev(0, model.ProgramChange{Channel: 0, Program: 7}),
		ev(0, model.NoteOn{Channel: 0, Pitch: 62, Velocity: 80}),
		ev(96, model.NoteOff{Channel: 0, Pitch: 62}),
		ev(0, model.EndOfTrack{}),
	})
	require.Len(t, r.Tapes, 2)

	assert := assert.New(t)
	assert.Equal(uint8(5), r.Tapes[0].Header().Instrument)
	assert.Equal(uint8(7), r.Tapes[1].Header().Instrument)
	assert.Equal(uint64(48), r.Tapes[1].Header().UnitLength)
	assert.Equal([]tape.Record{on(62, 80, 2), off(62, 4)}, records(t, r.Tapes[1]))
	assert.Len(r.Groups(), 1)
}

func TestSilentChannelsAreDiscarded(t *testing.T) {
	r, _ := run(t, []model.Event{
		ev(0, model.ProgramChange{Channel: 3, Program: 1}),
		ev(0, model.ControlChange{Channel: 4, Controller: 7, Value: 20}),
		ev(0, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 80}),
		ev(96, model.NoteOff{Channel: 0, Pitch: 60}),
		ev(0, model.EndOfTrack{}),
	})
	require.Len(t, r.Tapes, 1)
	assert.Equal(t, uint8(0), r.Tapes[0].Header().Channel)
}

func TestMalformedAndUnsupportedAreSkipped(t *testing.T) {
	r, hook := run(t, []model.Event{
		ev(0, model.NoteOn{Channel: 16, Pitch: 60, Velocity: 80}),
		ev(0, model.NoteOn{Channel: 0, Pitch: 200, Velocity: 80}),
		ev(0, model.Unsupported{Name: "pitch bend"}),
		ev(0, nil),
		ev(0, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 80}),
		ev(96, model.NoteOff{Channel: 0, Pitch: 60}),
		ev(0, model.EndOfTrack{}),
	})
	require.Len(t, r.Tapes, 1)

	var warnings int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, 3, warnings)
}

func TestZeroLengthNotesFallBackToUnitOne(t *testing.T) {
	r, hook := run(t, []model.Event{
		ev(0, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 80}),
		ev(0, model.NoteOff{Channel: 0, Pitch: 60}),
		ev(0, model.EndOfTrack{}),
	})
	require.Len(t, r.Tapes, 1)
	assert.Equal(t, uint64(1), r.Tapes[0].Header().UnitLength)

	var warned bool
	for _, e := range hook.AllEntries() {
		warned = warned || e.Level == logrus.WarnLevel
	}
	assert.True(t, warned)
}

func TestLongTapeKeepsAbsoluteTicks(t *testing.T) {
	r, _ := run(t, []model.Event{
		ev(0, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 127}),
		ev(2, model.NoteOff{Channel: 0, Pitch: 60}),
		ev(69998, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 127}),
		ev(2, model.NoteOff{Channel: 0, Pitch: 60}),
		ev(0, model.EndOfTrack{}),
	})
	require.Len(t, r.Tapes, 1)
	tp := r.Tapes[0]

	assert := assert.New(t)
	assert.Equal(uint64(1), tp.Header().UnitLength)
	assert.Equal(uint64(70002), tp.Header().TotalTicks)

	var notes []tape.Record
	for _, rec := range records(t, tp) {
		if rec.IsNote() {
			notes = append(notes, rec)
		}
	}
	assert.Equal([]tape.Record{on(60, 127, 0), off(60, 2), on(60, 127, 70000), off(60, 70002)}, notes)

	grid, err := tp.Timeseries(tape.Relative)
	require.NoError(t, err)
	require.Len(t, grid, 70003)
	assert.Equal(tape.Cell{Velocity: 1, Onset: 1}, grid[70000][0])
	assert.Equal(tape.Cell{Velocity: 1}, grid[70001][0])
}

func TestMissingEndOfTrackStillCloses(t *testing.T) {
	r, _ := run(t, []model.Event{
		ev(0, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 80}),
		ev(96, model.NoteOff{Channel: 0, Pitch: 60}),
	})
	require.Len(t, r.Tapes, 1)
}

func TestSharedTempoPoolsHistograms(t *testing.T) {
	// channel 1 alone would solve to 96, channel 0 pulls the pool to 48
	r, _ := run(t, []model.Event{
		ev(0, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 80}),
		ev(0, model.NoteOn{Channel: 1, Pitch: 40, Velocity: 80}),
		ev(96, model.NoteOff{Channel: 0, Pitch: 60}),
		ev(0, model.NoteOn{Channel: 0, Pitch: 61, Velocity: 80}),
		ev(96, model.NoteOff{Channel: 0, Pitch: 61}),
		ev(0, model.NoteOn{Channel: 0, Pitch: 62, Velocity: 80}),
		ev(0, model.NoteOff{Channel: 1, Pitch: 40}),
		ev(0, model.NoteOn{Channel: 1, Pitch: 41, Velocity: 80}),
		ev(96, model.NoteOff{Channel: 0, Pitch: 62}),
		ev(0, model.NoteOn{Channel: 0, Pitch: 63, Velocity: 80}),
		ev(96, model.NoteOff{Channel: 0, Pitch: 63}),
		ev(0, model.NoteOff{Channel: 1, Pitch: 41}),
		ev(0, model.EndOfTrack{}),
	})
	require.Len(t, r.Tapes, 2)
	for _, tp := range r.Tapes {
		assert.Equal(t, uint64(48), tp.Header().UnitLength)
	}
}

func TestTapeInvariants(t *testing.T) {
	r, _ := run(t, []model.Event{
		ev(0, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 80}),
		ev(0, model.NoteOn{Channel: 0, Pitch: 64, Velocity: 80}),
		ev(47, model.NoteOff{Channel: 0, Pitch: 60}),
		ev(1, model.NoteOn{Channel: 0, Pitch: 60, Velocity: 80}),
		ev(49, model.NoteOff{Channel: 0, Pitch: 64}),
		ev(0, model.NoteOff{Channel: 0, Pitch: 60}),
		ev(0, model.NoteOn{Channel: 5, Pitch: 70, Velocity: 80}),
		ev(95, model.NoteOff{Channel: 5, Pitch: 70}),
		ev(0, model.EndOfTrack{}),
	})
	require.NotEmpty(t, r.Tapes)
	for _, tp := range r.Tapes {
		assert.Greater(t, tp.Header().UnitLength, uint64(0))
		recs := records(t, tp)
		var ons, offs int
		for i, rec := range recs {
			if rec.Tag == tape.NoteOn {
				ons++
			} else {
				offs++
			}
			if i == 0 {
				continue
			}
			prev := recs[i-1]
			assert.LessOrEqual(t, prev.Tick, rec.Tick)
			if prev.Tick == rec.Tick {
				assert.False(t, prev.Tag == tape.NoteOff && rec.Tag == tape.NoteOn, "off before on at %d", rec.Tick)
			}
		}
		assert.Equal(t, ons, offs)
	}
}

func TestZeroTicksPerBeat(t *testing.T) {
	_, err := Normalize("x.mid", nil, 0, DefaultOptions())
	assert.Error(t, err)
}
