package roll

import (
	"path/filepath"
	"testing"

	"github.com/jsphweid/midiroll/tape"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTape(t *testing.T, h tape.Header, records ...tape.Record) *tape.Tape {
	if h.UnitLength == 0 {
		h.UnitLength = 48
	}
	tp, err := tape.Finalize(h, records)
	require.NoError(t, err)
	return tp
}

func on(pitch, velocity uint8, tick uint64) tape.Record {
	return tape.Record{Tag: tape.NoteOn, Pitch: pitch, Velocity: velocity, Tick: tick}
}

func off(pitch uint8, tick uint64) tape.Record {
	return tape.Record{Tag: tape.NoteOff, Pitch: pitch, Tick: tick}
}

func sampleRoll(t *testing.T) *Roll {
	r := New("song.mid", LogicHash(0.002))
	r.Append(makeTape(t, tape.Header{Tempo: 500000, Channel: 0}, on(60, 100, 0), off(60, 4)))
	r.Append(makeTape(t, tape.Header{Tempo: 400000, Channel: 1, StartTime: 2}, on(40, 50, 2), off(40, 3)))
	r.Append(makeTape(t, tape.Header{Tempo: 500000, Channel: 2, Instrument: 33}, on(72, 64, 0), off(72, 4)))
	return r
}

func TestAppendLabels(t *testing.T) {
	r := sampleRoll(t)
	require.Len(t, r.Labels, 3)

	assert := assert.New(t)
	assert.Equal(2, r.Labels[2].Index)
	assert.Equal(uint8(33), r.Labels[2].Instrument)
	assert.Equal(uint32(400000), r.Labels[1].Tempo)
	assert.Equal(uint64(2), r.Labels[1].StartTime)
	assert.Equal(uint64(48), r.Labels[1].UnitLength)
}

func TestGroups(t *testing.T) {
	groups := sampleRoll(t).Groups()
	require.Len(t, groups, 2)

	assert := assert.New(t)
	assert.Equal(uint32(500000), groups[0].Tempo)
	assert.Len(groups[0].Tapes, 2)
	assert.Equal(uint32(400000), groups[1].Tempo)
	assert.Len(groups[1].Tapes, 1)
}

func TestCombineDisjointPitches(t *testing.T) {
	a := makeTape(t, tape.Header{Tempo: 500000}, on(60, 100, 0), off(60, 2), on(61, 20, 3), off(61, 4))
	b := makeTape(t, tape.Header{Tempo: 500000}, on(70, 64, 1), off(70, 4))

	grid, start, err := Combine([]*tape.Tape{a, b})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), start)
	require.Len(t, grid, 5)

	for _, src := range []*tape.Tape{a, b} {
		series, err := src.Timeseries(tape.Absolute)
		require.NoError(t, err)
		h := src.Header()
		for row := range series {
			for p := int(h.MinPitch); p <= int(h.MaxPitch); p++ {
				assert.Equal(t, series[row][p], grid[row][p], "row %d pitch %d", row, p)
			}
		}
	}
}

func TestCombineOffsetsAndAdds(t *testing.T) {
	a := makeTape(t, tape.Header{Tempo: 500000, StartTime: 2}, on(60, 127, 2), off(60, 3))
	b := makeTape(t, tape.Header{Tempo: 500000, StartTime: 3}, on(60, 127, 3), off(60, 5))

	grid, start, err := Combine([]*tape.Tape{a, b})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), start)
	require.Len(t, grid, 4)

	var got []tape.Cell
	for _, row := range grid {
		got = append(got, row[60])
	}
	assert.Equal(t, []tape.Cell{{Velocity: 1, Onset: 1}, {Velocity: 1, Onset: 1}, {Velocity: 1}, {}}, got)
}

func TestCombineErrors(t *testing.T) {
	_, _, err := Combine(nil)
	assert.ErrorIs(t, err, ErrEmptyGroup)

	r := sampleRoll(t)
	_, _, err = Combine(r.Tapes)
	assert.ErrorIs(t, err, ErrMixedTempo)
}

func TestDumpLoad(t *testing.T) {
	for _, selfContained := range []bool{false, true} {
		dir := t.TempDir()
		rollPath := filepath.Join(dir, "song.mrl")
		r := sampleRoll(t)
		require.NoError(t, r.Dump(rollPath, selfContained))

		loaded, err := Load(rollPath)
		require.NoError(t, err)

		assert := assert.New(t)
		assert.Equal(r.SourceHash, loaded.SourceHash)
		assert.Equal(r.SourcePath, loaded.SourcePath)
		assert.Equal(r.Labels, loaded.Labels)
		require.Len(t, loaded.Tapes, len(r.Tapes))
		for i := range r.Tapes {
			assert.Equal(r.Tapes[i].Header(), loaded.Tapes[i].Header())
			assert.Equal(r.Tapes[i].Data(), loaded.Tapes[i].Data())
		}

		if selfContained {
			assert.Empty(loaded.Labels[0].StorageReference)
			assert.NoFileExists(TapePath(rollPath, 0))
		} else {
			assert.Equal("song_1.mtp", loaded.Labels[1].StorageReference)
			assert.FileExists(filepath.Join(dir, "song_1.mtp"))
		}

		header, err := LoadHeader(rollPath)
		require.NoError(t, err)
		assert.Empty(header.Tapes)
		assert.Len(header.Labels, 3)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.mrl"))
	assert.Error(t, err)
}

func TestLogicHash(t *testing.T) {
	assert.Equal(t, LogicHash(0.002), LogicHash(0.002))
	assert.NotEqual(t, LogicHash(0.002), LogicHash(0.01))
	assert.Len(t, LogicHash(0.002), 32)
}

func TestSummary(t *testing.T) {
	r := sampleRoll(t)
	s := r.Summary("a/song.mid")

	assert := assert.New(t)
	assert.Equal("a/song.mid", s.Name)
	assert.Equal(r.SourceHash, s.SourceHash)
	assert.Equal(3, s.NumTapes)
	assert.Equal(r.Labels, s.Labels)
}
