package tracker

import (
	"math"
	"sort"

	"github.com/jsphweid/midiroll/constants"
	"github.com/jsphweid/midiroll/model"
	"github.com/jsphweid/midiroll/solver"
	"github.com/sirupsen/logrus"
)

const (
	controllerVolume     = 7
	controllerExpression = 11
)

type activeNote struct {
	onTick   uint64
	velocity uint8
	// off is set once the note has been released and is waiting for the
	// next onset to learn its full length
	off      bool
	duration uint64
}

// Tracker follows the notes of one channel for one segment, i.e. a stretch
// with a single tempo and instrument. It does not own a clock: every call is
// handed the current tick by the collector.
type Tracker struct {
	Channel    uint8
	Instrument uint8
	Tempo      uint32
	StartTime  uint64

	started    bool
	volume     float64
	expression float64
	active     map[uint8]*activeNote
	notes      []model.NoteRecord
	lengths    solver.Histogram
	log        *logrus.Entry
}

func New(channel uint8, instrument uint8, tempo uint32, start uint64) *Tracker {
	return &Tracker{
		Channel:    channel,
		Instrument: instrument,
		Tempo:      tempo,
		StartTime:  start,
		volume:     1,
		expression: 1,
		active:     make(map[uint8]*activeNote),
		lengths:    make(solver.Histogram),
		log:        logrus.WithField("channel", channel),
	}
}

// Successor opens the next segment of the same channel. Volume and
// expression carry over, they are channel state rather than segment state.
func (t *Tracker) Successor(instrument uint8, tempo uint32, start uint64) *Tracker {
	next := New(t.Channel, instrument, tempo, start)
	next.volume = t.volume
	next.expression = t.expression
	return next
}

func (t *Tracker) Started() bool {
	return t.started
}

func (t *Tracker) Notes() []model.NoteRecord {
	return t.notes
}

// Lengths is this segment's share of its tempo's duration histogram.
func (t *Tracker) Lengths() solver.Histogram {
	return t.lengths
}

// Handle applies one routed message at tick now. It returns true when the
// message ends the segment: a program change after notes have sounded.
// The caller is expected to Close this tracker and continue with a
// Successor under the new program.
func (t *Tracker) Handle(msg model.Message, now uint64) bool {
	switch m := msg.(type) {
	case model.NoteOn:
		if m.Velocity == 0 {
			t.noteOff(m.Pitch, now)
			return false
		}
		t.noteOn(m.Pitch, m.Velocity, now)
	case model.NoteOff:
		t.noteOff(m.Pitch, now)
	case model.ProgramChange:
		if t.started {
			return true
		}
		t.log.Debugf("instrument changed to %v", m.Program)
		t.Instrument = m.Program
	case model.ControlChange:
		switch m.Controller {
		case controllerVolume:
			t.volume = float64(m.Value) / constants.MaxVelocity
		case controllerExpression:
			t.expression = float64(m.Value) / constants.MaxVelocity
		}
	default:
		t.log.Debugf("ignoring %T", msg)
	}
	return false
}

func (t *Tracker) scaleVelocity(velocity uint8) uint8 {
	v := math.RoundToEven(float64(velocity) * t.volume * t.expression)
	if v > constants.MaxVelocity {
		v = constants.MaxVelocity
	}
	return uint8(v)
}

func (t *Tracker) noteOn(pitch uint8, velocity uint8, now uint64) {
	t.started = true
	// the new onset ends the downtime of everything already released
	t.FinalizePending(now)
	if n, ok := t.active[pitch]; ok {
		// retriggered without a release
		n.duration = now - n.onTick
		t.emit(pitch, n, now)
		delete(t.active, pitch)
	}
	t.active[pitch] = &activeNote{
		onTick:   now,
		velocity: t.scaleVelocity(velocity),
	}
}

func (t *Tracker) noteOff(pitch uint8, now uint64) {
	n, ok := t.active[pitch]
	if !ok || n.off {
		t.log.Debugf("note off for unpressed note %v", pitch)
		return
	}
	n.off = true
	n.duration = now - n.onTick
}

func (t *Tracker) emit(pitch uint8, n *activeNote, now uint64) {
	rec := model.NoteRecord{
		Pitch:      pitch,
		OnTick:     n.onTick,
		Duration:   n.duration,
		FullLength: now - n.onTick,
		Velocity:   n.velocity,
	}
	t.notes = append(t.notes, rec)
	t.lengths.Add(rec.FullLength)
}

// FinalizePending emits every released note, taking now as its next onset.
func (t *Tracker) FinalizePending(now uint64) {
	for _, pitch := range t.sortedPitches() {
		n := t.active[pitch]
		if n.off {
			t.emit(pitch, n, now)
			delete(t.active, pitch)
		}
	}
}

// Close ends the segment at now. Notes still sounding are cut there.
func (t *Tracker) Close(now uint64) {
	t.FinalizePending(now)
	for _, pitch := range t.sortedPitches() {
		n := t.active[pitch]
		n.duration = now - n.onTick
		t.log.Debugf("cutting sounding note %v at %v", pitch, now)
		t.emit(pitch, n, now)
		delete(t.active, pitch)
	}
}

func (t *Tracker) sortedPitches() []uint8 {
	pitches := make([]uint8, 0, len(t.active))
	for p := range t.active {
		pitches = append(pitches, p)
	}
	sort.Slice(pitches, func(i, j int) bool {
		return pitches[i] < pitches[j]
	})
	return pitches
}

// Events converts the finalized notes into on/off pairs ordered by tick,
// note ons first. ok is false for a segment that never sounded.
func (t *Tracker) Events() (events []model.RawEvent, ok bool) {
	if len(t.notes) == 0 {
		return nil, false
	}
	events = make([]model.RawEvent, 0, 2*len(t.notes))
	for _, n := range t.notes {
		events = append(events,
			model.RawEvent{Tick: n.OnTick, On: true, Pitch: n.Pitch, Velocity: n.Velocity},
			model.RawEvent{Tick: n.OnTick + n.Duration, On: false, Pitch: n.Pitch},
		)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Less(events[j])
	})
	return events, true
}
