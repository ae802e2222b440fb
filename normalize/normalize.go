package normalize

import (
	"math"
	"sort"

	"github.com/jsphweid/midiroll/constants"
	"github.com/jsphweid/midiroll/midi"
	"github.com/jsphweid/midiroll/model"
	"github.com/jsphweid/midiroll/roll"
	"github.com/jsphweid/midiroll/solver"
	"github.com/jsphweid/midiroll/tape"
	"github.com/jsphweid/midiroll/tracker"
	"github.com/jsphweid/midiroll/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrMalformedEvent = errors.New("malformed event")

type Options struct {
	// ChopLoss is the share of the summed note lengths below which the
	// solver stops refining.
	ChopLoss float64
	Log      *logrus.Entry
}

func DefaultOptions() Options {
	return Options{ChopLoss: constants.DefaultChopLoss}
}

func (o Options) logger() *logrus.Entry {
	if o.Log != nil {
		return o.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

type Stats struct {
	Events      int
	Malformed   int
	Unsupported int
	Percussion  int
	Segments    int
	Discarded   int
}

// Collector walks one file's events once. It owns the tick clock and the
// open segment of every channel, and keeps closed segments until Finish.
type Collector struct {
	ticksPerBeat uint16
	tempo        uint32
	now          uint64
	open         map[uint8]*tracker.Tracker
	closed       []*tracker.Tracker
	stats        Stats
	log          *logrus.Entry
}

func NewCollector(ticksPerBeat uint16, log *logrus.Entry) *Collector {
	return &Collector{
		ticksPerBeat: ticksPerBeat,
		tempo:        constants.DefaultTempo,
		open:         make(map[uint8]*tracker.Tracker),
		log:          log,
	}
}

func (c *Collector) Now() uint64 {
	return c.now
}

func (c *Collector) Tempo() uint32 {
	return c.tempo
}

func (c *Collector) Stats() Stats {
	return c.stats
}

// Advance moves the clock by a native tick delta, going through seconds at
// the tempo in effect.
func (c *Collector) Advance(delta uint32) {
	if delta == 0 {
		return
	}
	secondsPerTick := float64(c.tempo) / 1e6 / float64(c.ticksPerBeat)
	seconds := float64(delta) * secondsPerTick
	c.now += uint64(math.RoundToEven(seconds * float64(c.ticksPerBeat) * 1e6 / float64(c.tempo)))
}

func (c *Collector) Collect(events []model.Event) {
	for _, ev := range events {
		c.Advance(ev.DeltaTicks)
		c.Handle(ev.Message)
	}
}

// Handle applies one message at the current tick.
func (c *Collector) Handle(msg model.Message) {
	c.stats.Events++
	if err := validate(msg); err != nil {
		c.stats.Malformed++
		c.log.WithField("tick", c.now).Warn(err)
		return
	}

	switch m := msg.(type) {
	case model.SetTempo:
		if m.MicrosPerBeat == c.tempo && !c.anyStarted() {
			return
		}
		c.log.WithField("tick", c.now).Debugf("tempo %v -> %v", c.tempo, m.MicrosPerBeat)
		c.closeAll(m.MicrosPerBeat)
		c.tempo = m.MicrosPerBeat
	case model.EndOfTrack:
		c.closeAll(c.tempo)
	case model.NoteOn, model.NoteOff, model.ProgramChange, model.ControlChange:
		ch, _ := model.Channel(m)
		if ch == constants.PercussionChannel {
			c.stats.Percussion++
			return
		}
		tr := c.channel(ch)
		if tr.Handle(m, c.now) {
			pc := m.(model.ProgramChange)
			c.log.WithFields(logrus.Fields{"channel": ch, "tick": c.now}).Debugf("instrument change to %v splits segment", pc.Program)
			c.close(tr)
			c.open[ch] = tr.Successor(pc.Program, c.tempo, c.now)
		}
	case model.Unsupported:
		c.stats.Unsupported++
		c.log.WithField("tick", c.now).Debugf("unsupported message: %v", m.Name)
	default:
		c.stats.Unsupported++
		c.log.WithField("tick", c.now).Debugf("unsupported message: %T", m)
	}
}

func validate(msg model.Message) error {
	bad := func(format string, args ...interface{}) error {
		return errors.Wrapf(ErrMalformedEvent, format, args...)
	}
	switch m := msg.(type) {
	case model.NoteOn:
		if m.Channel >= constants.NumChannels || m.Pitch > 127 || m.Velocity > 127 {
			return bad("note on %+v", m)
		}
	case model.NoteOff:
		if m.Channel >= constants.NumChannels || m.Pitch > 127 || m.Velocity > 127 {
			return bad("note off %+v", m)
		}
	case model.ProgramChange:
		if m.Channel >= constants.NumChannels || m.Program > 127 {
			return bad("program change %+v", m)
		}
	case model.ControlChange:
		if m.Channel >= constants.NumChannels || m.Controller > 127 || m.Value > 127 {
			return bad("control change %+v", m)
		}
	case model.SetTempo:
		if m.MicrosPerBeat == 0 {
			return bad("zero tempo")
		}
	case nil:
		return bad("missing message")
	}
	return nil
}

func (c *Collector) channel(ch uint8) *tracker.Tracker {
	tr, ok := c.open[ch]
	if !ok {
		tr = tracker.New(ch, 0, c.tempo, c.now)
		c.open[ch] = tr
	}
	return tr
}

func (c *Collector) anyStarted() bool {
	for _, tr := range c.open {
		if tr.Started() {
			return true
		}
	}
	return false
}

func (c *Collector) openChannels() []uint8 {
	res := util.GetKeys(c.open)
	sort.Slice(res, func(i, j int) bool {
		return res[i] < res[j]
	})
	return res
}

// closeAll closes every open segment at the current tick and opens their
// successors under tempo.
func (c *Collector) closeAll(tempo uint32) {
	for _, ch := range c.openChannels() {
		tr := c.open[ch]
		c.close(tr)
		c.open[ch] = tr.Successor(tr.Instrument, tempo, c.now)
	}
}

func (c *Collector) close(tr *tracker.Tracker) {
	tr.Close(c.now)
	if len(tr.Notes()) == 0 {
		c.stats.Discarded++
		return
	}
	c.stats.Segments++
	c.closed = append(c.closed, tr)
}

// Finish closes whatever is still open, solves each tempo's pooled
// histogram once and appends one tape per segment to r, grouped by tempo in
// order of first appearance.
func (c *Collector) Finish(r *roll.Roll, chopLoss float64) error {
	for _, ch := range c.openChannels() {
		c.close(c.open[ch])
	}
	c.open = make(map[uint8]*tracker.Tracker)

	var tempos []uint32
	groups := make(map[uint32][]*tracker.Tracker)
	for _, tr := range c.closed {
		if _, ok := groups[tr.Tempo]; !ok {
			tempos = append(tempos, tr.Tempo)
		}
		groups[tr.Tempo] = append(groups[tr.Tempo], tr)
	}

	for _, tempo := range tempos {
		segments := groups[tempo]
		lengths := make(solver.Histogram)
		for _, tr := range segments {
			lengths.Merge(tr.Lengths())
		}

		log := c.log.WithField("tempo", tempo)
		res, err := solver.Solve(lengths, chopLoss)
		if errors.Is(err, solver.ErrDegenerateHistogram) {
			log.Warnf("%v, falling back to a unit length of 1", err)
		} else if err != nil {
			return errors.Wrapf(err, "solving tempo %d", tempo)
		}
		log.WithField("notes", lengths.Total()).Debugf("unit length %v, %v units most common", res.UnitLength, res.MinCommonMultiple)

		for _, tr := range segments {
			events, ok := tr.Events()
			if !ok {
				continue
			}
			h := tape.Header{
				StartTime:         tape.QuantizeTick(tr.StartTime, res.UnitLength),
				RawStartTime:      tr.StartTime,
				Tempo:             tempo,
				Instrument:        tr.Instrument,
				Channel:           tr.Channel,
				UnitLength:        res.UnitLength,
				MinCommonMultiple: res.MinCommonMultiple,
			}
			t, err := tape.Finalize(h, tape.Quantize(events, res.UnitLength))
			if err != nil {
				return errors.Wrapf(err, "channel %d at tick %d", tr.Channel, tr.StartTime)
			}
			r.Append(t)
		}
	}
	c.closed = nil
	return nil
}

// Normalize turns one file's event stream into a roll.
func Normalize(sourcePath string, events []model.Event, ticksPerBeat uint16, opts Options) (*roll.Roll, error) {
	if ticksPerBeat == 0 {
		return nil, midi.ErrUnsupportedTimeFormat
	}
	log := opts.logger()
	c := NewCollector(ticksPerBeat, log)
	c.Collect(events)

	r := roll.New(sourcePath, roll.LogicHash(opts.ChopLoss))
	if err := c.Finish(r, opts.ChopLoss); err != nil {
		return nil, err
	}
	stats := c.Stats()
	log.WithFields(logrus.Fields{
		"tapes":       len(r.Tapes),
		"discarded":   stats.Discarded,
		"malformed":   stats.Malformed,
		"unsupported": stats.Unsupported,
		"percussion":  stats.Percussion,
	}).Debug("normalized")
	return r, nil
}

// NormalizeFile reads the MIDI file at path and normalizes it.
func NormalizeFile(path string, opts Options) (*roll.Roll, error) {
	s, err := midi.ReadMidiFile(path)
	if err != nil {
		return nil, err
	}
	events, tpb, err := midi.ToEvents(s)
	if err != nil {
		return nil, err
	}
	return Normalize(path, events, tpb, opts)
}
