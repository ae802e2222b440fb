package model

// NoteRecord is a finalized note. FullLength runs from the onset to the
// next onset on the channel (or the segment close), so FullLength >= Duration.
type NoteRecord struct {
	Pitch      uint8
	OnTick     uint64
	Duration   uint64
	FullLength uint64
	Velocity   uint8
}

// Downtime is the rest following the note.
func (n NoteRecord) Downtime() uint64 {
	return n.FullLength - n.Duration
}

type RawEvent struct {
	Tick     uint64
	On       bool
	Pitch    uint8
	Velocity uint8
}

// Less orders by tick, note ons first.
func (e RawEvent) Less(o RawEvent) bool {
	if e.Tick != o.Tick {
		return e.Tick < o.Tick
	}
	return e.On && !o.On
}
