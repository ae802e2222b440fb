package model

// Message is one of the message kinds the normalizer understands. Anything
// else arrives as Unsupported.
type Message interface {
	isMessage()
}

type NoteOn struct {
	Channel  uint8
	Pitch    uint8
	Velocity uint8
}

type NoteOff struct {
	Channel  uint8
	Pitch    uint8
	Velocity uint8
}

type ProgramChange struct {
	Channel uint8
	Program uint8
}

type ControlChange struct {
	Channel    uint8
	Controller uint8
	Value      uint8
}

type SetTempo struct {
	MicrosPerBeat uint32
}

type EndOfTrack struct{}

// Unsupported covers pitch-bend, sysex, aftertouch and meta we don't use.
type Unsupported struct {
	Name string
}

func (NoteOn) isMessage()        {}
func (NoteOff) isMessage()       {}
func (ProgramChange) isMessage() {}
func (ControlChange) isMessage() {}
func (SetTempo) isMessage()      {}
func (EndOfTrack) isMessage()    {}
func (Unsupported) isMessage()   {}

type Event struct {
	DeltaTicks uint32
	Message    Message
}

// Channel returns the channel of a channel message. ok is false for
// meta and unsupported messages.
func Channel(m Message) (ch uint8, ok bool) {
	switch msg := m.(type) {
	case NoteOn:
		return msg.Channel, true
	case NoteOff:
		return msg.Channel, true
	case ProgramChange:
		return msg.Channel, true
	case ControlChange:
		return msg.Channel, true
	}
	return 0, false
}
