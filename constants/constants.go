package constants

import "os"

func GetRollDir() string {
	path := os.Getenv("ROLL_PATH")
	if path != "" {
		return path
	}
	return "./out"
}

func GetMediaDir() string {
	path := os.Getenv("MEDIA_PATH")
	if path != "" {
		return path
	}
	return "."
}

// bumping this invalidates every stored roll
const Version = "midiroll-1"

// 1 for tag, 2 for pitch/velocity (or delta), 2 for tick
const RecordSize = 5

// 120 bpm, what a file plays at until it says otherwise
const DefaultTempo = 500000

const PercussionChannel = 9

const NumChannels = 16

const NumPitches = 128

const MaxVelocity = 127

const DefaultChopLoss = 0.002

const RollExt = ".mrl"
const TapeExt = ".mtp"
