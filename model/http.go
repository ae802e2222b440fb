package model

type TapeEvent struct {
	Kind     string `json:"kind" yaml:"kind"`
	Tick     uint64 `json:"tick" yaml:"tick"`
	Pitch    uint8  `json:"pitch,omitempty" yaml:"pitch,omitempty"`
	Velocity uint8  `json:"velocity,omitempty" yaml:"velocity,omitempty"`
}

type TapeResponse struct {
	Label  Label       `json:"label"`
	Events []TapeEvent `json:"events"`
}

type GridResponse struct {
	Tempo  uint32      `json:"tempo"`
	Start  uint64      `json:"start"`
	Frames [][]float64 `json:"frames"`
	Onsets [][]float64 `json:"onsets"`
}

type ErrorResponse struct {
	Error string `json:"detail"`
}
