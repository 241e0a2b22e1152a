package iface

import "fmt"

type GameState int

const (
	StateUnknown GameState = iota
	StatePlay
	StateNoPlay
)

func (s GameState) String() string {
	switch s {
	case StatePlay:
		return "play"
	case StateNoPlay:
		return "no-play"
	default:
		return "unknown"
	}
}

func (s GameState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *GameState) UnmarshalText(b []byte) error {
	v, err := ParseGameState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseGameState accepts the label spellings used by classifier name files.
func ParseGameState(label string) (GameState, error) {
	switch label {
	case "play", "Play", "PLAY":
		return StatePlay, nil
	case "no-play", "no_play", "noplay", "NoPlay", "no play", "NO_PLAY":
		return StateNoPlay, nil
	case "unknown", "":
		return StateUnknown, nil
	}
	return StateUnknown, fmt.Errorf("unknown game state label %q", label)
}

type ClassificationResult struct {
	State      GameState `json:"state"`
	Confidence float32   `json:"confidence"`
}

// Unclassified is the state held before any classification has succeeded.
func Unclassified() ClassificationResult {
	return ClassificationResult{State: StateUnknown, Confidence: 0}
}

// FrameResult is the fused output for one input frame.
type FrameResult struct {
	Index     int64                `json:"index"`
	Actions   []BoundingBox        `json:"actions"`
	Ball      *Detection           `json:"ball,omitempty"`
	Players   []Pose               `json:"players"`
	Court     []Segmentation       `json:"court"`
	GameState ClassificationResult `json:"gameState"`
}
