package body

import "fmt"

// Mode is the diagnostic mode tag accompanying each estimation tick. It is
// set externally over the control topic.
type Mode int

const (
	ModeIdle Mode = iota
	ModeTimingTest
	ModeComparisonTest
)

func (m Mode) String() string {
	switch m {
	case ModeTimingTest:
		return "timing"
	case ModeComparisonTest:
		return "comparison"
	default:
		return "idle"
	}
}

// ParseMode maps a control-command string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "idle", "":
		return ModeIdle, nil
	case "timing":
		return ModeTimingTest, nil
	case "comparison":
		return ModeComparisonTest, nil
	}
	return ModeIdle, fmt.Errorf("unknown mode %q", s)
}

// ModeCommand is the control message on the mode topic.
type ModeCommand struct {
	Mode string `json:"mode"`
}
