package core

import "strconv"

// PatternID identifies one of the built-in animations, or Stopped.
type PatternID int

const (
	Stopped PatternID = iota
	SweepForward
	SweepBackward
	CenterOut
	EdgesIn
	LevelMeter
	OddMask
	EvenMask
	BlinkAll
)

// Patterns lists the selectable animations in token order ("1".."8").
var Patterns = []PatternID{
	SweepForward,
	SweepBackward,
	CenterOut,
	EdgesIn,
	LevelMeter,
	OddMask,
	EvenMask,
	BlinkAll,
}

// Token returns the control token that selects the pattern ("1".."8"), or "9" for Stopped.
func (p PatternID) Token() string {
	if p == Stopped {
		return StopToken
	}
	return strconv.Itoa(int(p))
}

func (p PatternID) String() string {
	switch p {
	case Stopped:
		return "stopped"
	case SweepForward:
		return "sweep_forward"
	case SweepBackward:
		return "sweep_backward"
	case CenterOut:
		return "center_out"
	case EdgesIn:
		return "edges_in"
	case LevelMeter:
		return "level_meter"
	case OddMask:
		return "odd_mask"
	case EvenMask:
		return "even_mask"
	case BlinkAll:
		return "blink_all"
	default:
		return "unknown(" + strconv.Itoa(int(p)) + ")"
	}
}
