// Package pattern computes animation frames for the output bank.
//
// Every pattern is a pure function of its cursor: Frame gives the lines that
// are on, Period gives the cursor range before it wraps back to 0.
package pattern

import (
	"ledbar-controller/internal/core"
	"ledbar-controller/internal/output"
)

const (
	n    = output.LineCount
	half = n / 2
)

// Period returns the number of distinct cursor values of p.
func Period(p core.PatternID) int {
	switch p {
	case core.SweepForward, core.SweepBackward:
		return n
	case core.CenterOut, core.EdgesIn:
		return half
	case core.LevelMeter:
		return 2 * n
	case core.OddMask, core.EvenMask:
		return 1
	case core.BlinkAll:
		return 2
	case core.Stopped:
		return 1
	default:
		return 1
	}
}

// Frame returns the lines that are on for p at cursor c, ascending.
// c is reduced modulo the period, so every index lands in [0, n).
func Frame(p core.PatternID, c int) []int {
	c = wrap(c, Period(p))

	switch p {
	case core.SweepForward:
		return []int{c}
	case core.SweepBackward:
		return []int{n - 1 - c}
	case core.CenterOut:
		return []int{half - 1 - c, half + c}
	case core.EdgesIn:
		return []int{c, n - 1 - c}
	case core.LevelMeter:
		// Fills 0..c, then the second half of the cycle is dark.
		if c >= n {
			return nil
		}
		return span(0, c)
	case core.OddMask:
		return stride(1)
	case core.EvenMask:
		return stride(0)
	case core.BlinkAll:
		if c%2 == 0 {
			return span(0, n-1)
		}
		return nil
	case core.Stopped:
		return nil
	default:
		return nil
	}
}

// Step renders the frame of p at cursor onto bank and returns the next cursor.
func Step(bank *output.Bank, p core.PatternID, cursor int) int {
	bank.SetAll(false)
	bank.SetIndices(Frame(p, cursor), true)
	return wrap(cursor+1, Period(p))
}

func wrap(c, period int) int {
	c %= period
	if c < 0 {
		c += period
	}
	return c
}

// span returns lo..hi inclusive; empty when hi < lo.
func span(lo, hi int) []int {
	if hi < lo {
		return nil
	}
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

func stride(start int) []int {
	out := make([]int, 0, half)
	for i := start; i < n; i += 2 {
		out = append(out, i)
	}
	return out
}
