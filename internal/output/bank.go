// Package output owns the fixed bank of switchable output lines.
package output

import "strings"

// LineCount is the fixed number of lines in the bank.
const LineCount = 8

// Driver pushes a single line level to the hardware (or whatever stands in for it).
type Driver interface {
	Set(index int, on bool)
}

// Bank holds the logical state of every line and mirrors changes to a Driver.
// It is owned by the loop goroutine and is not safe for concurrent use.
type Bank struct {
	lines  [LineCount]bool
	driver Driver
}

// NewBank creates a bank with every line off. A nil driver keeps the state in memory only.
func NewBank(driver Driver) *Bank {
	b := &Bank{driver: driver}
	b.SetAll(false)
	return b
}

// SetAll sets every line to value.
func (b *Bank) SetAll(value bool) {
	for i := range b.lines {
		b.set(i, value)
	}
}

// SetIndices sets the given lines to value. Callers only pass indices in [0, LineCount).
func (b *Bank) SetIndices(indices []int, value bool) {
	for _, i := range indices {
		b.set(i, value)
	}
}

func (b *Bank) set(i int, value bool) {
	b.lines[i] = value
	if b.driver != nil {
		b.driver.Set(i, value)
	}
}

// Lines returns a copy of the current line states.
func (b *Bank) Lines() [LineCount]bool {
	return b.lines
}

// Active returns the indices of the lines that are on, in ascending order.
func (b *Bank) Active() []int {
	active := make([]int, 0, LineCount)
	for i, on := range b.lines {
		if on {
			active = append(active, i)
		}
	}
	return active
}

// String renders the bank as a bit string, index 0 first ("10000000").
func (b *Bank) String() string {
	var sb strings.Builder
	sb.Grow(LineCount)
	for _, on := range b.lines {
		if on {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}
