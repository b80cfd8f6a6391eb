//go:build !tinygo

package output

import "log"

// LogDriver is the host stand-in for the GPIO lines. It only logs when asked to.
type LogDriver struct {
	verbose bool
}

// NewLineDriver returns the driver for the current build target. On the host
// the pin map is only reported; no hardware is touched.
func NewLineDriver(pins []int, verbose bool) Driver {
	log.Printf("[Output] Host build, %d lines simulated (pins %v).", LineCount, pins)
	return &LogDriver{verbose: verbose}
}

func (d *LogDriver) Set(index int, on bool) {
	if d.verbose {
		log.Printf("[Output] line %d -> %v", index, on)
	}
}
