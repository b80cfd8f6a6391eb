//go:build tinygo

package output

import "machine"

// PinDriver drives one GPIO output per line.
type PinDriver struct {
	pins [LineCount]machine.Pin
}

// NewLineDriver configures the mapped pins as outputs, driven low.
func NewLineDriver(pins []int, _ bool) Driver {
	d := &PinDriver{}
	for i := 0; i < LineCount && i < len(pins); i++ {
		p := machine.Pin(pins[i])
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
		d.pins[i] = p
	}
	return d
}

func (d *PinDriver) Set(index int, on bool) {
	d.pins[index].Set(on)
}
