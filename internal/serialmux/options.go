package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// PortOptions is the serial framing of the counter display. Zero values
// mean 9600 baud, 8 data bits, no parity, 1 stop bit.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"` // N, E or O; "none", "even" and "odd" are accepted
}

var parities = map[string]serial.Parity{
	"N": serial.NoParity,
	"E": serial.EvenParity,
	"O": serial.OddParity,
}

var stopBits = map[int]serial.StopBits{
	1: serial.OneStopBit,
	2: serial.TwoStopBits,
}

// Normalize fills in defaults and rejects framings the display cannot
// use. Parity is reduced to its one-letter form.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 9600
	}
	if o.DataBits == 0 {
		o.DataBits = 8
	}
	if o.StopBits == 0 {
		o.StopBits = 1
	}
	if o.DataBits < 5 || o.DataBits > 8 {
		return o, fmt.Errorf("data bits must be 5-8, got %d", o.DataBits)
	}
	if _, ok := stopBits[o.StopBits]; !ok {
		return o, fmt.Errorf("stop bits must be 1 or 2, got %d", o.StopBits)
	}

	p := strings.ToUpper(strings.TrimSpace(o.Parity))
	switch p {
	case "", "NONE":
		p = "N"
	case "EVEN":
		p = "E"
	case "ODD":
		p = "O"
	}
	if _, ok := parities[p]; !ok {
		return o, fmt.Errorf("parity must be N, E or O, got %q", o.Parity)
	}
	o.Parity = p
	return o, nil
}

// SerialMode converts the options for go.bug.st/serial.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		Parity:   parities[n.Parity],
		StopBits: stopBits[n.StopBits],
	}, nil
}
