package serialmux

import "io"

// SerialPorter is the minimal interface needed for a serial port. Tests
// substitute TestableSerialPort.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
