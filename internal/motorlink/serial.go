package motorlink

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// OpenSerialPort opens the real serial device the motor controller is
// attached to and sleeps for the controller's reset delay before
// returning, mirroring the teacher's MAVLink serial lifecycle.
func OpenSerialPort(portName string, baudRate int, timeout time.Duration) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("motorlink: open %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("motorlink: set read timeout: %w", err)
	}

	// The microcontroller resets on DTR toggle when the port opens; give
	// it time to finish booting before sending anything.
	time.Sleep(2 * time.Second)

	return port, nil
}

// ListPorts enumerates candidate serial devices for operator tooling.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("motorlink: list ports: %w", err)
	}
	return ports, nil
}
