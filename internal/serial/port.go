package serial

import (
	"fmt"
	"time"

	goserial "github.com/daedaluz/goserial"
)

// Port is the I/O surface the Supervisor needs from a serial handle. The
// real implementation is backed by github.com/daedaluz/goserial; tests
// substitute an in-memory fake.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// OpenFunc opens the device at path with the given per-read timeout. It is
// a seam so the Supervisor can be driven by a fake in tests.
type OpenFunc func(path string, readTimeout time.Duration) (Port, error)

// OpenTermios is the default OpenFunc: 8-N-1, raw mode, software flow
// control (XON/XOFF) on both directions, grounded on
// _examples/Daedaluz-goserial/port_linux.go.
func OpenTermios(path string, readTimeout time.Duration) (Port, error) {
	opts := goserial.NewOptions().SetReadTimeout(readTimeout)
	p, err := goserial.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", path, err)
	}

	if err := p.MakeRaw(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial: make raw %s: %w", path, err)
	}

	attrs, err := p.GetAttr()
	if err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial: get attrs %s: %w", path, err)
	}

	// 8-N-1: MakeRaw already set CS8 and cleared PARENB/CSIZE; clear CSTOPB
	// explicitly for one stop bit and enable CREAD|CLOCAL so reads work on
	// a cableless/DCD-less line.
	attrs.Cflag &^= goserial.CSTOPB
	attrs.Cflag |= goserial.CREAD | goserial.CLOCAL

	// Software flow control: XON/XOFF on input and output. MakeRaw clears
	// IXON, so it must be re-enabled here alongside IXOFF.
	attrs.Iflag |= goserial.IXON | goserial.IXOFF

	if err := p.SetAttr(goserial.TCSANOW, attrs); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial: set attrs %s: %w", path, err)
	}

	return p, nil
}
