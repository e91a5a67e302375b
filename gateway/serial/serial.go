// Package serial opens the physical serial line to the gateway host
// and puts it into raw mode at the baud rate named in spec §6
// (115200), using golang.org/x/sys/unix termios control — the detail
// original_source's uart0_init(BAUD2UBR(115200)) handled at the
// microcontroller's UART peripheral, here done at the host OS's tty
// layer instead.
package serial

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Port wraps an open serial device file configured for raw I/O.
type Port struct {
	*os.File
}

// Open opens path (e.g. "/dev/ttyUSB0") and configures it for raw,
// 8-N-1, 115200 baud operation — the host-side equivalent of spec §6's
// "baud 115200".
func Open(path string) (*Port, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", path, err)
	}
	if err := configure(int(f.Fd())); err != nil {
		f.Close()
		return nil, fmt.Errorf("serial: configure %s: %w", path, err)
	}
	return &Port{File: f}, nil
}

func configure(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	unix.CfmakeRaw(t)
	if err := unix.CfsetspeedInt(t, unix.B115200); err != nil {
		return err
	}
	t.Cflag |= unix.CLOCAL | unix.CREAD
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}
