// Port configuration is modeled on Daedaluz-goserial's port_linux.go
// (flag-clearing into a raw 8N1 mode via the TCGETS/TCSETS termios
// ioctls), adapted to golang.org/x/sys/unix's IoctlGetTermios/
// IoctlSetTermios instead of a hand-rolled ioctl wrapper, and scoped down
// to exactly the fixed configuration this driver needs: no RS485, no
// custom divisors, no line discipline switching.
package serial

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// BaudRate is restricted to the fixed enumeration this driver supports.
type BaudRate uint32

const (
	Baud4800   BaudRate = 4800
	Baud9600   BaudRate = 9600
	Baud14400  BaudRate = 14400
	Baud19200  BaudRate = 19200
	Baud28800  BaudRate = 28800
	Baud38400  BaudRate = 38400
	Baud57600  BaudRate = 57600
	Baud115200 BaudRate = 115200
)

var baudConstants = map[BaudRate]uint32{
	Baud4800:   unix.B4800,
	Baud9600:   unix.B9600,
	Baud19200:  unix.B19200,
	Baud38400:  unix.B38400,
	Baud57600:  unix.B57600,
	Baud115200: unix.B115200,
}

// Port is a raw, non-blocking serial file descriptor configured for
// 8 data bits, no parity, 1 stop bit, no flow control.
type Port struct {
	fd int
}

// Open opens name at baud, configures it raw per §4.3, and returns a
// ready Port. 14400 and 28800 have no POSIX termios constant on Linux
// (they are DOS-era rates); both return an error rather than silently
// rounding to a neighboring rate.
func Open(name string, baud BaudRate) (*Port, error) {
	speed, ok := baudConstants[baud]
	if !ok {
		return nil, fmt.Errorf("serial: %d baud has no termios constant on this platform", baud)
	}

	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", name, err)
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: get attrs: %w", err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	setTermiosSpeed(t, speed)

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial: set attrs: %w", err)
	}

	return &Port{fd: fd}, nil
}

// Write writes data to the port, non-blocking.
func (p *Port) Write(data []byte) (int, error) {
	return unix.Write(p.fd, data)
}

// Read reads whatever is immediately available into data. On a
// non-blocking descriptor with no data pending the underlying read fails
// with unix.EAGAIN; Read reports that as (0, nil), "zero bytes read".
func (p *Port) Read(data []byte) (int, error) {
	n, err := unix.Read(p.fd, data)
	if err == unix.EAGAIN {
		return 0, nil
	}
	return n, err
}

// Close closes the underlying descriptor.
func (p *Port) Close() error {
	return unix.Close(p.fd)
}
