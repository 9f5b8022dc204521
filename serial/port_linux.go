//go:build linux

package serial

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

type ttyPort struct {
	fd   int
	file *os.File
}

// openPort opens path as a raw 8N1 tty.
func openPort(path string, cfg Config) (Port, error) {
	speed, ok := baudRates[cfg.BaudRate]
	if !ok {
		return nil, fmt.Errorf("unsupported baud rate %d", cfg.BaudRate)
	}

	// O_NONBLOCK so a missing carrier does not hang the open
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := configure(fd, speed, cfg.ReadTimeout); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("configure %s: %w", path, err)
	}

	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set blocking %s: %w", path, err)
	}

	return &ttyPort{fd: fd, file: os.NewFile(uintptr(fd), path)}, nil
}

func configure(fd int, speed uint32, readTimeout time.Duration) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed

	// VMIN=0 + VTIME turns every read into a bounded wait
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = deciseconds(readTimeout)

	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

func deciseconds(d time.Duration) uint8 {
	ds := d / (100 * time.Millisecond)
	if ds < 1 {
		return 1
	}
	if ds > 255 {
		return 255
	}
	return uint8(ds)
}

func (p *ttyPort) Read(b []byte) (int, error)  { return p.file.Read(b) }
func (p *ttyPort) Write(b []byte) (int, error) { return p.file.Write(b) }
func (p *ttyPort) Close() error                { return p.file.Close() }

// Buffered asks the driver for the input queue length.
func (p *ttyPort) Buffered() (int, error) {
	return unix.IoctlGetInt(p.fd, unix.TIOCINQ)
}
