package serial

import "io"

// Port is an open serial handle.
type Port interface {
	io.ReadWriteCloser
	// Buffered reports how many received bytes are waiting to be read.
	Buffered() (int, error)
}

// OpenFunc opens a single device path with the given configuration.
type OpenFunc func(path string, cfg Config) (Port, error)
