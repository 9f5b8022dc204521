//go:build !linux

package serial

import (
	"fmt"
	"runtime"
)

// openPort is only implemented for Linux; elsewhere every candidate is reported as absent.
func openPort(path string, _ Config) (Port, error) {
	return nil, fmt.Errorf("open %s: serial ports are not supported on %s", path, runtime.GOOS)
}
