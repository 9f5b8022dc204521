package serial

import (
	"github.com/sirupsen/logrus"
)

// Resolver finds the serial peripheral among a fixed list of candidate paths.
type Resolver struct {
	config Config
	open   OpenFunc
	logger *logrus.Entry
}

// NewResolver creates a resolver that opens real tty devices.
func NewResolver(config Config, logger *logrus.Entry) *Resolver {
	return &Resolver{
		config: config,
		open:   openPort,
		logger: logger,
	}
}

// WithOpener replaces the function used to open a single path.
func (r *Resolver) WithOpener(open OpenFunc) *Resolver {
	r.open = open
	return r
}

// Open tries every candidate in order and returns the first port that opens.
// A failing candidate just means the device is not at that path; only when
// all of them fail is ErrDeviceUnavailable returned.
func (r *Resolver) Open() (Port, error) {
	for _, path := range r.config.Candidates {
		port, err := r.open(path, r.config)
		if err != nil {
			r.logger.WithField("path", path).WithError(err).Debug("Serial candidate not available")
			continue
		}

		r.logger.WithFields(logrus.Fields{
			"path": path,
			"baud": r.config.BaudRate,
		}).Info("Serial port opened")
		return port, nil
	}

	r.logger.WithField("candidates", r.config.Candidates).Warn("No serial port available")
	return nil, ErrDeviceUnavailable
}
