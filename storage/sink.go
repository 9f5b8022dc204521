package storage

import (
	"context"
	"errors"
)

// Sink accepts every decoded inbound message.
type Sink interface {
	Store(ctx context.Context, data any) error
}

// Fanout stores into every sink in order. A failing sink does not stop the others.
type Fanout []Sink

// Store implements Sink.
func (f Fanout) Store(ctx context.Context, data any) error {
	var errs []error
	for _, sink := range f {
		if sink == nil {
			continue
		}
		if err := sink.Store(ctx, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
