package collector

import (
	"context"
	"fmt"

	"github.com/bscott/mailfetch/internal/transport"
)

// WithSession connects t, runs fn and always disconnects. An error from
// fn takes precedence over a disconnect error.
func WithSession(ctx context.Context, t transport.Transport, fn func(transport.Transport) error) (err error) {
	if err := t.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if closeErr := t.Disconnect(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to disconnect: %w", closeErr)
		}
	}()

	return fn(t)
}
