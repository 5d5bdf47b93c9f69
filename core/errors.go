package core

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by every blocking call on a closed DynamicBatcher or
// BatchingQueue. It is the expected path during shutdown.
var ErrClosed = errors.New("queue closed")

// ShapeError reports a member of a batch whose per-field shapes do not match
// the rest of the batch. It fails that batch, not the process.
type ShapeError struct {
	Want string
	Got  string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape mismatch in batch: want %s, got %s", e.Want, e.Got)
}
