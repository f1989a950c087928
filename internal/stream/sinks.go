package stream

import (
	"context"
	"fmt"
)

// CrossingRecorder is a Sink that persists every crossing event.
type CrossingRecorder struct {
	Store CrossingStore
}

// OnFrame writes the frame's crossings, if any.
func (c CrossingRecorder) OnFrame(ctx context.Context, out Output) error {
	if len(out.Result.Crossings) == 0 {
		return nil
	}
	if err := c.Store.RecordCrossings(ctx, out.SessionID, out.Stream, out.Result.Crossings); err != nil {
		return fmt.Errorf("record crossings: %w", err)
	}
	return nil
}
